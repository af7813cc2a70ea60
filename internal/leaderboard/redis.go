package leaderboard

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var _ Board = (*RedisBoard)(nil)

// RedisBoard keeps totals in a sorted set: member = user, score = total XP.
type RedisBoard struct {
	rdb *goredis.Client
	key string
}

// NewRedisBoard connects to addr and verifies the connection with PING.
func NewRedisBoard(ctx context.Context, addr, key string) (*RedisBoard, error) {
	if addr == "" {
		return nil, fmt.Errorf("leaderboard: missing redis address")
	}
	if key == "" {
		key = "schoolquest:leaderboard"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("leaderboard: redis ping: %w", err)
	}
	return &RedisBoard{rdb: rdb, key: key}, nil
}

// Add increments the user's total.
func (b *RedisBoard) Add(ctx context.Context, user string, score int) error {
	if err := b.rdb.ZIncrBy(ctx, b.key, float64(score), user).Err(); err != nil {
		return fmt.Errorf("leaderboard: ZINCRBY %s: %w", user, err)
	}
	return nil
}

// Top returns the n highest totals. ZREVRANGE orders equal scores by member
// descending, so a cut through a tie would keep the wrong users; every
// member holding the cutoff score is fetched and the tie is decided the way
// Aggregate decides it.
func (b *RedisBoard) Top(ctx context.Context, n int) ([]Entry, error) {
	stop := int64(n) - 1
	if n <= 0 {
		stop = -1
	}
	zs, err := b.rdb.ZRevRangeWithScores(ctx, b.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: ZREVRANGE: %w", err)
	}
	entries := toEntries(zs)
	if n <= 0 || len(entries) < n {
		rank(entries)
		return entries, nil
	}

	edge := strconv.FormatFloat(zs[len(zs)-1].Score, 'f', -1, 64)
	tied, err := b.rdb.ZRangeByScoreWithScores(ctx, b.key, &goredis.ZRangeBy{Min: edge, Max: edge}).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: ZRANGEBYSCORE %s: %w", edge, err)
	}
	return cutAtTie(entries, toEntries(tied), n), nil
}

func toEntries(zs []goredis.Z) []Entry {
	entries := make([]Entry, 0, len(zs))
	for _, z := range zs {
		user, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{User: user, Total: int(z.Score)})
	}
	return entries
}

// cutAtTie merges the first n entries with every entry tied at the lowest of
// their totals, then ranks and trims back to n.
func cutAtTie(top, tied []Entry, n int) []Entry {
	if len(top) == 0 {
		return top
	}
	edge := top[len(top)-1].Total
	merged := make([]Entry, 0, len(top)+len(tied))
	for _, e := range top {
		if e.Total != edge {
			merged = append(merged, e)
		}
	}
	merged = append(merged, tied...)
	rank(merged)
	return Limit(merged, n)
}

// Rebuild replaces the whole set atomically.
func (b *RedisBoard) Rebuild(ctx context.Context, entries []Entry) error {
	_, err := b.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, b.key)
		if len(entries) == 0 {
			return nil
		}
		members := make([]goredis.Z, 0, len(entries))
		for _, e := range entries {
			members = append(members, goredis.Z{Score: float64(e.Total), Member: e.User})
		}
		pipe.ZAdd(ctx, b.key, members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("leaderboard: rebuilding %s: %w", b.key, err)
	}
	return nil
}

func (b *RedisBoard) Close() error {
	return b.rdb.Close()
}
