// Package leaderboard ranks users by total XP.
//
// Aggregate is the source of truth and works on raw score rows. A Board is an
// optional cache of the same totals (see RedisBoard) so the leaderboard does
// not have to scan every progress row on each request.
package leaderboard

import (
	"cmp"
	"context"
	"slices"

	"github.com/sakif/schoolquest/internal/model"
)

// Entry is one ranked user.
type Entry struct {
	Rank  int    `json:"rank"`
	User  string `json:"user"`
	Total int    `json:"total"`
}

// Board caches per-user totals. Every write feeds Add with the change it made
// to the user's total, which may be negative.
type Board interface {
	Add(ctx context.Context, user string, score int) error
	Top(ctx context.Context, n int) ([]Entry, error)
	Rebuild(ctx context.Context, entries []Entry) error
}

// Aggregate sums scores per user and ranks the totals in descending order.
// Equal totals are ordered by user so the result is stable.
func Aggregate(rows []model.ScoreRow) []Entry {
	totals := make(map[string]int)
	for _, r := range rows {
		totals[r.User] += r.Score
	}

	entries := make([]Entry, 0, len(totals))
	for user, total := range totals {
		entries = append(entries, Entry{User: user, Total: total})
	}
	rank(entries)
	return entries
}

// Limit returns at most n entries; n <= 0 means all.
func Limit(entries []Entry, n int) []Entry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}

// rank sorts entries and assigns 1-based ranks.
func rank(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.User, b.User)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
