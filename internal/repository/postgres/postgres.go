// Package postgres implements the repository interfaces on PostgreSQL using
// a pgx connection pool. The schema mirrors the sqlite package; queries use
// $n placeholders and TIMESTAMPTZ/JSONB columns.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/xid"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/repository"
)

var _ repository.Store = (*DB)(nil)

type DB struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and runs migrations.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

func (db *DB) migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			google_sub TEXT NOT NULL UNIQUE,
			email      TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			image      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

		CREATE TABLE IF NOT EXISTS progress_events (
			id         TEXT PRIMARY KEY,
			user_email TEXT NOT NULL,
			mission_id TEXT NOT NULL,
			kind       TEXT NOT NULL,
			score      INTEGER NOT NULL DEFAULT 0,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_progress_user_created
			ON progress_events(user_email, created_at);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_progress_upsert
			ON progress_events(user_email, mission_id)
			WHERE kind IN ('heartbeat', 'checkin');

		CREATE TABLE IF NOT EXISTS scenarios (
			id      TEXT PRIMARY KEY,
			chapter INTEGER NOT NULL,
			title   TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			tags    JSONB NOT NULL DEFAULT '[]',
			choices JSONB NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_scenarios_chapter ON scenarios(chapter);
	`)
	return err
}

// =========================================================================
// USERS
// =========================================================================

func (db *DB) UpsertUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (id, google_sub, email, name, image, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (google_sub) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			image = EXCLUDED.image,
			updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at, updated_at`,
		xid.New().String(), user.GoogleSub, user.Email, user.Name, user.Image, now,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upserting user %s: %w", user.Email, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`SELECT id, google_sub, email, name, image, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.GoogleSub, &u.Email, &u.Name, &u.Image, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return &u, nil
}

// =========================================================================
// PROGRESS
// =========================================================================

const progressColumns = `id, user_email, mission_id, score, payload, created_at`

func (db *DB) Insert(ctx context.Context, e *model.ProgressEvent) error {
	payload, err := model.EncodePayload(e.Payload)
	if err != nil {
		return fmt.Errorf("postgres: inserting progress: %w", err)
	}
	e.ID = xid.New().String()
	e.CreatedAt = time.Now().UTC()

	_, err = db.pool.Exec(ctx,
		`INSERT INTO progress_events (id, user_email, mission_id, kind, score, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.User, e.MissionID, string(e.Kind()), e.Score, payload, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: inserting progress for %s: %w", e.User, err)
	}
	return nil
}

// Upsert writes the row for (e.User, e.MissionID) and returns its previous
// score, or 0 for a new row. A transaction-scoped advisory lock on the key
// serialises concurrent upserts, including two that both create the row.
func (db *DB) Upsert(ctx context.Context, e *model.ProgressEvent) (int, error) {
	if !e.Kind().Upserted() {
		return 0, fmt.Errorf("postgres: upsert of %q events is not allowed", e.Kind())
	}
	payload, err := model.EncodePayload(e.Payload)
	if err != nil {
		return 0, fmt.Errorf("postgres: upserting progress: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: beginning upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || '|' || $2))`, e.User, e.MissionID); err != nil {
		return 0, fmt.Errorf("postgres: locking %s/%s: %w", e.User, e.MissionID, err)
	}

	var previous int
	err = tx.QueryRow(ctx,
		`SELECT score FROM progress_events
		 WHERE user_email = $1 AND mission_id = $2 AND kind IN ('heartbeat', 'checkin')`,
		e.User, e.MissionID,
	).Scan(&previous)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("postgres: reading previous score for %s: %w", e.User, err)
	}

	e.CreatedAt = time.Now().UTC()
	err = tx.QueryRow(ctx,
		`INSERT INTO progress_events (id, user_email, mission_id, kind, score, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_email, mission_id) WHERE kind IN ('heartbeat', 'checkin')
		 DO UPDATE SET
			score = EXCLUDED.score,
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at
		 RETURNING id`,
		xid.New().String(), e.User, e.MissionID, string(e.Kind()), e.Score, payload, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return 0, fmt.Errorf("postgres: upserting progress for %s: %w", e.User, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: committing upsert: %w", err)
	}
	return previous, nil
}

// Import sends all rows in one batch inside a transaction.
func (db *DB) Import(ctx context.Context, events []model.ProgressEvent) (int, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: beginning import: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i := range events {
		e := &events[i]
		payload, err := model.EncodePayload(e.Payload)
		if err != nil {
			return 0, fmt.Errorf("postgres: importing %s: %w", e.ID, err)
		}
		batch.Queue(
			`INSERT INTO progress_events (id, user_email, mission_id, kind, score, payload, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT DO NOTHING`,
			e.ID, e.User, e.MissionID, string(e.Kind()), e.Score, payload, e.CreatedAt.UTC(),
		)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for i := range events {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("postgres: importing %s: %w", events[i].ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("postgres: closing import batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: committing import: %w", err)
	}
	return inserted, nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.ProgressEvent, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+progressColumns+` FROM progress_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("progress event", id)
		}
		return nil, fmt.Errorf("postgres: getting progress %s: %w", id, err)
	}
	return e, nil
}

func (db *DB) ListByUser(ctx context.Context, user string, opts repository.ListOptions) ([]model.ProgressEvent, error) {
	opts = opts.Normalize()
	rows, err := db.pool.Query(ctx,
		`SELECT `+progressColumns+` FROM progress_events
		 WHERE user_email = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		user, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing progress for %s: %w", user, err)
	}
	return collectEvents(rows)
}

func (db *DB) AllByUser(ctx context.Context, user string) ([]model.ProgressEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+progressColumns+` FROM progress_events
		 WHERE user_email = $1
		 ORDER BY created_at DESC, id DESC`,
		user,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: loading progress for %s: %w", user, err)
	}
	return collectEvents(rows)
}

func (db *DB) ScoreRows(ctx context.Context) ([]model.ScoreRow, error) {
	rows, err := db.pool.Query(ctx, `SELECT user_email, score FROM progress_events`)
	if err != nil {
		return nil, fmt.Errorf("postgres: loading scores: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.ScoreRow, error) {
		var s model.ScoreRow
		err := r.Scan(&s.User, &s.Score)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning scores: %w", err)
	}
	return out, nil
}

func (db *DB) Delete(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM progress_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting progress %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("progress event", id)
	}
	return nil
}

func scanEvent(row pgx.Row) (*model.ProgressEvent, error) {
	var (
		e       model.ProgressEvent
		payload []byte
	)
	if err := row.Scan(&e.ID, &e.User, &e.MissionID, &e.Score, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	p, err := model.DecodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", e.ID, err)
	}
	e.Payload = p
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]model.ProgressEvent, error) {
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.ProgressEvent, error) {
		e, err := scanEvent(r)
		if err != nil {
			return model.ProgressEvent{}, err
		}
		return *e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning progress: %w", err)
	}
	if out == nil {
		out = []model.ProgressEvent{}
	}
	return out, nil
}
