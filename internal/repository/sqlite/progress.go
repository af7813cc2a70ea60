package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/repository"
)

const progressColumns = `id, user_email, mission_id, score, payload, created_at`

// Insert appends e. ID and CreatedAt are assigned here.
func (db *DB) Insert(ctx context.Context, e *model.ProgressEvent) error {
	payload, err := model.EncodePayload(e.Payload)
	if err != nil {
		return fmt.Errorf("sqlite: inserting progress: %w", err)
	}

	e.ID = xid.New().String()
	e.CreatedAt = time.Now().UTC()

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO progress_events (id, user_email, mission_id, kind, score, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.User,
		e.MissionID,
		string(e.Kind()),
		e.Score,
		string(payload),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting progress for %s: %w", e.User, err)
	}
	return nil
}

// Upsert writes the row for (e.User, e.MissionID) and returns the score the
// row had before, or 0 for a new row. Only heartbeat and check-in kinds are
// covered by the unique index; other kinds are rejected so an accidental
// upsert cannot rewrite history. The read and the write share a transaction.
func (db *DB) Upsert(ctx context.Context, e *model.ProgressEvent) (int, error) {
	if !e.Kind().Upserted() {
		return 0, fmt.Errorf("sqlite: upsert of %q events is not allowed", e.Kind())
	}
	payload, err := model.EncodePayload(e.Payload)
	if err != nil {
		return 0, fmt.Errorf("sqlite: upserting progress: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning upsert: %w", err)
	}
	defer tx.Rollback()

	var previous int
	err = tx.QueryRowContext(ctx,
		`SELECT score FROM progress_events
		 WHERE user_email = ? AND mission_id = ? AND kind IN ('heartbeat', 'checkin')`,
		e.User, e.MissionID,
	).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sqlite: reading previous score for %s: %w", e.User, err)
	}

	e.CreatedAt = time.Now().UTC()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO progress_events (id, user_email, mission_id, kind, score, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_email, mission_id) WHERE kind IN ('heartbeat', 'checkin')
		 DO UPDATE SET
			score = excluded.score,
			payload = excluded.payload,
			created_at = excluded.created_at
		 RETURNING id`,
		xid.New().String(),
		e.User,
		e.MissionID,
		string(e.Kind()),
		e.Score,
		string(payload),
		e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: upserting progress for %s: %w", e.User, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing upsert: %w", err)
	}
	return previous, nil
}

// Import inserts pre-built events in one transaction. Existing IDs are skipped.
func (db *DB) Import(ctx context.Context, events []model.ProgressEvent) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO progress_events (id, user_email, mission_id, kind, score, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: preparing import: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range events {
		e := &events[i]
		payload, err := model.EncodePayload(e.Payload)
		if err != nil {
			return 0, fmt.Errorf("sqlite: importing %s: %w", e.ID, err)
		}
		res, err := stmt.ExecContext(ctx,
			e.ID, e.User, e.MissionID, string(e.Kind()), e.Score, string(payload), e.CreatedAt.UTC())
		if err != nil {
			return 0, fmt.Errorf("sqlite: importing %s: %w", e.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("sqlite: importing %s: %w", e.ID, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing import: %w", err)
	}
	return inserted, nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.ProgressEvent, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM progress_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("progress event", id)
		}
		return nil, fmt.Errorf("sqlite: getting progress %s: %w", id, err)
	}
	return e, nil
}

func (db *DB) ListByUser(ctx context.Context, user string, opts repository.ListOptions) ([]model.ProgressEvent, error) {
	opts = opts.Normalize()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+progressColumns+` FROM progress_events
		 WHERE user_email = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		user, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing progress for %s: %w", user, err)
	}
	return collectEvents(rows)
}

func (db *DB) AllByUser(ctx context.Context, user string) ([]model.ProgressEvent, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+progressColumns+` FROM progress_events
		 WHERE user_email = ?
		 ORDER BY created_at DESC, id DESC`,
		user,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading progress for %s: %w", user, err)
	}
	return collectEvents(rows)
}

func (db *DB) ScoreRows(ctx context.Context) ([]model.ScoreRow, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT user_email, score FROM progress_events`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading scores: %w", err)
	}
	defer rows.Close()

	var out []model.ScoreRow
	for rows.Next() {
		var r model.ScoreRow
		if err := rows.Scan(&r.User, &r.Score); err != nil {
			return nil, fmt.Errorf("sqlite: scanning score row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating scores: %w", err)
	}
	return out, nil
}

func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM progress_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting progress %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking delete result: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("progress event", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*model.ProgressEvent, error) {
	var (
		e       model.ProgressEvent
		payload string
	)
	if err := s.Scan(&e.ID, &e.User, &e.MissionID, &e.Score, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	p, err := model.DecodePayload([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", e.ID, err)
	}
	e.Payload = p
	return &e, nil
}

func collectEvents(rows *sql.Rows) ([]model.ProgressEvent, error) {
	defer rows.Close()

	out := []model.ProgressEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning progress: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating progress: %w", err)
	}
	return out, nil
}
