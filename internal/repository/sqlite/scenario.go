package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/model"
)

// UpsertScenario writes a scenario, replacing any previous version with the
// same ID. Used by the seed loader on every start.
func (db *DB) UpsertScenario(ctx context.Context, s *model.Scenario) error {
	tags, err := json.Marshal(nonNil(s.Tags))
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags of %s: %w", s.ID, err)
	}
	choices, err := json.Marshal(s.Choices)
	if err != nil {
		return fmt.Errorf("sqlite: encoding choices of %s: %w", s.ID, err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO scenarios (id, chapter, title, context, tags, choices)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			chapter = excluded.chapter,
			title = excluded.title,
			context = excluded.context,
			tags = excluded.tags,
			choices = excluded.choices`,
		s.ID, s.Chapter, s.Title, s.Context, string(tags), string(choices),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting scenario %s: %w", s.ID, err)
	}
	return nil
}

func (db *DB) GetScenario(ctx context.Context, id string) (*model.Scenario, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, chapter, title, context, tags, choices FROM scenarios WHERE id = ?`, id)
	s, err := scanScenario(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("scenario", id)
		}
		return nil, fmt.Errorf("sqlite: getting scenario %s: %w", id, err)
	}
	return s, nil
}

func (db *DB) ListScenarios(ctx context.Context, chapter int) ([]model.Scenario, error) {
	query := `SELECT id, chapter, title, context, tags, choices FROM scenarios`
	var args []any
	if chapter > 0 {
		query += ` WHERE chapter = ?`
		args = append(args, chapter)
	}
	query += ` ORDER BY chapter, id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing scenarios: %w", err)
	}
	defer rows.Close()

	out := []model.Scenario{}
	for rows.Next() {
		s, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning scenario: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating scenarios: %w", err)
	}
	return out, nil
}

func (db *DB) ListChapters(ctx context.Context) ([]model.Chapter, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT chapter, COUNT(*) FROM scenarios GROUP BY chapter ORDER BY chapter`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing chapters: %w", err)
	}
	defer rows.Close()

	out := []model.Chapter{}
	for rows.Next() {
		var c model.Chapter
		if err := rows.Scan(&c.Number, &c.Scenarios); err != nil {
			return nil, fmt.Errorf("sqlite: scanning chapter: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating chapters: %w", err)
	}
	return out, nil
}

func scanScenario(s scanner) (*model.Scenario, error) {
	var (
		sc            model.Scenario
		tags, choices string
	)
	if err := s.Scan(&sc.ID, &sc.Chapter, &sc.Title, &sc.Context, &tags, &choices); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &sc.Tags); err != nil {
		return nil, fmt.Errorf("scenario %s tags: %w", sc.ID, err)
	}
	if err := json.Unmarshal([]byte(choices), &sc.Choices); err != nil {
		return nil, fmt.Errorf("scenario %s choices: %w", sc.ID, err)
	}
	return &sc, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
