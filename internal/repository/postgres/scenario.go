package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/model"
)

const scenarioColumns = `id, chapter, title, context, tags, choices`

func (db *DB) UpsertScenario(ctx context.Context, s *model.Scenario) error {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	// pgx encodes Go values into JSONB columns with encoding/json.
	_, err := db.pool.Exec(ctx,
		`INSERT INTO scenarios (`+scenarioColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			chapter = EXCLUDED.chapter,
			title = EXCLUDED.title,
			context = EXCLUDED.context,
			tags = EXCLUDED.tags,
			choices = EXCLUDED.choices`,
		s.ID, s.Chapter, s.Title, s.Context, tags, s.Choices,
	)
	if err != nil {
		return fmt.Errorf("postgres: upserting scenario %s: %w", s.ID, err)
	}
	return nil
}

func (db *DB) GetScenario(ctx context.Context, id string) (*model.Scenario, error) {
	var s model.Scenario
	err := db.pool.QueryRow(ctx,
		`SELECT `+scenarioColumns+` FROM scenarios WHERE id = $1`, id,
	).Scan(&s.ID, &s.Chapter, &s.Title, &s.Context, &s.Tags, &s.Choices)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("scenario", id)
		}
		return nil, fmt.Errorf("postgres: getting scenario %s: %w", id, err)
	}
	return &s, nil
}

func (db *DB) ListScenarios(ctx context.Context, chapter int) ([]model.Scenario, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+scenarioColumns+` FROM scenarios
		 WHERE $1 = 0 OR chapter = $1
		 ORDER BY chapter, id`, chapter)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing scenarios: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Scenario, error) {
		var s model.Scenario
		err := r.Scan(&s.ID, &s.Chapter, &s.Title, &s.Context, &s.Tags, &s.Choices)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning scenarios: %w", err)
	}
	if out == nil {
		out = []model.Scenario{}
	}
	return out, nil
}

func (db *DB) ListChapters(ctx context.Context) ([]model.Chapter, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT chapter, COUNT(*) FROM scenarios GROUP BY chapter ORDER BY chapter`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing chapters: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Chapter, error) {
		var c model.Chapter
		err := r.Scan(&c.Number, &c.Scenarios)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning chapters: %w", err)
	}
	if out == nil {
		out = []model.Chapter{}
	}
	return out, nil
}
