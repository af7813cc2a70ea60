// Package repository defines the storage interfaces the services depend on.
//
// Two implementations exist: sqlite (modernc.org/sqlite, the default for
// local and single-node deployments) and postgres (pgx, for hosted
// deployments). Both translate "no rows" into apperror.ErrNotFound.
package repository

import (
	"context"

	"github.com/sakif/schoolquest/internal/model"
)

// ListOptions pages a listing. Limit <= 0 means the implementation default.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultLimit is used when ListOptions.Limit is not set.
const DefaultLimit = 100

// Normalize applies the default limit and clamps negative offsets.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// ProgressRepository stores progress events.
type ProgressRepository interface {
	// Insert appends an event, assigning ID and CreatedAt.
	Insert(ctx context.Context, e *model.ProgressEvent) error
	// Upsert writes the single row for (e.User, e.MissionID), replacing score,
	// payload and timestamp if it exists. e.ID is set to the row's ID. The
	// score the row held before is returned (0 for a new row), read
	// atomically with the write.
	Upsert(ctx context.Context, e *model.ProgressEvent) (previous int, err error)
	// Import appends events that already carry ID and CreatedAt. Rows whose
	// ID exists are skipped; the count of inserted rows is returned.
	Import(ctx context.Context, events []model.ProgressEvent) (int, error)
	GetByID(ctx context.Context, id string) (*model.ProgressEvent, error)
	// ListByUser returns the user's events, newest first.
	ListByUser(ctx context.Context, user string, opts ListOptions) ([]model.ProgressEvent, error)
	// AllByUser returns every event of the user, for summaries.
	AllByUser(ctx context.Context, user string) ([]model.ProgressEvent, error)
	// ScoreRows returns (user, score) for every event.
	ScoreRows(ctx context.Context) ([]model.ScoreRow, error)
	Delete(ctx context.Context, id string) error
}

// ScenarioRepository stores narrative scenarios.
type ScenarioRepository interface {
	UpsertScenario(ctx context.Context, s *model.Scenario) error
	GetScenario(ctx context.Context, id string) (*model.Scenario, error)
	// ListScenarios returns the scenarios of a chapter, or all when chapter is 0.
	ListScenarios(ctx context.Context, chapter int) ([]model.Scenario, error)
	ListChapters(ctx context.Context) ([]model.Chapter, error)
}

// UserRepository stores signed-in users.
type UserRepository interface {
	// UpsertUser inserts or updates a user keyed by GoogleSub, filling in ID
	// and timestamps.
	UpsertUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Store is everything the server needs from one backend.
type Store interface {
	ProgressRepository
	ScenarioRepository
	UserRepository
	Close() error
}
