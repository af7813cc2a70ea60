package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/leaderboard"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/repository"
	"github.com/sakif/schoolquest/internal/storage"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeRepo is an in-memory repository.Store.
type fakeRepo struct {
	mu        sync.Mutex
	events    []model.ProgressEvent
	scenarios map[string]model.Scenario
	users     map[string]*model.User
	nextID    int

	insertErr error
	readErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{scenarios: map[string]model.Scenario{}, users: map[string]*model.User{}}
}

func (f *fakeRepo) id() string {
	f.nextID++
	return fmt.Sprintf("ev-%03d", f.nextID)
}

func (f *fakeRepo) Insert(_ context.Context, e *model.ProgressEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	e.ID = f.id()
	e.CreatedAt = time.Now()
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeRepo) Upsert(_ context.Context, e *model.ProgressEvent) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	e.CreatedAt = time.Now()
	for i := range f.events {
		if f.events[i].User == e.User && f.events[i].MissionID == e.MissionID {
			previous := f.events[i].Score
			e.ID = f.events[i].ID
			f.events[i] = *e
			return previous, nil
		}
	}
	e.ID = f.id()
	f.events = append(f.events, *e)
	return 0, nil
}

func (f *fakeRepo) Import(_ context.Context, events []model.ProgressEvent) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return len(events), nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*model.ProgressEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, apperror.NotFound("progress event", id)
}

func (f *fakeRepo) ListByUser(ctx context.Context, user string, opts repository.ListOptions) ([]model.ProgressEvent, error) {
	all, err := f.AllByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	opts = opts.Normalize()
	if len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (f *fakeRepo) AllByUser(_ context.Context, user string) ([]model.ProgressEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := []model.ProgressEvent{}
	for _, e := range f.events {
		if e.User == user {
			out = append(out, e)
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (f *fakeRepo) ScoreRows(_ context.Context) ([]model.ScoreRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	rows := make([]model.ScoreRow, 0, len(f.events))
	for _, e := range f.events {
		rows = append(rows, model.ScoreRow{User: e.User, Score: e.Score})
	}
	return rows, nil
}

func (f *fakeRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.events {
		if e.ID == id {
			f.events = slices.Delete(f.events, i, i+1)
			return nil
		}
	}
	return apperror.NotFound("progress event", id)
}

func (f *fakeRepo) UpsertScenario(_ context.Context, s *model.Scenario) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scenarios[s.ID] = *s
	return nil
}

func (f *fakeRepo) GetScenario(_ context.Context, id string) (*model.Scenario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scenarios[id]
	if !ok {
		return nil, apperror.NotFound("scenario", id)
	}
	return &s, nil
}

func (f *fakeRepo) ListScenarios(_ context.Context, chapter int) ([]model.Scenario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Scenario{}
	for _, s := range f.scenarios {
		if chapter == 0 || s.Chapter == chapter {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b model.Scenario) int {
		if a.ID < b.ID {
			return -1
		}
		return 1
	})
	return out, nil
}

func (f *fakeRepo) ListChapters(_ context.Context) ([]model.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[int]int{}
	for _, s := range f.scenarios {
		counts[s.Chapter]++
	}
	out := []model.Chapter{}
	for n, c := range counts {
		out = append(out, model.Chapter{Number: n, Scenarios: c})
	}
	slices.SortFunc(out, func(a, b model.Chapter) int { return a.Number - b.Number })
	return out, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.users[u.GoogleSub]; ok {
		existing.Email, existing.Name, existing.Image = u.Email, u.Name, u.Image
		*u = *existing
		return nil
	}
	u.ID = "user-" + u.GoogleSub
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	f.users[u.GoogleSub] = &copied
	return nil
}

func (f *fakeRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeRepo) Close() error { return nil }

var _ repository.Store = (*fakeRepo)(nil)

// fakeBlobs is an in-memory storage.Store.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: map[string][]byte{}} }

func (b *fakeBlobs) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	if b.putErr != nil {
		return "", b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return "https://blobs.test/" + key, nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(b.objects, key)
	return nil
}

func (b *fakeBlobs) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// fakeBoard is an in-memory leaderboard.Board.
type fakeBoard struct {
	mu     sync.Mutex
	totals map[string]int
	err    error
}

func newFakeBoard() *fakeBoard { return &fakeBoard{totals: map[string]int{}} }

func (b *fakeBoard) Add(_ context.Context, user string, score int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.totals[user] += score
	return nil
}

func (b *fakeBoard) Top(_ context.Context, n int) ([]leaderboard.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	rows := make([]model.ScoreRow, 0, len(b.totals))
	for u, t := range b.totals {
		rows = append(rows, model.ScoreRow{User: u, Score: t})
	}
	return leaderboard.Limit(leaderboard.Aggregate(rows), n), nil
}

func (b *fakeBoard) Rebuild(_ context.Context, entries []leaderboard.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.totals = map[string]int{}
	for _, e := range entries {
		b.totals[e.User] = e.Total
	}
	return nil
}

var errBoom = errors.New("boom")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy() EvidencePolicy {
	return EvidencePolicy{MaxBytes: 1024, AllowedTypes: []string{"image/png", "text/plain", "application/pdf"}}
}

type testEnv struct {
	repo     *fakeRepo
	blobs    *fakeBlobs
	board    *fakeBoard
	progress *ProgressService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{repo: newFakeRepo(), blobs: newFakeBlobs(), board: newFakeBoard()}
	env.progress = NewProgressService(env.repo, env.blobs, env.board, DefaultRewards(), testPolicy(), testLogger())
	return env
}
