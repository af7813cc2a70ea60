package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/missionid"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/repository"
)

// newTestDB returns a fresh in-memory database closed at test end.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertEvent(t *testing.T, db *DB, user, missionID string, score int, p model.Payload) *model.ProgressEvent {
	t.Helper()
	e := &model.ProgressEvent{User: user, MissionID: missionID, Score: score, Payload: p}
	if err := db.Insert(context.Background(), e); err != nil {
		t.Fatalf("failed to insert event: %v", err)
	}
	return e
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}

// =========================================================================
// PROGRESS
// =========================================================================

func TestInsertAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	e := insertEvent(t, db, "a@x", missionid.Reflection, 50, model.Reflection{Text: "kindness"})
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("Insert() did not set ID/CreatedAt: %+v", e)
	}

	got, err := db.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.User != "a@x" || got.Score != 50 || got.MissionID != missionid.Reflection {
		t.Errorf("GetByID() = %+v", got)
	}
	r, ok := got.Payload.(model.Reflection)
	if !ok || r.Text != "kindness" {
		t.Errorf("payload = %#v, want Reflection{kindness}", got.Payload)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetByID(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestUpsert_OneRowPerUserAndMission(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.ProgressEvent{User: "a@x", MissionID: missionid.CheckIn, Score: 10, Payload: model.CheckIn{Value: "ok"}}
	if prev, err := db.Upsert(ctx, first); err != nil || prev != 0 {
		t.Fatalf("Upsert() = %d, %v; want 0, nil", prev, err)
	}
	second := &model.ProgressEvent{User: "a@x", MissionID: missionid.CheckIn, Score: 25, Payload: model.CheckIn{Value: "great"}}
	if prev, err := db.Upsert(ctx, second); err != nil || prev != 10 {
		t.Fatalf("second Upsert() = %d, %v; want previous score 10", prev, err)
	}
	if first.ID != second.ID {
		t.Errorf("upsert created a new row: %s != %s", first.ID, second.ID)
	}

	other := &model.ProgressEvent{User: "b@x", MissionID: missionid.CheckIn, Score: 10, Payload: model.CheckIn{Value: "meh"}}
	if _, err := db.Upsert(ctx, other); err != nil {
		t.Fatalf("Upsert() for other user error = %v", err)
	}

	events, err := db.AllByUser(ctx, "a@x")
	if err != nil {
		t.Fatalf("AllByUser() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("AllByUser() len = %d, want 1", len(events))
	}
	if v := events[0].Payload.(model.CheckIn).Value; v != "great" {
		t.Errorf("last write should win, got %q", v)
	}
}

func TestUpsert_RejectsAppendOnlyKinds(t *testing.T) {
	db := newTestDB(t)
	e := &model.ProgressEvent{User: "a@x", MissionID: missionid.Reflection, Payload: model.Reflection{Text: "x"}}
	if _, err := db.Upsert(context.Background(), e); err == nil {
		t.Error("Upsert() of a reflection should fail")
	}
}

func TestInsert_ReflectionsAppend(t *testing.T) {
	db := newTestDB(t)
	insertEvent(t, db, "a@x", missionid.Reflection, 50, model.Reflection{Text: "one"})
	insertEvent(t, db, "a@x", missionid.Reflection, 50, model.Reflection{Text: "two"})

	events, err := db.AllByUser(context.Background(), "a@x")
	if err != nil {
		t.Fatalf("AllByUser() error = %v", err)
	}
	if len(events) != 2 {
		t.Errorf("len = %d, want 2", len(events))
	}
}

func TestListByUser_NewestFirstWithLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var events []model.ProgressEvent
	for i := range 5 {
		events = append(events, model.ProgressEvent{
			ID:        string(rune('a'+i)) + "-event",
			User:      "a@x",
			MissionID: "scn-1",
			Score:     i,
			Payload:   model.MissionChoice{ChoiceID: "A", Tag: "A"},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	if _, err := db.Import(ctx, events); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	got, err := db.ListByUser(ctx, "a@x", repository.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Score != 4 || got[1].Score != 3 {
		t.Errorf("order = %d,%d, want 4,3", got[0].Score, got[1].Score)
	}

	got, err = db.ListByUser(ctx, "nobody@x", repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ListByUser() for unknown user = %#v, want empty slice", got)
	}
}

func TestImport_SkipsExistingIDs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ev := model.ProgressEvent{
		ID: "legacy-1", User: "a@x", MissionID: "scn-1", Score: 300,
		Payload: model.MissionChoice{ChoiceID: "A", Tag: "A"}, CreatedAt: time.Now(),
	}

	n, err := db.Import(ctx, []model.ProgressEvent{ev})
	if err != nil || n != 1 {
		t.Fatalf("Import() = %d, %v; want 1, nil", n, err)
	}
	n, err = db.Import(ctx, []model.ProgressEvent{ev})
	if err != nil || n != 0 {
		t.Fatalf("re-Import() = %d, %v; want 0, nil", n, err)
	}
}

func TestScoreRows(t *testing.T) {
	db := newTestDB(t)
	insertEvent(t, db, "a@x", "scn-1", 10, model.MissionChoice{ChoiceID: "A", Tag: "A"})
	insertEvent(t, db, "a@x", "scn-2", 5, model.MissionChoice{ChoiceID: "B", Tag: "B"})
	insertEvent(t, db, "b@x", "scn-1", 7, model.MissionChoice{ChoiceID: "C", Tag: "C"})

	rows, err := db.ScoreRows(context.Background())
	if err != nil {
		t.Fatalf("ScoreRows() error = %v", err)
	}
	total := map[string]int{}
	for _, r := range rows {
		total[r.User] += r.Score
	}
	if total["a@x"] != 15 || total["b@x"] != 7 {
		t.Errorf("totals = %v", total)
	}
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	e := insertEvent(t, db, "a@x", missionid.Reflection, 50, model.Reflection{Text: "x"})

	if err := db.Delete(ctx, e.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := db.Delete(ctx, e.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// SCENARIOS
// =========================================================================

func testScenario(id string, chapter int) *model.Scenario {
	return &model.Scenario{
		ID:      id,
		Chapter: chapter,
		Title:   "Lunch line",
		Context: "Someone cuts in front of you.",
		Tags:    []string{"respect"},
		Choices: []model.Choice{
			{ID: "A", Label: "Calmly point to the end of the line", Feedback: "Respectful and clear."},
			{ID: "B", Label: "Tell a teacher", Feedback: "Okay, but try talking first."},
			{ID: "C", Label: "Push them", Feedback: "That escalates things."},
		},
	}
}

func TestScenarios(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, s := range []*model.Scenario{testScenario("s1", 1), testScenario("s2", 1), testScenario("s3", 2)} {
		if err := db.UpsertScenario(ctx, s); err != nil {
			t.Fatalf("UpsertScenario(%s) error = %v", s.ID, err)
		}
	}

	updated := testScenario("s1", 1)
	updated.Title = "Lunch line, revisited"
	if err := db.UpsertScenario(ctx, updated); err != nil {
		t.Fatalf("UpsertScenario() update error = %v", err)
	}

	got, err := db.GetScenario(ctx, "s1")
	if err != nil {
		t.Fatalf("GetScenario() error = %v", err)
	}
	if got.Title != "Lunch line, revisited" || len(got.Choices) != 3 || got.Tags[0] != "respect" {
		t.Errorf("GetScenario() = %+v", got)
	}

	ch1, err := db.ListScenarios(ctx, 1)
	if err != nil {
		t.Fatalf("ListScenarios(1) error = %v", err)
	}
	if len(ch1) != 2 {
		t.Errorf("ListScenarios(1) len = %d, want 2", len(ch1))
	}
	all, err := db.ListScenarios(ctx, 0)
	if err != nil {
		t.Fatalf("ListScenarios(0) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListScenarios(0) len = %d, want 3", len(all))
	}

	chapters, err := db.ListChapters(ctx)
	if err != nil {
		t.Fatalf("ListChapters() error = %v", err)
	}
	want := []model.Chapter{{Number: 1, Scenarios: 2}, {Number: 2, Scenarios: 1}}
	if len(chapters) != 2 || chapters[0] != want[0] || chapters[1] != want[1] {
		t.Errorf("ListChapters() = %v, want %v", chapters, want)
	}

	if _, err := db.GetScenario(ctx, "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetScenario(nope) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// USERS
// =========================================================================

func TestUpsertUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := &model.User{GoogleSub: "sub-1", Email: "a@school.edu", Name: "Ana"}
	if err := db.UpsertUser(ctx, u); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("UpsertUser() did not fill ID/CreatedAt: %+v", u)
	}
	firstID := u.ID

	again := &model.User{GoogleSub: "sub-1", Email: "a@school.edu", Name: "Ana Maria", Image: "https://img"}
	if err := db.UpsertUser(ctx, again); err != nil {
		t.Fatalf("second UpsertUser() error = %v", err)
	}
	if again.ID != firstID {
		t.Errorf("UpsertUser() changed ID: %s -> %s", firstID, again.ID)
	}

	got, err := db.GetUserByID(ctx, firstID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Name != "Ana Maria" || got.Image != "https://img" || got.GoogleSub != "sub-1" {
		t.Errorf("GetUserByID() = %+v", got)
	}

	if _, err := db.GetUserByID(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID(missing) error = %v, want ErrNotFound", err)
	}
}
