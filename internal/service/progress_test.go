package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/missionid"
	"github.com/sakif/schoolquest/internal/model"
)

const pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00"

func TestSaveReflection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ack, err := env.progress.SaveReflection(ctx, "ana@x", "  I helped a classmate.  ")
	require.NoError(t, err)
	assert.Equal(t, missionid.Reflection, ack.MissionID)
	assert.Equal(t, 50, ack.Score)

	stored, err := env.repo.GetByID(ctx, ack.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Reflection{Text: "I helped a classmate."}, stored.Payload)
	assert.Equal(t, 50, env.board.totals["ana@x"])
}

func TestSaveReflection_BlankIsRejectedBeforeWriting(t *testing.T) {
	env := newTestEnv(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := env.progress.SaveReflection(context.Background(), "ana@x", text)
		assert.True(t, errors.Is(err, apperror.ErrValidation), "text %q: %v", text, err)
	}
	assert.Empty(t, env.repo.events)
}

func TestCheckIn_Upserts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.progress.CheckIn(ctx, "ana@x", "happy")
	require.NoError(t, err)
	second, err := env.progress.CheckIn(ctx, "ana@x", "tired")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	events, _ := env.repo.AllByUser(ctx, "ana@x")
	require.Len(t, events, 1)
	assert.Equal(t, model.CheckIn{Value: "tired"}, events[0].Payload)
	assert.Equal(t, 10, env.board.totals["ana@x"], "a replaced check-in adds only its difference")

	_, err = env.progress.CheckIn(ctx, "ana@x", " ")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// interleavingRepo runs hook once, right after the first read an upsert
// makes, so another write lands before the upsert has fed the board.
type interleavingRepo struct {
	*fakeRepo
	hook func()
}

func (r *interleavingRepo) fire() {
	if r.hook != nil {
		hook := r.hook
		r.hook = nil
		hook()
	}
}

func (r *interleavingRepo) Upsert(ctx context.Context, e *model.ProgressEvent) (int, error) {
	previous, err := r.fakeRepo.Upsert(ctx, e)
	r.fire()
	return previous, err
}

func (r *interleavingRepo) AllByUser(ctx context.Context, user string) ([]model.ProgressEvent, error) {
	events, err := r.fakeRepo.AllByUser(ctx, user)
	r.fire()
	return events, err
}

func TestCheckIn_ConcurrentWriteKeepsBoardInStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	repo := &interleavingRepo{fakeRepo: env.repo}
	progress := NewProgressService(repo, env.blobs, env.board, DefaultRewards(), testPolicy(), testLogger())

	_, err := progress.CheckIn(ctx, "ana@x", "happy")
	require.NoError(t, err)

	repo.hook = func() {
		_, err := progress.SaveReflection(ctx, "ana@x", "Helped at lunch.")
		require.NoError(t, err)
	}
	_, err = progress.CheckIn(ctx, "ana@x", "tired")
	require.NoError(t, err)

	sum, err := progress.Summary(ctx, "ana@x")
	require.NoError(t, err)
	assert.Equal(t, 60, sum.TotalXP)
	assert.Equal(t, sum.TotalXP, env.board.totals["ana@x"])
}

func TestCheckIn_ChangedRewardMovesBoardByDifference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.progress.CheckIn(ctx, "ana@x", "happy")
	require.NoError(t, err)

	rewards := DefaultRewards()
	rewards.CheckIn = 25
	bumped := NewProgressService(env.repo, env.blobs, env.board, rewards, testPolicy(), testLogger())
	_, err = bumped.CheckIn(ctx, "ana@x", "tired")
	require.NoError(t, err)

	assert.Equal(t, 25, env.board.totals["ana@x"])
}

func TestHeartbeatAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for range 3 {
		_, err := env.progress.Heartbeat(ctx, "ana@x")
		require.NoError(t, err)
	}
	_, err := env.progress.RecordLogin(ctx, "ana@x")
	require.NoError(t, err)
	_, err = env.progress.RecordLogin(ctx, "ana@x")
	require.NoError(t, err)

	events, _ := env.repo.AllByUser(ctx, "ana@x")
	assert.Len(t, events, 3, "one heartbeat row plus two logins")

	_, err = env.progress.Heartbeat(ctx, "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestUploadEvidence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ack, err := env.progress.UploadEvidence(ctx, "ana@x", "poster.png", strings.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, 100, ack.Score)
	assert.Equal(t, 1, env.blobs.len())

	stored, err := env.repo.GetByID(ctx, ack.ID)
	require.NoError(t, err)
	ev := stored.Payload.(model.Evidence)
	assert.Equal(t, "poster.png", ev.Name)
	assert.Equal(t, "image/png", ev.MimeType)
	assert.Equal(t, "https://blobs.test/"+ev.Key, ev.URL)
}

func TestUploadEvidence_Rejections(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"empty", "a.txt", ""},
		{"too large", "a.txt", strings.Repeat("a", 1025)},
		{"type not allowed", "a.zip", "PK\x03\x04" + strings.Repeat("\x00", 30)},
		{"no name", " ", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.progress.UploadEvidence(context.Background(), "ana@x", tt.file, strings.NewReader(tt.body))
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, 0, env.blobs.len(), "nothing stored")
			assert.Empty(t, env.repo.events)
		})
	}
}

func TestUploadEvidence_RemovesBlobWhenInsertFails(t *testing.T) {
	env := newTestEnv(t)
	env.repo.insertErr = errBoom

	_, err := env.progress.UploadEvidence(context.Background(), "ana@x", "notes.txt", strings.NewReader("my notes"))
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, env.blobs.len())
}

func TestUploadEvidence_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.blobs.putErr = errBoom

	_, err := env.progress.UploadEvidence(context.Background(), "ana@x", "notes.txt", strings.NewReader("my notes"))
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, env.repo.events)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	refl, _ := env.progress.SaveReflection(ctx, "ana@x", "text")
	login, _ := env.progress.RecordLogin(ctx, "ana@x")
	ev1, _ := env.progress.UploadEvidence(ctx, "ana@x", "a.txt", strings.NewReader("same bytes"))
	ev2, _ := env.progress.UploadEvidence(ctx, "ana@x", "b.txt", strings.NewReader("same bytes"))
	require.Equal(t, 1, env.blobs.len())

	err := env.progress.Delete(ctx, "bo@x", refl.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden, "other users' rows")

	err = env.progress.Delete(ctx, "ana@x", login.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden, "login rows are not deletable")

	require.NoError(t, env.progress.Delete(ctx, "ana@x", refl.ID))
	assert.Equal(t, 200, env.board.totals["ana@x"])

	require.NoError(t, env.progress.Delete(ctx, "ana@x", ev1.ID))
	assert.Equal(t, 1, env.blobs.len(), "blob still referenced by the second upload")
	require.NoError(t, env.progress.Delete(ctx, "ana@x", ev2.ID))
	assert.Equal(t, 0, env.blobs.len())

	err = env.progress.Delete(ctx, "ana@x", "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSummaryAndEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.progress.RecordLogin(ctx, "ana@x")
	env.progress.SaveReflection(ctx, "ana@x", "one")
	env.progress.CheckIn(ctx, "ana@x", "ok")
	env.progress.record(ctx, &model.ProgressEvent{
		User: "ana@x", MissionID: "scn-1", Score: 300,
		Payload: model.MissionChoice{ChoiceID: "A", Tag: "A"},
	})

	sum, err := env.progress.Summary(ctx, "ana@x")
	require.NoError(t, err)
	assert.Equal(t, 360, sum.TotalXP)
	assert.Equal(t, 1, sum.MissionsCompleted)
	assert.NotNil(t, sum.LastActive)

	events, err := env.progress.Events(ctx, "ana@x", 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, "scn-1", events[0].MissionID, "newest first")
}

func TestBoardFailureDoesNotFailWrites(t *testing.T) {
	env := newTestEnv(t)
	env.board.err = errBoom

	_, err := env.progress.SaveReflection(context.Background(), "ana@x", "still saved")
	assert.NoError(t, err)
	assert.Len(t, env.repo.events, 1)
}
