package handler_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/schoolquest/internal/leaderboard"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/runner"
	"github.com/sakif/schoolquest/internal/service"
)

func TestScenarioHandler_Read(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/chapters", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []model.Chapter{{Number: 1, Scenarios: 1}}, decode[[]model.Chapter](t, rec))

	rec = env.do(t, http.MethodGet, "/api/scenarios?chapter=1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]model.Scenario](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "lunch-line", list[0].ID)

	rec = env.do(t, http.MethodGet, "/api/scenarios/lunch-line", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[model.Scenario](t, rec).Choices, 2)

	rec = env.do(t, http.MethodGet, "/api/scenarios/nope", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/scenarios?chapter=-1", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenarioHandler_Choice(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/missions/lunch-line/choice", map[string]string{"choiceId": "A"}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[service.ChoiceResult](t, rec)
	assert.Equal(t, 300, res.Score)
	assert.Equal(t, "Respectful and clear.", res.Choice.Feedback)
	assert.Equal(t, "lunch-line", res.Ack.MissionID)

	// Replaying a mission records a second play.
	rec = env.do(t, http.MethodPost, "/api/missions/lunch-line/choice", map[string]string{"choiceId": "B"}, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 200, decode[service.ChoiceResult](t, rec).Score)

	tests := []struct {
		name     string
		path     string
		choice   string
		authed   bool
		wantCode int
	}{
		{"unknown choice", "/api/missions/lunch-line/choice", "Z", true, http.StatusBadRequest},
		{"unknown scenario", "/api/missions/nope/choice", "A", true, http.StatusNotFound},
		{"anonymous", "/api/missions/lunch-line/choice", "A", false, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, map[string]string{"choiceId": tt.choice}, tt.authed)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	events, err := env.db.AllByUser(t.Context(), testEmail)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func recordedRun(t *testing.T, seed uint64) (runner.Run, int) {
	t.Helper()
	sim := runner.New(runner.DefaultConfig())
	require.NoError(t, sim.Start("fox", seed))
	for sim.State() == runner.StatePlaying {
		sim.Step()
		require.Less(t, sim.Frame(), service.MaxRunnerFrames)
	}
	return sim.Run(), sim.Score()
}

func TestGameHandler_RunnerReplay(t *testing.T) {
	env := newTestEnv(t)
	run, score := recordedRun(t, 7)

	body := map[string]any{
		"seed": run.Seed, "avatar": run.Avatar, "jumps": run.Jumps, "frames": run.Frames,
		"claimedScore": score,
	}
	rec := env.do(t, http.MethodPost, "/api/games/runner/replay", body, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	verdict := decode[service.RunnerVerdict](t, rec)
	assert.Equal(t, score, verdict.Result.Score)
	assert.Equal(t, model.GameRunner.MissionID(), verdict.Ack.MissionID)

	body["claimedScore"] = score + 1000
	rec = env.do(t, http.MethodPost, "/api/games/runner/replay", body, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not match")

	body["claimedScore"] = -5
	rec = env.do(t, http.MethodPost, "/api/games/runner/replay", body, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "must not be negative")

	delete(body, "claimedScore")
	rec = env.do(t, http.MethodPost, "/api/games/runner/replay", body, true)
	assert.Equal(t, http.StatusCreated, rec.Code, "the claim is optional")
}

func TestGameHandler_Result(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		game     string
		score    int
		wantCode int
	}{
		{"tetris", 1200, http.StatusCreated},
		{"SHOOTER", 0, http.StatusCreated},
		{"tetris", -5, http.StatusBadRequest},
		{"runner", 10, http.StatusBadRequest},
		{"chess", 10, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.game, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/games/"+tt.game+"/result", map[string]int{"score": tt.score}, true)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestLeaderboardHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	for _, e := range []model.ProgressEvent{
		{User: "a@x", MissionID: model.GameTetris.MissionID(), Score: 10, Payload: model.GameResult{Game: model.GameTetris, Score: 10}},
		{User: "a@x", MissionID: model.GameTetris.MissionID(), Score: 5, Payload: model.GameResult{Game: model.GameTetris, Score: 5}},
		{User: "b@x", MissionID: model.GameTetris.MissionID(), Score: 7, Payload: model.GameResult{Game: model.GameTetris, Score: 7}},
	} {
		require.NoError(t, env.db.Insert(ctx, &e))
	}

	rec := env.do(t, http.MethodGet, "/api/leaderboard", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []leaderboard.Entry{
		{Rank: 1, User: "a@x", Total: 15},
		{Rank: 2, User: "b@x", Total: 7},
	}, decode[[]leaderboard.Entry](t, rec))

	rec = env.do(t, http.MethodGet, "/api/leaderboard?limit=1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]leaderboard.Entry](t, rec), 1)
}

func TestDashboardHandler(t *testing.T) {
	env := newTestEnv(t)

	t.Run("anonymous", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/?auth=denied", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, body, "Sign in with Google")
		assert.Contains(t, body, "Sign-in was cancelled.")
		assert.NotContains(t, body, "Your progress")
	})

	t.Run("signed in", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/progress/reflection", map[string]string{"text": "hello"}, true)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = env.do(t, http.MethodGet, "/", nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, testEmail)
		assert.Contains(t, body, "Your progress")
		assert.True(t, strings.Contains(body, "<strong>50</strong>"), "total XP is shown")
		assert.Contains(t, body, "reflection")
	})
}
