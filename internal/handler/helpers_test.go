package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/schoolquest/internal/auth"
	"github.com/sakif/schoolquest/internal/handler"
	"github.com/sakif/schoolquest/internal/mission"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/repository/sqlite"
	"github.com/sakif/schoolquest/internal/runner"
	"github.com/sakif/schoolquest/internal/service"
	"github.com/sakif/schoolquest/internal/storage"
)

const testEmail = "ana@school.edu"

const seedYAML = `
scenarios:
  - id: lunch-line
    chapter: 1
    title: Lunch line
    context: Someone cuts in front of you.
    choices:
      - {id: A, label: Point to the end of the line, feedback: Respectful and clear.}
      - {id: B, label: Tell a teacher, feedback: Try talking first.}
`

// testEnv is a fully wired API on an in-memory database with a local blob
// store. There is no leaderboard cache, so rankings come from the rows.
type testEnv struct {
	router http.Handler
	db     *sqlite.DB
	tokens *auth.TokenService
	user   *model.User
	token  string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithProvider(t, &fakeProvider{})
}

func newTestEnvWithProvider(t *testing.T, google handler.OAuthProvider) *testEnv {
	t.Helper()
	logger := quietLogger()
	ctx := context.Background()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := storage.NewLocal(t.TempDir(), "/evidence")
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("test-secret-at-least-16")
	require.NoError(t, err)

	policy := service.EvidencePolicy{MaxBytes: 1024, AllowedTypes: []string{"image/png", "text/plain"}}
	progress := service.NewProgressService(db, blobs, nil, service.DefaultRewards(), policy, logger)
	scenarios := service.NewScenarioService(db, progress, mission.DefaultScoreTable(), logger)
	_, err = scenarios.Seed(ctx, []byte(seedYAML))
	require.NoError(t, err)
	games := service.NewGameService(progress, runner.DefaultConfig(), service.DefaultRewards().MaxGameScore, logger)
	boards := service.NewLeaderboardService(db, nil, logger)
	authSvc := service.NewAuthService(db, tokens, progress, "school.edu", logger)
	dashboard, err := handler.NewDashboardHandler(service.NewDashboardService(progress, boards, logger), true, logger)
	require.NoError(t, err)

	authH := handler.NewAuthHandler(google, authSvc, tokens, false, logger)
	progressH := handler.NewProgressHandler(progress, policy.MaxBytes, logger)
	scenarioH := handler.NewScenarioHandler(scenarios, logger)
	gameH := handler.NewGameHandler(games, logger)
	boardH := handler.NewLeaderboardHandler(boards, logger)

	r := chi.NewRouter()
	r.With(auth.OptionalAuth(tokens)).Get("/", dashboard.HandleDashboard)
	r.Get("/auth/google/login", authH.HandleGoogleLogin)
	r.Get("/auth/google/callback", authH.HandleGoogleCallback)
	r.Post("/auth/logout", authH.HandleLogout)
	r.Route("/api", func(r chi.Router) {
		r.Get("/chapters", scenarioH.HandleChapters)
		r.Get("/scenarios", scenarioH.HandleList)
		r.Get("/scenarios/{id}", scenarioH.HandleGet)
		r.Get("/leaderboard", boardH.HandleTop)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", authH.HandleMe)
			r.Get("/token", authH.HandleToken)
			r.Post("/missions/{id}/choice", scenarioH.HandleChoice)
			r.Post("/games/runner/replay", gameH.HandleRunnerReplay)
			r.Post("/games/{game}/result", gameH.HandleResult)
			r.Get("/progress", progressH.HandleList)
			r.Get("/progress/summary", progressH.HandleSummary)
			r.Post("/progress/reflection", progressH.HandleReflection)
			r.Post("/progress/checkin", progressH.HandleCheckIn)
			r.Post("/progress/heartbeat", progressH.HandleHeartbeat)
			r.Post("/progress/evidence", progressH.HandleEvidence)
			r.Delete("/progress/{id}", progressH.HandleDelete)
		})
	})

	user := &model.User{GoogleSub: "sub-1", Email: testEmail, Name: "Ana"}
	require.NoError(t, db.UpsertUser(ctx, user))
	token, err := tokens.Generate(auth.Identity{UserID: user.ID, Email: user.Email})
	require.NoError(t, err)

	return &testEnv{router: r, db: db, tokens: tokens, user: user, token: token}
}

// do sends a request, authenticated as the test user when authed is set.
func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

// fakeProvider stands in for Google.
type fakeProvider struct {
	user *auth.GoogleUser
	err  error
}

func (p *fakeProvider) AuthURL(state string) string {
	return "https://accounts.example/auth?state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*auth.GoogleUser, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.user, nil
}
