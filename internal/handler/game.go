package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/schoolquest/internal/runner"
	"github.com/sakif/schoolquest/internal/service"
)

// GameHandler records mini-game results.
type GameHandler struct {
	games  *service.GameService
	logger *slog.Logger
}

func NewGameHandler(games *service.GameService, logger *slog.Logger) *GameHandler {
	return &GameHandler{games: games, logger: logger}
}

// replayRequest is a runner session as recorded by the client. ClaimedScore
// is optional; when present it must be non-negative and equal the replayed
// score.
type replayRequest struct {
	runner.Run
	ClaimedScore *int `json:"claimedScore"`
}

// HandleRunnerReplay verifies a runner session by replaying it.
//
// HTTP: POST /api/games/runner/replay
//
//	{"seed": 7, "avatar": "fox", "jumps": [40, 52], "frames": 913, "claimedScore": 141}
//	→ 201 {"ack": {...}, "result": {"score": 141, ...}}
func (h *GameHandler) HandleRunnerReplay(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req replayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	verdict, err := h.games.VerifyRunner(r.Context(), user, req.Run, req.ClaimedScore)
	if err != nil {
		logFailure(h.logger, "runner replay failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, verdict)
}

type resultRequest struct {
	Score int `json:"score"`
}

// HandleResult stores the final score of a client-simulated game.
//
// HTTP: POST /api/games/{game}/result {"score": 1200} → 201 Ack
func (h *GameHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req resultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ack, err := h.games.RecordGame(r.Context(), user, chi.URLParam(r, "game"), req.Score)
	if err != nil {
		logFailure(h.logger, "recording game failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ack)
}
