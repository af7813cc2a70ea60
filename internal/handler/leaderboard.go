package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/schoolquest/internal/service"
)

// LeaderboardHandler serves the public ranking.
type LeaderboardHandler struct {
	boards *service.LeaderboardService
	logger *slog.Logger
}

func NewLeaderboardHandler(boards *service.LeaderboardService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{boards: boards, logger: logger}
}

// HandleTop returns the top users by total XP.
//
// HTTP: GET /api/leaderboard?limit=10
func (h *LeaderboardHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultLeaderboardLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.boards.Top(r.Context(), limit)
	if err != nil {
		logFailure(h.logger, "loading leaderboard failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
