package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/schoolquest/internal/service"
)

// ScenarioHandler serves chapters, scenarios and choice submission.
// Reading scenarios is public; submitting a choice requires a user.
type ScenarioHandler struct {
	scenarios *service.ScenarioService
	logger    *slog.Logger
}

func NewScenarioHandler(scenarios *service.ScenarioService, logger *slog.Logger) *ScenarioHandler {
	return &ScenarioHandler{scenarios: scenarios, logger: logger}
}

// HandleChapters lists chapter numbers with their scenario counts.
//
// HTTP: GET /api/chapters
func (h *ScenarioHandler) HandleChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := h.scenarios.Chapters(r.Context())
	if err != nil {
		logFailure(h.logger, "listing chapters failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chapters)
}

// HandleList lists scenarios, optionally filtered by chapter.
//
// HTTP: GET /api/scenarios?chapter=2
func (h *ScenarioHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	chapter, err := queryInt(r, "chapter", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.scenarios.List(r.Context(), chapter)
	if err != nil {
		logFailure(h.logger, "listing scenarios failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet returns one scenario with its choices.
//
// HTTP: GET /api/scenarios/{id}
func (h *ScenarioHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sc, err := h.scenarios.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		logFailure(h.logger, "loading scenario failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

type choiceRequest struct {
	ChoiceID string `json:"choiceId"`
}

// HandleChoice scores an answer and records it.
//
// HTTP: POST /api/missions/{id}/choice {"choiceId": "A"} → 201 ChoiceResult
func (h *ScenarioHandler) HandleChoice(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req choiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.scenarios.SubmitChoice(r.Context(), user, chi.URLParam(r, "id"), req.ChoiceID)
	if err != nil {
		logFailure(h.logger, "submitting choice failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
