package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/service"
)

// multipartOverhead is the slack allowed on top of the file size for the
// multipart envelope (boundaries, part headers).
const multipartOverhead = 64 << 10

// ProgressHandler serves the /api/progress endpoints. Every route requires
// an authenticated user; rows are attributed to the token's email.
type ProgressHandler struct {
	progress  *service.ProgressService
	maxUpload int64
	logger    *slog.Logger
}

func NewProgressHandler(progress *service.ProgressService, maxUpload int64, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{progress: progress, maxUpload: maxUpload, logger: logger}
}

type reflectionRequest struct {
	Text string `json:"text"`
}

type checkInRequest struct {
	Value string `json:"value"`
}

// HandleReflection saves a free-text reflection.
//
// HTTP: POST /api/progress/reflection {"text": "..."} → 201 Ack
func (h *ProgressHandler) HandleReflection(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reflectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ack, err := h.progress.SaveReflection(r.Context(), user, req.Text)
	if err != nil {
		logFailure(h.logger, "saving reflection failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ack)
}

// HandleCheckIn replaces the user's check-in value.
//
// HTTP: POST /api/progress/checkin {"value": "..."} → 200 Ack
func (h *ProgressHandler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req checkInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ack, err := h.progress.CheckIn(r.Context(), user, req.Value)
	if err != nil {
		logFailure(h.logger, "check-in failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// HandleHeartbeat refreshes the user's activity row. No body.
//
// HTTP: POST /api/progress/heartbeat → 200 Ack
func (h *ProgressHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ack, err := h.progress.Heartbeat(r.Context(), user)
	if err != nil {
		logFailure(h.logger, "heartbeat failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// HandleEvidence accepts a multipart upload in the "file" field.
//
// HTTP: POST /api/progress/evidence → 201 Ack
//
// MaxBytesReader caps the whole request so an oversized upload is cut off
// while streaming; the service applies the exact per-file limit.
func (h *ProgressHandler) HandleEvidence(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperror.ValidationFailed("file",
				fmt.Sprintf("file must be %d bytes or less", h.maxUpload)))
			return
		}
		writeError(w, apperror.ValidationFailed("file", "multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	ack, err := h.progress.UploadEvidence(r.Context(), user, header.Filename, file)
	if err != nil {
		logFailure(h.logger, "evidence upload failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ack)
}

// HandleList returns the caller's newest events.
//
// HTTP: GET /api/progress?limit=50
func (h *ProgressHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultEventLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	events, err := h.progress.Events(r.Context(), user, limit)
	if err != nil {
		logFailure(h.logger, "listing progress failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleSummary returns total XP, missions completed and last activity.
//
// HTTP: GET /api/progress/summary
func (h *ProgressHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sum, err := h.progress.Summary(r.Context(), user)
	if err != nil {
		logFailure(h.logger, "loading summary failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleDelete removes one of the caller's deletable events.
//
// HTTP: DELETE /api/progress/{id} → 204
func (h *ProgressHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.progress.Delete(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		logFailure(h.logger, "deleting progress failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
