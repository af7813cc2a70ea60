// Package service holds the business rules of SchoolQuest.
//
//	handler (HTTP) -> service (rules, scoring) -> repository (storage)
//	                                           -> storage (evidence blobs)
//	                                           -> leaderboard.Board (cache)
//
// Services never see HTTP types. Validation failures are returned as
// apperror values so handlers can map them to status codes.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/leaderboard"
	"github.com/sakif/schoolquest/internal/missionid"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/repository"
	"github.com/sakif/schoolquest/internal/storage"
)

const (
	MaxReflectionLength = 5000
	MaxCheckInLength    = 64
	MaxFileNameLength   = 255
	DefaultEventLimit   = 50
	MaxEventLimit       = 500
)

// Rewards is the XP granted per system event kind.
type Rewards struct {
	Login        int
	Heartbeat    int
	CheckIn      int
	Reflection   int
	Evidence     int
	MaxGameScore int
}

// DefaultRewards matches the values the platform launched with.
func DefaultRewards() Rewards {
	return Rewards{Login: 0, Heartbeat: 0, CheckIn: 10, Reflection: 50, Evidence: 100, MaxGameScore: 100000}
}

// EvidencePolicy limits what may be uploaded.
type EvidencePolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

func (p EvidencePolicy) allows(m *mimetype.MIME) bool {
	for _, t := range p.AllowedTypes {
		if m.Is(strings.TrimSpace(t)) {
			return true
		}
	}
	return false
}

// ProgressService records progress events and reads them back.
type ProgressService struct {
	events  repository.ProgressRepository
	blobs   storage.Store
	board   leaderboard.Board
	rewards Rewards
	policy  EvidencePolicy
	logger  *slog.Logger
}

// NewProgressService wires the service. blobs and board may be nil: without
// blobs evidence uploads are rejected, without board the leaderboard is
// computed from the repository.
func NewProgressService(
	events repository.ProgressRepository,
	blobs storage.Store,
	board leaderboard.Board,
	rewards Rewards,
	policy EvidencePolicy,
	logger *slog.Logger,
) *ProgressService {
	return &ProgressService{
		events:  events,
		blobs:   blobs,
		board:   board,
		rewards: rewards,
		policy:  policy,
		logger:  logger,
	}
}

// RecordLogin appends a login event.
func (s *ProgressService) RecordLogin(ctx context.Context, user string) (*model.Ack, error) {
	return s.insert(ctx, user, missionid.Login, s.rewards.Login, model.Login{})
}

// Heartbeat refreshes the user's single heartbeat row.
func (s *ProgressService) Heartbeat(ctx context.Context, user string) (*model.Ack, error) {
	return s.upsert(ctx, user, missionid.Heartbeat, s.rewards.Heartbeat, model.Heartbeat{})
}

// CheckIn stores the user's current check-in value, replacing the previous one.
func (s *ProgressService) CheckIn(ctx context.Context, user, value string) (*model.Ack, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, apperror.ValidationFailed("value", "check-in value is required")
	}
	if utf8.RuneCountInString(value) > MaxCheckInLength {
		return nil, apperror.ValidationFailed("value",
			fmt.Sprintf("check-in value must be %d characters or less", MaxCheckInLength))
	}
	return s.upsert(ctx, user, missionid.CheckIn, s.rewards.CheckIn, model.CheckIn{Value: value})
}

// SaveReflection appends a free-text reflection. Blank text is rejected
// before anything is written.
func (s *ProgressService) SaveReflection(ctx context.Context, user, text string) (*model.Ack, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "reflection text is required")
	}
	if utf8.RuneCountInString(text) > MaxReflectionLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("reflection must be %d characters or less", MaxReflectionLength))
	}
	return s.insert(ctx, user, missionid.Reflection, s.rewards.Reflection, model.Reflection{Text: text})
}

// UploadEvidence stores a file and records an evidence event pointing at it.
//
// Size and type are checked before the store is touched. The type is sniffed
// from the content; the client's declared type is not trusted. If the event
// cannot be written the blob is deleted again.
func (s *ProgressService) UploadEvidence(ctx context.Context, user, name string, r io.Reader) (*model.Ack, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("service/progress: evidence storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("file", "file name is required")
	}
	if len(name) > MaxFileNameLength {
		return nil, apperror.ValidationFailed("file",
			fmt.Sprintf("file name must be %d characters or less", MaxFileNameLength))
	}

	body, err := io.ReadAll(io.LimitReader(r, s.policy.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("service/progress: reading upload: %w", err)
	}
	if len(body) == 0 {
		return nil, apperror.ValidationFailed("file", "file is empty")
	}
	if int64(len(body)) > s.policy.MaxBytes {
		return nil, apperror.ValidationFailed("file",
			fmt.Sprintf("file must be %d bytes or less", s.policy.MaxBytes))
	}

	mt := mimetype.Detect(body)
	if !s.policy.allows(mt) {
		return nil, apperror.ValidationFailed("file",
			fmt.Sprintf("file type %s is not allowed", mt.String()))
	}

	key := storage.Key(user, body, name)
	url, err := s.blobs.Put(ctx, key, mt.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("service/progress: storing evidence: %w", err)
	}

	payload := model.Evidence{Name: name, URL: url, MimeType: mt.String(), Key: key}
	ack, err := s.insert(ctx, user, missionid.Evidence, s.rewards.Evidence, payload)
	if err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn("failed to remove orphaned evidence",
				slog.String("key", key),
				slog.String("error", derr.Error()),
			)
		}
		return nil, err
	}
	return ack, nil
}

// Events lists the user's newest events.
func (s *ProgressService) Events(ctx context.Context, user string, limit int) ([]model.ProgressEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}
	events, err := s.events.ListByUser(ctx, user, repository.ListOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("service/progress: listing events: %w", err)
	}
	return events, nil
}

// Summary folds every event of the user into dashboard counters.
func (s *ProgressService) Summary(ctx context.Context, user string) (model.Summary, error) {
	events, err := s.events.AllByUser(ctx, user)
	if err != nil {
		return model.Summary{}, fmt.Errorf("service/progress: loading events: %w", err)
	}
	return model.Summarize(events), nil
}

// Delete removes one of the user's own reflection, evidence or check-in
// events. The evidence blob is removed best-effort once no other event of
// the user still points at it.
func (s *ProgressService) Delete(ctx context.Context, user, eventID string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return apperror.ValidationFailed("id", "event ID is required")
	}

	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if e.User != user {
		return apperror.Forbidden("you can only delete your own progress")
	}
	if !e.Kind().Deletable() {
		return apperror.Forbidden(fmt.Sprintf("%s events cannot be deleted", e.Kind()))
	}

	if err := s.events.Delete(ctx, eventID); err != nil {
		return err
	}
	s.logger.Info("progress deleted",
		slog.String("id", eventID),
		slog.String("kind", string(e.Kind())),
	)

	if ev, ok := e.Payload.(model.Evidence); ok && ev.Key != "" {
		s.removeBlob(ctx, user, ev.Key)
	}
	s.feedBoard(ctx, user, -e.Score)
	return nil
}

func (s *ProgressService) removeBlob(ctx context.Context, user, key string) {
	if s.blobs == nil {
		return
	}
	remaining, err := s.events.AllByUser(ctx, user)
	if err != nil {
		s.logger.Warn("keeping evidence blob", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	for _, other := range remaining {
		if ev, ok := other.Payload.(model.Evidence); ok && ev.Key == key {
			return
		}
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete evidence blob",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// record appends an already built event; used by the mission and game paths.
func (s *ProgressService) record(ctx context.Context, e *model.ProgressEvent) (*model.Ack, error) {
	if err := s.events.Insert(ctx, e); err != nil {
		s.logger.Error("failed to record progress",
			slog.String("user", e.User),
			slog.String("kind", string(e.Kind())),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/progress: recording %s: %w", e.Kind(), err)
	}
	s.logger.Debug("progress recorded",
		slog.String("id", e.ID),
		slog.String("user", e.User),
		slog.String("kind", string(e.Kind())),
		slog.Int("score", e.Score),
	)
	s.feedBoard(ctx, e.User, e.Score)
	return model.AckFor(e), nil
}

func (s *ProgressService) insert(ctx context.Context, user, missionID string, score int, p model.Payload) (*model.Ack, error) {
	if user == "" {
		return nil, apperror.Unauthorized("a signed-in user is required")
	}
	return s.record(ctx, &model.ProgressEvent{User: user, MissionID: missionID, Score: score, Payload: p})
}

func (s *ProgressService) upsert(ctx context.Context, user, missionID string, score int, p model.Payload) (*model.Ack, error) {
	if user == "" {
		return nil, apperror.Unauthorized("a signed-in user is required")
	}
	e := &model.ProgressEvent{User: user, MissionID: missionID, Score: score, Payload: p}
	previous, err := s.events.Upsert(ctx, e)
	if err != nil {
		s.logger.Error("failed to upsert progress",
			slog.String("user", user),
			slog.String("kind", string(p.Kind())),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/progress: upserting %s: %w", p.Kind(), err)
	}
	// The row replaced one worth previous, so only the difference moves the total.
	s.feedBoard(ctx, user, score-previous)
	return model.AckFor(e), nil
}

// feedBoard adds delta to the user's cached total. Failures are logged and
// ignored; the repository stays the source of truth.
func (s *ProgressService) feedBoard(ctx context.Context, user string, delta int) {
	if s.board == nil || delta == 0 {
		return
	}
	if err := s.board.Add(ctx, user, delta); err != nil {
		s.logger.Warn("leaderboard cache update failed",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
	}
}
