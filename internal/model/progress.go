package model

import (
	"encoding/json"
	"time"

	"github.com/sakif/schoolquest/internal/missionid"
)

// ProgressEvent is one immutable row recording a scored action by a user.
//
// MissionID is either a scenario ID or a hashed tag (see package missionid).
// Rows are append-only; heartbeat and check-in rows are the exception and are
// upserted per (User, MissionID).
type ProgressEvent struct {
	ID        string
	User      string
	MissionID string
	Score     int
	Payload   Payload
	CreatedAt time.Time
}

// Kind returns the payload kind, or "" for an event without payload.
func (e ProgressEvent) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

type progressEventJSON struct {
	ID        string          `json:"id"`
	User      string          `json:"user"`
	MissionID string          `json:"missionId"`
	Kind      Kind            `json:"kind"`
	Score     int             `json:"score"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	out := progressEventJSON{
		ID:        e.ID,
		User:      e.User,
		MissionID: e.MissionID,
		Kind:      e.Kind(),
		Score:     e.Score,
		CreatedAt: e.CreatedAt,
	}
	if e.Payload != nil {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		out.Payload = data
	}
	return json.Marshal(out)
}

func (e *ProgressEvent) UnmarshalJSON(raw []byte) error {
	var in progressEventJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	*e = ProgressEvent{
		ID:        in.ID,
		User:      in.User,
		MissionID: in.MissionID,
		Score:     in.Score,
		CreatedAt: in.CreatedAt,
	}
	if in.Kind == "" {
		return nil
	}
	p, err := decodeData(in.Kind, in.Payload)
	if err != nil {
		return err
	}
	e.Payload = p
	return nil
}

// Ack confirms that an event was persisted.
type Ack struct {
	ID        string    `json:"id"`
	MissionID string    `json:"missionId"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
}

// AckFor builds the acknowledgement of a stored event.
func AckFor(e *ProgressEvent) *Ack {
	return &Ack{ID: e.ID, MissionID: e.MissionID, Score: e.Score, CreatedAt: e.CreatedAt}
}

// ScoreRow is the projection of a progress event used for leaderboards.
type ScoreRow struct {
	User  string
	Score int
}

// Summary is a user's dashboard counters.
type Summary struct {
	TotalXP           int        `json:"totalXp"`
	MissionsCompleted int        `json:"missionsCompleted"`
	Events            int        `json:"events"`
	LastActive        *time.Time `json:"lastActive,omitempty"`
}

// Summarize folds a user's events into their counters. Total XP sums every
// score; missions completed counts rows that are not system sentinels.
func Summarize(events []ProgressEvent) Summary {
	var s Summary
	for i := range events {
		e := &events[i]
		s.TotalXP += e.Score
		s.Events++
		if !missionid.IsSystem(e.MissionID) {
			s.MissionsCompleted++
		}
		if s.LastActive == nil || e.CreatedAt.After(*s.LastActive) {
			t := e.CreatedAt
			s.LastActive = &t
		}
	}
	return s
}
