// Package legacy converts rows from the old progress table into typed events.
//
// The old table stored every event as (user_email, mission_id, score,
// choice_label, created_at) and squeezed the payload into choice_label with
// ad hoc encodings: evidence was "name|url|mimetype", reflections were the
// raw text, check-ins a status word. That encoding is understood here and
// nowhere else; everything downstream sees model.Payload values.
package legacy

import (
	"fmt"
	"strings"

	"github.com/sakif/schoolquest/internal/missionid"
	"github.com/sakif/schoolquest/internal/model"
)

// Row is one record of the old progress table.
type Row struct {
	UserEmail   string
	MissionID   string
	Score       int
	ChoiceLabel string
	CreatedAt   string
}

// games maps each mini-game sentinel back to its kind.
var games = func() map[string]model.Game {
	m := make(map[string]model.Game, len(model.Games))
	for _, g := range model.Games {
		m[g.MissionID()] = g
	}
	return m
}()

// Decode interprets label according to the mission it was recorded under.
// Unknown mission IDs are narrative scenarios whose label was the choice tag.
func Decode(missionID string, score int, label string) (model.Payload, error) {
	switch missionID {
	case missionid.Login:
		return model.Login{}, nil
	case missionid.Heartbeat:
		return model.Heartbeat{}, nil
	case missionid.Reflection:
		return model.Reflection{Text: label}, nil
	case missionid.CheckIn:
		return model.CheckIn{Value: label}, nil
	case missionid.Evidence:
		return decodeEvidence(label)
	}

	if g, ok := games[missionID]; ok {
		return model.GameResult{Game: g, Score: score}, nil
	}

	tag := strings.ToUpper(strings.TrimSpace(label))
	return model.MissionChoice{ChoiceID: tag, Tag: tag}, nil
}

// decodeEvidence splits "name|url|mimetype". The name may itself contain a
// pipe, so the URL and MIME type are taken from the right.
func decodeEvidence(label string) (model.Payload, error) {
	parts := strings.Split(label, "|")
	if len(parts) < 3 {
		return nil, fmt.Errorf("legacy: evidence label %q: want name|url|mimetype", label)
	}
	n := len(parts)
	ev := model.Evidence{
		Name:     strings.Join(parts[:n-2], "|"),
		URL:      parts[n-2],
		MimeType: parts[n-1],
	}
	if ev.URL == "" {
		return nil, fmt.Errorf("legacy: evidence label %q: empty url", label)
	}
	return ev, nil
}
