package model

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the payload carried by a progress event.
type Kind string

const (
	KindLogin         Kind = "login"
	KindHeartbeat     Kind = "heartbeat"
	KindReflection    Kind = "reflection"
	KindEvidence      Kind = "evidence"
	KindCheckIn       Kind = "checkin"
	KindGameResult    Kind = "game"
	KindMissionChoice Kind = "mission"
)

// Upserted reports whether events of this kind are deduplicated per
// (user, mission) instead of appended.
func (k Kind) Upserted() bool {
	return k == KindHeartbeat || k == KindCheckIn
}

// Deletable reports whether a user may delete their own events of this kind.
func (k Kind) Deletable() bool {
	return k == KindReflection || k == KindEvidence || k == KindCheckIn
}

// Payload is the typed body of a progress event. Exactly one concrete type
// exists per Kind.
type Payload interface {
	Kind() Kind
}

type Login struct{}

type Heartbeat struct{}

type Reflection struct {
	Text string `json:"text"`
}

// Evidence points to an uploaded file. Key is the storage object key, kept so
// the blob can be removed with the row.
type Evidence struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Key      string `json:"key,omitempty"`
}

type CheckIn struct {
	Value string `json:"value"`
}

type GameResult struct {
	Game  Game `json:"game"`
	Score int  `json:"score"`
}

// MissionChoice records the answer to a narrative scenario. Tag is the
// quality tag the score was derived from.
type MissionChoice struct {
	ChoiceID string `json:"choiceId"`
	Tag      string `json:"tag"`
}

func (Login) Kind() Kind         { return KindLogin }
func (Heartbeat) Kind() Kind     { return KindHeartbeat }
func (Reflection) Kind() Kind    { return KindReflection }
func (Evidence) Kind() Kind      { return KindEvidence }
func (CheckIn) Kind() Kind       { return KindCheckIn }
func (GameResult) Kind() Kind    { return KindGameResult }
func (MissionChoice) Kind() Kind { return KindMissionChoice }

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodePayload serializes p as {"kind": ..., "data": ...}. This is the only
// encoding written to storage.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("model: nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("model: encoding %s payload: %w", p.Kind(), err)
	}
	return json.Marshal(envelope{Kind: p.Kind(), Data: data})
}

// DecodePayload is the inverse of EncodePayload.
func DecodePayload(raw []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("model: decoding payload envelope: %w", err)
	}
	return decodeData(env.Kind, env.Data)
}

func decodeData(kind Kind, data json.RawMessage) (Payload, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	var (
		p   Payload
		err error
	)
	switch kind {
	case KindLogin:
		p = Login{}
	case KindHeartbeat:
		p = Heartbeat{}
	case KindReflection:
		var v Reflection
		err = json.Unmarshal(data, &v)
		p = v
	case KindEvidence:
		var v Evidence
		err = json.Unmarshal(data, &v)
		p = v
	case KindCheckIn:
		var v CheckIn
		err = json.Unmarshal(data, &v)
		p = v
	case KindGameResult:
		var v GameResult
		err = json.Unmarshal(data, &v)
		p = v
	case KindMissionChoice:
		var v MissionChoice
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("model: unknown payload kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("model: decoding %s payload: %w", kind, err)
	}
	return p, nil
}
