package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sakif/schoolquest/internal/missionid"
)

func TestPayloadEnvelope(t *testing.T) {
	payloads := []Payload{
		Login{},
		Heartbeat{},
		Reflection{Text: "I helped a classmate"},
		Evidence{Name: "poster.png", URL: "https://cdn/poster.png", MimeType: "image/png", Key: "evidence/ab"},
		CheckIn{Value: "happy"},
		GameResult{Game: GameRunner, Score: 200},
		MissionChoice{ChoiceID: "A", Tag: "A"},
	}
	for _, p := range payloads {
		t.Run(string(p.Kind()), func(t *testing.T) {
			raw, err := EncodePayload(p)
			if err != nil {
				t.Fatalf("EncodePayload() error = %v", err)
			}
			got, err := DecodePayload(raw)
			if err != nil {
				t.Fatalf("DecodePayload(%s) error = %v", raw, err)
			}
			if diff := cmp.Diff(p, got); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodePayload_UnknownKind(t *testing.T) {
	if _, err := DecodePayload([]byte(`{"kind":"telepathy","data":{}}`)); err == nil {
		t.Fatal("DecodePayload() should reject unknown kinds")
	}
}

func TestProgressEventJSON(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	e := ProgressEvent{
		ID:        "cv37rs3pp9olc6atsptg",
		User:      "a@x",
		MissionID: GameRunner.MissionID(),
		Score:     200,
		Payload:   GameResult{Game: GameRunner, Score: 200},
		CreatedAt: created,
	}
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var shape map[string]any
	if err := json.Unmarshal(raw, &shape); err != nil {
		t.Fatal(err)
	}
	if shape["kind"] != "game" {
		t.Errorf("kind = %v, want game", shape["kind"])
	}

	var back ProgressEvent
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if diff := cmp.Diff(e, back); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestKindRules(t *testing.T) {
	tests := []struct {
		kind      Kind
		upserted  bool
		deletable bool
	}{
		{KindLogin, false, false},
		{KindHeartbeat, true, false},
		{KindReflection, false, true},
		{KindEvidence, false, true},
		{KindCheckIn, true, true},
		{KindGameResult, false, false},
		{KindMissionChoice, false, false},
	}
	for _, tt := range tests {
		if got := tt.kind.Upserted(); got != tt.upserted {
			t.Errorf("%s.Upserted() = %v, want %v", tt.kind, got, tt.upserted)
		}
		if got := tt.kind.Deletable(); got != tt.deletable {
			t.Errorf("%s.Deletable() = %v, want %v", tt.kind, got, tt.deletable)
		}
	}
}

func TestSummarize(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	events := []ProgressEvent{
		{MissionID: missionid.Login, Score: 0, Payload: Login{}, CreatedAt: t0},
		{MissionID: GameRunner.MissionID(), Score: 200, Payload: GameResult{Game: GameRunner, Score: 200}, CreatedAt: t0.Add(time.Minute)},
		{MissionID: "5b0d6f4e-8a7c-4e21-9f3a-1c2d3e4f5a6b", Score: 300, Payload: MissionChoice{ChoiceID: "A", Tag: "A"}, CreatedAt: t0.Add(3 * time.Minute)},
		{MissionID: missionid.Reflection, Score: 50, Payload: Reflection{Text: "ok"}, CreatedAt: t0.Add(2 * time.Minute)},
	}

	s := Summarize(events)
	if s.TotalXP != 550 {
		t.Errorf("TotalXP = %d, want 550", s.TotalXP)
	}
	if s.MissionsCompleted != 2 {
		t.Errorf("MissionsCompleted = %d, want 2", s.MissionsCompleted)
	}
	if s.Events != 4 {
		t.Errorf("Events = %d, want 4", s.Events)
	}
	if s.LastActive == nil || !s.LastActive.Equal(t0.Add(3*time.Minute)) {
		t.Errorf("LastActive = %v, want %v", s.LastActive, t0.Add(3*time.Minute))
	}

	if empty := Summarize(nil); empty.TotalXP != 0 || empty.LastActive != nil {
		t.Errorf("Summarize(nil) = %+v, want zero", empty)
	}
}

func TestParseGame(t *testing.T) {
	if g, ok := ParseGame(" Runner "); !ok || g != GameRunner {
		t.Errorf("ParseGame(Runner) = %q, %v", g, ok)
	}
	if _, ok := ParseGame("chess"); ok {
		t.Error("ParseGame(chess) should fail")
	}
	if GameRunner.MissionID() != missionid.FromString("RUNNER") {
		t.Error("game mission id must hash the upper-case tag")
	}
}
