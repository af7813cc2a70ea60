// Package mission scores answers to narrative scenarios.
//
// The score of a choice is a closed lookup: the choice's quality tag is looked
// up in ScoreTable.Points and multiplied by ScoreTable.Multiplier. Unknown tags
// score zero.
package mission

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sakif/schoolquest/internal/model"
)

// ScoreTable maps quality tags to points.
type ScoreTable struct {
	Points     map[string]int
	Multiplier int
}

// DefaultScoreTable is A=3, B=2, anything else 0, times 100.
func DefaultScoreTable() ScoreTable {
	return ScoreTable{
		Points:     map[string]int{"A": 3, "B": 2},
		Multiplier: 100,
	}
}

// Score returns the XP awarded for a choice tag.
func (t ScoreTable) Score(tag string) int {
	return t.Points[tag] * t.Multiplier
}

// ErrAlreadySubmitted is returned by Session.Submit after the first answer.
var ErrAlreadySubmitted = errors.New("mission: a choice was already submitted")

// ErrUnknownChoice is returned for a choice ID the scenario does not offer.
var ErrUnknownChoice = errors.New("mission: unknown choice")

// Outcome is what the player sees after answering.
type Outcome struct {
	Choice model.Choice
	Score  int
}

// Session presents one scenario and accepts exactly one choice. Playing the
// same scenario again means starting a new Session.
type Session struct {
	scenario *model.Scenario
	table    ScoreTable

	mu      sync.Mutex
	outcome *Outcome
}

func NewSession(s *model.Scenario, table ScoreTable) *Session {
	return &Session{scenario: s, table: table}
}

func (s *Session) Scenario() *model.Scenario { return s.scenario }

// Submit records the choice and returns its outcome. Only the first call has
// any effect.
func (s *Session) Submit(choiceID string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome != nil {
		return *s.outcome, ErrAlreadySubmitted
	}
	c, ok := s.scenario.Choice(choiceID)
	if !ok {
		return Outcome{}, fmt.Errorf("%w %q", ErrUnknownChoice, choiceID)
	}
	s.outcome = &Outcome{Choice: c, Score: s.table.Score(c.ID)}
	return *s.outcome, nil
}

// Submitted reports whether a choice has been accepted.
func (s *Session) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome != nil
}
