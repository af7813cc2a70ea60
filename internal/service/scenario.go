package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/mission"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/repository"
)

// ScenarioService serves narrative scenarios and scores answers.
type ScenarioService struct {
	scenarios repository.ScenarioRepository
	progress  *ProgressService
	table     mission.ScoreTable
	logger    *slog.Logger
}

func NewScenarioService(
	scenarios repository.ScenarioRepository,
	progress *ProgressService,
	table mission.ScoreTable,
	logger *slog.Logger,
) *ScenarioService {
	return &ScenarioService{scenarios: scenarios, progress: progress, table: table, logger: logger}
}

// seedFile is the YAML layout of a scenario seed file.
type seedFile struct {
	Scenarios []model.Scenario `yaml:"scenarios"`
}

// LoadSeed reads scenarios from a YAML file and upserts them. Running it on
// every start keeps the database in step with the file.
func (s *ScenarioService) LoadSeed(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("service/scenario: reading seed: %w", err)
	}
	return s.Seed(ctx, data)
}

// Seed upserts the scenarios in a YAML document.
func (s *ScenarioService) Seed(ctx context.Context, data []byte) (int, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("service/scenario: parsing seed: %w", err)
	}
	for i := range f.Scenarios {
		sc := &f.Scenarios[i]
		if err := validateScenario(sc); err != nil {
			return i, fmt.Errorf("service/scenario: seed entry %d: %w", i, err)
		}
		if err := s.scenarios.UpsertScenario(ctx, sc); err != nil {
			return i, fmt.Errorf("service/scenario: seeding %s: %w", sc.ID, err)
		}
	}
	s.logger.Info("scenarios seeded", slog.Int("count", len(f.Scenarios)))
	return len(f.Scenarios), nil
}

func validateScenario(sc *model.Scenario) error {
	if strings.TrimSpace(sc.ID) == "" {
		return apperror.ValidationFailed("id", "scenario ID is required")
	}
	if sc.Chapter < 1 {
		return apperror.ValidationFailed("chapter", "chapter must be 1 or more")
	}
	if len(sc.Choices) < 2 || len(sc.Choices) > 3 {
		return apperror.ValidationFailed("choices", "a scenario needs two or three choices")
	}
	seen := make(map[string]bool, len(sc.Choices))
	for _, c := range sc.Choices {
		if c.ID == "" || seen[c.ID] {
			return apperror.ValidationFailed("choices", fmt.Sprintf("choice IDs must be unique and non-empty in %s", sc.ID))
		}
		seen[c.ID] = true
	}
	return nil
}

func (s *ScenarioService) Chapters(ctx context.Context) ([]model.Chapter, error) {
	return s.scenarios.ListChapters(ctx)
}

// List returns the scenarios of chapter, or all scenarios when chapter is 0.
func (s *ScenarioService) List(ctx context.Context, chapter int) ([]model.Scenario, error) {
	if chapter < 0 {
		return nil, apperror.ValidationFailed("chapter", "chapter must not be negative")
	}
	return s.scenarios.ListScenarios(ctx, chapter)
}

func (s *ScenarioService) Get(ctx context.Context, id string) (*model.Scenario, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "scenario ID is required")
	}
	return s.scenarios.GetScenario(ctx, id)
}

// ChoiceResult is what the player sees after answering a scenario.
type ChoiceResult struct {
	Choice model.Choice `json:"choice"`
	Score  int          `json:"score"`
	Ack    *model.Ack   `json:"ack"`
}

// SubmitChoice scores the answer and records a mission event under the
// scenario's ID. Each call is one play; answering again records again.
func (s *ScenarioService) SubmitChoice(ctx context.Context, user, scenarioID, choiceID string) (*ChoiceResult, error) {
	sc, err := s.Get(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	out, err := mission.NewSession(sc, s.table).Submit(strings.TrimSpace(choiceID))
	if err != nil {
		if errors.Is(err, mission.ErrUnknownChoice) {
			return nil, apperror.ValidationFailed("choiceId", fmt.Sprintf("scenario %s has no choice %q", sc.ID, choiceID))
		}
		return nil, err
	}

	if user == "" {
		return nil, apperror.Unauthorized("a signed-in user is required")
	}
	ack, err := s.progress.record(ctx, &model.ProgressEvent{
		User:      user,
		MissionID: sc.ID,
		Score:     out.Score,
		Payload:   model.MissionChoice{ChoiceID: out.Choice.ID, Tag: out.Choice.ID},
	})
	if err != nil {
		return nil, err
	}
	return &ChoiceResult{Choice: out.Choice, Score: out.Score, Ack: ack}, nil
}
