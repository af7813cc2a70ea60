package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sakif/schoolquest/internal/mission"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/service"
)

// ChoiceFunc records an answer on the server.
type ChoiceFunc func(ctx context.Context, scenarioID, choiceID string) (*service.ChoiceResult, error)

type choiceSavedMsg struct {
	result *service.ChoiceResult
	err    error
}

// MissionModel presents one scenario. The answer is scored locally so the
// feedback shows at once; the server copy is saved in the background.
type MissionModel struct {
	session *mission.Session
	save    ChoiceFunc
	styles  Styles

	cursor  int
	outcome *mission.Outcome
	pending bool
	toast   toast
}

// NewMissionModel starts a one-shot session for sc. save may be nil.
func NewMissionModel(sc *model.Scenario, table mission.ScoreTable, save ChoiceFunc) MissionModel {
	return MissionModel{
		session: mission.NewSession(sc, table),
		save:    save,
		styles:  DefaultStyles(),
	}
}

func (m MissionModel) Init() tea.Cmd { return nil }

func (m MissionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case choiceSavedMsg:
		m.pending = false
		if msg.err != nil {
			cmd := m.toast.show("Answer not saved: "+msg.err.Error(), true)
			return m, cmd
		}
		cmd := m.toast.show(fmt.Sprintf("Saved! +%d XP", msg.result.Score), false)
		return m, cmd

	case toastExpiredMsg:
		m.toast.expire(msg)
	}
	return m, nil
}

func (m MissionModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	choices := m.session.Scenario().Choices
	switch key := msg.String(); key {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.outcome == nil && m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.outcome == nil && m.cursor < len(choices)-1 {
			m.cursor++
		}
	case "enter", " ":
		if m.outcome != nil || len(choices) == 0 {
			return m, nil
		}
		out, err := m.session.Submit(choices[m.cursor].ID)
		if err != nil {
			cmd := m.toast.show(err.Error(), true)
			return m, cmd
		}
		m.outcome = &out
		cmd := m.persist(out.Choice.ID)
		return m, cmd
	}
	return m, nil
}

func (m *MissionModel) persist(choiceID string) tea.Cmd {
	if m.save == nil {
		return nil
	}
	m.pending = true
	save, id := m.save, m.session.Scenario().ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), SubmitTimeout)
		defer cancel()
		res, err := save(ctx, id, choiceID)
		return choiceSavedMsg{result: res, err: err}
	}
}

func (m MissionModel) View() string {
	sc := m.session.Scenario()
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", m.styles.Title.Render(fmt.Sprintf("Chapter %d: %s", sc.Chapter, sc.Title)))
	b.WriteString(lipgloss.NewStyle().Width(72).Render(sc.Context))
	b.WriteString("\n\n")

	for i, c := range sc.Choices {
		line := fmt.Sprintf("%s) %s", c.ID, c.Label)
		switch {
		case m.outcome != nil && m.outcome.Choice.ID == c.ID:
			b.WriteString(m.styles.Selected.Render("✓ " + line))
		case m.outcome == nil && i == m.cursor:
			b.WriteString(m.styles.Selected.Render("> " + line))
		default:
			b.WriteString("  " + line)
		}
		b.WriteByte('\n')
	}

	if m.outcome != nil {
		b.WriteString("\n" + lipgloss.NewStyle().Width(72).Render(m.outcome.Choice.Feedback) + "\n")
		fmt.Fprintf(&b, "You earned %s XP.\n", m.styles.Score.Render(fmt.Sprint(m.outcome.Score)))
		if m.pending {
			b.WriteString(m.styles.Hint.Render("saving…") + "\n")
		}
		b.WriteString(m.styles.Hint.Render("q quit"))
	} else {
		b.WriteString(m.styles.Hint.Render("\n↑/↓ choose • enter answer • q quit"))
	}

	if t := m.toast.view(m.styles); t != "" {
		b.WriteString("\n" + t)
	}
	return b.String()
}
