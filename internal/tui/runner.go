package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sakif/schoolquest/internal/runner"
	"github.com/sakif/schoolquest/internal/service"
)

// FrameRate is the simulation rate the runner balance is tuned for.
const FrameRate = 60

// SubmitTimeout bounds one score submission, retries included.
const SubmitTimeout = 15 * time.Second

// SubmitFunc persists a finished run. It runs off the render loop.
type SubmitFunc func(ctx context.Context, run runner.Run, score int) (*service.RunnerVerdict, error)

type tickMsg struct{ gen int }

type submittedMsg struct {
	verdict *service.RunnerVerdict
	err     error
}

// RunnerModel is the terminal runner game. It owns one runner.Sim and
// drives it with a fixed-rate tick while playing.
type RunnerModel struct {
	sim    *runner.Sim
	seed   func() uint64
	submit SubmitFunc
	styles Styles

	cursor  int
	gen     int
	best    int
	pending bool
	toast   toast
}

// NewRunnerModel creates the game in the avatar menu. seed provides the RNG
// seed of each run; submit may be nil to play offline.
func NewRunnerModel(cfg runner.Config, seed func() uint64, submit SubmitFunc) RunnerModel {
	return RunnerModel{
		sim:    runner.New(cfg),
		seed:   seed,
		submit: submit,
		styles: DefaultStyles(),
	}
}

func (m RunnerModel) Init() tea.Cmd { return nil }

func (m RunnerModel) tick() tea.Cmd {
	gen := m.gen
	return tea.Tick(time.Second/FrameRate, func(time.Time) tea.Msg { return tickMsg{gen: gen} })
}

func (m RunnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		// Ticks from an earlier run are dropped so only one loop is alive.
		if msg.gen != m.gen || m.sim.State() != runner.StatePlaying {
			return m, nil
		}
		if res := m.sim.Step(); res.Over {
			cmd := m.finish()
			return m, cmd
		}
		return m, m.tick()

	case submittedMsg:
		m.pending = false
		if msg.err != nil {
			cmd := m.toast.show("Score not saved: "+msg.err.Error(), true)
			return m, cmd
		}
		cmd := m.toast.show(fmt.Sprintf("Saved! +%d XP", msg.verdict.Ack.Score), false)
		return m, cmd

	case toastExpiredMsg:
		m.toast.expire(msg)
	}
	return m, nil
}

func (m RunnerModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.sim.State() {
	case runner.StateMenu:
		switch key {
		case "q", "esc":
			return m, tea.Quit
		case "left", "up", "h", "k":
			m.cursor = (m.cursor + len(runner.Avatars) - 1) % len(runner.Avatars)
		case "right", "down", "l", "j":
			m.cursor = (m.cursor + 1) % len(runner.Avatars)
		case "enter", " ":
			if err := m.sim.Start(runner.Avatars[m.cursor], m.seed()); err != nil {
				cmd := m.toast.show(err.Error(), true)
				return m, cmd
			}
			m.gen++
			return m, m.tick()
		}

	case runner.StatePlaying:
		switch key {
		case " ", "up", "w", "k":
			m.sim.Jump()
		case "esc":
			m.sim.Reset()
		}

	case runner.StateOver:
		switch key {
		case "enter", " ":
			m.sim.Reset()
		case "q", "esc":
			return m, tea.Quit
		}
	}
	return m, nil
}

// finish records the best score and submits the run in the background.
func (m *RunnerModel) finish() tea.Cmd {
	score := m.sim.Score()
	m.best = max(m.best, score)
	if m.submit == nil {
		return nil
	}
	m.pending = true
	run, submit := m.sim.Run(), m.submit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), SubmitTimeout)
		defer cancel()
		v, err := submit(ctx, run, score)
		return submittedMsg{verdict: v, err: err}
	}
}

func (m RunnerModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("SchoolQuest Runner"))
	b.WriteString("\n\n")

	switch m.sim.State() {
	case runner.StateMenu:
		b.WriteString("Choose your avatar:\n\n")
		for i, a := range runner.Avatars {
			if i == m.cursor {
				b.WriteString(m.styles.Selected.Render("> " + a))
			} else {
				b.WriteString("  " + a)
			}
			b.WriteByte('\n')
		}
		if m.best > 0 {
			fmt.Fprintf(&b, "\nBest this session: %s\n", m.styles.Score.Render(fmt.Sprint(m.best)))
		}
		b.WriteString(m.styles.Hint.Render("\n↑/↓ choose • enter start • q quit"))

	case runner.StatePlaying:
		b.WriteString(m.styles.Frame.Render(Draw(m.sim, CanvasCols, CanvasRows, &m.styles).Render()))
		fmt.Fprintf(&b, "\nScore %s   Letters %d   Speed %.0f\n",
			m.styles.Score.Render(fmt.Sprint(m.sim.Score())), m.sim.Collected(), m.sim.Speed())
		b.WriteString(m.styles.Hint.Render("space jump (twice for a double jump) • esc menu"))

	case runner.StateOver:
		b.WriteString(m.styles.Frame.Render(Draw(m.sim, CanvasCols, CanvasRows, &m.styles).Render()))
		fmt.Fprintf(&b, "\nGame over! Score %s\n", m.styles.Score.Render(fmt.Sprint(m.sim.Score())))
		if m.pending {
			b.WriteString(m.styles.Hint.Render("saving…") + "\n")
		}
		b.WriteString(m.styles.Hint.Render("enter menu • q quit"))
	}

	if t := m.toast.view(m.styles); t != "" {
		b.WriteString("\n" + t)
	}
	return b.String()
}
