package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// ToastDuration is how long a toast stays on screen.
const ToastDuration = 3 * time.Second

// toast is a transient message drawn under the game. A newer toast replaces
// an older one; the id makes a stale expiry message harmless.
type toast struct {
	id    int
	text  string
	isErr bool
}

type toastExpiredMsg struct{ id int }

func (t *toast) show(text string, isErr bool) tea.Cmd {
	t.id++
	t.text, t.isErr = text, isErr
	id := t.id
	return tea.Tick(ToastDuration, func(time.Time) tea.Msg { return toastExpiredMsg{id: id} })
}

func (t *toast) expire(msg toastExpiredMsg) {
	if msg.id == t.id {
		t.text = ""
	}
}

func (t toast) view(s Styles) string {
	if t.text == "" {
		return ""
	}
	if t.isErr {
		return s.ErrToast.Render(t.text)
	}
	return s.Toast.Render(t.text)
}
