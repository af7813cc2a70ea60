// Package handler contains the HTTP request handlers of SchoolQuest.
//
// WHAT IS A HANDLER?
// Anything implementing http.Handler; in practice methods with the
// http.HandlerFunc signature that chi accepts directly.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming HTTP request (path, query, JSON or multipart body)
//  2. Call the service layer
//  3. Write the HTTP response through writeJSON / writeError
//
// Handlers hold no business rules. Who the caller is comes from the auth
// middleware via auth.IdentityFromContext.
package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/schoolquest/internal/auth"
	"github.com/sakif/schoolquest/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// DashboardHandler renders the home page: the student's counters, recent
// activity and the leaderboard. It holds parsed templates so they are
// compiled once at startup.
type DashboardHandler struct {
	templates   *template.Template
	dashboard   *service.DashboardService
	authEnabled bool
	logger      *slog.Logger
}

// NewDashboardHandler parses the embedded templates.
//
// TEMPLATE COMPOSITION:
// base.html defines the page with a {{template "content" .}} placeholder and
// dashboard.html fills it with {{define "content"}}.
func NewDashboardHandler(dashboard *service.DashboardService, authEnabled bool, logger *slog.Logger) (*DashboardHandler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"since": since,
	}).ParseFS(templateFS, "templates/base.html", "templates/dashboard.html")
	if err != nil {
		return nil, err
	}
	return &DashboardHandler{
		templates:   tmpl,
		dashboard:   dashboard,
		authEnabled: authEnabled,
		logger:      logger,
	}, nil
}

// dashboardPage is the template data.
type dashboardPage struct {
	Title       string
	Email       string
	AuthEnabled bool
	Notice      string
	Data        service.Dashboard
}

// HandleDashboard serves the home page.
//
// HTTP: GET /  (OptionalAuth)
//
// The page never fails because a read failed: DashboardService degrades
// each section to its zero value.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	page := dashboardPage{
		Title:       "SchoolQuest",
		AuthEnabled: h.authEnabled,
		Notice:      authNotice(r.URL.Query().Get("auth")),
	}
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		page.Email = id.Email
	}
	page.Data = h.dashboard.Load(r.Context(), page.Email)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "base", page); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func authNotice(code string) string {
	switch code {
	case "denied":
		return "Sign-in was cancelled."
	case "forbidden":
		return "This account is not allowed to sign in."
	default:
		return ""
	}
}

// since renders the age of an event for the activity list.
func since(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	default:
		return t.Format("2 Jan 2006")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
