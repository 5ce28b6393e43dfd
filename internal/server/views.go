package server

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"

	"github.com/desertthunder/ems/internal/gate"
	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// Link is one navigation entry.
type Link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// Nav is the navigation chrome for one session state.
type Nav struct {
	Authenticated bool             `json:"authenticated"`
	User          *models.Identity `json:"user,omitempty"`
	Links         []Link           `json:"links"`
	Unread        int              `json:"unread"`
}

// BuildNav lays out the links for snap.
func BuildNav(snap session.Snapshot, unread int) Nav {
	nav := Nav{Links: []Link{{Label: "Home", Href: gate.HomePath}}}

	if snap.State != session.Authenticated || snap.Identity == nil {
		nav.Links = append(nav.Links,
			Link{Label: "About", Href: "/about"},
			Link{Label: "Contact", Href: "/contact"},
			Link{Label: "Log in", Href: gate.LoginPage},
			Link{Label: "Register", Href: "/register"},
		)
		return nav
	}

	nav.Authenticated = true
	nav.User = snap.Identity
	nav.Unread = unread
	nav.Links = append(nav.Links, Link{Label: "Dashboard", Href: gate.DashboardPath(snap.Identity.Role)})
	if snap.Identity.Role == models.RoleOrganizer {
		nav.Links = append(nav.Links, Link{Label: "Create event", Href: "/organizer/create-event"})
	}
	nav.Links = append(nav.Links, Link{Label: "Notifications", Href: "/notifications"})
	return nav
}

type pageData struct {
	Title         string
	Kind          string
	Path          string
	From          string
	Error         string
	Nav           Nav
	Notifications []models.Notification
}

var titles = map[string]string{
	"/{$}":                       "Events",
	"/login":                     "Log in",
	"/register":                  "Register",
	"/event/{id}":                "Event",
	"/about":                     "About",
	"/contact":                   "Contact",
	"/notifications":             "Notifications",
	"/user/dashboard":            "My bookings",
	"/booking/{eventId}":         "Book tickets",
	"/payment":                   "Payment",
	"/feedback":                  "Feedback",
	"/organizer/dashboard":       "Organizer dashboard",
	"/organizer/create-event":    "Create event",
	"/organizer/edit-event/{id}": "Edit event",
	"/admin/dashboard":           "Admin dashboard",
}

// views renders pages with the chrome for the current session.
type views struct {
	sessions Sessions
	feed     Badge
}

func newViews(sessions Sessions, feed Badge) *views {
	return &views{sessions: sessions, feed: feed}
}

// nav syncs the badge when signed in. Sync is throttled, so concurrent pages share one fetch.
func (v *views) nav(ctx context.Context) (Nav, []models.Notification) {
	snap := v.sessions.Snapshot()
	if v.feed == nil || snap.State != session.Authenticated {
		return BuildNav(snap, 0), nil
	}

	items, _ := v.feed.Sync(ctx)
	return BuildNav(snap, v.feed.UnreadCount()), items
}

func (v *views) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	var items []models.Notification
	data.Nav, items = v.nav(r.Context())
	if data.Kind == "notifications" {
		data.Notifications = items
	}
	if data.Title == "" {
		data.Title = "Not found"
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
