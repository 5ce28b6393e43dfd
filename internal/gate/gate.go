package gate

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/session"
)

// Decision is the outcome of a route check.
type Decision int

const (
	// Suspend means the session is not resolved yet; wait and ask again.
	Suspend Decision = iota
	Allow
	RedirectLogin
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect-login"
	case RedirectHome:
		return "redirect-home"
	default:
		return "suspend"
	}
}

const (
	HomePath  = "/"
	LoginPage = "/login"
)

// Decide checks snap against the roles a route requires. An empty role set means public.
func Decide(snap session.Snapshot, roles []models.Role) Decision {
	switch {
	case snap.State == session.Unresolved:
		return Suspend
	case len(roles) == 0:
		return Allow
	case snap.State != session.Authenticated || snap.Identity == nil:
		return RedirectLogin
	case snap.Identity.Role.In(roles):
		return Allow
	default:
		return RedirectHome
	}
}

// Route is one entry of a [Table].
type Route struct {
	Pattern string
	Roles   []models.Role
}

// Public reports whether the route needs no session.
func (r Route) Public() bool { return len(r.Roles) == 0 }

// Result is a decision with its redirect target resolved.
type Result struct {
	Decision Decision
	Route    Route
	// Target is where to send the client for the redirect decisions.
	Target string
	// From is the path that was asked for.
	From string
}

// Table maps URL patterns to required roles.
type Table struct {
	mux    *http.ServeMux
	routes map[string]Route
}

// NewTable builds a table from routes. Patterns use [http.ServeMux] syntax without a method.
// Paths matching no pattern are public.
func NewTable(routes ...Route) *Table {
	t := &Table{mux: http.NewServeMux(), routes: make(map[string]Route, len(routes))}
	for _, r := range routes {
		t.mux.Handle(r.Pattern, http.NotFoundHandler())
		t.routes[r.Pattern] = Route{Pattern: r.Pattern, Roles: slices.Clone(r.Roles)}
	}
	return t
}

var (
	anyone    = []models.Role{models.RoleUser, models.RoleOrganizer, models.RoleAdmin}
	user      = []models.Role{models.RoleUser}
	organizer = []models.Role{models.RoleOrganizer}
	admin     = []models.Role{models.RoleAdmin}
)

// DefaultRoutes are the application's pages.
func DefaultRoutes() []Route {
	return []Route{
		{Pattern: "/{$}"},
		{Pattern: "/login"},
		{Pattern: "/register"},
		{Pattern: "/event/{id}"},
		{Pattern: "/about"},
		{Pattern: "/contact"},
		{Pattern: "/notifications", Roles: anyone},
		{Pattern: "/user/dashboard", Roles: user},
		{Pattern: "/booking/{eventId}", Roles: user},
		{Pattern: "/payment", Roles: user},
		{Pattern: "/feedback", Roles: user},
		{Pattern: "/organizer/dashboard", Roles: organizer},
		{Pattern: "/organizer/create-event", Roles: organizer},
		{Pattern: "/organizer/edit-event/{id}", Roles: organizer},
		{Pattern: "/admin/dashboard", Roles: admin},
	}
}

// DefaultTable is [NewTable] over [DefaultRoutes].
func DefaultTable() *Table {
	return NewTable(DefaultRoutes()...)
}

// Routes returns the table's routes in no particular order.
func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r)
	}
	return out
}

// Lookup finds the route for path. The second result is false for unknown paths.
func (t *Table) Lookup(path string) (Route, bool) {
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: path}}
	if _, pattern := t.mux.Handler(req); pattern != "" {
		if r, ok := t.routes[pattern]; ok {
			return r, true
		}
	}
	return Route{Pattern: path}, false
}

// Evaluate looks path up and decides for snap.
func (t *Table) Evaluate(snap session.Snapshot, path string) Result {
	route, _ := t.Lookup(path)
	res := Result{Decision: Decide(snap, route.Roles), Route: route, From: path}

	switch res.Decision {
	case RedirectLogin:
		res.Target = LoginPath(path)
	case RedirectHome:
		res.Target = HomePath
	}
	return res
}

// LoginPath is the login page that returns to from after sign-in.
func LoginPath(from string) string {
	if from == "" || from == LoginPage {
		return LoginPage
	}
	return LoginPage + "?" + url.Values{"from": {from}}.Encode()
}

// DashboardPath is the landing page for role after sign-in.
func DashboardPath(role models.Role) string {
	switch role {
	case models.RoleAdmin:
		return "/admin/dashboard"
	case models.RoleOrganizer:
		return "/organizer/dashboard"
	case models.RoleUser:
		return "/user/dashboard"
	default:
		return HomePath
	}
}

// ReturnPath picks where to go after sign-in: from when identity may open it, otherwise the
// role's dashboard.
func (t *Table) ReturnPath(identity models.Identity, from string) string {
	if local(from) {
		snap := session.Snapshot{State: session.Authenticated, Identity: &identity}
		if u, _ := url.Parse(from); t.Evaluate(snap, u.Path).Decision == Allow && u.Path != LoginPage {
			return from
		}
	}
	return DashboardPath(identity.Role)
}

// local reports whether from is a path on this site. Browsers read a backslash as a
// slash, so "/\host" is treated like "//host".
func local(from string) bool {
	if !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.ContainsAny(from, "\\\x00\r\n\t") {
		return false
	}
	u, err := url.Parse(from)
	return err == nil && u.Scheme == "" && u.Host == "" && u.User == nil
}
