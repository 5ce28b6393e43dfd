package gate

import (
	"testing"

	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/session"
)

func signedIn(role models.Role) session.Snapshot {
	return session.Snapshot{
		State:    session.Authenticated,
		Identity: &models.Identity{ID: "u1", Email: "u@example.com", Role: role},
	}
}

var (
	unresolved = session.Snapshot{State: session.Unresolved}
	anonymous  = session.Snapshot{State: session.Anonymous}
)

func TestDecide(t *testing.T) {
	tc := []struct {
		name  string
		snap  session.Snapshot
		roles []models.Role
		want  Decision
	}{
		{"anonymous admin route", anonymous, admin, RedirectLogin},
		{"user on admin route", signedIn(models.RoleUser), admin, RedirectHome},
		{"admin on admin route", signedIn(models.RoleAdmin), admin, Allow},
		{"unresolved admin route", unresolved, admin, Suspend},
		{"unresolved public route", unresolved, nil, Suspend},
		{"anonymous public route", anonymous, nil, Allow},
		{"organizer on any-role route", signedIn(models.RoleOrganizer), anyone, Allow},
		{"unknown role", signedIn(models.RoleUnknown), anyone, RedirectHome},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.snap, tt.roles); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("role names from forms", func(t *testing.T) {
		snap := signedIn(models.ParseRole("organizer"))
		if got := Decide(snap, organizer); got != Allow {
			t.Errorf("expected lower-case organizer to be allowed, got %v", got)
		}
	})
}

func TestTable(t *testing.T) {
	table := DefaultTable()

	t.Run("Lookup", func(t *testing.T) {
		tc := []struct {
			path    string
			pattern string
			found   bool
		}{
			{"/", "/{$}", true},
			{"/event/42", "/event/{id}", true},
			{"/booking/abc", "/booking/{eventId}", true},
			{"/organizer/edit-event/7", "/organizer/edit-event/{id}", true},
			{"/admin/dashboard", "/admin/dashboard", true},
			{"/nowhere", "/nowhere", false},
		}

		for _, tt := range tc {
			t.Run(tt.path, func(t *testing.T) {
				r, ok := table.Lookup(tt.path)
				if ok != tt.found || r.Pattern != tt.pattern {
					t.Errorf("expected (%s, %v), got (%s, %v)", tt.pattern, tt.found, r.Pattern, ok)
				}
			})
		}
	})

	t.Run("Evaluate", func(t *testing.T) {
		t.Run("anonymous keeps destination", func(t *testing.T) {
			res := table.Evaluate(anonymous, "/booking/abc")
			if res.Decision != RedirectLogin {
				t.Fatalf("expected redirect to login, got %v", res.Decision)
			}
			if res.Target != "/login?from=%2Fbooking%2Fabc" {
				t.Errorf("unexpected target %q", res.Target)
			}
		})

		t.Run("wrong role goes home", func(t *testing.T) {
			res := table.Evaluate(signedIn(models.RoleUser), "/organizer/dashboard")
			if res.Decision != RedirectHome || res.Target != HomePath {
				t.Errorf("expected home redirect, got %+v", res)
			}
		})

		t.Run("unknown paths are public", func(t *testing.T) {
			res := table.Evaluate(anonymous, "/nowhere")
			if res.Decision != Allow || res.Target != "" {
				t.Errorf("expected allow, got %+v", res)
			}
		})

		t.Run("notifications for every role", func(t *testing.T) {
			for _, role := range models.AllRoles {
				if res := table.Evaluate(signedIn(role), "/notifications"); res.Decision != Allow {
					t.Errorf("expected %v to be allowed, got %v", role, res.Decision)
				}
			}
		})
	})

	t.Run("ReturnPath", func(t *testing.T) {
		organizerID := models.Identity{ID: "o1", Role: models.RoleOrganizer}
		tc := []struct {
			name string
			from string
			want string
		}{
			{"allowed destination", "/organizer/create-event", "/organizer/create-event"},
			{"forbidden destination", "/admin/dashboard", "/organizer/dashboard"},
			{"empty", "", "/organizer/dashboard"},
			{"external", "//evil.example.com/x", "/organizer/dashboard"},
			{"backslash authority", "/\\evil.example", "/organizer/dashboard"},
			{"backslash later in path", "/organizer\\..\\/evil.example", "/organizer/dashboard"},
			{"absolute url", "https://evil.example/organizer/create-event", "/organizer/dashboard"},
			{"scheme relative with tab", "/\t/evil.example", "/organizer/dashboard"},
			{"relative path", "organizer/create-event", "/organizer/dashboard"},
			{"query is kept", "/organizer/create-event?draft=1", "/organizer/create-event?draft=1"},
			{"login page", "/login", "/organizer/dashboard"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if got := table.ReturnPath(organizerID, tt.from); got != tt.want {
					t.Errorf("expected %s, got %s", tt.want, got)
				}
			})
		}
	})
}

func TestDashboardPath(t *testing.T) {
	tc := map[models.Role]string{
		models.RoleAdmin:     "/admin/dashboard",
		models.RoleOrganizer: "/organizer/dashboard",
		models.RoleUser:      "/user/dashboard",
		models.RoleUnknown:   "/",
	}
	for role, want := range tc {
		if got := DashboardPath(role); got != want {
			t.Errorf("%v: expected %s, got %s", role, want, got)
		}
	}
}

func TestLoginPath(t *testing.T) {
	if got := LoginPath(""); got != "/login" {
		t.Errorf("expected bare login path, got %s", got)
	}
	if got := LoginPath("/payment"); got != "/login?from=%2Fpayment" {
		t.Errorf("unexpected login path %s", got)
	}
}
