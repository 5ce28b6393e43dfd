package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/ems/internal/models"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

func sleep() { time.Sleep(10 * time.Millisecond) }

type fakeAccount struct {
	identity models.Identity
	password string
}

// FakeAPI is an httptest server speaking the EMS auth and notification API with cookie credentials.
//
// Tokens rotate on every login and refresh; [FakeAPI.ExpireAccess] invalidates the current access
// token so the next authorized call gets a 401.
type FakeAPI struct {
	*httptest.Server

	mu            sync.Mutex
	accounts      map[string]*fakeAccount
	current       *models.Identity
	access        string
	refresh       string
	seq           int
	calls         map[string]int
	notifications []models.Notification

	// RefreshStatus, when non-zero, is returned by /auth/refresh instead of success.
	RefreshStatus int
	// RefreshDelay is slept before answering /auth/refresh.
	RefreshDelay time.Duration
	// RefreshGate, when set, blocks /auth/refresh until it is closed.
	RefreshGate chan struct{}
	// LogoutStatus, when non-zero, is returned by /auth/logout.
	LogoutStatus int
	// MarkReadStatus, when non-zero, is returned by the mark-read endpoints.
	MarkReadStatus int
	// Bare answers auth calls with {"user":...} instead of {"status":..,"data":{"user":..}}.
	Bare bool
}

// NewFakeAPI starts a fake API. Its base URL is [FakeAPI.BaseURL].
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		accounts: make(map[string]*fakeAccount),
		calls:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", f.login)
	mux.HandleFunc("POST /api/auth/register", f.register)
	mux.HandleFunc("POST /api/auth/logout", f.logout)
	mux.HandleFunc("POST /api/auth/refresh", f.refreshToken)
	mux.HandleFunc("GET /api/notifications", f.authorized(f.listNotifications))
	mux.HandleFunc("PUT /api/notifications/read-all", f.authorized(f.markAllRead))
	mux.HandleFunc("PUT /api/notifications/{id}/read", f.authorized(f.markRead))
	mux.HandleFunc("GET /api/users/profile", f.authorized(f.profile))
	mux.HandleFunc("/api/", f.authorized(f.echo))

	counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.Method+" "+strings.TrimPrefix(r.URL.Path, "/api")]++
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	})

	f.Server = httptest.NewServer(counting)
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the API root clients should be configured with.
func (f *FakeAPI) BaseURL() string { return f.URL + "/api" }

// AddAccount registers a user that can log in.
func (f *FakeAPI) AddAccount(identity models.Identity, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[strings.ToLower(identity.Email)] = &fakeAccount{identity: identity, password: password}
}

// SetProfile replaces the stored profile of identity.ID, as an edit made elsewhere would.
func (f *FakeAPI) SetProfile(identity models.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acct := range f.accounts {
		if acct.identity.ID == identity.ID {
			acct.identity = identity
		}
	}
	if f.current != nil && f.current.ID == identity.ID {
		id := identity
		f.current = &id
	}
}

// SetNotifications replaces the server-side notification list.
func (f *FakeAPI) SetNotifications(items []models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append([]models.Notification(nil), items...)
}

// Notifications returns a copy of the server-side notification list.
func (f *FakeAPI) Notifications() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.notifications...)
}

// SetRefreshStatus sets [FakeAPI.RefreshStatus] while requests may be in flight.
func (f *FakeAPI) SetRefreshStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefreshStatus = status
}

// SetLogoutStatus sets LogoutStatus while the server may be running.
func (f *FakeAPI) SetLogoutStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LogoutStatus = status
}

// SetRefreshGate sets RefreshGate while the server may be running.
func (f *FakeAPI) SetRefreshGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefreshGate = gate
}

// ExpireAccess invalidates the current access token.
func (f *FakeAPI) ExpireAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = "expired"
}

// Calls returns how many times method path was hit. Path is relative to [FakeAPI.BaseURL].
func (f *FakeAPI) Calls(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+path]
}

// Unauthorized returns the number of 401s served on authorized routes.
func (f *FakeAPI) Unauthorized() int {
	return f.Calls("401", "")
}

func (f *FakeAPI) issue(w http.ResponseWriter) {
	f.seq++
	f.access = fmt.Sprintf("a%d", f.seq)
	f.refresh = fmt.Sprintf("r%d", f.seq)
	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: f.access, Path: "/", HttpOnly: true, MaxAge: 900})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: f.refresh, Path: "/", HttpOnly: true, MaxAge: 7 * 24 * 3600})
}

func (f *FakeAPI) writeUser(w http.ResponseWriter, status int, identity models.Identity) {
	if f.Bare {
		writeJSON(w, status, map[string]any{"user": identity})
		return
	}
	writeJSON(w, status, map[string]any{"status": "success", "data": map[string]any{"user": identity}})
}

func (f *FakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	acct, ok := f.accounts[strings.ToLower(creds.Email)]
	if !ok || acct.password != creds.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
		return
	}

	id := acct.identity
	f.current = &id
	f.issue(w)
	f.writeUser(w, http.StatusOK, id)
}

func (f *FakeAPI) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "All fields are required"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.accounts[strings.ToLower(body.Email)]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "User already exists"})
		return
	}

	f.seq++
	id := models.Identity{
		ID:    fmt.Sprintf("user-%d", f.seq),
		Name:  body.Name,
		Email: body.Email,
		Role:  models.ParseRole(body.Role),
	}
	f.accounts[strings.ToLower(body.Email)] = &fakeAccount{identity: id, password: body.Password}
	f.current = &id
	f.issue(w)
	f.writeUser(w, http.StatusCreated, id)
}

func (f *FakeAPI) logout(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LogoutStatus != 0 {
		writeJSON(w, f.LogoutStatus, map[string]string{"message": "logout unavailable"})
		return
	}

	f.current, f.access, f.refresh = nil, "", ""
	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Path: "/", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (f *FakeAPI) refreshToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	gate, delay, status := f.RefreshGate, f.RefreshDelay, f.RefreshStatus
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"message": "refresh rejected"})
		return
	}

	c, err := r.Cookie(RefreshCookie)
	if err != nil || f.refresh == "" || c.Value != f.refresh {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid refresh token"})
		return
	}

	f.issue(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (f *FakeAPI) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(AccessCookie)

		f.mu.Lock()
		ok := err == nil && f.access != "" && c.Value == f.access
		if !ok {
			f.calls["401 "]++
		}
		f.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Not authorized"})
			return
		}
		next(w, r)
	}
}

func (f *FakeAPI) listNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": f.Notifications()})
}

func (f *FakeAPI) markRead(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.MarkReadStatus != 0 {
		writeJSON(w, f.MarkReadStatus, map[string]string{"message": "cannot mark read"})
		return
	}

	id := r.PathValue("id")
	for i := range f.notifications {
		if f.notifications[i].ID == id {
			f.notifications[i].Read = true
			writeJSON(w, http.StatusOK, map[string]any{"data": f.notifications[i]})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Notification not found"})
}

func (f *FakeAPI) markAllRead(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.MarkReadStatus != 0 {
		writeJSON(w, f.MarkReadStatus, map[string]string{"message": "cannot mark read"})
		return
	}
	for i := range f.notifications {
		f.notifications[i].Read = true
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (f *FakeAPI) profile(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	current := f.current
	f.mu.Unlock()

	if current == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no user"})
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (f *FakeAPI) echo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"method": r.Method, "path": strings.TrimPrefix(r.URL.Path, "/api")})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
