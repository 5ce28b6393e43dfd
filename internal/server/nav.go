package server

import (
	"encoding/json"
	"net/http"
)

// NavHandler serves the navigation chrome as JSON.
type NavHandler struct {
	sessions Sessions
	views    *views
}

// NewNavHandler creates a [NavHandler].
func NewNavHandler(sessions Sessions, feed Badge) *NavHandler {
	return &NavHandler{sessions: sessions, views: newViews(sessions, feed)}
}

// Routes returns the nav endpoint.
func (h *NavHandler) Routes() []string {
	return []string{"GET /api/nav"}
}

func (h *NavHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.WaitResolved(r.Context()); err != nil {
		return
	}

	nav, _ := h.views.nav(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(nav)
}
