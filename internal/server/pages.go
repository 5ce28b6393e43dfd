package server

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ems/internal/gate"
)

// PageHandler renders every page in the route table behind [Guard].
type PageHandler struct {
	table   *gate.Table
	views   *views
	guarded http.Handler
}

// NewPageHandler creates a [PageHandler].
func NewPageHandler(sessions Sessions, table *gate.Table, v *views, logger *log.Logger) *PageHandler {
	h := &PageHandler{table: table, views: v}
	h.guarded = Guard(sessions, table, logger)(http.HandlerFunc(h.page))
	return h
}

// Routes returns one GET pattern per table route plus a catch-all.
func (h *PageHandler) Routes() []string {
	routes := []string{"GET /"}
	for _, r := range h.table.Routes() {
		routes = append(routes, "GET "+r.Pattern)
	}
	return routes
}

func (h *PageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.guarded.ServeHTTP(w, r)
}

func (h *PageHandler) page(w http.ResponseWriter, r *http.Request) {
	route, ok := h.table.Lookup(r.URL.Path)
	if !ok {
		h.views.render(w, r, http.StatusNotFound, pageData{Path: r.URL.Path})
		return
	}

	data := pageData{Title: titles[route.Pattern], Path: r.URL.Path}
	switch route.Pattern {
	case gate.LoginPage:
		data.Kind = "login"
		data.From = r.URL.Query().Get("from")
	case "/register":
		data.Kind = "register"
	case "/notifications":
		data.Kind = "notifications"
	}
	h.views.render(w, r, http.StatusOK, data)
}
