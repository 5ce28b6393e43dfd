package server

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ems/internal/gate"
	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/shared"
)

// AuthHandler accepts the login, register and logout forms.
type AuthHandler struct {
	sessions Sessions
	table    *gate.Table
	views    *views
	logger   *log.Logger
}

// NewAuthHandler creates an [AuthHandler].
func NewAuthHandler(sessions Sessions, table *gate.Table, v *views, logger *log.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, table: table, views: v, logger: logger}
}

// Routes returns the form endpoints.
func (h *AuthHandler) Routes() []string {
	return []string{"POST /login", "POST /register", "POST /logout"}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	switch r.URL.Path {
	case gate.LoginPage:
		h.login(w, r)
	case "/register":
		h.register(w, r)
	case "/logout":
		h.sessions.Logout(r.Context())
		http.Redirect(w, r, gate.HomePath, http.StatusSeeOther)
	default:
		http.NotFound(w, r)
	}
}

// login returns to the page that sent the visitor here when the new identity may open it.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	from := r.PostForm.Get("from")
	identity, err := h.sessions.Login(r.Context(), r.PostForm.Get("email"), r.PostForm.Get("password"))
	if err != nil {
		h.logger.Info("login rejected", "error", err)
		h.views.render(w, r, statusFor(err), pageData{Title: titles[gate.LoginPage], Kind: "login", From: from, Error: err.Error()})
		return
	}

	http.Redirect(w, r, h.table.ReturnPath(*identity, from), http.StatusSeeOther)
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	profile := models.RegisterProfile{
		Name:        r.PostForm.Get("name"),
		Email:       r.PostForm.Get("email"),
		Password:    r.PostForm.Get("password"),
		Role:        models.ParseRole(r.PostForm.Get("role")),
		CompanyName: r.PostForm.Get("companyName"),
		Bio:         r.PostForm.Get("bio"),
	}

	identity, err := h.sessions.Register(r.Context(), profile)
	if err != nil {
		h.logger.Info("registration rejected", "error", err)
		h.views.render(w, r, statusFor(err), pageData{Title: titles["/register"], Kind: "register", Error: err.Error()})
		return
	}

	http.Redirect(w, r, gate.DashboardPath(identity.Role), http.StatusSeeOther)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrDuplicateAccount):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
