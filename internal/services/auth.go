package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/shared"
)

const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	LogoutPath   = "/auth/logout"
	RefreshPath  = "/auth/refresh"
	ProfilePath  = "/users/profile"
)

// AuthService calls the credential endpoints. These bypass [AuthorizedClient]:
// a 401 on login means bad credentials, not an expired session.
type AuthService struct {
	api *APIService
}

// NewAuthService creates a new [AuthService].
func NewAuthService(api *APIService) *AuthService {
	return &AuthService{api: api}
}

// Login exchanges credentials for session cookies and returns the identity.
func (s *AuthService) Login(ctx context.Context, creds models.Credentials) (*models.Identity, error) {
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	resp, err := s.api.Do(ctx, &Request{Method: http.MethodPost, Path: LoginPath, Body: creds})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", shared.ErrInvalidCredentials, messageOr(apiErr, "incorrect email or password"))
		}
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	return decodeIdentity(resp)
}

// Register creates an account and returns the new identity.
func (s *AuthService) Register(ctx context.Context, profile models.RegisterProfile) (*models.Identity, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	resp, err := s.api.Do(ctx, &Request{Method: http.MethodPost, Path: RegisterPath, Body: profile})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isDuplicate(apiErr) {
			return nil, fmt.Errorf("%w: %s", shared.ErrDuplicateAccount, messageOr(apiErr, "email already registered"))
		}
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	return decodeIdentity(resp)
}

// Logout asks the server to drop the session cookies.
func (s *AuthService) Logout(ctx context.Context) error {
	if _, err := s.api.Do(ctx, &Request{Method: http.MethodPost, Path: LogoutPath}); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// Refresh asks the server to renew the access cookie using the refresh cookie.
func (s *AuthService) Refresh(ctx context.Context) error {
	if _, err := s.api.Do(ctx, &Request{Method: http.MethodPost, Path: RefreshPath, Refresh: true}); err != nil {
		return fmt.Errorf("failed to refresh: %w", err)
	}
	return nil
}

// isDuplicate recognises "account exists" rejections: 409, or a 400 whose message says so.
func isDuplicate(e *APIError) bool {
	if e.StatusCode == http.StatusConflict {
		return true
	}
	return e.StatusCode == http.StatusBadRequest && containsFold(e.Message, "already")
}

func messageOr(e *APIError, fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// decodeIdentity reads the user from {"data":{"user":...}}, {"user":...} or a bare object.
func decodeIdentity(resp *APIResponse) (*models.Identity, error) {
	var envelope struct {
		User *models.Identity `json:"user"`
		Data *struct {
			User *models.Identity `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: failed to decode user: %v", shared.ErrAPIRequest, err)
	}

	switch {
	case envelope.Data != nil && envelope.Data.User != nil:
		return envelope.Data.User, nil
	case envelope.User != nil:
		return envelope.User, nil
	}

	var bare models.Identity
	if err := json.Unmarshal(resp.Body, &bare); err == nil && bare.ID != "" {
		return &bare, nil
	}
	return nil, fmt.Errorf("%w: response has no user", shared.ErrAPIRequest)
}

// DecodeIdentity reads a user payload, e.g. from the profile endpoint.
func DecodeIdentity(resp *APIResponse) (*models.Identity, error) {
	return decodeIdentity(resp)
}
