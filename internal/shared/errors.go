package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrInvalidCredentials   = fmt.Errorf("invalid credentials")
	ErrDuplicateAccount     = fmt.Errorf("account already exists")
	ErrNotAuthenticated     = fmt.Errorf("not authenticated")
	ErrAuthorizationExpired = fmt.Errorf("authorization expired")
	ErrRefreshFailed        = fmt.Errorf("session refresh failed")
	ErrTimeout              = fmt.Errorf("operation timed out")

	// API and transport errors
	ErrAPIRequest = fmt.Errorf("API request failed")
	ErrNetwork    = fmt.Errorf("network error")
	ErrServer     = fmt.Errorf("server error")
	ErrForbidden  = fmt.Errorf("forbidden")
	ErrNotFound   = fmt.Errorf("not found")

	// Input validation errors
	ErrValidation      = fmt.Errorf("validation failed")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
