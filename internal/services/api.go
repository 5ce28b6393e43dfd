// HTTP transport for the EMS REST API
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ems/internal/repositories"
	"github.com/desertthunder/ems/internal/shared"
	"golang.org/x/net/publicsuffix"
)

// DefaultBaseURL is used when no API base is configured.
const DefaultBaseURL = "http://localhost:8001/api"

// Request describes one call to the API.
type Request struct {
	Method string
	Path   string
	Body   any // Body is sent as JSON; []byte and json.RawMessage are sent as-is

	// Retry marks a request that is being replayed after a refresh. It is never replayed again.
	Retry bool
	// Refresh marks the credential refresh call itself. A 401 on it never triggers a refresh.
	Refresh bool
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Decode unmarshals the body into v.
func (r *APIResponse) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is returned for any non-2xx response. It unwraps to the sentinel matching its status.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
	kind       error
}

// NewAPIError classifies a failed response.
func NewAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: body, Message: errorMessage(body)}

	switch {
	case status == http.StatusUnauthorized:
		e.kind = shared.ErrAuthorizationExpired
	case status == http.StatusForbidden:
		e.kind = shared.ErrForbidden
	case status == http.StatusNotFound:
		e.kind = shared.ErrNotFound
	case status == http.StatusConflict:
		e.kind = shared.ErrDuplicateAccount
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		e.kind = shared.ErrValidation
	case status >= 500:
		e.kind = shared.ErrServer
	default:
		e.kind = shared.ErrAPIRequest
	}
	return e
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: status %d: %s", e.kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%v: status %d", e.kind, e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.kind }

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// errorMessage extracts the server's "message" (or "error") field.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

// NewHTTPClient returns a client with a [SessionJar], so credentials set by the API ride along on every call.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Jar: NewSessionJar(), Timeout: timeout}
}

// SessionJar is a cookie jar that can be emptied when the session ends.
type SessionJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

// NewSessionJar creates an empty [SessionJar].
func NewSessionJar() *SessionJar {
	j := &SessionJar{}
	j.Reset()
	return j
}

func (j *SessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *SessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

// Reset drops every cookie.
func (j *SessionJar) Reset() {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		panic(fmt.Sprintf("failed to create cookie jar: %v", err))
	}
	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}

type generationKey struct{}

// WithGeneration marks ctx as belonging to session generation gen. Cookies set by responses
// to requests sent under ctx are kept only while gen is still active; see [APIService.GuardCookies].
func WithGeneration(ctx context.Context, gen uint64) context.Context {
	return context.WithValue(ctx, generationKey{}, gen)
}

func generationOf(ctx context.Context) (uint64, bool) {
	gen, ok := ctx.Value(generationKey{}).(uint64)
	return gen, ok
}

// CookieGuard runs fn only while gen is the active session generation and reports whether it ran.
// The session must not change while fn runs.
type CookieGuard func(gen uint64, fn func()) bool

// guardedJar drops cookies that arrive after the request's session has ended.
type guardedJar struct {
	http.CookieJar
	gen   uint64
	guard CookieGuard
}

func (g *guardedJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	g.guard(g.gen, func() { g.CookieJar.SetCookies(u, cookies) })
}

// APIService performs raw HTTP calls against the API base URL.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	cookies    repositories.CookieStore
	guard      CookieGuard
	logger     *log.Logger
}

// NewAPIService creates a new API service instance.
//
// A nil client gets [NewHTTPClient] with no timeout.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = NewHTTPClient(0)
	}

	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		logger:     log.New(io.Discard),
	}
}

// BaseURL returns the configured API root.
func (a *APIService) BaseURL() string { return a.baseURL }

// SetLogger replaces the service logger.
func (a *APIService) SetLogger(l *log.Logger) { a.logger = l }

// UseCookieStore loads persisted cookies into the client's jar and persists every
// Set-Cookie the API sends from now on.
func (a *APIService) UseCookieStore(ctx context.Context, store repositories.CookieStore) error {
	a.cookies = store
	if a.httpClient.Jar == nil {
		return nil
	}

	u, err := url.Parse(a.baseURL)
	if err != nil {
		return fmt.Errorf("%w: base url: %v", shared.ErrInvalidConfig, err)
	}

	stored, err := store.LoadCookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cookies: %w", err)
	}

	host := u.Hostname()
	for _, c := range stored {
		if c.Domain == host {
			c.Domain = ""
		}
		cu := *u
		cu.Path = c.Path
		a.httpClient.Jar.SetCookies(&cu, []*http.Cookie{c})
	}
	return nil
}

// GuardCookies makes cookies from requests tagged with [WithGeneration] go through guard,
// so a response that lands after sign-out cannot bring the credentials back.
func (a *APIService) GuardCookies(guard CookieGuard) { a.guard = guard }

// ClearCookies empties the jar and the persisted cookies.
func (a *APIService) ClearCookies(ctx context.Context) error {
	if jar, ok := a.httpClient.Jar.(interface{ Reset() }); ok {
		jar.Reset()
	}
	if a.cookies == nil {
		return nil
	}
	if err := a.cookies.ClearCookies(ctx); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	return nil
}

// client returns the HTTP client for a request sent under ctx.
func (a *APIService) client(ctx context.Context) *http.Client {
	gen, ok := generationOf(ctx)
	if !ok || a.guard == nil || a.httpClient.Jar == nil {
		return a.httpClient
	}
	c := *a.httpClient
	c.Jar = &guardedJar{CookieJar: a.httpClient.Jar, gen: gen, guard: a.guard}
	return &c
}

// Do sends req. Transport failures wrap [shared.ErrNetwork]; non-2xx responses are
// returned together with an [*APIError].
func (a *APIService) Do(ctx context.Context, req *Request) (*APIResponse, error) {
	var body io.Reader
	switch b := req.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	case json.RawMessage:
		body = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, a.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", shared.GenerateID())

	resp, err := a.client(ctx).Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: request failed: %w", shared.ErrNetwork, ctxErr)
		}
		return nil, fmt.Errorf("%w: request failed: %v", shared.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrNetwork, err)
	}

	a.persistCookies(ctx, httpReq.URL, resp)

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	a.logger.Debug("api call", "method", method, "path", req.Path, "status", resp.StatusCode, "retry", req.Retry)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiResp, NewAPIError(resp.StatusCode, data)
	}
	return apiResp, nil
}

func (a *APIService) persistCookies(ctx context.Context, u *url.URL, resp *http.Response) {
	if a.cookies == nil {
		return
	}
	set := resp.Cookies()
	if len(set) == 0 {
		return
	}
	save := func() {
		if err := a.cookies.SaveCookies(context.WithoutCancel(ctx), u.Hostname(), set); err != nil {
			a.logger.Warn("failed to persist cookies", "error", err)
		}
	}
	if gen, ok := generationOf(ctx); ok && a.guard != nil {
		if !a.guard(gen, save) {
			a.logger.Debug("session ended before response, not persisting cookies", "path", u.Path)
		}
		return
	}
	save()
}

// Get performs an unauthenticated GET.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.Do(ctx, &Request{Method: http.MethodGet, Path: path})
}

// Post performs an unauthenticated POST with the given JSON body.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: data})
}
