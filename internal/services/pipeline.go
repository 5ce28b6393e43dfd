package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ems/internal/shared"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout bounds a single refresh attempt.
const DefaultRefreshTimeout = 10 * time.Second

const refreshKey = "refresh"

// SessionTracker is the view of the session the pipeline needs.
//
// The generation changes on every session transition; it lets the pipeline tell
// whether the session a request started under is still the current one.
type SessionTracker interface {
	Generation() (gen uint64, authenticated bool)
	Active(gen uint64) bool
	// Expire ends the session if gen is still current, clearing persisted credentials.
	// It reports whether a transition happened.
	Expire(gen uint64, cause error) bool
}

// Refresher renews the session credentials.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Requester sends a single request without any recovery.
type Requester interface {
	Do(ctx context.Context, req *Request) (*APIResponse, error)
}

// AuthorizedClientOpts configures an [AuthorizedClient].
type AuthorizedClientOpts struct {
	API            Requester
	Refresher      Refresher
	Session        SessionTracker
	RefreshTimeout time.Duration
	// LoginPath is handed to Redirect when a refresh fails.
	LoginPath string
	Redirect  func(target string)
	Metrics   *Metrics
	Logger    *log.Logger
}

// AuthorizedClient is the request path for every authenticated call.
//
// On a 401 it refreshes the session once for all concurrent callers and replays
// each request once. If the refresh fails the session is expired and every
// waiting caller receives the original 401.
type AuthorizedClient struct {
	api            Requester
	refresher      Refresher
	session        SessionTracker
	refreshTimeout time.Duration
	loginPath      string
	redirect       func(string)
	metrics        *Metrics
	logger         *log.Logger
	group          singleflight.Group
	// epoch counts successful refreshes.
	epoch atomic.Uint64
}

// NewAuthorizedClient creates a new [AuthorizedClient].
func NewAuthorizedClient(opts AuthorizedClientOpts) *AuthorizedClient {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.Redirect == nil {
		opts.Redirect = func(string) {}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	return &AuthorizedClient{
		api:            opts.API,
		refresher:      opts.Refresher,
		session:        opts.Session,
		refreshTimeout: opts.RefreshTimeout,
		loginPath:      opts.LoginPath,
		redirect:       opts.Redirect,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
	}
}

// Fetch sends req with the ambient credentials, recovering from an expired access credential.
func (c *AuthorizedClient) Fetch(ctx context.Context, req *Request) (*APIResponse, error) {
	gen, authenticated := c.session.Generation()
	epoch := c.epoch.Load()
	if authenticated {
		ctx = WithGeneration(ctx, gen)
	}

	resp, err := c.api.Do(ctx, req)
	if err == nil || !IsUnauthorized(err) {
		return resp, err
	}
	if req.Retry || req.Refresh || req.Path == RefreshPath || !authenticated {
		return resp, err
	}
	if !c.session.Active(gen) {
		c.logger.Debug("session changed while request was in flight, not refreshing", "path", req.Path)
		return resp, err
	}

	// A refresh that finished after req was sent already renewed the credentials.
	if c.epoch.Load() == epoch {
		if rerr := c.refresh(ctx, gen); rerr != nil {
			return resp, err
		}
	}

	if !c.session.Active(gen) {
		c.logger.Debug("session ended during refresh, not retrying", "path", req.Path)
		return resp, err
	}

	retry := *req
	retry.Retry = true

	retryResp, retryErr := c.api.Do(ctx, &retry)
	if retryErr != nil {
		c.metrics.retry("error")
	} else {
		c.metrics.retry("ok")
	}
	return retryResp, retryErr
}

// refresh joins the in-flight refresh or starts one. The attempt runs detached from
// any single caller; a caller whose context ends stops waiting without cancelling it.
func (c *AuthorizedClient) refresh(ctx context.Context, gen uint64) error {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()

		err := c.refresher.Refresh(rctx)
		if err == nil {
			c.epoch.Add(1)
			c.metrics.refresh("ok")
			c.logger.Debug("session refreshed")
			return nil, nil
		}

		if errors.Is(rctx.Err(), context.DeadlineExceeded) {
			c.metrics.refresh("timeout")
			err = fmt.Errorf("%w: %w", shared.ErrTimeout, err)
		} else {
			c.metrics.refresh("error")
		}
		cause := fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)

		if c.session.Expire(gen, cause) {
			c.metrics.expired()
			c.logger.Warn("session expired", "cause", cause)
			c.redirect(c.loginPath)
		}
		return nil, cause
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
