package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ems/internal/gate"
	"github.com/desertthunder/ems/internal/notifications"
	"github.com/desertthunder/ems/internal/repositories"
	"github.com/desertthunder/ems/internal/services"
	"github.com/desertthunder/ems/internal/session"
	"github.com/desertthunder/ems/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

// Store is the persistence the runner needs: the identity snapshot and the API cookies.
type Store interface {
	repositories.CredentialStore
	repositories.CookieStore
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The session stack is built on first use so that commands like setup never touch the store.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	registry   *prometheus.Registry
	table      *gate.Table

	initOnce   sync.Once
	initErr    error
	closeOnce  sync.Once
	store      Store
	closeStore func() error

	api      *services.APIService
	session  *session.Manager
	client   *services.AuthorizedClient
	notifier *services.NotificationService
	feed     *notifications.Feed
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	// Store replaces the store selected by the session driver.
	Store Store
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = services.NewHTTPClient(opts.Config.API.Timeout.Duration)
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		registry:   prometheus.NewRegistry(),
		table:      gate.DefaultTable(),
		store:      opts.Store,
	}
}

// SetLogger replaces the logger. It only affects components built afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, apiCommand, notificationsCommand, routeCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// init opens the store, restores cookies and resolves the initial session.
func (r *Runner) init(ctx context.Context) error {
	r.initOnce.Do(func() { r.initErr = r.build(ctx) })
	return r.initErr
}

func (r *Runner) build(ctx context.Context) error {
	if r.store == nil {
		store, closeFn, err := openStore(r.config)
		if err != nil {
			return err
		}
		r.store, r.closeStore = store, closeFn
	}

	r.api = services.NewAPIService(r.config.API.BaseURL, r.httpClient)
	r.api.SetLogger(shared.WithLogger(r.logger, "component", "api"))
	if err := r.api.UseCookieStore(ctx, r.store); err != nil {
		r.logger.Warn("starting without saved cookies", "error", err)
	}

	auth := services.NewAuthService(r.api)
	r.session = session.NewManager(session.ManagerOpts{
		Auth:    auth,
		Store:   r.store,
		Cookies: r.api,
		Logger:  shared.WithLogger(r.logger, "component", "session"),
	})
	r.api.GuardCookies(r.session.WhileActive)

	r.client = services.NewAuthorizedClient(services.AuthorizedClientOpts{
		API:            r.api,
		Refresher:      auth,
		Session:        r.session,
		RefreshTimeout: r.config.API.RefreshTimeout.Duration,
		LoginPath:      gate.LoginPage,
		Redirect: func(string) {
			r.logger.Warn("session expired, run 'ems auth login' to sign in again")
		},
		Metrics: services.NewMetrics(r.registry),
		Logger:  shared.WithLogger(r.logger, "component", "pipeline"),
	})

	r.notifier = services.NewNotificationService(r.client)
	r.feed = notifications.NewFeed(notifications.FeedOpts{
		Service:  r.notifier,
		Interval: r.config.Notifications.PollInterval.Duration,
		SyncRate: r.config.Notifications.SyncRate.Duration,
		Logger:   shared.WithLogger(r.logger, "component", "notifications"),
	})

	r.session.ResolveInitialSession(ctx)
	return nil
}

// openStore picks the credential store named by the session driver.
func openStore(config *shared.Config) (Store, func() error, error) {
	key := config.Session.StorageKey

	switch config.Session.Driver {
	case "bolt":
		store, err := repositories.OpenBoltStore(config.Session.BoltPath, key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return store, store.Close, nil
	case "", "sqlite":
		db, err := shared.NewDatabase(config.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return repositories.NewSnapshotRepository(db, key), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown session driver %q", shared.ErrInvalidConfig, config.Session.Driver)
	}
}

// Close stops the feed and releases the store.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		if r.feed != nil {
			r.feed.Stop()
		}
		if r.closeStore != nil {
			if err := r.closeStore(); err != nil {
				r.logger.Warn("failed to close session store", "error", err)
			}
		}
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
