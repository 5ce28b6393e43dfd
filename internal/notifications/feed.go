package notifications

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/session"
	"golang.org/x/time/rate"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultSyncRate = 2 * time.Second
)

// Service is the notification API the feed talks to.
type Service interface {
	List(ctx context.Context) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

// SessionSource is what [Feed.Attach] needs from a session.
type SessionSource interface {
	Subscribe(fn func(session.Event)) (unsubscribe func())
	Generation() (uint64, bool)
	Active(gen uint64) bool
}

// FeedOpts configures a [Feed].
type FeedOpts struct {
	Service  Service
	Interval time.Duration
	// SyncRate is the minimum spacing of on-demand [Feed.Sync] fetches.
	SyncRate time.Duration
	Logger   *log.Logger
}

// Feed is the client-side notification list.
type Feed struct {
	svc      Service
	interval time.Duration
	limiter  *rate.Limiter
	logger   *log.Logger

	mu    sync.Mutex
	items []models.Notification
	// epoch moves on every reset; a fetch that started before it is discarded.
	epoch uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	subsMu    sync.Mutex
	listeners map[int]func([]models.Notification)
	nextSub   int
}

// NewFeed creates a stopped [Feed].
func NewFeed(opts FeedOpts) *Feed {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	limit := rate.Inf
	if opts.SyncRate > 0 {
		limit = rate.Every(opts.SyncRate)
	}

	return &Feed{
		svc:       opts.Service,
		interval:  opts.Interval,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    opts.Logger,
		listeners: make(map[int]func([]models.Notification)),
	}
}

// Start begins polling until ctx ends or [Feed.Stop] is called. Starting a running feed does nothing.
func (f *Feed) Start(ctx context.Context) {
	f.start(ctx, nil)
}

// start launches the poller. When active is set the poller exits as soon as it reports false.
func (f *Feed) start(ctx context.Context, active func() bool) bool {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	if f.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	prev, done := f.done, make(chan struct{})
	f.cancel, f.done = cancel, done

	go f.run(ctx, prev, done, active)
	f.logger.Debug("notification poller started", "interval", f.interval)
	return true
}

func (f *Feed) run(ctx context.Context, prev <-chan struct{}, done chan<- struct{}, active func() bool) {
	defer close(done)

	// A cancelled predecessor may still be finishing its last request.
	if prev != nil {
		<-prev
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil || (active != nil && !active()) {
			return
		}
		f.poll(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// halt cancels the poller without waiting. Safe to call from a session callback.
func (f *Feed) halt() {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
		f.logger.Debug("notification poller stopped")
	}
}

// Stop cancels the poller and waits for it to exit. Once Stop returns the feed makes no
// further requests until started again. It must not be called from a session subscriber.
func (f *Feed) Stop() {
	f.halt()

	f.runMu.Lock()
	done := f.done
	f.runMu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports whether a poller goroutine is alive.
func (f *Feed) Running() bool {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	if f.done == nil {
		return false
	}
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

// Attach follows src: polling runs while it is authenticated and halts when it is not.
// The returned func detaches without stopping the feed.
func (f *Feed) Attach(src SessionSource) (detach func()) {
	unsubscribe := src.Subscribe(func(ev session.Event) {
		if ev.Refreshed {
			return
		}
		switch ev.To {
		case session.Authenticated:
			f.halt()
			if ev.From == session.Authenticated {
				f.reset()
			}
			gen := ev.Generation
			f.start(context.Background(), func() bool { return src.Active(gen) })
		case session.Anonymous:
			f.halt()
			f.reset()
		}
	})

	if gen, ok := src.Generation(); ok {
		f.start(context.Background(), func() bool { return src.Active(gen) })
	}
	return unsubscribe
}

func (f *Feed) poll(ctx context.Context) error {
	f.mu.Lock()
	epoch := f.epoch
	f.mu.Unlock()

	items, err := f.svc.List(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		f.logger.Warn("failed to poll notifications", "error", err)
		return err
	}

	if !f.replace(items, epoch) {
		f.logger.Debug("feed was reset during fetch, discarding result")
	}
	return nil
}

// Sync fetches now unless another fetch happened within the sync rate, then returns the list.
func (f *Feed) Sync(ctx context.Context) ([]models.Notification, error) {
	if !f.limiter.Allow() {
		return f.Items(), nil
	}
	if err := f.poll(ctx); err != nil {
		return f.Items(), fmt.Errorf("failed to sync notifications: %w", err)
	}
	return f.Items(), nil
}

// Items returns a copy of the local list.
func (f *Feed) Items() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}

// UnreadCount counts unread items in the local list.
func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.CountUnread(f.items)
}

// MarkRead marks id read locally, then on the server. A server failure is returned and
// logged but the local flag stays set.
func (f *Feed) MarkRead(ctx context.Context, id string) error {
	f.update(func(items []models.Notification) {
		for i := range items {
			if items[i].ID == id {
				items[i].Read = true
			}
		}
	})

	if err := f.svc.MarkRead(ctx, id); err != nil {
		f.logger.Warn("mark read not saved", "id", id, "error", err)
		return err
	}
	return nil
}

// MarkAllRead marks every local item read, then asks the server to do the same.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	f.update(func(items []models.Notification) {
		for i := range items {
			items[i].Read = true
		}
	})

	if err := f.svc.MarkAllRead(ctx); err != nil {
		f.logger.Warn("mark all read not saved", "error", err)
		return err
	}
	return nil
}

// Subscribe registers fn to receive a copy of the list after every change.
func (f *Feed) Subscribe(fn func([]models.Notification)) (unsubscribe func()) {
	f.subsMu.Lock()
	defer f.subsMu.Unlock()

	f.nextSub++
	id := f.nextSub
	f.listeners[id] = fn

	return func() {
		f.subsMu.Lock()
		defer f.subsMu.Unlock()
		delete(f.listeners, id)
	}
}

// replace swaps in items fetched under epoch. It reports false, changing nothing, when
// the feed was reset since.
func (f *Feed) replace(items []models.Notification, epoch uint64) bool {
	f.mu.Lock()
	if f.epoch != epoch {
		f.mu.Unlock()
		return false
	}
	f.items = slices.Clone(items)
	f.mu.Unlock()
	f.publish()
	return true
}

func (f *Feed) reset() {
	f.mu.Lock()
	f.items = nil
	f.epoch++
	f.mu.Unlock()
	f.publish()
}

func (f *Feed) update(fn func([]models.Notification)) {
	f.mu.Lock()
	fn(f.items)
	f.mu.Unlock()
	f.publish()
}

func (f *Feed) publish() {
	items := f.Items()

	f.subsMu.Lock()
	listeners := make([]func([]models.Notification), 0, len(f.listeners))
	for _, fn := range f.listeners {
		listeners = append(listeners, fn)
	}
	f.subsMu.Unlock()

	for _, fn := range listeners {
		fn(slices.Clone(items))
	}
}
