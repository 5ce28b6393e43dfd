package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/desertthunder/ems/internal/formatter"
	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/session"
	"github.com/desertthunder/ems/internal/shared"
	"github.com/urfave/cli/v3"
)

// signedIn builds the session stack and fails unless someone is signed in.
func (r *Runner) signedIn(ctx context.Context) error {
	if err := r.init(ctx); err != nil {
		return err
	}
	_, err := r.session.RequireIdentity()
	return err
}

// ListNotifications fetches the feed once and prints or exports it.
func (r *Runner) ListNotifications(ctx context.Context, cmd *cli.Command) error {
	if err := r.signedIn(ctx); err != nil {
		return err
	}

	items, err := r.feed.Sync(ctx)
	if err != nil {
		return err
	}

	format := cmd.String("format")
	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteExport(items, format, path); err != nil {
			return err
		}
		r.logger.Info("exported notifications", "count", len(items), "format", format, "path", path)
		return nil
	}

	out, err := formatter.Render(items, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// MarkRead marks one notification read on the server.
func (r *Runner) MarkRead(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}
	if err := r.signedIn(ctx); err != nil {
		return err
	}

	if err := r.feed.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return r.writePlain("Marked %s read\n", id)
}

// MarkAllRead marks every notification read on the server.
func (r *Runner) MarkAllRead(ctx context.Context, cmd *cli.Command) error {
	if err := r.signedIn(ctx); err != nil {
		return err
	}

	if err := r.feed.MarkAllRead(ctx); err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return r.writePlain("Marked all notifications read\n")
}

// WatchNotifications polls while the session lasts, printing the unread count whenever it
// changes. It returns on interrupt, or with an error when the session ends.
func (r *Runner) WatchNotifications(ctx context.Context, cmd *cli.Command) error {
	if err := r.signedIn(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ended := make(chan error, 1)
	unsubSession := r.session.Subscribe(func(ev session.Event) {
		if ev.To == session.Anonymous {
			select {
			case ended <- ev.Cause:
			default:
			}
		}
	})
	defer unsubSession()

	var last atomic.Int64
	last.Store(-1)
	unsubFeed := r.feed.Subscribe(func(items []models.Notification) {
		unread := int64(models.CountUnread(items))
		if last.Swap(unread) != unread {
			r.writePlain("%s  %d unread\n", time.Now().Format(time.Kitchen), unread)
		}
	})
	defer unsubFeed()

	detach := r.feed.Attach(r.session)
	defer func() {
		detach()
		r.feed.Stop()
	}()

	select {
	case <-ctx.Done():
		return nil
	case cause := <-ended:
		if cause != nil {
			return fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, cause)
		}
		return fmt.Errorf("%w: signed out", shared.ErrNotAuthenticated)
	}
}
