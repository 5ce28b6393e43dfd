package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/ems/internal/server"
	"github.com/desertthunder/ems/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the local web front until interrupted. The notification feed follows the
// session for the lifetime of the server.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := r.config.Server.Addr()
	srv := server.New(server.Opts{
		Addr:     addr,
		Sessions: r.session,
		Table:    r.table,
		Feed:     r.feed,
		Registry: r.registry,
		Logger:   shared.WithLogger(r.logger, "component", "server"),
	})

	detach := r.feed.Attach(r.session)
	defer func() {
		detach()
		r.feed.Stop()
	}()

	if cmd.Bool("open") {
		go func() {
			time.Sleep(200 * time.Millisecond)
			if err := shared.OpenBrowser("http://" + addr); err != nil {
				r.logger.Warn("failed to open browser", "error", err)
			}
		}()
	}

	return srv.Run(ctx)
}
