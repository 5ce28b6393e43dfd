package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/ems/internal/gate"
	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/services"
	"github.com/desertthunder/ems/internal/shared"
	"github.com/urfave/cli/v3"
)

// Login signs in and saves the identity for later commands.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	identity, err := r.session.Login(ctx, cmd.String("email"), cmd.String("password"))
	if err != nil {
		return fmt.Errorf("failed to sign in: %w", err)
	}
	return r.writeSignedIn(identity)
}

// Register creates an account and signs in as it.
func (r *Runner) Register(ctx context.Context, cmd *cli.Command) error {
	role := models.ParseRole(cmd.String("role"))
	if role == models.RoleUnknown {
		return fmt.Errorf("%w: unknown role %q", shared.ErrInvalidFlag, cmd.String("role"))
	}

	if err := r.init(ctx); err != nil {
		return err
	}

	identity, err := r.session.Register(ctx, models.RegisterProfile{
		Name:        cmd.String("name"),
		Email:       cmd.String("email"),
		Password:    cmd.String("password"),
		Role:        role,
		CompanyName: cmd.String("company"),
		Bio:         cmd.String("bio"),
	})
	if err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}
	return r.writeSignedIn(identity)
}

func (r *Runner) writeSignedIn(identity *models.Identity) error {
	return r.writePlain("Signed in as %s <%s> (%s)\nDashboard: %s\n",
		identity.Name, identity.Email, identity.Role, gate.DashboardPath(identity.Role))
}

// Logout ends the session. Running it while signed out is not an error.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	r.session.Logout(ctx)
	return r.writePlain("Signed out\n")
}

// WhoAmI prints the saved identity, or the server profile with --remote.
func (r *Runner) WhoAmI(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	identity, err := r.session.RequireIdentity()
	if err != nil {
		return err
	}

	if cmd.Bool("remote") {
		identity, err = r.session.RefreshIdentity(ctx, func(ctx context.Context) (*models.Identity, error) {
			resp, err := r.client.Fetch(ctx, &services.Request{Method: http.MethodGet, Path: services.ProfilePath})
			if err != nil {
				return nil, fmt.Errorf("failed to fetch profile: %w", err)
			}
			return services.DecodeIdentity(resp)
		})
		if err != nil {
			return err
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(identity, true)
	}
	return r.writePlain("%s <%s>\nRole: %s\nID:   %s\n", identity.Name, identity.Email, identity.Role, identity.ID)
}
