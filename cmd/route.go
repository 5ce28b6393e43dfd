package main

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/ems/internal/gate"
	"github.com/desertthunder/ems/internal/shared"
	"github.com/urfave/cli/v3"
)

// CheckRoute prints the gate decision for a path under the current session.
func (r *Runner) CheckRoute(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if err := r.init(ctx); err != nil {
		return err
	}

	snap := r.session.Snapshot()
	res := r.table.Evaluate(snap, path)

	who := snap.State.String()
	if snap.Identity != nil {
		who = fmt.Sprintf("%s (%s)", snap.Identity.Email, snap.Identity.Role)
	}

	if res.Target != "" {
		return r.writePlain("%s %s as %s -> %s\n", res.Decision, path, who, res.Target)
	}
	return r.writePlain("%s %s as %s\n", res.Decision, path, who)
}

// ListRoutes prints the route table.
func (r *Runner) ListRoutes(ctx context.Context, cmd *cli.Command) error {
	routes := r.table.Routes()
	slices.SortFunc(routes, func(a, b gate.Route) int { return cmp.Compare(a.Pattern, b.Pattern) })

	for _, route := range routes {
		roles := "public"
		if !route.Public() {
			names := make([]string, len(route.Roles))
			for i, role := range route.Roles {
				names[i] = role.String()
			}
			roles = strings.Join(names, ", ")
		}
		if err := r.writePlain("%-32s %s\n", route.Pattern, roles); err != nil {
			return err
		}
	}
	return nil
}
