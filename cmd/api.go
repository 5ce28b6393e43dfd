package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/ems/internal/services"
	"github.com/desertthunder/ems/internal/shared"
	"github.com/urfave/cli/v3"
)

// API returns the action for one HTTP method. The response is printed as JSON when it is
// JSON and verbatim otherwise.
func (r *Runner) API(method string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		path := cmd.StringArg("path")
		if path == "" {
			return fmt.Errorf("%w: path", shared.ErrMissingArgument)
		}

		req := &services.Request{Method: method, Path: path}
		if data := cmd.String("data"); data != "" {
			if !json.Valid([]byte(data)) {
				return fmt.Errorf("%w: --data is not valid JSON", shared.ErrInvalidFlag)
			}
			req.Body = json.RawMessage(data)
		}

		if err := r.init(ctx); err != nil {
			return err
		}

		resp, err := r.client.Fetch(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to %s %s: %w", method, path, err)
		}

		if resp.IsJSON && resp.JSONData != nil {
			return r.writeJSON(resp.JSONData, true)
		}
		if len(resp.Body) == 0 {
			return r.writePlain("%d\n", resp.StatusCode)
		}
		return r.writePlain("%s\n", resp.Body)
	}
}
