package main

import (
	"net/http"
	"strings"

	"github.com/desertthunder/ems/internal/formatter"
	"github.com/desertthunder/ems/internal/models"
	"github.com/urfave/cli/v3"
)

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Write a config file, create the database and run migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Sign in, sign up and sign out",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with email and password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email", Required: true},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Account password", Required: true},
				},
				Action: r.Login,
			},
			{
				Name:  "register",
				Usage: "Create an account and sign in",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Display name", Required: true},
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email", Required: true},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Account password", Required: true},
					&cli.StringFlag{
						Name:  "role",
						Usage: "Account role (" + strings.Join([]string{models.RoleUser.String(), models.RoleOrganizer.String()}, " or ") + ")",
						Value: models.RoleUser.String(),
					},
					&cli.StringFlag{Name: "company", Usage: "Company name, required for organizers"},
					&cli.StringFlag{Name: "bio", Usage: "Short bio, required for organizers"},
				},
				Action: r.Register,
			},
			{
				Name:   "logout",
				Usage:  "Sign out and forget saved credentials",
				Action: r.Logout,
			},
			{
				Name:  "whoami",
				Usage: "Show the signed-in user",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
					&cli.BoolFlag{Name: "remote", Usage: "Ask the server for the profile instead of reading the saved one"},
				},
				Action: r.WhoAmI,
			},
		},
	}
}

func apiCommand(r *Runner) *cli.Command {
	methods := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	commands := make([]*cli.Command, 0, len(methods))
	for _, method := range methods {
		commands = append(commands, &cli.Command{
			Name:      strings.ToLower(method),
			Usage:     method + " an API path with the current session",
			ArgsUsage: "<path>",
			Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "JSON request body"},
			},
			Action: r.API(method),
		})
	}

	return &cli.Command{
		Name:     "api",
		Usage:    "Call any API endpoint through the authorized client",
		Commands: commands,
	}
}

func notificationsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "notifications",
		Aliases: []string{"n"},
		Usage:   "List and acknowledge notifications",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Fetch and print notifications",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (" + strings.Join(formatter.Formats, ", ") + ")",
						Value:   formatter.FormatText,
					},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write to a file instead of stdout"},
				},
				Action: r.ListNotifications,
			},
			{
				Name:      "read",
				Usage:     "Mark one notification read",
				ArgsUsage: "<id>",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.MarkRead,
			},
			{
				Name:   "read-all",
				Usage:  "Mark every notification read",
				Action: r.MarkAllRead,
			},
			{
				Name:   "watch",
				Usage:  "Poll until interrupted, printing the unread count when it changes",
				Action: r.WatchNotifications,
			},
		},
	}
}

func routeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "route",
		Usage: "Inspect the route gate",
		Commands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Show what the gate decides for a path with the current session",
				ArgsUsage: "<path>",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Action:    r.CheckRoute,
			},
			{
				Name:   "list",
				Usage:  "List gated routes and the roles they require",
				Action: r.ListRoutes,
			},
		},
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local web front",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "open", Usage: "Open the web front in a browser"},
		},
		Action: r.Serve,
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Launch the notification terminal UI",
		Action: r.TUI,
	}
}
