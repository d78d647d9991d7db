// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mesh/cmd/mesh/cli"
	"github.com/bureau-foundation/mesh/lib/account"
	"github.com/bureau-foundation/mesh/lib/command"
	"github.com/bureau-foundation/mesh/lib/config"
	"github.com/bureau-foundation/mesh/lib/media"
)

const requestTimeout = 2 * time.Minute

// connection holds the flags that locate the daemon socket.
type connection struct {
	SocketPath string
	ConfigPath string
}

func (c *connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.SocketPath, "socket", "", "daemon command socket (default: socket_path from the config)")
	flagSet.StringVar(&c.ConfigPath, "config", "", "config file (default: $"+config.EnvironmentVariable+")")
}

// loadConfig returns the config named by --config or MESH_CONFIG, or
// the defaults when neither is set.
func (c *connection) loadConfig() (*config.Config, error) {
	switch {
	case c.ConfigPath != "":
		return config.LoadFile(c.ConfigPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		return config.Load()
	}
	cfg := config.Default()
	cfg.ExpandVariables()
	return cfg, nil
}

func (c *connection) client() (*command.Client, error) {
	if c.SocketPath != "" {
		return command.NewClient(c.SocketPath), nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return command.NewClient(cfg.SocketPath), nil
}

func rootCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:        "mesh",
		Description: "Matrix session client. Commands other than media talk to a running mesh-session daemon.",
		HelpOutput:  stderr,
		Subcommands: []*cli.Command{
			optionsCommand(stdout),
			loginCommand(stdout),
			whoamiCommand(stdout),
			roomsCommand(stdout),
			logoutCommand(stdout),
			mediaCommand(stdout),
		},
	}
}

func optionsCommand(stdout io.Writer) *cli.Command {
	var conn connection
	var asJSON bool
	return &cli.Command{
		Name:    "options",
		Summary: "Discover the login options of a homeserver",
		Description: `Ask the daemon to discover how a homeserver lets users log in. While
logged out, the homeserver becomes the target of the next login.

Without an argument the homeserver from the config is used.`,
		Usage: "mesh options [homeserver-url] [flags]",
		Examples: []cli.Example{
			{Description: "Discover options on matrix.org", Command: "mesh options https://matrix-client.matrix.org"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("options", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.BoolVar(&asJSON, "json", false, "print options as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 1 {
				return cli.Validation("unexpected argument: %s", args[1])
			}
			homeserverURL := ""
			if len(args) == 1 {
				homeserverURL = args[0]
			} else {
				cfg, err := conn.loadConfig()
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				homeserverURL = cfg.Homeserver
			}
			if homeserverURL == "" {
				return cli.Validation("homeserver URL is required (argument or homeserver in the config)")
			}

			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			options, err := client.LoginOptions(ctx, homeserverURL)
			if err != nil {
				return describe(err)
			}
			if asJSON {
				return writeJSON(stdout, options)
			}
			tw := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "KIND\tPROVIDER\tICON")
			for _, option := range options {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", option.LoginType, option.Provider, option.IconURL)
			}
			return tw.Flush()
		},
	}
}

func loginCommand(stdout io.Writer) *cli.Command {
	var conn connection
	var kind, passwordFile string
	return &cli.Command{
		Name:    "login",
		Summary: "Log in on the discovered homeserver",
		Description: `Log in through the daemon on the homeserver selected by the last
"mesh options". The password is prompted for unless --password-file is
given.`,
		Usage: "mesh login <username> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.StringVar(&kind, "kind", string(account.KindPassword), "login kind")
			flagSet.StringVar(&passwordFile, "password-file", "", "file containing the password, or - to prompt")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("exactly one username is required\n\nUsage: mesh login <username> [flags]")
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			password, err := cli.ReadPassword(passwordFile)
			if err != nil {
				return err
			}
			defer password.Close()

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if err := client.Login(ctx, kind, args[0], password.String()); err != nil {
				return describe(err)
			}
			fmt.Fprintf(stdout, "Logged in as %s\n", args[0])
			return nil
		},
	}
}

func whoamiCommand(stdout io.Writer) *cli.Command {
	var conn connection
	var asJSON bool
	return &cli.Command{
		Name:    "whoami",
		Summary: "Show the logged-in user and homeserver",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("whoami", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.BoolVar(&asJSON, "json", false, "print status as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			status, err := client.Status(ctx)
			if err != nil {
				return describe(err)
			}
			if asJSON {
				return writeJSON(stdout, status)
			}
			if status.Username == "" {
				fmt.Fprintln(stdout, "Not logged in")
				return &cli.ExitError{Code: cli.ExitFailure}
			}
			fmt.Fprintf(stdout, "%s on %s (%d rooms)\n", status.Username, status.HomeserverURL, status.RoomCount)
			return nil
		},
	}
}

func roomsCommand(stdout io.Writer) *cli.Command {
	var conn connection
	var asJSON bool
	return &cli.Command{
		Name:    "rooms",
		Summary: "List the joined rooms",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("rooms", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.BoolVar(&asJSON, "json", false, "print rooms as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			rooms, err := client.Rooms(ctx)
			if err != nil {
				return describe(err)
			}
			if asJSON {
				return writeJSON(stdout, rooms)
			}
			tw := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "NAME\tROOM ID")
			for _, room := range rooms {
				fmt.Fprintf(tw, "%s\t%s\n", room.Name, room.ID)
			}
			return tw.Flush()
		},
	}
}

func logoutCommand(stdout io.Writer) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "logout",
		Summary: "Log out and invalidate the access token",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("logout", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if err := client.Logout(ctx); err != nil {
				return describe(err)
			}
			fmt.Fprintln(stdout, "Logged out")
			return nil
		},
	}
}

func mediaCommand(stdout io.Writer) *cli.Command {
	var request media.Request
	var passthrough bool
	return &cli.Command{
		Name:    "media",
		Summary: "Resolve an mxc:// reference to an HTTPS URL",
		Description: `Resolve an mxc:// media reference to a download URL, or to a
thumbnail URL when --width, --height or --method is given. Runs
offline; no daemon is needed.`,
		Usage: "mesh media <mxc-uri> [flags]",
		Examples: []cli.Example{
			{Description: "64x64 cropped thumbnail", Command: "mesh media mxc://example.org/abc --width 64 --height 64"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("media", pflag.ContinueOnError)
			flagSet.IntVar(&request.Width, "width", 0, "thumbnail width")
			flagSet.IntVar(&request.Height, "height", 0, "thumbnail height")
			flagSet.StringVar(&request.Method, "method", "", "thumbnail resize method (crop or scale)")
			flagSet.BoolVar(&request.Authenticated, "authenticated", false, "use the authenticated media endpoints")
			flagSet.BoolVar(&passthrough, "passthrough", false, "print non-mxc input unchanged")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("exactly one media reference is required")
			}
			resolved := media.Resolve(args[0], passthrough, request.Width, request.Height, request.Method, request.Authenticated)
			if resolved == "" {
				return fmt.Errorf("%q is not a resolvable mxc:// reference", args[0])
			}
			fmt.Fprintln(stdout, resolved)
			return nil
		},
	}
}

// describe adds the error category to daemon errors.
func describe(err error) error {
	var commandErr *command.Error
	if errors.As(err, &commandErr) && commandErr.Category != "" {
		return fmt.Errorf("%s (%s)", commandErr.Message, commandErr.Category)
	}
	return err
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
