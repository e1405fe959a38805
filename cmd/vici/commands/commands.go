// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete vici CLI command tree.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	callcmd "github.com/bureau-foundation/vici/cmd/vici/call"
	capturecmd "github.com/bureau-foundation/vici/cmd/vici/capture"
	"github.com/bureau-foundation/vici/cmd/vici/cli"
	messagecmd "github.com/bureau-foundation/vici/cmd/vici/message"
	mockcmd "github.com/bureau-foundation/vici/cmd/vici/mock"
	watchcmd "github.com/bureau-foundation/vici/cmd/vici/watch"
	"github.com/bureau-foundation/vici/lib/version"
	"github.com/bureau-foundation/vici/lib/vici"
)

// Root builds the complete vici command tree around env.
func Root(env *cli.Environment) *cli.Command {
	return &cli.Command{
		Name: "vici",
		Description: `vici: work with the VICI protocol of the strongSwan IKE daemon.

Encode, decode and inspect VICI messages, talk to a running daemon
over its control socket, record and replay packet captures, and run a
mock daemon for tests.

Global flags (before the command):
  --config path       configuration file (default $VICI_CONFIG)
  --log-level level   debug, info, warn or error`,
		Usage:      "vici [--config path] [--log-level level] <command> [flags]",
		HelpOutput: env.Stderr,
		Subcommands: []*cli.Command{
			messagecmd.Command(env),
			callcmd.Command(env),
			watchcmd.Command(env),
			capturecmd.Command(env),
			mockcmd.Command(env),
			versionCommand(env),
		},
	}
}

type versionParams struct {
	cli.OutputParams
	cli.SocketParams
	Daemon bool `flag:"daemon,d" desc:"also ask the daemon for its version"`
}

func versionCommand(env *cli.Environment) *cli.Command {
	var params versionParams

	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Description: `Print the version of this tool. With --daemon, also print the
response of the daemon's "version" command.`,
		Usage: "vici version [--daemon] [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("version", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("version takes no arguments, got %q", args[0])
			}
			fmt.Fprintf(env.Stdout, "vici %s\n", version.Full())
			if !params.Daemon {
				return nil
			}

			format, err := env.OutputFormat(params.Format)
			if err != nil {
				return err
			}
			if timeout := env.Config.CallTimeout(); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			conn, err := env.Connect(ctx, params.Socket, nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			var response vici.Section
			if err := conn.Call(ctx, "version", nil, &response); err != nil {
				return cli.DaemonError(err)
			}
			return env.WriteMessage(format, response)
		},
	}
}
