// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mock implements "vici mock": a daemon that answers commands
// and publishes events from a fixture file, for testing VICI clients
// without charon.
package mock

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/clock"
)

type mockParams struct {
	cli.SocketParams
	Fixture string `flag:"fixture" desc:"fixture file (YAML, or JSON with comments)"`
}

// Command returns the "mock" command.
func Command(env *cli.Environment) *cli.Command {
	var params mockParams

	return &cli.Command{
		Name:    "mock",
		Summary: "Run a mock daemon answering from a fixture",
		Description: `Listen on a VICI socket and answer commands from a fixture file until
interrupted.

The fixture has three optional sections:

  commands:   command name -> response message
  streams:    command name -> {event, messages}: events published to
              subscribers while the command runs, before its response
  periodic:   list of {event, interval, message}: events published to
              subscribers every interval

A response with success: "no" and an errmsg makes clients report the
command as failed. Unless the fixture defines it, "version" answers with
this tool's build information. Commands not in the fixture are answered
as unknown.`,
		Usage: "vici mock --fixture <file> [--socket path]",
		Examples: []cli.Example{
			{
				Description: "Serve a fixture on a private socket",
				Command:     "vici mock --fixture charon.yaml --socket /tmp/charon.vici",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("mock", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("mock takes no positional arguments, got %q", args[0])
			}
			if params.Fixture == "" {
				return cli.Validation("--fixture is required")
			}
			fixture, err := LoadFixture(params.Fixture)
			if err != nil {
				return cli.Validation("%w", err)
			}

			socket := params.Socket
			if socket == "" {
				socket = env.Config.Socket
			}
			clk := env.Clock
			if clk == nil {
				clk = clock.Real()
			}

			daemon := NewDaemon(socket, fixture, clk, env.Logger)
			fmt.Fprintf(env.Stderr, "mock daemon listening on %s\n", socket)
			if err := daemon.Run(ctx); err != nil {
				return cli.Internal("%w", err)
			}
			return nil
		},
	}
}
