// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch implements "vici watch": print daemon events until
// interrupted.
package watch

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/client"
)

type watchParams struct {
	cli.OutputParams
	cli.SocketParams
	Count    int           `flag:"count,n" desc:"exit after this many events (0 waits until interrupted)"`
	Duration time.Duration `flag:"duration" desc:"exit after this long (0 waits until interrupted)"`
}

// errLimitReached stops Listen once --count events were printed.
var errLimitReached = errors.New("event limit reached")

// Command returns the "watch" command.
func Command(env *cli.Environment) *cli.Command {
	var params watchParams

	return &cli.Command{
		Name:    "watch",
		Summary: "Print daemon events until interrupted",
		Description: `Register for one or more events and print each event as it arrives,
as a message with one section named after the event.

Runs until interrupted (Ctrl-C), until --count events were printed, or
until --duration elapses. Unknown event names are rejected by the daemon
before any event is printed.`,
		Usage: "vici watch <event>... [flags]",
		Examples: []cli.Example{
			{
				Description: "Follow IKE and CHILD SA state changes",
				Command:     "vici watch ike-updown child-updown",
			},
			{
				Description: "Print the next ten daemon log messages as YAML",
				Command:     "vici watch log -n 10 -f yaml",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("watch", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return cli.Validation("watch needs at least one event name")
			}
			if params.Count < 0 {
				return cli.Validation("--count must not be negative")
			}
			format, err := env.OutputFormat(params.Format)
			if err != nil {
				return err
			}
			if params.Duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, params.Duration)
				defer cancel()
			}

			conn, err := env.Connect(ctx, params.Socket, nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			env.Logger.Info("watching events", "events", args)
			printed := 0
			err = conn.Listen(ctx, args, func(event client.Event) error {
				if err := env.WriteEvent(format, event); err != nil {
					return err
				}
				printed++
				if params.Count > 0 && printed >= params.Count {
					return errLimitReached
				}
				return nil
			})
			if errors.Is(err, errLimitReached) {
				return nil
			}
			return cli.DaemonError(err)
		},
	}
}
