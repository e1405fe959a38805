// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/capture"
	"github.com/bureau-foundation/vici/lib/packet"
)

type verifyParams struct {
	Identity string `flag:"identity,i" desc:"age identity file for encrypted captures (default capture.identity_file)"`
}

func verifyCommand(env *cli.Environment) *cli.Command {
	var params verifyParams

	return &cli.Command{
		Name:    "verify",
		Summary: "Check the integrity of a capture",
		Description: `Read every frame of a capture, checking each frame's digest and
packet framing, and print a summary.

Exits 0 with the frame counts if the capture is intact, exits 1 with
the first problem if not. A capture cut off by a crash is reported as
truncated after its last complete frame.`,
		Usage: "vici capture verify <file> [flags]",
		Examples: []cli.Example{
			{
				Description: "Verify a capture before archiving it",
				Command:     "vici capture verify list-sas.vcap",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("verify takes exactly one capture file, got %d arguments", len(args))
			}

			counts := map[packet.Direction]int{}
			err := readCapture(env, args[0], params.Identity, func(frame capture.Frame) error {
				counts[frame.Direction]++
				return nil
			})
			if err != nil {
				if cli.Categorize(err) != cli.CategoryInternal {
					return err
				}
				fmt.Fprintf(env.Stdout, "invalid: %v\n", err)
				return &cli.ExitError{Code: 1}
			}
			fmt.Fprintf(env.Stdout, "valid: %d frames (%d sent, %d received)\n",
				counts[packet.Sent]+counts[packet.Received], counts[packet.Sent], counts[packet.Received])
			return nil
		},
	}
}
