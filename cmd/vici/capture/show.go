// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/capture"
	"github.com/bureau-foundation/vici/lib/vici"
)

type showParams struct {
	cli.OutputParams
	Identity string `flag:"identity,i" desc:"age identity file for encrypted captures (default capture.identity_file)"`
	Headers  bool   `flag:"headers-only" desc:"list frames without their messages"`
}

func showCommand(env *cli.Environment) *cli.Command {
	var params showParams

	return &cli.Command{
		Name:    "show",
		Summary: "List the frames of a capture with their messages",
		Description: `Print every frame of a capture: a header line with the frame index,
timestamp, direction and packet, followed by the packet's message in
the output format. Packets without a message print only the header.

The header line starts with "#" so that YAML output stays parseable.`,
		Usage: "vici capture show <file> [flags]",
		Examples: []cli.Example{
			{
				Description: "Show a recorded exchange as YAML",
				Command:     "vici capture show list-sas.vcap -f yaml",
			},
			{
				Description: "List the packets of an encrypted capture",
				Command:     "vici capture show --headers-only -i ~/.config/vici/key.txt list-sas.vcap",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("show takes exactly one capture file, got %d arguments", len(args))
			}
			format, err := env.OutputFormat(params.Format)
			if err != nil {
				return err
			}

			return readCapture(env, args[0], params.Identity, func(frame capture.Frame) error {
				_, err := fmt.Fprintf(env.Stdout, "# %d %s %s %s\n",
					frame.Index, frame.Time.UTC().Format(time.RFC3339Nano), frame.Direction, frame.Packet)
				if err != nil || params.Headers || len(frame.Packet.Message) == 0 {
					return err
				}
				var message vici.Section
				if err := vici.Unmarshal(frame.Packet.Message, &message); err != nil {
					return cli.Internal("frame %d: decoding message: %w", frame.Index, err)
				}
				return env.WriteMessage(format, message)
			})
		},
	}
}

// readCapture opens the capture name (resolved against
// capture.directory) and passes each frame to visit.
func readCapture(env *cli.Environment, name, identityFile string, visit func(capture.Frame) error) error {
	path := env.Config.CapturePath(name)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cli.NotFound("capture %s does not exist", path)
		}
		return cli.Internal("opening capture: %w", err)
	}
	defer file.Close()

	if identityFile == "" {
		identityFile = env.Config.Capture.IdentityFile
	}
	var identities []age.Identity
	if identityFile != "" {
		identities, err = capture.LoadIdentities(identityFile)
		if err != nil {
			return cli.Validation("%w", err)
		}
	}

	reader, err := capture.NewReader(file, identities...)
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrNotCapture):
			return cli.Validation("%s: %w", path, err)
		case errors.Is(err, capture.ErrNoIdentity):
			return cli.Validation("%s: %w (use --identity or capture.identity_file)", path, err)
		}
		return cli.Internal("%s: %w", path, err)
	}
	defer reader.Close()

	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return cli.Internal("%s: %w", path, err)
		}
		if err := visit(frame); err != nil {
			return err
		}
	}
}
