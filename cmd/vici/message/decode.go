// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/vici"
)

type decodeParams struct {
	cli.OutputParams
	HexInput bool `flag:"hex,x" desc:"treat input as hex-encoded"`
}

func decodeCommand(env *cli.Environment) *cli.Command {
	var params decodeParams

	return &cli.Command{
		Name:    "decode",
		Summary: "Convert a VICI message to JSON, YAML, CBOR or MessagePack",
		Description: `Read an encoded VICI message and write it in an interchange format.

Entry order is preserved. Values that are not valid UTF-8 are rendered
as base64 strings in JSON, !!binary in YAML, and byte strings in CBOR
and MessagePack. Lists of sections appear as arrays of objects.

JSON and YAML output is syntax highlighted on a terminal (see
output.color in the configuration). CBOR output to a terminal is shown
in diagnostic notation and MessagePack as a hex dump.`,
		Usage: "vici message decode [-f format] [-x] [file]",
		Examples: []cli.Example{
			{
				Description: "Decode a captured response to JSON",
				Command:     "vici message decode response.vici",
			},
			{
				Description: "Decode hex-encoded bytes to YAML",
				Command:     "echo '03 06 64 61 65 6d 6f 6e 00 06 63 68 61 72 6f 6e' | vici message decode -x -f yaml",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("decode", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			format, err := env.OutputFormat(params.Format)
			if err != nil {
				return err
			}
			data, remainingArgs, err := env.ReadInput(args, params.HexInput)
			if err != nil {
				return err
			}
			if len(remainingArgs) > 0 {
				return cli.Validation("decode takes no positional arguments besides an optional file path, got %q", remainingArgs[0])
			}

			var message vici.Section
			if err := vici.Unmarshal(data, &message); err != nil {
				return cli.Validation("decode message: %w", err)
			}
			return env.WriteMessage(format, message)
		},
	}
}
