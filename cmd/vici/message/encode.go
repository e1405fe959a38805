// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/codec"
	"github.com/bureau-foundation/vici/lib/vici"
)

type encodeParams struct {
	From      string `flag:"from" desc:"input format: json, yaml, cbor or msgpack" default:"json"`
	HexInput  bool   `flag:"hex,x" desc:"treat input as hex-encoded (for binary input formats)"`
	HexOutput bool   `flag:"hex-output" desc:"write the message as hex instead of raw bytes"`
}

func encodeCommand(env *cli.Environment) *cli.Command {
	var params encodeParams

	return &cli.Command{
		Name:    "encode",
		Summary: "Convert JSON, YAML, CBOR or MessagePack to a VICI message",
		Description: `Read a document in an interchange format and write the equivalent
encoded VICI message.

The document's top level must be a map. Maps become sections, arrays
of strings become lists, and arrays of maps become lists of sections.
Numbers are written in their decimal text form and booleans as
"yes"/"no"; nulls are omitted. JSON input may contain comments and
trailing commas.

Raw bytes are not written to a terminal: when stdout is a terminal the
message is written as hex, as with --hex-output.`,
		Usage: "vici message encode [--from format] [--hex-output] [file]",
		Examples: []cli.Example{
			{
				Description: "Encode a connection definition",
				Command:     "vici message encode conn.json > load-conn.vici",
			},
			{
				Description: "Round-trip YAML through the encoding",
				Command:     "vici message encode --from yaml conn.yaml | vici message decode -f yaml",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("encode", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			format, err := codec.Lookup(params.From)
			if err != nil {
				return &cli.ToolError{Category: cli.CategoryValidation, Err: err}
			}
			data, remainingArgs, err := env.ReadInput(args, params.HexInput)
			if err != nil {
				return err
			}
			if len(remainingArgs) > 0 {
				return cli.Validation("encode takes no positional arguments besides an optional file path, got %q", remainingArgs[0])
			}

			message, err := format.Unmarshal(data)
			if err != nil {
				return cli.Validation("%w", err)
			}
			encoded, err := vici.Marshal(message)
			if err != nil {
				return cli.Validation("encode message: %w", err)
			}

			if params.HexOutput || cli.IsTerminal(env.Stdout) {
				return cli.WriteHex(env.Stdout, encoded)
			}
			_, err = env.Stdout.Write(encoded)
			return err
		},
	}
}
