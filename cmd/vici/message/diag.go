// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/vici"
)

type diagParams struct {
	HexInput bool `flag:"hex,x" desc:"treat input as hex-encoded"`
}

func diagCommand(env *cli.Environment) *cli.Command {
	var params diagParams

	return &cli.Command{
		Name:    "diag",
		Summary: "List the elements of a VICI message with their offsets",
		Description: `Read an encoded VICI message and list its elements one per line:
the byte offset of each element's tag, the element type indented by
nesting depth, its key, and its value.

Values that are valid UTF-8 are shown quoted; others as h'...' hex.
Unlike "decode", diag shows the message exactly as encoded, and on a
malformed message it lists every element up to the error.`,
		Usage: "vici message diag [-x] [file]",
		Examples: []cli.Example{
			{
				Description: "Inspect the structure of a request",
				Command:     "vici message encode conn.json | vici message diag",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("diag", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			data, remainingArgs, err := env.ReadInput(args, params.HexInput)
			if err != nil {
				return err
			}
			if len(remainingArgs) > 0 {
				return cli.Validation("diag takes no positional arguments besides an optional file path, got %q", remainingArgs[0])
			}
			return diagMessage(data, env.Stdout)
		},
	}
}

// diagMessage writes the element listing of data to w. A structural
// error is returned after the elements preceding it are written.
func diagMessage(data []byte, w io.Writer) error {
	scanner := vici.NewScanner(data)
	for scanner.Scan() {
		token := scanner.Token()
		var line strings.Builder
		fmt.Fprintf(&line, "%6d  %s%s", token.Offset, strings.Repeat("  ", token.Depth), token.Tag)
		if token.Tag.HasKey() {
			fmt.Fprintf(&line, " %s", strconv.Quote(token.Name))
		}
		switch token.Tag {
		case vici.KeyValue:
			fmt.Fprintf(&line, " = %s", formatValue(token.Value))
		case vici.ListItem:
			fmt.Fprintf(&line, " %s", formatValue(token.Value))
		}
		if _, err := fmt.Fprintln(w, line.String()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return cli.Validation("malformed message: %w", err)
	}
	return nil
}

func formatValue(value []byte) string {
	if utf8.Valid(value) {
		return strconv.Quote(string(value))
	}
	return "h'" + hex.EncodeToString(value) + "'"
}
