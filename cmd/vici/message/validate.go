// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/vici"
)

type validateParams struct {
	HexInput bool `flag:"hex,x" desc:"treat input as hex-encoded"`
}

func validateCommand(env *cli.Environment) *cli.Command {
	var params validateParams

	return &cli.Command{
		Name:    "validate",
		Summary: "Check that a VICI message is well formed",
		Description: `Read an encoded VICI message and check its structure: every element
tag is known, keys are valid UTF-8, lengths stay within the data, lists
hold only list items, and every section and list is closed.

Exits 0 with "valid" if the message is well formed, exits 1 with a
description of the first problem if not. An empty input is a valid
empty message.`,
		Usage: "vici message validate [-x] [file]",
		Examples: []cli.Example{
			{
				Description: "Validate a captured request",
				Command:     "vici message validate request.vici",
			},
			{
				Description: "Validate hex-encoded bytes",
				Command:     "echo '01 01 61 02' | vici message validate --hex",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("validate", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			data, remainingArgs, err := env.ReadInput(args, params.HexInput)
			if err != nil {
				return err
			}
			if len(remainingArgs) > 0 {
				return cli.Validation("validate takes no positional arguments besides an optional file path, got %q", remainingArgs[0])
			}
			if problem := vici.Validate(data); problem != nil {
				fmt.Fprintf(env.Stdout, "invalid: %v\n", problem)
				return &cli.ExitError{Code: 1}
			}
			fmt.Fprintln(env.Stdout, "valid")
			return nil
		},
	}
}

