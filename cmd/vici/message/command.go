// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"github.com/bureau-foundation/vici/cmd/vici/cli"
)

// Command returns the "message" command group.
func Command(env *cli.Environment) *cli.Command {
	return &cli.Command{
		Name:    "message",
		Summary: "Inspect, produce, and convert VICI messages",
		Description: `Tools for working with encoded VICI messages from the command line.

A VICI message is the payload of a daemon request, response or event:
a sequence of sections, key/value pairs and lists in the daemon's
tagged binary encoding. These commands convert messages to and from
JSON, YAML, CBOR and MessagePack, list their elements, and check them
for structural errors.

All subcommands accept an optional trailing file path argument. When
provided, input is read from the file instead of stdin.

With --hex, input is treated as hex-encoded rather than raw binary.
Whitespace in the hex input is ignored.`,
		Subcommands: []*cli.Command{
			decodeCommand(env),
			encodeCommand(env),
			diagCommand(env),
			validateCommand(env),
		},
	}
}
