// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture implements "vici capture": reading packet recordings
// made with "vici call --capture".
package capture

import (
	"github.com/bureau-foundation/vici/cmd/vici/cli"
)

// Command returns the "capture" command group.
func Command(env *cli.Environment) *cli.Command {
	return &cli.Command{
		Name:    "capture",
		Summary: "Inspect packet captures",
		Description: `Tools for reading capture files recorded with "vici call --capture".

A capture holds every packet exchanged with the daemon, each with its
direction and a timestamp. Frames carry an integrity digest, so a
damaged capture is detected at the first corrupt frame. Encrypted
captures need an age identity (--identity, or capture.identity_file
in the configuration).`,
		Subcommands: []*cli.Command{
			showCommand(env),
			verifyCommand(env),
		},
	}
}
