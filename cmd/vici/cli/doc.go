// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the vici tool.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in
// cmd/vici/commands and dispatched via [Command.Execute], which handles
// flag parsing, subcommand routing, and structured help output with
// examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (distance of at most 3).
//
// [Environment] carries the standard streams, configuration and logger
// into commands, and holds the helpers they share: reading input from a
// file argument or stdin ([Environment.ReadInput]), rendering messages
// with syntax highlighting ([Environment.WriteMessage]) and dialing the
// daemon ([Environment.Connect]).
//
// Errors are categorized with [ToolError] so that main can pick an exit
// code; [ExitError] exits non-zero without printing anything further.
package cli
