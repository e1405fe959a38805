// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the vici tool.
//
// Configuration comes from a single file named by either the
// VICI_CONFIG environment variable (via [Load]) or a --config flag (via
// [LoadFile]). Without either, [Load] returns the defaults. There is no
// automatic file search, and no environment variable overrides a value
// set in the file.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- master struct with Socket, Timeouts, Output, Capture, Log
//   - [Default] -- returns a Config with the built-in defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other packages of this module.
package config
