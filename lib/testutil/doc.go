// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the socket-level
// packages.
//
// [SocketDir] creates a short temporary directory in /tmp for Unix
// domain sockets, whose paths are limited to 108 bytes. t.TempDir()
// paths can exceed that limit.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests block on a channel without hanging forever when the
// code under test misbehaves.
//
// [WaitForSocket] blocks until a server started in another goroutine
// accepts connections on a socket path.
//
// [UniqueID] generates identifiers for tests that share a server and
// need distinguishable command or event names.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
