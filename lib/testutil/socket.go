// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"net"
	"testing"
	"time"
)

// WaitForSocket blocks until a Unix socket at path accepts connections,
// failing the test after five seconds.
func WaitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("socket %s not accepting connections: %v", path, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
