// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/config"
	"github.com/bureau-foundation/vici/lib/server"
	"github.com/bureau-foundation/vici/lib/testutil"
	"github.com/bureau-foundation/vici/lib/version"
)

func environment(stdout, stderr *bytes.Buffer) *cli.Environment {
	return &cli.Environment{
		Stdin:  strings.NewReader(""),
		Stdout: stdout,
		Stderr: stderr,
		Config: config.Default(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestRootHelpListsCommands(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := Root(environment(&stdout, &stderr)).Execute(context.Background(), []string{"--help"}); err != nil {
		t.Fatalf("--help: %v", err)
	}
	for _, name := range []string{"message", "call", "watch", "capture", "mock", "version"} {
		if !strings.Contains(stderr.String(), "  "+name) {
			t.Errorf("help does not list %q:\n%s", name, stderr.String())
		}
	}
}

func TestVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := Root(environment(&stdout, &stderr)).Execute(context.Background(), []string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "vici "+version.Version) {
		t.Errorf("version output = %q", stdout.String())
	}
}

func TestVersionDaemon(t *testing.T) {
	path := testutil.SocketPath(t, "charon.vici")
	s := server.NewSocketServer(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Handle("version", func(context.Context, []byte) (any, error) {
		return version.Describe("charon"), nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, served, 5*time.Second, "waiting for Serve")
	})
	testutil.WaitForSocket(t, path)

	var stdout, stderr bytes.Buffer
	err := Root(environment(&stdout, &stderr)).Execute(context.Background(),
		[]string{"version", "--daemon", "--socket", path, "-f", "yaml"})
	if err != nil {
		t.Fatalf("version --daemon: %v", err)
	}
	if !strings.Contains(stdout.String(), "daemon: charon") {
		t.Errorf("daemon version missing:\n%s", stdout.String())
	}
}

func TestUnknownCommandSuggestion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := Root(environment(&stdout, &stderr)).Execute(context.Background(), []string{"wacth"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "watch"?`) {
		t.Errorf("error = %v, want a suggestion for watch", err)
	}
}
