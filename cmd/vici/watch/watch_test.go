// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/config"
	"github.com/bureau-foundation/vici/lib/server"
	"github.com/bureau-foundation/vici/lib/testutil"
	"github.com/bureau-foundation/vici/lib/vici"
)

func startDaemon(t *testing.T) (*server.SocketServer, string) {
	t.Helper()
	path := testutil.SocketPath(t, "charon.vici")
	s := server.NewSocketServer(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.RegisterEvent("log")
	s.RegisterEvent("ike-updown")

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, served, 5*time.Second, "waiting for Serve")
	})
	testutil.WaitForSocket(t, path)
	return s, path
}

func environment(stdout *bytes.Buffer) *cli.Environment {
	return &cli.Environment{
		Stdin:  strings.NewReader(""),
		Stdout: stdout,
		Stderr: io.Discard,
		Config: config.Default(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// publishWhenSubscribed retries the first publish until the watcher's
// subscription is in place.
func publishWhenSubscribed(t *testing.T, s *server.SocketServer, event string, message vici.Section) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		delivered, err := s.Publish(event, message)
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if delivered > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatchCount(t *testing.T) {
	s, socket := startDaemon(t)

	var stdout bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- Command(environment(&stdout)).Execute(context.Background(),
			[]string{"log", "ike-updown", "-n", "2", "-s", socket})
	}()

	// Events are registered in order, so once ike-updown reaches the
	// watcher, log does too.
	publishWhenSubscribed(t, s, "ike-updown", vici.Section{{Key: "up", Value: "yes"}})
	if _, err := s.Publish("log", vici.Section{{Key: "msg", Value: "first"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for watch to exit"); err != nil {
		t.Fatalf("watch: %v", err)
	}
	want := "{\n  \"ike-updown\": {\n    \"up\": \"yes\"\n  }\n}\n" +
		"{\n  \"log\": {\n    \"msg\": \"first\"\n  }\n}\n"
	if stdout.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", stdout.String(), want)
	}
}

// signalWriter records output and signals each write.
type signalWriter struct {
	mu      sync.Mutex
	buffer  bytes.Buffer
	written chan struct{}
}

func (w *signalWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case w.written <- struct{}{}:
	default:
	}
	return w.buffer.Write(p)
}

func (w *signalWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buffer.String()
}

func TestWatchInterrupted(t *testing.T) {
	s, socket := startDaemon(t)

	stdout := &signalWriter{written: make(chan struct{}, 1)}
	env := environment(&bytes.Buffer{})
	env.Stdout = stdout

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Command(env).Execute(ctx, []string{"log", "-s", socket})
	}()

	publishWhenSubscribed(t, s, "log", vici.Section{{Key: "msg", Value: "only"}})
	testutil.RequireReceive(t, stdout.written, 5*time.Second, "waiting for the event to be printed")
	cancel()

	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for watch to exit"); err != nil {
		t.Errorf("interrupting watch is not an error, got %v", err)
	}
	if !strings.Contains(stdout.String(), `"only"`) {
		t.Errorf("event not printed: %q", stdout.String())
	}
}

func TestWatchDuration(t *testing.T) {
	_, socket := startDaemon(t)

	var stdout bytes.Buffer
	err := Command(environment(&stdout)).Execute(context.Background(),
		[]string{"log", "--duration", "50ms", "-s", socket})
	if err != nil {
		t.Errorf("watch --duration: %v", err)
	}
}

func TestWatchErrors(t *testing.T) {
	_, socket := startDaemon(t)

	tests := []struct {
		name     string
		args     []string
		category cli.ErrorCategory
	}{
		{"no events", []string{"-s", socket}, cli.CategoryValidation},
		{"negative count", []string{"log", "-n", "-1", "-s", socket}, cli.CategoryValidation},
		{"unknown event", []string{"log", "bogus", "-s", socket}, cli.CategoryNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Command(environment(&bytes.Buffer{})).Execute(context.Background(), test.args)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := cli.Categorize(err); got != test.category {
				t.Errorf("category = %s, want %s (%v)", got, test.category, err)
			}
		})
	}
}
