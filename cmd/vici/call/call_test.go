// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/capture"
	"github.com/bureau-foundation/vici/lib/config"
	"github.com/bureau-foundation/vici/lib/server"
	"github.com/bureau-foundation/vici/lib/testutil"
	"github.com/bureau-foundation/vici/lib/vici"
)

func startDaemon(t *testing.T) string {
	t.Helper()
	path := testutil.SocketPath(t, "charon.vici")
	s := server.NewSocketServer(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.RegisterEvent("list-sa")
	s.Handle("version", func(context.Context, []byte) (any, error) {
		return vici.Section{{Key: "daemon", Value: "charon"}, {Key: "version", Value: "5.9.14"}}, nil
	})
	s.Handle("echo", func(ctx context.Context, request []byte) (any, error) {
		var message vici.Section
		if err := vici.Unmarshal(request, &message); err != nil {
			return nil, err
		}
		return message, nil
	})
	s.Handle("list-sas", func(context.Context, []byte) (any, error) {
		for _, name := range []string{"home", "office"} {
			if _, err := s.Publish("list-sa", vici.Section{{Key: name, Value: vici.Section{{Key: "state", Value: "ESTABLISHED"}}}}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	s.Handle("load-conn", func(context.Context, []byte) (any, error) {
		return nil, errors.New("missing local auth")
	})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, served, 5*time.Second, "waiting for Serve")
	})
	testutil.WaitForSocket(t, path)
	return path
}

func run(t *testing.T, cfg *config.Config, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	env := &cli.Environment{
		Stdin:  strings.NewReader(stdin),
		Stdout: &stdout,
		Stderr: io.Discard,
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	err := Command(env).Execute(context.Background(), args)
	return stdout.String(), err
}

func TestCall(t *testing.T) {
	socket := startDaemon(t)

	output, err := run(t, config.Default(), "", "version", "--socket", socket)
	if err != nil {
		t.Fatalf("call version: %v", err)
	}
	want := "{\n  \"daemon\": \"charon\",\n  \"version\": \"5.9.14\"\n}\n"
	if output != want {
		t.Errorf("output = %q, want %q", output, want)
	}
}

func TestCallConfiguredSocket(t *testing.T) {
	cfg := config.Default()
	cfg.Socket = startDaemon(t)
	cfg.Output.Format = "yaml"

	output, err := run(t, cfg, "", "version")
	if err != nil {
		t.Fatalf("call version: %v", err)
	}
	if !strings.Contains(output, "daemon: charon") {
		t.Errorf("output = %q", output)
	}
}

func TestCallWithInput(t *testing.T) {
	socket := startDaemon(t)

	input := `{"name": "home", /* ordered */ "remote_addrs": ["192.0.2.1"], "mobike": true}`
	output, err := run(t, config.Default(), input, "echo", "--input", "-", "-s", socket)
	if err != nil {
		t.Fatalf("call echo: %v", err)
	}
	want := "{\n  \"name\": \"home\",\n  \"remote_addrs\": [\n    \"192.0.2.1\"\n  ],\n  \"mobike\": \"yes\"\n}\n"
	if output != want {
		t.Errorf("output = %q, want %q", output, want)
	}
}

func TestCallStream(t *testing.T) {
	socket := startDaemon(t)

	output, err := run(t, config.Default(), "", "list-sas", "--stream", "list-sa", "--socket", socket)
	if err != nil {
		t.Fatalf("call list-sas: %v", err)
	}
	home := strings.Index(output, `"home"`)
	office := strings.Index(output, `"office"`)
	if home < 0 || office < home {
		t.Errorf("events missing or out of order:\n%s", output)
	}
	if !strings.Contains(output, `"list-sa": {`) {
		t.Errorf("events not wrapped in their name:\n%s", output)
	}
	if !strings.HasSuffix(output, "{}\n") {
		t.Errorf("empty response not printed last:\n%s", output)
	}
}

func TestCallErrors(t *testing.T) {
	socket := startDaemon(t)

	tests := []struct {
		name     string
		args     []string
		category cli.ErrorCategory
		contains string
	}{
		{"command failure", []string{"load-conn", "-s", socket}, cli.CategoryValidation, "missing local auth"},
		{"unknown command", []string{"list-foo", "-s", socket}, cli.CategoryNotFound, "list-foo"},
		{"unknown event", []string{"list-sas", "--stream", "list-foo", "-s", socket}, cli.CategoryNotFound, "list-foo"},
		{"no daemon", []string{"version", "-s", filepath.Join(t.TempDir(), "missing.vici")}, cli.CategoryNotFound, "is the daemon running"},
		{"no command", []string{"-s", socket}, cli.CategoryValidation, "exactly one command"},
		{"missing input", []string{"echo", "-i", filepath.Join(t.TempDir(), "missing.json"), "-s", socket}, cli.CategoryNotFound, "missing.json"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := run(t, config.Default(), "", test.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := cli.Categorize(err); got != test.category {
				t.Errorf("category = %s, want %s (%v)", got, test.category, err)
			}
			if !strings.Contains(err.Error(), test.contains) {
				t.Errorf("error %q does not mention %q", err, test.contains)
			}
		})
	}
}

func TestCallCapture(t *testing.T) {
	socket := startDaemon(t)
	cfg := config.Default()
	cfg.Capture.Directory = t.TempDir()
	cfg.Capture.Compression = "lz4"

	if _, err := run(t, cfg, "", "list-sas", "--stream", "list-sa", "-s", socket, "--capture", "list.vcap"); err != nil {
		t.Fatalf("call: %v", err)
	}

	file, err := os.Open(filepath.Join(cfg.Capture.Directory, "list.vcap"))
	if err != nil {
		t.Fatalf("capture not written: %v", err)
	}
	defer file.Close()
	reader, err := capture.NewReader(file)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer reader.Close()
	if reader.Header().Compression != capture.CompressionLZ4 {
		t.Errorf("compression = %s, want lz4", reader.Header().Compression)
	}

	var got []string
	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, frame.Direction.String()+" "+frame.Packet.Type.String())
	}
	want := []string{
		"sent EVENT_REGISTER",
		"received EVENT_CONFIRM",
		"sent CMD_REQUEST",
		"received EVENT",
		"received EVENT",
		"received CMD_RESPONSE",
		"sent EVENT_UNREGISTER",
		"received EVENT_CONFIRM",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("captured frames:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}
