// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

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

	"filippo.io/age"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/capture"
	"github.com/bureau-foundation/vici/lib/clock"
	"github.com/bureau-foundation/vici/lib/config"
	"github.com/bureau-foundation/vici/lib/packet"
	"github.com/bureau-foundation/vici/lib/vici"
)

var epoch = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// writeCapture records a version call into directory/name.
func writeCapture(t *testing.T, directory, name string, compression capture.Compression, recipients ...age.Recipient) {
	t.Helper()
	response, err := vici.Marshal(vici.Section{{Key: "daemon", Value: "charon"}})
	if err != nil {
		t.Fatal(err)
	}
	file, err := os.Create(filepath.Join(directory, name))
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	writer, err := capture.NewWriter(file, capture.Options{
		Compression: compression,
		Recipients:  recipients,
		Clock:       clock.Fake(epoch),
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := writer.Record(packet.Sent, packet.Packet{Type: packet.CmdRequest, Name: "version"}); err != nil {
		t.Fatal(err)
	}
	if err := writer.Record(packet.Received, packet.Packet{Type: packet.CmdResponse, Message: response}); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	env := &cli.Environment{
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: io.Discard,
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	err := Command(env).Execute(context.Background(), args)
	return stdout.String(), err
}

func TestShow(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.Directory = t.TempDir()
	writeCapture(t, cfg.Capture.Directory, "version.vcap", capture.CompressionZstd)

	output, err := run(t, cfg, "show", "version.vcap")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	want := `# 0 2026-03-14T09:26:53Z sent CMD_REQUEST "version" (0 bytes)
# 1 2026-03-14T09:26:53Z received CMD_RESPONSE (16 bytes)
{
  "daemon": "charon"
}
`
	if output != want {
		t.Errorf("show output:\n%s\nwant:\n%s", output, want)
	}

	output, err = run(t, cfg, "show", "--headers-only", filepath.Join(cfg.Capture.Directory, "version.vcap"))
	if err != nil {
		t.Fatalf("show --headers-only: %v", err)
	}
	if strings.Contains(output, "charon") || strings.Count(output, "\n") != 2 {
		t.Errorf("headers-only output:\n%s", output)
	}
}

func TestShowEncrypted(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	directory := t.TempDir()
	writeCapture(t, directory, "secret.vcap", capture.CompressionBrotli, identity.Recipient())
	identityFile := filepath.Join(directory, "key.txt")
	if err := os.WriteFile(identityFile, []byte("# test key\n"+identity.String()+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(directory, "secret.vcap")

	_, err = run(t, config.Default(), "show", path)
	if cli.Categorize(err) != cli.CategoryValidation || !errors.Is(err, capture.ErrNoIdentity) {
		t.Errorf("show without identity: %v", err)
	}

	output, err := run(t, config.Default(), "show", "--identity", identityFile, path)
	if err != nil {
		t.Fatalf("show --identity: %v", err)
	}
	if !strings.Contains(output, `"daemon": "charon"`) {
		t.Errorf("decrypted output:\n%s", output)
	}

	cfg := config.Default()
	cfg.Capture.IdentityFile = identityFile
	if _, err := run(t, cfg, "show", path); err != nil {
		t.Errorf("show with capture.identity_file: %v", err)
	}
}

func TestShowErrors(t *testing.T) {
	directory := t.TempDir()
	notCapture := filepath.Join(directory, "notes.txt")
	if err := os.WriteFile(notCapture, []byte("not a capture at all"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		args     []string
		category cli.ErrorCategory
	}{
		{"missing", []string{"show", filepath.Join(directory, "missing.vcap")}, cli.CategoryNotFound},
		{"not a capture", []string{"show", notCapture}, cli.CategoryValidation},
		{"no file", []string{"show"}, cli.CategoryValidation},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := run(t, config.Default(), test.args...)
			if got := cli.Categorize(err); err == nil || got != test.category {
				t.Errorf("error = %v (category %s), want %s", err, got, test.category)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	directory := t.TempDir()
	writeCapture(t, directory, "version.vcap", capture.CompressionNone)
	path := filepath.Join(directory, "version.vcap")

	output, err := run(t, config.Default(), "verify", path)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if output != "valid: 2 frames (1 sent, 1 received)\n" {
		t.Errorf("verify output = %q", output)
	}

	// Cut into the digest of the last frame.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	truncated := filepath.Join(directory, "truncated.vcap")
	if err := os.WriteFile(truncated, data[:len(data)-8], 0o600); err != nil {
		t.Fatal(err)
	}
	output, err = run(t, config.Default(), "verify", truncated)
	var exitError *cli.ExitError
	if !errors.As(err, &exitError) || exitError.Code != 1 {
		t.Fatalf("verify(truncated) error = %v, want exit code 1", err)
	}
	if !strings.HasPrefix(output, "invalid: ") {
		t.Errorf("verify(truncated) output = %q", output)
	}
}
