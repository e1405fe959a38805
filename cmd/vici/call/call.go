// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package call implements "vici call": issue one command to the daemon
// and print its response.
package call

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vici/cmd/vici/cli"
	"github.com/bureau-foundation/vici/lib/capture"
	"github.com/bureau-foundation/vici/lib/client"
	"github.com/bureau-foundation/vici/lib/codec"
	"github.com/bureau-foundation/vici/lib/vici"
)

type callParams struct {
	cli.OutputParams
	cli.SocketParams
	Input   string        `flag:"input,i" desc:"request message file (- for stdin); empty sends an empty request"`
	From    string        `flag:"from" desc:"request file format: json, yaml, cbor or msgpack" default:"json"`
	Stream  string        `flag:"stream" desc:"event to print while the command runs (e.g. list-sa)"`
	Capture string        `flag:"capture" desc:"record every packet of the exchange to this capture file"`
	Timeout time.Duration `flag:"timeout" desc:"bound the call, including streamed events (default timeouts.call from config)"`
}

// Command returns the "call" command.
func Command(env *cli.Environment) *cli.Command {
	var params callParams

	return &cli.Command{
		Name:    "call",
		Summary: "Issue a command to the daemon and print the response",
		Description: `Send a command request to the daemon and print the response message.

The request is read from --input in the --from format (JSON by
default, comments allowed) and encoded as a VICI message. Without
--input, an empty request is sent.

Commands that report results as events (list-sas, list-conns, ...)
need --stream with the event name: the tool registers for the event,
prints each event as it arrives, then prints the final response.
Each event is printed as a message with one section named after the
event.

A response carrying success=no is reported as an error with the
daemon's errmsg.

With --capture, every packet sent and received is recorded to a
capture file for "vici capture show". Compression and encryption come
from the capture section of the configuration.`,
		Usage: "vici call <command> [flags]",
		Examples: []cli.Example{
			{
				Description: "Show daemon version information",
				Command:     "vici call version",
			},
			{
				Description: "List IKE SAs as YAML",
				Command:     "vici call list-sas --stream list-sa -f yaml",
			},
			{
				Description: "Load a connection and record the exchange",
				Command:     "vici call load-conn --input conn.json --capture load-conn.vcap",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("call", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("call takes exactly one command name, got %d arguments", len(args))
			}
			command := args[0]

			format, err := env.OutputFormat(params.Format)
			if err != nil {
				return err
			}
			request, err := readRequest(env, params.Input, params.From)
			if err != nil {
				return err
			}

			var recorder client.Recorder
			if params.Capture != "" {
				writer, closeCapture, err := openCapture(env, params.Capture)
				if err != nil {
					return err
				}
				defer func() {
					if closeErr := closeCapture(); closeErr != nil {
						env.Logger.Error("finishing capture", "path", params.Capture, "error", closeErr)
					}
				}()
				recorder = writer
			}

			timeout := params.Timeout
			if timeout == 0 {
				timeout = env.Config.CallTimeout()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			conn, err := env.Connect(ctx, params.Socket, recorder)
			if err != nil {
				return err
			}
			defer conn.Close()

			var response vici.Section
			if params.Stream == "" {
				err = conn.Call(ctx, command, request, &response)
			} else {
				err = conn.StreamedCall(ctx, command, params.Stream, request, func(event client.Event) error {
					return env.WriteEvent(format, event)
				}, &response)
			}
			if err != nil {
				return cli.DaemonError(err)
			}
			return env.WriteMessage(format, response)
		},
	}
}

// readRequest loads the request message from path in the named format.
// An empty path yields an empty request.
func readRequest(env *cli.Environment, path, formatName string) (vici.Section, error) {
	if path == "" {
		return vici.Section{}, nil
	}
	format, err := codec.Lookup(formatName)
	if err != nil {
		return nil, &cli.ToolError{Category: cli.CategoryValidation, Err: err}
	}
	data, err := env.ReadFile(path)
	if err != nil {
		return nil, err
	}
	request, err := format.Unmarshal(data)
	if err != nil {
		return nil, cli.Validation("request %s: %w", path, err)
	}
	return request, nil
}

// openCapture creates the capture file name (resolved against
// capture.directory) and returns its writer and a function that
// flushes and closes it.
func openCapture(env *cli.Environment, name string) (*capture.Writer, func() error, error) {
	compression, err := capture.ParseCompression(env.Config.Capture.Compression)
	if err != nil {
		return nil, nil, cli.Validation("capture.compression: %w", err)
	}
	recipients, err := capture.ParseRecipients(env.Config.Capture.Recipients)
	if err != nil {
		return nil, nil, cli.Validation("capture.recipients: %w", err)
	}

	path := env.Config.CapturePath(name)
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, cli.Internal("creating capture: %w", err)
	}
	writer, err := capture.NewWriter(file, capture.Options{
		Compression: compression,
		Recipients:  recipients,
		Clock:       env.Clock,
	})
	if err != nil {
		file.Close()
		return nil, nil, cli.Internal("starting capture %s: %w", path, err)
	}
	env.Logger.Debug("recording capture", "path", path, "compression", compression, "encrypted", len(recipients) > 0)

	return writer, func() error {
		return errors.Join(writer.Close(), file.Close())
	}, nil
}
