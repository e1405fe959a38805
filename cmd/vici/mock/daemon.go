// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mock

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/bureau-foundation/vici/lib/clock"
	"github.com/bureau-foundation/vici/lib/server"
	"github.com/bureau-foundation/vici/lib/version"
	"github.com/bureau-foundation/vici/lib/vici"
)

// daemonName is reported by the built-in version command.
const daemonName = "vici-mock"

// Daemon serves a Fixture on a Unix socket.
type Daemon struct {
	server   *server.SocketServer
	periodic []PeriodicEvent
	clock    clock.Clock
	logger   *slog.Logger
}

// NewDaemon prepares a daemon answering from fixture on socketPath.
// Unless the fixture defines it, "version" answers with this build's
// version information.
func NewDaemon(socketPath string, fixture *Fixture, clk clock.Clock, logger *slog.Logger) *Daemon {
	d := &Daemon{
		server:   server.NewSocketServer(socketPath, logger),
		periodic: fixture.Periodic,
		clock:    clk,
		logger:   logger,
	}

	commands := make(map[string]bool)
	for name := range fixture.Commands {
		commands[name] = true
	}
	for name, stream := range fixture.Streams {
		commands[name] = true
		d.server.RegisterEvent(stream.Event)
	}
	for _, periodic := range fixture.Periodic {
		d.server.RegisterEvent(periodic.Event)
	}

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		d.server.Handle(name, d.command(name, fixture.Commands[name], fixture.Streams[name]))
	}
	if !commands["version"] {
		d.server.Handle("version", func(context.Context, []byte) (any, error) {
			return version.Describe(daemonName), nil
		})
	}

	logger.Debug("mock daemon configured", "commands", names, "periodic_events", len(fixture.Periodic))
	return d
}

// command returns the handler of one fixture command. A command with
// only a stream answers with an empty message.
func (d *Daemon) command(name string, response vici.Section, stream Stream) server.CommandFunc {
	return func(ctx context.Context, request []byte) (any, error) {
		d.logger.Info("command", "name", name, "request_bytes", len(request), "streamed_events", len(stream.Messages))
		for _, message := range stream.Messages {
			if _, err := d.server.Publish(stream.Event, message); err != nil {
				return nil, err
			}
		}
		if response == nil {
			return vici.Section{}, nil
		}
		return response, nil
	}
}

// Run serves until ctx is cancelled, publishing periodic events.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var publishers sync.WaitGroup
	for _, periodic := range d.periodic {
		publishers.Add(1)
		go func() {
			defer publishers.Done()
			d.publishEvery(ctx, periodic)
		}()
	}

	err := d.server.Serve(ctx)
	cancel()
	publishers.Wait()
	return err
}

func (d *Daemon) publishEvery(ctx context.Context, event PeriodicEvent) {
	ticker := d.clock.NewTicker(event.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			delivered, err := d.server.Publish(event.Event, event.Message)
			if err != nil {
				d.logger.Error("publishing periodic event", "event", event.Event, "error", err)
				continue
			}
			d.logger.Debug("published periodic event", "event", event.Event, "subscribers", delivered)
		}
	}
}
