// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"io/fs"
	"syscall"

	"github.com/bureau-foundation/vici/lib/client"
	"github.com/bureau-foundation/vici/lib/vici"
)

// Connect dials the daemon at socket, or at the configured socket when
// socket is empty. recorder may be nil.
func (e *Environment) Connect(ctx context.Context, socket string, recorder client.Recorder) (*client.Client, error) {
	if socket == "" {
		socket = e.Config.Socket
	}
	e.Logger.Debug("connecting to daemon", "socket", socket)

	conn, err := client.Dial(ctx, socket, client.Options{
		Logger:      e.Logger,
		DialTimeout: e.Config.DialTimeout(),
		Recorder:    recorder,
	})
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, NotFound("%w (is the daemon running?)", err)
		case errors.Is(err, fs.ErrPermission):
			return nil, Validation("%w (insufficient permissions on the socket)", err)
		case errors.Is(err, syscall.ECONNREFUSED):
			return nil, Transient("%w (nothing is listening on the socket)", err)
		}
		return nil, Transient("%w", err)
	}
	return conn, nil
}

// DaemonError categorizes an error returned by a client operation.
func DaemonError(err error) error {
	if err == nil {
		return nil
	}

	var (
		commandError   *client.CommandError
		unknownCommand *client.UnknownCommandError
		unknownEvent   *client.UnknownEventError
		messageError   *vici.Error
		categorized    *ToolError
	)
	switch {
	case errors.As(err, &categorized):
		return err
	case errors.As(err, &unknownCommand), errors.As(err, &unknownEvent):
		return &ToolError{Category: CategoryNotFound, Err: err}
	case errors.As(err, &commandError):
		return &ToolError{Category: CategoryValidation, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ToolError{Category: CategoryTransient, Err: err}
	case errors.As(err, &messageError):
		return &ToolError{Category: CategoryInternal, Err: err}
	}
	return &ToolError{Category: CategoryTransient, Err: err}
}
