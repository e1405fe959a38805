// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client talks to a VICI daemon over its control socket.
//
// A Client owns one connection and issues one operation at a time:
// commands are answered in order and events arrive on the same
// connection, so concurrent callers are serialized by a mutex rather
// than multiplexed.
//
//	c, err := client.Dial(ctx, client.DefaultSocketPath, client.Options{Logger: logger})
//	...
//	var version struct {
//		Daemon  string `vici:"daemon"`
//		Version string `vici:"version"`
//	}
//	err = c.Call(ctx, "version", nil, &version)
//
// Streamed commands (such as list-sas) report their results as events
// sent before the command's response; StreamedCall registers for the
// event, issues the command, and hands each event to a callback.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/vici/lib/packet"
	"github.com/bureau-foundation/vici/lib/vici"
)

// DefaultSocketPath is where charon listens by default.
const DefaultSocketPath = "/var/run/charon.vici"

// dialTimeout bounds the connect phase when the context has no earlier
// deadline.
const dialTimeout = 5 * time.Second

// cleanupTimeout bounds unregistering events after Listen or
// StreamedCall was interrupted.
const cleanupTimeout = 5 * time.Second

// CommandError is returned when the daemon answers a command with
// success=no.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("command %q failed", e.Command)
	}
	return fmt.Sprintf("command %q failed: %s", e.Command, e.Message)
}

// UnknownCommandError is returned when the daemon does not implement a
// command.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Command)
}

// UnknownEventError is returned when the daemon refuses to register an
// event.
type UnknownEventError struct {
	Event string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event %q", e.Event)
}

// Event is an event message pushed by the daemon.
type Event struct {
	Name    string
	Message []byte
}

// Decode decodes the event message into v.
func (e Event) Decode(v any) error {
	return vici.Unmarshal(e.Message, v)
}

// EventHandler receives events. Returning an error stops delivery; the
// error is returned by the operation that delivered the event.
type EventHandler func(Event) error

// Recorder observes every packet a Client sends and receives.
type Recorder interface {
	Record(direction packet.Direction, p packet.Packet) error
}

// Options configures a Client. The zero value is usable.
type Options struct {
	// Logger receives debug logs about dropped events and recorder
	// failures. Nil discards them.
	Logger *slog.Logger

	// DialTimeout bounds connecting. Zero uses five seconds.
	DialTimeout time.Duration

	// Recorder, if set, sees every packet.
	Recorder Recorder
}

// Client is a connection to a VICI daemon.
type Client struct {
	conn     net.Conn
	logger   *slog.Logger
	recorder Recorder

	mu sync.Mutex

	// broken is set when an operation was interrupted mid-exchange;
	// the connection can no longer be trusted to be in sync.
	broken error
}

// Dial connects to the daemon socket at socketPath.
func Dial(ctx context.Context, socketPath string, options Options) (*Client, error) {
	timeout := options.DialTimeout
	if timeout == 0 {
		timeout = dialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	return New(conn, options), nil
}

// New wraps an established connection.
func New(conn net.Conn, options Options) *Client {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{conn: conn, logger: logger, recorder: options.Recorder}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call issues command with request (nil for an empty message) and
// decodes the response into response (nil to discard it).
func (c *Client) Call(ctx context.Context, command string, request, response any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return c.broken
	}

	stop := c.watch(ctx)
	err := c.call(command, request, "", nil, response)
	stop()
	return c.finish(ctx, fmt.Sprintf("calling %q", command), err)
}

// StreamedCall registers for event, issues command, passes every event
// received before the response to handler, and unregisters.
func (c *Client) StreamedCall(ctx context.Context, command, event string, request any, handler EventHandler, response any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return c.broken
	}

	stop := c.watch(ctx)
	err := c.register(event)
	if err == nil {
		err = c.call(command, request, event, handler, response)
		if isProtocolError(err) || err == nil {
			err = errors.Join(err, c.unregister(event))
		}
	}
	stop()
	return c.finish(ctx, fmt.Sprintf("streaming %q", command), err)
}

// Listen registers for events and passes each one to handler until ctx
// is done or handler returns an error. Cancelling ctx is the normal way
// to stop listening and is not reported as an error.
func (c *Client) Listen(ctx context.Context, events []string, handler EventHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return c.broken
	}

	stop := c.watch(ctx)
	var registered []string
	var err error
	for _, event := range events {
		if err = c.register(event); err != nil {
			break
		}
		registered = append(registered, event)
	}
	for err == nil {
		var p packet.Packet
		p, err = c.receive()
		if err != nil {
			break
		}
		if p.Type != packet.Event {
			err = fmt.Errorf("unexpected %s while listening", p.Type)
			break
		}
		if handlerErr := handler(Event{Name: p.Name, Message: p.Message}); handlerErr != nil {
			err = &handlerError{err: handlerErr}
		}
	}
	stop()

	cancelled := ctx.Err() != nil && !isProtocolError(err)
	if cancelled {
		err = nil
		c.conn.SetDeadline(time.Now().Add(cleanupTimeout))
	}
	if err == nil || isProtocolError(err) {
		for _, event := range registered {
			if unregisterErr := c.unregister(event); unregisterErr != nil {
				err = errors.Join(err, unregisterErr)
				break
			}
		}
	}
	c.conn.SetDeadline(time.Time{})
	if err != nil && !isProtocolError(err) {
		c.broken = fmt.Errorf("connection unusable after failed listen: %w", err)
	}
	if err != nil {
		return fmt.Errorf("listening for %v: %w", events, err)
	}
	return nil
}

// watch applies ctx to blocking socket operations. The returned
// function must be called before the connection is used without ctx.
func (c *Client) watch(ctx context.Context) func() {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	}
	interrupted := make(chan struct{})
	stopInterrupt := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
		close(interrupted)
	})
	return func() {
		if !stopInterrupt() {
			<-interrupted
			return
		}
		c.conn.SetDeadline(time.Time{})
	}
}

// finish wraps the result of an operation and marks the connection
// broken when the exchange was cut short.
func (c *Client) finish(ctx context.Context, operation string, err error) error {
	if err == nil {
		return nil
	}
	if isProtocolError(err) {
		return err
	}
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	c.broken = fmt.Errorf("connection unusable after interrupted %s: %w", operation, err)
	return fmt.Errorf("%s: %w", operation, err)
}

// isProtocolError reports whether err is an answer from the daemon, as
// opposed to a failure that leaves the connection out of sync.
func isProtocolError(err error) bool {
	var commandErr *CommandError
	var unknownCommand *UnknownCommandError
	var unknownEvent *UnknownEventError
	var handlerErr *handlerError
	var viciErr *vici.Error
	return errors.As(err, &commandErr) || errors.As(err, &unknownCommand) ||
		errors.As(err, &unknownEvent) || errors.As(err, &handlerErr) ||
		(errors.As(err, &viciErr) && viciErr.Category() != vici.CategoryIO)
}

// handlerError marks an error returned by an EventHandler. Delivery of
// the remaining events stops but the connection stays in sync.
type handlerError struct {
	err error
}

func (e *handlerError) Error() string { return e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }

func (c *Client) call(command string, request any, event string, handler EventHandler, response any) error {
	var message []byte
	if request != nil {
		var err error
		if message, err = vici.Marshal(request); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}
	if err := c.send(packet.Packet{Type: packet.CmdRequest, Name: command, Message: message}); err != nil {
		return err
	}

	var handlerErr error
	for {
		p, err := c.receive()
		if err != nil {
			return err
		}
		switch p.Type {
		case packet.CmdResponse:
			if handlerErr != nil {
				return &handlerError{err: handlerErr}
			}
			return decodeResponse(command, p.Message, response)
		case packet.CmdUnknown:
			return &UnknownCommandError{Command: command}
		case packet.Event:
			if p.Name != event || handler == nil {
				c.logger.Debug("dropping event received during command", "event", p.Name, "command", command)
				continue
			}
			if handlerErr == nil {
				handlerErr = handler(Event{Name: p.Name, Message: p.Message})
			}
		default:
			return fmt.Errorf("unexpected %s in response to command %q", p.Type, command)
		}
	}
}

// decodeResponse checks the conventional success/errmsg fields and
// decodes the response message.
func decodeResponse(command string, message []byte, response any) error {
	var status struct {
		Success *string `vici:"success"`
		Errmsg  string  `vici:"errmsg"`
	}
	if err := vici.Unmarshal(message, &status); err == nil && status.Success != nil && *status.Success == "no" {
		return &CommandError{Command: command, Message: status.Errmsg}
	}
	if response == nil {
		return nil
	}
	if err := vici.Unmarshal(message, response); err != nil {
		return fmt.Errorf("decoding response to %q: %w", command, err)
	}
	return nil
}

func (c *Client) register(event string) error {
	return c.subscription(packet.EventRegister, event)
}

func (c *Client) unregister(event string) error {
	return c.subscription(packet.EventUnregister, event)
}

func (c *Client) subscription(packetType packet.Type, event string) error {
	if err := c.send(packet.Packet{Type: packetType, Name: event}); err != nil {
		return err
	}
	for {
		p, err := c.receive()
		if err != nil {
			return err
		}
		switch p.Type {
		case packet.EventConfirm:
			return nil
		case packet.EventUnknown:
			return &UnknownEventError{Event: event}
		case packet.Event:
			c.logger.Debug("dropping event received during registration", "event", p.Name)
		default:
			return fmt.Errorf("unexpected %s in response to %s %q", p.Type, packetType, event)
		}
	}
}

func (c *Client) send(p packet.Packet) error {
	if err := packet.Write(c.conn, p); err != nil {
		return err
	}
	c.record(packet.Sent, p)
	return nil
}

func (c *Client) receive() (packet.Packet, error) {
	p, err := packet.Read(c.conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return packet.Packet{}, fmt.Errorf("daemon closed the connection: %w", io.ErrUnexpectedEOF)
		}
		return packet.Packet{}, fmt.Errorf("reading packet: %w", err)
	}
	c.record(packet.Received, p)
	return p, nil
}

func (c *Client) record(direction packet.Direction, p packet.Packet) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(direction, p); err != nil {
		c.logger.Warn("recording packet failed", "direction", direction, "packet", p.String(), "error", err)
	}
}
