// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the daemon side of the VICI session
// protocol on a Unix socket.
//
// A SocketServer dispatches CMD_REQUEST packets to registered command
// handlers and answers with CMD_RESPONSE, or CMD_UNKNOWN when nothing
// is registered under the command's name. Clients subscribe to events
// registered with RegisterEvent; Publish pushes an event to every
// subscribed connection.
//
// Connections are long-lived: a client issues any number of commands
// and subscriptions over one connection, and the server keeps reading
// until the client disconnects or Serve's context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/vici/lib/packet"
	"github.com/bureau-foundation/vici/lib/vici"
)

// CommandFunc handles one command. The request is the raw VICI message
// sent by the client (empty for commands without arguments).
//
// The returned value is encoded with vici.Marshal as the response
// message; nil yields an empty response. A returned error is reported
// to the client as a response of {success: no, errmsg: <error>}.
type CommandFunc func(ctx context.Context, request []byte) (any, error)

// failure is the conventional response of a failed command.
type failure struct {
	Success string `vici:"success"`
	Errmsg  string `vici:"errmsg"`
}

// SocketServer serves the VICI session protocol on a Unix socket.
//
// Commands and events are registered before calling Serve.
type SocketServer struct {
	socketPath string
	handlers   map[string]CommandFunc
	events     map[string]bool
	logger     *slog.Logger

	mu          sync.Mutex
	connections map[*connection]struct{}

	// activeConnections tracks connection goroutines. Serve waits for
	// all of them before returning.
	activeConnections sync.WaitGroup
}

// connection is one accepted client.
type connection struct {
	conn net.Conn

	// writeMu serializes responses with events published from other
	// goroutines.
	writeMu sync.Mutex

	// subscriptions is guarded by SocketServer.mu.
	subscriptions map[string]bool
}

// NewSocketServer creates a server that will listen on socketPath.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath:  socketPath,
		handlers:    make(map[string]CommandFunc),
		events:      make(map[string]bool),
		logger:      logger,
		connections: make(map[*connection]struct{}),
	}
}

// Handle registers a handler for command. Panics if the command is
// already registered.
func (s *SocketServer) Handle(command string, handler CommandFunc) {
	if _, exists := s.handlers[command]; exists {
		panic(fmt.Sprintf("server.SocketServer: duplicate handler for command %q", command))
	}
	s.handlers[command] = handler
}

// RegisterEvent declares an event clients may subscribe to.
func (s *SocketServer) RegisterEvent(event string) {
	s.events[event] = true
}

// Serve accepts connections until ctx is cancelled, then closes every
// open connection and waits for their goroutines to finish.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer os.Remove(s.socketPath)

	return s.serve(ctx, listener)
}

// serve runs the accept loop on an existing listener and closes it on
// return.
func (s *SocketServer) serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		listener.Close()
		s.mu.Lock()
		for c := range s.connections {
			c.conn.Close()
		}
		s.mu.Unlock()
	})
	defer stop()
	defer listener.Close()

	s.logger.Info("vici server listening", "address", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		c := &connection{conn: conn, subscriptions: make(map[string]bool)}
		s.mu.Lock()
		if ctx.Err() != nil {
			s.mu.Unlock()
			conn.Close()
			break
		}
		s.connections[c] = struct{}{}
		s.mu.Unlock()

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, c)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// writeTimeout bounds writing one packet to a client.
const writeTimeout = 10 * time.Second

// handleConnection processes packets until the client disconnects.
func (s *SocketServer) handleConnection(ctx context.Context, c *connection) {
	defer func() {
		s.mu.Lock()
		delete(s.connections, c)
		s.mu.Unlock()
		c.conn.Close()
	}()

	for {
		p, err := packet.Read(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("closing connection", "error", err)
			}
			return
		}

		switch p.Type {
		case packet.CmdRequest:
			err = s.write(c, s.command(ctx, p))
		case packet.EventRegister, packet.EventUnregister:
			err = s.subscribe(c, p)
		default:
			s.logger.Debug("closing connection after unexpected packet", "packet", p.String())
			return
		}
		if err != nil {
			s.logger.Debug("failed to write reply", "request", p.String(), "error", err)
			return
		}
	}
}

// command runs the handler for a CMD_REQUEST and builds its reply.
func (s *SocketServer) command(ctx context.Context, p packet.Packet) packet.Packet {
	handler, exists := s.handlers[p.Name]
	if !exists {
		s.logger.Debug("unknown command", "command", p.Name)
		return packet.Packet{Type: packet.CmdUnknown}
	}

	result, err := handler(ctx, p.Message)
	if err != nil {
		s.logger.Debug("command failed", "command", p.Name, "error", err)
		return s.response(failure{Success: "no", Errmsg: err.Error()})
	}
	if result == nil {
		return packet.Packet{Type: packet.CmdResponse}
	}

	message, err := vici.Marshal(result)
	if err != nil {
		s.logger.Error("encoding command response", "command", p.Name, "error", err)
		return s.response(failure{Success: "no", Errmsg: fmt.Sprintf("internal: encoding response: %v", err)})
	}
	return packet.Packet{Type: packet.CmdResponse, Message: message}
}

func (s *SocketServer) response(f failure) packet.Packet {
	message, err := vici.Marshal(f)
	if err != nil {
		panic(fmt.Sprintf("server.SocketServer: encoding failure response: %v", err))
	}
	return packet.Packet{Type: packet.CmdResponse, Message: message}
}

// subscribe handles EVENT_REGISTER and EVENT_UNREGISTER. The
// confirmation is written before any event published after the
// subscription changed.
func (s *SocketServer) subscribe(c *connection, p packet.Packet) error {
	if !s.events[p.Name] {
		s.logger.Debug("unknown event", "event", p.Name, "type", p.Type)
		return s.write(c, packet.Packet{Type: packet.EventUnknown})
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	s.mu.Lock()
	if p.Type == packet.EventRegister {
		c.subscriptions[p.Name] = true
	} else {
		delete(c.subscriptions, p.Name)
	}
	s.mu.Unlock()
	return s.writeLocked(c, packet.Packet{Type: packet.EventConfirm})
}

// Publish encodes message and sends it as event to every connection
// subscribed to it. It returns the number of connections the event was
// delivered to. Connections that fail to accept the event are closed.
func (s *SocketServer) Publish(event string, message any) (int, error) {
	if !s.events[event] {
		return 0, fmt.Errorf("publishing unregistered event %q", event)
	}
	var encoded []byte
	if message != nil {
		var err error
		if encoded, err = vici.Marshal(message); err != nil {
			return 0, fmt.Errorf("encoding event %q: %w", event, err)
		}
	}

	s.mu.Lock()
	var subscribers []*connection
	for c := range s.connections {
		if c.subscriptions[event] {
			subscribers = append(subscribers, c)
		}
	}
	s.mu.Unlock()

	p := packet.Packet{Type: packet.Event, Name: event, Message: encoded}
	delivered := 0
	for _, c := range subscribers {
		if err := s.write(c, p); err != nil {
			s.logger.Debug("dropping subscriber", "event", event, "error", err)
			c.conn.Close()
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (s *SocketServer) write(c *connection, p packet.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return s.writeLocked(c, p)
}

func (s *SocketServer) writeLocked(c *connection, p packet.Packet) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return packet.Write(c.conn, p)
}
