// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/vici/lib/packet"
	"github.com/bureau-foundation/vici/lib/testutil"
	"github.com/bureau-foundation/vici/lib/vici"
)

func newTestServer() *SocketServer {
	return NewSocketServer("", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// startServer serves s on a fresh socket and returns its path. The
// server is stopped when the test completes.
func startServer(t *testing.T, s *SocketServer) string {
	t.Helper()
	path := filepath.Join(testutil.SocketDir(t), "charon.vici")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- s.serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, served, 5*time.Second, "waiting for serve to return"); err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return path
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func exchange(t *testing.T, conn net.Conn, request packet.Packet) packet.Packet {
	t.Helper()
	if err := packet.Write(conn, request); err != nil {
		t.Fatalf("writing %s: %v", request, err)
	}
	return receive(t, conn)
}

func receive(t *testing.T, conn net.Conn) packet.Packet {
	t.Helper()
	p, err := packet.Read(conn)
	if err != nil {
		t.Fatalf("reading packet: %v", err)
	}
	return p
}

type versionResponse struct {
	Daemon  string `vici:"daemon"`
	Version string `vici:"version"`
}

func TestCommandResponse(t *testing.T) {
	s := newTestServer()
	s.Handle("version", func(ctx context.Context, request []byte) (any, error) {
		if len(request) != 0 {
			t.Errorf("version request = %x, want empty", request)
		}
		return versionResponse{Daemon: "charon", Version: "5.9.14"}, nil
	})
	conn := dial(t, startServer(t, s))

	reply := exchange(t, conn, packet.Packet{Type: packet.CmdRequest, Name: "version"})
	if reply.Type != packet.CmdResponse {
		t.Fatalf("reply type = %s", reply.Type)
	}
	var got versionResponse
	if err := vici.Unmarshal(reply.Message, &got); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if got.Daemon != "charon" || got.Version != "5.9.14" {
		t.Errorf("reply = %+v", got)
	}

	// The connection stays open for further commands.
	reply = exchange(t, conn, packet.Packet{Type: packet.CmdRequest, Name: "version"})
	if reply.Type != packet.CmdResponse {
		t.Fatalf("second reply type = %s", reply.Type)
	}
}

func TestCommandRequestPassedThrough(t *testing.T) {
	type initiate struct {
		Child   string `vici:"child"`
		Timeout int    `vici:"timeout"`
	}
	s := newTestServer()
	s.Handle("initiate", func(ctx context.Context, request []byte) (any, error) {
		var got initiate
		if err := vici.Unmarshal(request, &got); err != nil {
			return nil, err
		}
		if got.Child != "net" || got.Timeout != 1000 {
			return nil, errors.New("unexpected request")
		}
		return nil, nil
	})
	conn := dial(t, startServer(t, s))

	message, err := vici.Marshal(initiate{Child: "net", Timeout: 1000})
	if err != nil {
		t.Fatal(err)
	}
	reply := exchange(t, conn, packet.Packet{Type: packet.CmdRequest, Name: "initiate", Message: message})
	if reply.Type != packet.CmdResponse || len(reply.Message) != 0 {
		t.Errorf("reply = %s, want empty CMD_RESPONSE", reply)
	}
}

func TestCommandFailure(t *testing.T) {
	s := newTestServer()
	s.Handle("terminate", func(ctx context.Context, request []byte) (any, error) {
		return nil, errors.New("no matching SAs")
	})
	conn := dial(t, startServer(t, s))

	reply := exchange(t, conn, packet.Packet{Type: packet.CmdRequest, Name: "terminate"})
	var got struct {
		Success string `vici:"success"`
		Errmsg  string `vici:"errmsg"`
	}
	if err := vici.Unmarshal(reply.Message, &got); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if got.Success != "no" || got.Errmsg != "no matching SAs" {
		t.Errorf("reply = %+v", got)
	}
}

func TestUnencodableResponse(t *testing.T) {
	s := newTestServer()
	s.Handle("broken", func(ctx context.Context, request []byte) (any, error) {
		return "not a section", nil
	})
	conn := dial(t, startServer(t, s))

	reply := exchange(t, conn, packet.Packet{Type: packet.CmdRequest, Name: "broken"})
	section := vici.Section{}
	if err := vici.Unmarshal(reply.Message, &section); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if section.Text("success") != "no" || section.Text("errmsg") == "" {
		t.Errorf("reply = %v", section)
	}
}

func TestUnknownCommand(t *testing.T) {
	conn := dial(t, startServer(t, newTestServer()))
	reply := exchange(t, conn, packet.Packet{Type: packet.CmdRequest, Name: "reload-settings"})
	if reply.Type != packet.CmdUnknown {
		t.Errorf("reply type = %s, want CMD_UNKNOWN", reply.Type)
	}
}

func TestEventSubscription(t *testing.T) {
	s := newTestServer()
	s.RegisterEvent("log")
	conn := dial(t, startServer(t, s))

	if reply := exchange(t, conn, packet.Packet{Type: packet.EventRegister, Name: "log"}); reply.Type != packet.EventConfirm {
		t.Fatalf("register reply = %s", reply.Type)
	}
	if reply := exchange(t, conn, packet.Packet{Type: packet.EventRegister, Name: "ike-updown"}); reply.Type != packet.EventUnknown {
		t.Fatalf("unknown register reply = %s", reply.Type)
	}

	type logEvent struct {
		Group string `vici:"group"`
		Msg   string `vici:"msg"`
	}
	delivered, err := s.Publish("log", logEvent{Group: "IKE", Msg: "initiating"})
	if err != nil || delivered != 1 {
		t.Fatalf("Publish = %d, %v", delivered, err)
	}
	event := receive(t, conn)
	if event.Type != packet.Event || event.Name != "log" {
		t.Fatalf("event = %s", event)
	}
	var got logEvent
	if err := vici.Unmarshal(event.Message, &got); err != nil || got.Msg != "initiating" {
		t.Fatalf("event message = %+v, %v", got, err)
	}

	if reply := exchange(t, conn, packet.Packet{Type: packet.EventUnregister, Name: "log"}); reply.Type != packet.EventConfirm {
		t.Fatalf("unregister reply = %s", reply.Type)
	}
	delivered, err = s.Publish("log", logEvent{Msg: "dropped"})
	if err != nil || delivered != 0 {
		t.Errorf("Publish after unregister = %d, %v", delivered, err)
	}
}

func TestPublishOnlyReachesSubscribers(t *testing.T) {
	s := newTestServer()
	subscribed := testutil.UniqueID("child-updown")
	other := testutil.UniqueID("child-updown")
	s.RegisterEvent(subscribed)
	s.RegisterEvent(other)
	conn := dial(t, startServer(t, s))

	if reply := exchange(t, conn, packet.Packet{Type: packet.EventRegister, Name: subscribed}); reply.Type != packet.EventConfirm {
		t.Fatalf("register reply = %s", reply.Type)
	}
	if delivered, err := s.Publish(other, nil); err != nil || delivered != 0 {
		t.Errorf("Publish(%q) = %d, %v, want 0 deliveries", other, delivered, err)
	}
	if delivered, err := s.Publish(subscribed, nil); err != nil || delivered != 1 {
		t.Fatalf("Publish(%q) = %d, %v, want 1 delivery", subscribed, delivered, err)
	}
	if event := receive(t, conn); event.Type != packet.Event || event.Name != subscribed {
		t.Errorf("event = %s, want EVENT %q", event, subscribed)
	}
}

func TestPublishUnregisteredEvent(t *testing.T) {
	s := newTestServer()
	if _, err := s.Publish("ike-updown", nil); err == nil {
		t.Error("Publish of an unregistered event succeeded")
	}
	s.RegisterEvent("ike-updown")
	if _, err := s.Publish("ike-updown", "scalar"); err == nil {
		t.Error("Publish of an unencodable message succeeded")
	}
}

func TestUnexpectedPacketClosesConnection(t *testing.T) {
	conn := dial(t, startServer(t, newTestServer()))
	if err := packet.Write(conn, packet.Packet{Type: packet.EventConfirm}); err != nil {
		t.Fatal(err)
	}
	if _, err := packet.Read(conn); !errors.Is(err, io.EOF) {
		t.Errorf("read after unexpected packet = %v, want io.EOF", err)
	}
}

func TestDuplicateHandlerPanics(t *testing.T) {
	s := newTestServer()
	s.Handle("stats", func(context.Context, []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("duplicate Handle did not panic")
		}
	}()
	s.Handle("stats", func(context.Context, []byte) (any, error) { return nil, nil })
}

func TestServeRemovesSocket(t *testing.T) {
	path := filepath.Join(testutil.SocketDir(t), "charon.vici")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewSocketServer(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Handle("version", func(context.Context, []byte) (any, error) { return nil, nil })

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()

	// The stale file is replaced by a socket once Serve is listening.
	var conn net.Conn
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		if conn, err = net.Dial("unix", path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never accepted: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	conn.Close()

	cancel()
	if err := testutil.RequireReceive(t, served, 5*time.Second, "waiting for Serve"); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("socket still present after Serve returned: %v", err)
	}
}

func TestShutdownClosesIdleConnections(t *testing.T) {
	s := newTestServer()
	s.RegisterEvent("log")
	path := filepath.Join(testutil.SocketDir(t), "charon.vici")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.serve(ctx, listener) }()

	conn := dial(t, path)
	exchange(t, conn, packet.Packet{Type: packet.EventRegister, Name: "log"})

	cancel()
	testutil.RequireReceive(t, served, 5*time.Second, "waiting for serve with an idle client")
	if _, err := packet.Read(conn); err == nil {
		t.Error("idle connection still open after shutdown")
	}
}
