// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package packet frames VICI messages for transport over a stream
// socket.
//
// Every packet starts with a four-byte big-endian length covering the
// rest of the packet, followed by a one-byte packet type. Command
// requests, event registrations and events carry a name (one-byte
// length, then the name); the remainder of the packet is a message
// encoded by package vici:
//
//	length(4) | type(1) | [namelen(1) | name] | message
//
// A client sends CmdRequest and receives CmdResponse (or CmdUnknown).
// It subscribes with EventRegister and EventUnregister, each answered
// by EventConfirm or EventUnknown, and receives Event packets
// interleaved with responses.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Type identifies the purpose of a packet.
type Type uint8

const (
	// CmdRequest is a named command request from client to daemon.
	CmdRequest Type = 0

	// CmdResponse is the daemon's answer to a command.
	CmdResponse Type = 1

	// CmdUnknown reports that the requested command does not exist.
	CmdUnknown Type = 2

	// EventRegister subscribes to the named event.
	EventRegister Type = 3

	// EventUnregister cancels a subscription.
	EventUnregister Type = 4

	// EventConfirm acknowledges a registration change.
	EventConfirm Type = 5

	// EventUnknown reports that the named event does not exist.
	EventUnknown Type = 6

	// Event is a named event pushed by the daemon.
	Event Type = 7
)

// Named reports whether packets of this type carry a name.
func (t Type) Named() bool {
	return t == CmdRequest || t == EventRegister || t == EventUnregister || t == Event
}

// Valid reports whether t is a defined packet type.
func (t Type) Valid() bool {
	return t <= Event
}

func (t Type) String() string {
	switch t {
	case CmdRequest:
		return "CMD_REQUEST"
	case CmdResponse:
		return "CMD_RESPONSE"
	case CmdUnknown:
		return "CMD_UNKNOWN"
	case EventRegister:
		return "EVENT_REGISTER"
	case EventUnregister:
		return "EVENT_UNREGISTER"
	case EventConfirm:
		return "EVENT_CONFIRM"
	case EventUnknown:
		return "EVENT_UNKNOWN"
	case Event:
		return "EVENT"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// MaxSize is the largest packet body (everything after the length
// prefix) the daemon accepts.
const MaxSize = 512 * 1024

var (
	// ErrTooLarge is returned for packets longer than MaxSize.
	ErrTooLarge = errors.New("packet: exceeds maximum size")

	// ErrMalformed is returned for packets that cannot be parsed.
	ErrMalformed = errors.New("packet: malformed")
)

// Packet is one framed unit of the VICI transport.
type Packet struct {
	Type Type

	// Name is the command or event name. It is empty for unnamed types.
	Name string

	// Message is the encoded VICI message, possibly empty.
	Message []byte
}

func (p Packet) String() string {
	if p.Type.Named() {
		return fmt.Sprintf("%s %q (%d bytes)", p.Type, p.Name, len(p.Message))
	}
	return fmt.Sprintf("%s (%d bytes)", p.Type, len(p.Message))
}

// MarshalBinary returns the packet body: type, name and message,
// without the length prefix.
func (p Packet) MarshalBinary() ([]byte, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: invalid type %d", ErrMalformed, uint8(p.Type))
	}
	size := 1 + len(p.Message)
	if p.Type.Named() {
		if len(p.Name) > 255 {
			return nil, fmt.Errorf("%w: name %q longer than 255 bytes", ErrMalformed, p.Name[:32]+"...")
		}
		size += 1 + len(p.Name)
	} else if p.Name != "" {
		return nil, fmt.Errorf("%w: %s packets have no name", ErrMalformed, p.Type)
	}
	if size > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	body := make([]byte, 0, size)
	body = append(body, byte(p.Type))
	if p.Type.Named() {
		body = append(body, byte(len(p.Name)))
		body = append(body, p.Name...)
	}
	return append(body, p.Message...), nil
}

// Parse decodes a packet body as produced by MarshalBinary. The
// returned Message aliases body.
func Parse(body []byte) (Packet, error) {
	if len(body) == 0 {
		return Packet{}, fmt.Errorf("%w: empty packet", ErrMalformed)
	}
	if len(body) > MaxSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(body))
	}
	packet := Packet{Type: Type(body[0])}
	if !packet.Type.Valid() {
		return Packet{}, fmt.Errorf("%w: invalid type %d", ErrMalformed, body[0])
	}
	rest := body[1:]
	if packet.Type.Named() {
		if len(rest) == 0 || len(rest) < 1+int(rest[0]) {
			return Packet{}, fmt.Errorf("%w: %s name truncated", ErrMalformed, packet.Type)
		}
		packet.Name = string(rest[1 : 1+rest[0]])
		rest = rest[1+rest[0]:]
	}
	packet.Message = rest
	return packet, nil
}

// Write frames p and writes it to w in a single Write call.
func Write(w io.Writer, p Packet) error {
	body, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	frame := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	frame = append(frame, body...)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing %s: %w", p.Type, err)
	}
	return nil
}

// Read reads one packet from r. It returns io.EOF if r ends cleanly
// before the first byte of a packet, and io.ErrUnexpectedEOF if it
// ends inside one.
func Read(r io.Reader) (Packet, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Packet{}, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Packet{}, err
	}
	return Parse(body)
}

// Direction tells whether a packet was sent or received by the local
// side of a connection.
type Direction uint8

const (
	Sent     Direction = 1
	Received Direction = 2
)

func (d Direction) String() string {
	switch d {
	case Sent:
		return "sent"
	case Received:
		return "received"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}
