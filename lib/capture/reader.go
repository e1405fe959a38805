// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"filippo.io/age"
	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/vici/lib/packet"
)

// Frame is one recorded packet.
type Frame struct {
	// Index is the zero-based position of the frame in the capture.
	Index     int
	Direction packet.Direction
	Time      time.Time
	Packet    packet.Packet
}

// Reader reads frames from a capture.
type Reader struct {
	header  Header
	body    io.Reader
	release func()
	next    int
	buffer  []byte
}

// NewReader reads the capture header from r and prepares to read its
// frames. Encrypted captures need at least one matching identity.
func NewReader(r io.Reader, identities ...age.Identity) (*Reader, error) {
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrNotCapture
		}
		return nil, fmt.Errorf("reading capture header: %w", err)
	}
	header, err := parseHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	reader := &Reader{header: header, body: r, release: func() {}}
	if header.Encrypted {
		if len(identities) == 0 {
			return nil, ErrNoIdentity
		}
		decrypted, err := age.Decrypt(r, identities...)
		if err != nil {
			return nil, fmt.Errorf("decrypting capture: %w", err)
		}
		reader.body = decrypted
	}

	switch header.Compression {
	case CompressionLZ4:
		reader.body = lz4.NewReader(reader.body)
	case CompressionZstd:
		decoder, err := zstd.NewReader(reader.body)
		if err != nil {
			return nil, fmt.Errorf("starting zstd decompression: %w", err)
		}
		reader.body = decoder
		reader.release = decoder.Close
	case CompressionBrotli:
		reader.body = brotli.NewReader(reader.body)
	}
	return reader, nil
}

// Header returns the capture's header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next frame, or io.EOF after the last one. A frame
// whose digest does not match, or whose packet is malformed, yields an
// error wrapping ErrCorruptFrame. A capture cut off inside a frame
// yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (Frame, error) {
	index := r.next
	prefix := make([]byte, framePrefixSize)
	if _, err := io.ReadFull(r.body, prefix); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("frame %d: %w", index, err)
	}

	length := binary.BigEndian.Uint32(prefix[9:])
	if length > packet.MaxSize {
		return Frame{}, fmt.Errorf("frame %d: %w: length %d exceeds the packet limit", index, ErrCorruptFrame, length)
	}

	size := framePrefixSize + int(length) + digestSize
	if cap(r.buffer) < size {
		r.buffer = make([]byte, size)
	}
	frame := r.buffer[:size]
	copy(frame, prefix)
	if _, err := io.ReadFull(r.body, frame[framePrefixSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("frame %d: %w", index, err)
	}

	digestStart := size - digestSize
	digest := frameDigest(frame[:digestStart])
	if !bytes.Equal(digest[:], frame[digestStart:]) {
		return Frame{}, fmt.Errorf("frame %d: %w: digest mismatch", index, ErrCorruptFrame)
	}

	direction := packet.Direction(frame[0])
	if direction != packet.Sent && direction != packet.Received {
		return Frame{}, fmt.Errorf("frame %d: %w: invalid direction %d", index, ErrCorruptFrame, frame[0])
	}
	// The packet keeps its own copy; the buffer is reused.
	p, err := packet.Parse(bytes.Clone(frame[framePrefixSize:digestStart]))
	if err != nil {
		return Frame{}, fmt.Errorf("frame %d: %w: %w", index, ErrCorruptFrame, err)
	}

	r.next++
	return Frame{
		Index:     index,
		Direction: direction,
		Time:      time.Unix(0, int64(binary.BigEndian.Uint64(prefix[1:]))),
		Packet:    p,
	}, nil
}

// Close releases decompressor resources. It does not close the
// underlying reader.
func (r *Reader) Close() error {
	r.release()
	return nil
}
