// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"filippo.io/age"
	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/vici/lib/clock"
	"github.com/bureau-foundation/vici/lib/packet"
)

// Options configures a Writer.
type Options struct {
	// Compression of the body.
	Compression Compression

	// Recipients, when non-empty, encrypt the body to these age
	// recipients.
	Recipients []age.Recipient

	// Clock stamps frames. Nil uses the real clock.
	Clock clock.Clock
}

// Writer appends frames to a capture. It is safe for concurrent use.
type Writer struct {
	clock clock.Clock

	mu sync.Mutex

	// layers are closed in order by Close: the compressor, then the
	// encryptor. body is the outermost layer frames are written to.
	layers []io.Closer
	body   io.Writer
	frame  []byte
	err    error
}

// NewWriter writes the capture header to w and returns a Writer for
// its frames. Close must be called to flush the body; it does not close
// w.
func NewWriter(w io.Writer, options Options) (*Writer, error) {
	header := Header{
		Version:     Version,
		Encrypted:   len(options.Recipients) > 0,
		Compression: options.Compression,
	}
	if header.Compression > CompressionBrotli {
		return nil, fmt.Errorf("capture: unknown compression tag %d", header.Compression)
	}
	if _, err := w.Write(header.marshal()); err != nil {
		return nil, fmt.Errorf("writing capture header: %w", err)
	}

	writer := &Writer{clock: options.Clock, body: w}
	if writer.clock == nil {
		writer.clock = clock.Real()
	}

	if header.Encrypted {
		encrypted, err := age.Encrypt(w, options.Recipients...)
		if err != nil {
			return nil, fmt.Errorf("starting capture encryption: %w", err)
		}
		writer.layers = append(writer.layers, encrypted)
		writer.body = encrypted
	}

	var compressed io.WriteCloser
	switch header.Compression {
	case CompressionLZ4:
		compressed = lz4.NewWriter(writer.body)
	case CompressionZstd:
		encoder, err := zstd.NewWriter(writer.body, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("starting zstd compression: %w", err)
		}
		compressed = encoder
	case CompressionBrotli:
		compressed = brotli.NewWriter(writer.body)
	}
	if compressed != nil {
		// The compressor must be closed before the encryptor beneath it.
		writer.layers = append([]io.Closer{compressed}, writer.layers...)
		writer.body = compressed
	}
	return writer, nil
}

// Record appends one frame.
func (w *Writer) Record(direction packet.Direction, p packet.Packet) error {
	body, err := p.MarshalBinary()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}

	frame := w.frame[:0]
	frame = append(frame, byte(direction))
	frame = binary.BigEndian.AppendUint64(frame, uint64(w.clock.Now().UnixNano()))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(body)))
	frame = append(frame, body...)
	digest := frameDigest(frame)
	frame = append(frame, digest[:]...)
	w.frame = frame

	if _, err := w.body.Write(frame); err != nil {
		w.err = fmt.Errorf("writing capture frame: %w", err)
		return w.err
	}
	return nil
}

// Close flushes the compressor and finishes encryption. Further calls
// to Record fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if errors.Is(w.err, errClosed) {
		return nil
	}
	var errs []error
	for _, layer := range w.layers {
		if err := layer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	w.err = errClosed
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing capture: %w", err)
	}
	return nil
}

var errClosed = errors.New("capture: writer closed")
