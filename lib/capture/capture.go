// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture records VICI packets exchanged with a daemon into a
// file and reads them back.
//
// A capture starts with a 10-byte plaintext header:
//
//	"VICICAP" | version (1) | flags (1) | compression tag (1)
//
// The rest of the file is a body stream, age-encrypted when the
// encrypted flag is set, holding the compressed sequence of frames:
//
//	direction (1) | unix nanoseconds (8) | length (4) | packet | digest (32)
//
// Integers are big-endian. The packet is the packet body as produced
// by packet.Packet.MarshalBinary, without its own length prefix. The
// digest is a BLAKE3 keyed hash, in the capture frame domain, of every
// preceding byte of the frame.
//
// [Writer] implements client.Recorder, so a client records its
// exchanges by setting Options.Recorder.
package capture

import (
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// magic opens every capture file.
const magic = "VICICAP"

// Version is the capture format version written by this package.
const Version = 1

// headerSize is the length of the plaintext header.
const headerSize = len(magic) + 3

// flagEncrypted marks an age-encrypted body.
const flagEncrypted = 1 << 0

// Frame layout sizes.
const (
	framePrefixSize = 1 + 8 + 4
	digestSize      = 32
)

var (
	// ErrNotCapture is returned when a file does not start with the
	// capture magic.
	ErrNotCapture = errors.New("capture: not a capture file")

	// ErrCorruptFrame is returned when a frame fails its digest or
	// does not hold a valid packet.
	ErrCorruptFrame = errors.New("capture: corrupt frame")

	// ErrNoIdentity is returned when an encrypted capture is opened
	// without identities.
	ErrNoIdentity = errors.New("capture: capture is encrypted and no identity was given")
)

// Compression identifies the algorithm applied to the body. Tags are
// stored in the header; changing the values breaks existing captures.
type Compression uint8

const (
	// CompressionNone stores frames as-is.
	CompressionNone Compression = 0

	// CompressionLZ4 uses the LZ4 frame format. Fastest, lowest
	// ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd uses zstd at the default level.
	CompressionZstd Compression = 2

	// CompressionBrotli uses brotli at the default quality. Best ratio
	// for long text-heavy sessions, slowest to write.
	CompressionBrotli Compression = 3
)

// String returns the name accepted by ParseCompression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionBrotli:
		return "brotli"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "brotli":
		return CompressionBrotli, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// Header describes a capture file.
type Header struct {
	Version     uint8
	Encrypted   bool
	Compression Compression
}

func (h Header) marshal() []byte {
	header := make([]byte, 0, headerSize)
	header = append(header, magic...)
	var flags byte
	if h.Encrypted {
		flags |= flagEncrypted
	}
	return append(header, h.Version, flags, byte(h.Compression))
}

func parseHeader(data []byte) (Header, error) {
	if string(data[:len(magic)]) != magic {
		return Header{}, ErrNotCapture
	}
	header := Header{
		Version:     data[len(magic)],
		Encrypted:   data[len(magic)+1]&flagEncrypted != 0,
		Compression: Compression(data[len(magic)+2]),
	}
	if header.Version != Version {
		return Header{}, fmt.Errorf("capture: unsupported version %d", header.Version)
	}
	if flags := data[len(magic)+1]; flags&^flagEncrypted != 0 {
		return Header{}, fmt.Errorf("capture: unknown flags %#x", flags)
	}
	if header.Compression > CompressionBrotli {
		return Header{}, fmt.Errorf("capture: unknown compression tag %d", header.Compression)
	}
	return header, nil
}

// frameDomainKey is the BLAKE3 key for frame digests: the ASCII domain
// name zero-padded to 32 bytes.
var frameDomainKey = [32]byte{
	'v', 'i', 'c', 'i', '.', 'c', 'a', 'p', 't', 'u', 'r', 'e', '.',
	'f', 'r', 'a', 'm', 'e',
}

// frameDigest computes the keyed digest of a frame's leading bytes.
func frameDigest(data []byte) [digestSize]byte {
	hasher, err := blake3.NewKeyed(frameDomainKey[:])
	if err != nil {
		panic("capture: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest [digestSize]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}
