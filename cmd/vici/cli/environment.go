// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode"

	"github.com/bureau-foundation/vici/lib/clock"
	"github.com/bureau-foundation/vici/lib/config"
)

// Environment carries what commands need from the process: standard
// streams, the loaded configuration and the logger. Commands receive it
// when the tree is built and never touch os.Stdin or os.Stdout
// directly, so tests can run them against buffers.
type Environment struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock
}

// ReadInput resolves input data from either a file (the last element
// of args, if it names a regular file on disk) or stdin.
//
// When hexMode is true, the raw bytes are treated as hex: whitespace is
// stripped and the hex is decoded to binary.
//
// Returns the input bytes and the args with any consumed file path
// removed. The caller validates the remaining args.
func (e *Environment) ReadInput(args []string, hexMode bool) ([]byte, []string, error) {
	var data []byte
	remainingArgs := args

	if length := len(args); length > 0 {
		candidate := args[length-1]
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			data, err = os.ReadFile(candidate)
			if err != nil {
				return nil, nil, Internal("read %s: %w", candidate, err)
			}
			remainingArgs = args[:length-1]
		}
	}

	if data == nil {
		var err error
		data, err = io.ReadAll(e.Stdin)
		if err != nil {
			return nil, nil, Internal("read stdin: %w", err)
		}
	}

	if hexMode {
		decoded, err := DecodeHex(data)
		if err != nil {
			return nil, nil, err
		}
		data = decoded
	}

	return data, remainingArgs, nil
}

// ReadFile reads path, or stdin when path is "-".
func (e *Environment) ReadFile(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(e.Stdin)
		if err != nil {
			return nil, Internal("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotFound("read %s: %w", path, err)
		}
		return nil, Internal("read %s: %w", path, err)
	}
	return data, nil
}

// DecodeHex strips whitespace from hex-encoded input and decodes it to
// binary. Whitespace between digit pairs is allowed ("03 03 6b 65 79"
// or "03036b6579").
func DecodeHex(data []byte) ([]byte, error) {
	cleaned := bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, data)

	if len(cleaned) == 0 {
		return nil, Validation("empty input after stripping whitespace from hex")
	}

	decoded := make([]byte, hex.DecodedLen(len(cleaned)))
	count, err := hex.Decode(decoded, cleaned)
	if err != nil {
		return nil, Validation("decode hex: %w", err)
	}
	return decoded[:count], nil
}

// WriteHex writes data to w as lowercase hex followed by a newline.
func WriteHex(w io.Writer, data []byte) error {
	_, err := fmt.Fprintln(w, hex.EncodeToString(data))
	return err
}
