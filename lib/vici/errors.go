// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrInvalidData is matched by errors.Is for every error caused by
// malformed input or by a value that cannot be represented.
var ErrInvalidData = errors.New("vici: invalid data")

// ErrorCode classifies an [Error].
type ErrorCode uint8

const (
	// CodeIO is a failure of the underlying reader or writer.
	CodeIO ErrorCode = iota

	// CodeMessage is a semantic failure: a missing required field, a
	// malformed number, an element in the wrong position, or a Go type
	// the codec cannot represent.
	CodeMessage

	// CodeInvalidUTF8 is a key or value that is not valid UTF-8.
	CodeInvalidUTF8

	// CodeUnrecognizedTag is a tag byte outside the defined range.
	CodeUnrecognizedTag

	// CodeEOFTag is end of input while reading a tag.
	CodeEOFTag

	// CodeEOFKey is end of input while reading a key.
	CodeEOFKey

	// CodeEOFValue is end of input while reading a value.
	CodeEOFValue
)

func (c ErrorCode) String() string {
	switch c {
	case CodeIO:
		return "io"
	case CodeMessage:
		return "message"
	case CodeInvalidUTF8:
		return "invalid-utf8"
	case CodeUnrecognizedTag:
		return "unrecognized-tag"
	case CodeEOFTag:
		return "eof-tag"
	case CodeEOFKey:
		return "eof-key"
	case CodeEOFValue:
		return "eof-value"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint8(c))
	}
}

// Category groups error codes for callers that only need to know
// whether to blame the transport, the peer, or a short read.
type Category uint8

const (
	CategoryIO Category = iota
	CategoryData
	CategoryEOF
)

func (c Category) String() string {
	switch c {
	case CategoryIO:
		return "io"
	case CategoryData:
		return "data"
	case CategoryEOF:
		return "eof"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

// Error is the error type returned by every encoding and decoding
// operation in this package.
type Error struct {
	Code ErrorCode

	// Message describes a CodeMessage error.
	Message string

	// Err is the underlying cause of a CodeIO error.
	Err error

	offset    int
	hasOffset bool
	input     byte
	hasInput  bool
}

// Position returns the byte offset from the start of the input at which
// the error was detected.
func (e *Error) Position() (int, bool) {
	return e.offset, e.hasOffset
}

// Byte returns the offending input byte for invalid tags and invalid
// UTF-8.
func (e *Error) Byte() (byte, bool) {
	return e.input, e.hasInput
}

// Category reports the class of the error.
func (e *Error) Category() Category {
	switch e.Code {
	case CodeIO:
		return CategoryIO
	case CodeEOFTag, CodeEOFKey, CodeEOFValue:
		return CategoryEOF
	default:
		return CategoryData
	}
}

// IsEOF reports whether the input ended before the message was
// complete.
func (e *Error) IsEOF() bool { return e.Category() == CategoryEOF }

func (e *Error) Error() string {
	var text string
	switch e.Code {
	case CodeIO:
		text = fmt.Sprintf("i/o failure: %v", e.Err)
	case CodeMessage:
		text = e.Message
	case CodeInvalidUTF8:
		text = fmt.Sprintf("invalid UTF-8 byte %#02x", e.input)
	case CodeUnrecognizedTag:
		text = fmt.Sprintf("unrecognized element tag %#02x", e.input)
	case CodeEOFTag:
		text = "unexpected end of input while parsing element tag"
	case CodeEOFKey:
		text = "unexpected end of input while parsing key"
	case CodeEOFValue:
		text = "unexpected end of input while parsing value"
	default:
		text = e.Code.String()
	}
	if e.hasOffset {
		return fmt.Sprintf("vici: %s at offset %d", text, e.offset)
	}
	return "vici: " + text
}

// Unwrap maps the error onto the standard error classes: the cause for
// I/O failures, io.ErrUnexpectedEOF for truncation, and ErrInvalidData
// for everything else.
func (e *Error) Unwrap() error {
	switch e.Category() {
	case CategoryIO:
		return e.Err
	case CategoryEOF:
		return io.ErrUnexpectedEOF
	default:
		return ErrInvalidData
	}
}

func ioError(err error, offset int) *Error {
	return &Error{Code: CodeIO, Err: err, offset: offset, hasOffset: true}
}

func eofError(code ErrorCode, offset int) *Error {
	return &Error{Code: code, offset: offset, hasOffset: true}
}

func tagError(input byte, offset int) *Error {
	return &Error{Code: CodeUnrecognizedTag, offset: offset, hasOffset: true, input: input, hasInput: true}
}

// utf8Error reports the first invalid byte of payload, which starts at
// offset start in the input.
func utf8Error(payload []byte, start int) *Error {
	index := invalidUTF8Index(payload)
	return &Error{
		Code:      CodeInvalidUTF8,
		offset:    start + index,
		hasOffset: true,
		input:     payload[index],
		hasInput:  true,
	}
}

// messageError builds a CodeMessage error without a position.
func messageError(format string, args ...any) *Error {
	return &Error{Code: CodeMessage, Message: fmt.Sprintf(format, args...)}
}

// messageErrorAt builds a CodeMessage error at an input offset.
func messageErrorAt(offset int, format string, args ...any) *Error {
	return &Error{Code: CodeMessage, Message: fmt.Sprintf(format, args...), offset: offset, hasOffset: true}
}

// unexpectedElement reports a well-formed tag that is not allowed at
// the current position.
func unexpectedElement(tag ElementTag, offset int) *Error {
	return &Error{
		Code:      CodeMessage,
		Message:   fmt.Sprintf("unexpected %s element", tag),
		offset:    offset,
		hasOffset: true,
		input:     byte(tag),
		hasInput:  true,
	}
}

// invalidUTF8Index returns the index of the first byte of b that does
// not start a valid UTF-8 sequence, or len(b) if b is valid.
func invalidUTF8Index(b []byte) int {
	for i := 0; i < len(b); {
		if b[i] < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(b)
}
