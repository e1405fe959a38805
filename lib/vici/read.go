// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import (
	"errors"
	"io"
	"unicode/utf8"
)

// reader is the byte-level source consumed by the decoder. Both
// implementations report identical values and errors for identical
// input; they differ only in who owns the returned bytes.
//
// The byte slices returned by parseKey, parseValue and parseRawValue
// are valid until the next call on the same reader. Callers that keep
// them must copy, unless borrowed reports true, in which case they
// alias the input for its whole lifetime.
type reader interface {
	// position returns the number of bytes consumed so far.
	position() int

	// peekKeyLength returns the next one-byte length prefix without
	// consuming it.
	peekKeyLength() (int, error)

	// peekValueLength returns the next two-byte length prefix without
	// consuming it.
	peekValueLength() (int, error)

	// parseKey consumes a key and returns its UTF-8 validated bytes.
	parseKey(scratch *[]byte) ([]byte, error)

	// parseValue consumes a value and returns its UTF-8 validated bytes.
	parseValue(scratch *[]byte) ([]byte, error)

	// parseRawValue consumes a value without validating it.
	parseRawValue(scratch *[]byte) ([]byte, error)

	// parseTag consumes one element tag.
	parseTag() (ElementTag, error)

	// borrowed reports whether returned bytes alias the input.
	borrowed() bool
}

// chunkSize is how many bytes streamReader requests from its source at
// a time.
const chunkSize = 128

// maxEmptyReads bounds how often a source may return (0, nil) before
// the stream reader gives up.
const maxEmptyReads = 100

// streamReader reads from an io.Reader through a FIFO queue that is
// refilled one chunk at a time. Returned bytes are copied into the
// caller's scratch buffer because the queue is reused.
type streamReader struct {
	source io.Reader

	// queue[head:] holds bytes read from source but not yet consumed.
	queue []byte
	head  int

	offset int
	chunk  [chunkSize]byte

	// pending is an error returned by source together with data; it is
	// reported once the data has been consumed.
	pending error
}

func newStreamReader(source io.Reader) *streamReader {
	return &streamReader{source: source}
}

func (r *streamReader) position() int { return r.offset }

func (r *streamReader) borrowed() bool { return false }

func (r *streamReader) buffered() int { return len(r.queue) - r.head }

// fill reads until at least need bytes are queued. It returns false
// without error when the source is exhausted first.
func (r *streamReader) fill(need int) (bool, error) {
	empty := 0
	for r.buffered() < need {
		if r.pending != nil {
			err := r.pending
			if err == io.EOF {
				return false, nil
			}
			return false, ioError(err, r.offset)
		}
		n, err := r.source.Read(r.chunk[:])
		if n > 0 {
			r.push(r.chunk[:n])
			empty = 0
		}
		if err != nil {
			r.pending = err
			continue
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return false, ioError(io.ErrNoProgress, r.offset)
			}
		}
	}
	return true, nil
}

// push appends data to the queue, reclaiming consumed space first.
func (r *streamReader) push(data []byte) {
	if r.head == len(r.queue) {
		r.queue = r.queue[:0]
		r.head = 0
	} else if r.head > 0 && cap(r.queue)-len(r.queue) < len(data) {
		remaining := copy(r.queue, r.queue[r.head:])
		r.queue = r.queue[:remaining]
		r.head = 0
	}
	r.queue = append(r.queue, data...)
}

func (r *streamReader) consume(n int) {
	r.head += n
	r.offset += n
}

func (r *streamReader) peekKeyLength() (int, error) {
	ok, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, eofError(CodeEOFKey, r.offset)
	}
	return int(r.queue[r.head]), nil
}

func (r *streamReader) peekValueLength() (int, error) {
	ok, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, eofError(CodeEOFValue, r.offset)
	}
	return int(r.queue[r.head])<<8 | int(r.queue[r.head+1]), nil
}

// parse consumes a length-prefixed token whose prefix is prefixLength
// bytes long, copying the payload into scratch.
func (r *streamReader) parse(prefixLength int, code ErrorCode, scratch *[]byte) ([]byte, int, error) {
	var size int
	var err error
	if prefixLength == 1 {
		size, err = r.peekKeyLength()
	} else {
		size, err = r.peekValueLength()
	}
	if err != nil {
		return nil, 0, err
	}
	ok, err := r.fill(prefixLength + size)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, eofError(code, r.offset)
	}
	r.consume(prefixLength)
	start := r.offset
	*scratch = append((*scratch)[:0], r.queue[r.head:r.head+size]...)
	r.consume(size)
	return *scratch, start, nil
}

func (r *streamReader) parseKey(scratch *[]byte) ([]byte, error) {
	key, start, err := r.parse(1, CodeEOFKey, scratch)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(key) {
		return nil, utf8Error(key, start)
	}
	return key, nil
}

func (r *streamReader) parseValue(scratch *[]byte) ([]byte, error) {
	value, start, err := r.parse(2, CodeEOFValue, scratch)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(value) {
		return nil, utf8Error(value, start)
	}
	return value, nil
}

func (r *streamReader) parseRawValue(scratch *[]byte) ([]byte, error) {
	value, _, err := r.parse(2, CodeEOFValue, scratch)
	return value, err
}

func (r *streamReader) parseTag() (ElementTag, error) {
	ok, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, eofError(CodeEOFTag, r.offset)
	}
	input := r.queue[r.head]
	tag := ElementTag(input)
	if !tag.Valid() {
		return 0, tagError(input, r.offset)
	}
	r.consume(1)
	return tag, nil
}

// sliceReader reads directly from an in-memory message. Returned bytes
// alias the input and the scratch buffer is never used.
type sliceReader struct {
	data   []byte
	offset int
}

func newSliceReader(data []byte) *sliceReader {
	return &sliceReader{data: data}
}

func (r *sliceReader) position() int { return r.offset }

func (r *sliceReader) borrowed() bool { return true }

func (r *sliceReader) remaining() int { return len(r.data) - r.offset }

func (r *sliceReader) peekKeyLength() (int, error) {
	if r.remaining() < 1 {
		return 0, eofError(CodeEOFKey, r.offset)
	}
	return int(r.data[r.offset]), nil
}

func (r *sliceReader) peekValueLength() (int, error) {
	if r.remaining() < 2 {
		return 0, eofError(CodeEOFValue, r.offset)
	}
	return int(r.data[r.offset])<<8 | int(r.data[r.offset+1]), nil
}

func (r *sliceReader) parse(prefixLength int, code ErrorCode) ([]byte, int, error) {
	var size int
	var err error
	if prefixLength == 1 {
		size, err = r.peekKeyLength()
	} else {
		size, err = r.peekValueLength()
	}
	if err != nil {
		return nil, 0, err
	}
	if r.remaining() < prefixLength+size {
		return nil, 0, eofError(code, r.offset)
	}
	start := r.offset + prefixLength
	end := start + size
	r.offset = end
	return r.data[start:end:end], start, nil
}

func (r *sliceReader) parseKey(*[]byte) ([]byte, error) {
	key, start, err := r.parse(1, CodeEOFKey)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(key) {
		return nil, utf8Error(key, start)
	}
	return key, nil
}

func (r *sliceReader) parseValue(*[]byte) ([]byte, error) {
	value, start, err := r.parse(2, CodeEOFValue)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(value) {
		return nil, utf8Error(value, start)
	}
	return value, nil
}

func (r *sliceReader) parseRawValue(*[]byte) ([]byte, error) {
	value, _, err := r.parse(2, CodeEOFValue)
	return value, err
}

func (r *sliceReader) parseTag() (ElementTag, error) {
	if r.remaining() < 1 {
		return 0, eofError(CodeEOFTag, r.offset)
	}
	input := r.data[r.offset]
	tag := ElementTag(input)
	if !tag.Valid() {
		return 0, tagError(input, r.offset)
	}
	r.offset++
	return tag, nil
}

// isEOF reports whether err is a truncation error from a reader.
func isEOF(err error) bool {
	var viciErr *Error
	return errors.As(err, &viciErr) && viciErr.IsEOF()
}
