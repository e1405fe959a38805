// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/bureau-foundation/vici/lib/vici"
)

// encMode encodes scalars with Core Deterministic Encoding (RFC 8949
// §4.2): smallest integer and length encodings, no indefinite-length
// items. Map headers are written by cborEmitter so that entries keep
// their message order.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Scalars decoded into any become
// uint64, int64, float64, bool, string or []byte.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertNone,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR renders messages as CBOR maps with text keys. Text values are
// text strings and raw byte values are byte strings, in both
// directions.
var CBOR Format = cborFormat{}

type cborFormat struct{}

func (cborFormat) Name() string { return "cbor" }

func (cborFormat) Marshal(message vici.Section) ([]byte, error) {
	e := &cborEmitter{}
	if err := marshalWith(e, message); err != nil {
		return nil, err
	}
	return e.buffer, nil
}

func (cborFormat) Unmarshal(data []byte) (vici.Section, error) {
	document, rest, err := readCBORItem(data, 0)
	if err != nil {
		return nil, fmt.Errorf("parsing CBOR: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("parsing CBOR: %d bytes after the top-level item", len(rest))
	}
	return topLevel(document)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for the
// entire contents of data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}

// CBOR major types handled structurally.
const (
	cborArray = 4
	cborMap   = 5
)

// readCBORItem reads one item. Arrays and maps are walked here so that
// map entries keep their encoded order; every other item is decoded by
// decMode.
func readCBORItem(data []byte, depth int) (any, []byte, error) {
	if len(data) == 0 {
		return nil, nil, errors.New("unexpected end of data")
	}
	major := data[0] >> 5
	if major != cborArray && major != cborMap {
		var value any
		rest, err := decMode.UnmarshalFirst(data, &value)
		if err != nil {
			return nil, nil, err
		}
		return value, rest, nil
	}

	if depth >= maxDepth {
		return nil, nil, fmt.Errorf("nesting deeper than %d", maxDepth)
	}
	count, rest, err := readCBORHead(data)
	if err != nil {
		return nil, nil, err
	}
	// Every item takes at least one byte.
	if count > uint64(len(rest)) {
		return nil, nil, errors.New("unexpected end of data")
	}

	if major == cborArray {
		array := make([]any, 0, count)
		for range count {
			var item any
			if item, rest, err = readCBORItem(rest, depth+1); err != nil {
				return nil, nil, err
			}
			array = append(array, item)
		}
		return array, rest, nil
	}

	object := make(vici.Section, 0, count)
	for range count {
		var key string
		if rest, err = decMode.UnmarshalFirst(rest, &key); err != nil {
			return nil, nil, fmt.Errorf("map key: %w", err)
		}
		var value any
		if value, rest, err = readCBORItem(rest, depth+1); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", key, err)
		}
		object = append(object, vici.Field{Key: key, Value: value})
	}
	return object, rest, nil
}

// readCBORHead decodes the argument of an array or map head.
func readCBORHead(data []byte) (uint64, []byte, error) {
	info := data[0] & 0x1f
	switch {
	case info < 24:
		return uint64(info), data[1:], nil
	case info == 24 && len(data) >= 2:
		return uint64(data[1]), data[2:], nil
	case info == 25 && len(data) >= 3:
		return uint64(binary.BigEndian.Uint16(data[1:])), data[3:], nil
	case info == 26 && len(data) >= 5:
		return uint64(binary.BigEndian.Uint32(data[1:])), data[5:], nil
	case info == 27 && len(data) >= 9:
		return binary.BigEndian.Uint64(data[1:]), data[9:], nil
	case info == 31:
		return 0, nil, errors.New("indefinite-length arrays and maps are not supported")
	default:
		return 0, nil, errors.New("malformed array or map head")
	}
}

// appendCBORHead appends the shortest head for a major type and
// argument.
func appendCBORHead(buffer []byte, major byte, argument uint64) []byte {
	initial := major << 5
	switch {
	case argument < 24:
		return append(buffer, initial|byte(argument))
	case argument <= 0xff:
		return append(buffer, initial|24, byte(argument))
	case argument <= 0xffff:
		return binary.BigEndian.AppendUint16(append(buffer, initial|25), uint16(argument))
	case argument <= 0xffffffff:
		return binary.BigEndian.AppendUint32(append(buffer, initial|26), uint32(argument))
	default:
		return binary.BigEndian.AppendUint64(append(buffer, initial|27), argument)
	}
}

type cborEmitter struct {
	buffer []byte
}

func (e *cborEmitter) item(value any) error {
	encoded, err := encMode.Marshal(value)
	if err != nil {
		return err
	}
	e.buffer = append(e.buffer, encoded...)
	return nil
}

func (e *cborEmitter) beginMap(size int) error {
	e.buffer = appendCBORHead(e.buffer, cborMap, uint64(size))
	return nil
}

func (e *cborEmitter) key(name string) error { return e.item(name) }

func (e *cborEmitter) beginArray(size int) error {
	e.buffer = appendCBORHead(e.buffer, cborArray, uint64(size))
	return nil
}

func (e *cborEmitter) text(value string) error { return e.item(value) }

func (e *cborEmitter) bytes(value []byte) error { return e.item(value) }

// end is a no-op: heads carry definite lengths.
func (e *cborEmitter) end() error { return nil }
