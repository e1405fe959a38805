// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/bureau-foundation/vici/lib/vici"
)

// MsgPack renders messages as MessagePack maps. Text values use the
// str family and raw byte values the bin family, in both directions.
var MsgPack Format = msgpackFormat{}

type msgpackFormat struct{}

func (msgpackFormat) Name() string { return "msgpack" }

func (msgpackFormat) Marshal(message vici.Section) ([]byte, error) {
	var buffer bytes.Buffer
	e := &msgpackEmitter{encoder: msgpack.NewEncoder(&buffer)}
	if err := marshalWith(e, message); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (msgpackFormat) Unmarshal(data []byte) (vici.Section, error) {
	reader := bytes.NewReader(data)
	decoder := msgpack.NewDecoder(reader)
	document, err := readMsgPackValue(decoder, 0)
	if err != nil {
		return nil, fmt.Errorf("parsing MessagePack: %w", err)
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("parsing MessagePack: %d bytes after the top-level value", reader.Len())
	}
	return topLevel(document)
}

// readMsgPackValue reads one value, keeping map entries in encoded
// order.
func readMsgPackValue(decoder *msgpack.Decoder, depth int) (any, error) {
	code, err := decoder.PeekCode()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	isMap := msgpcode.IsFixedMap(code) || code == msgpcode.Map16 || code == msgpcode.Map32
	isArray := msgpcode.IsFixedArray(code) || code == msgpcode.Array16 || code == msgpcode.Array32
	if !isMap && !isArray {
		return decoder.DecodeInterfaceLoose()
	}
	if depth >= maxDepth {
		return nil, fmt.Errorf("nesting deeper than %d", maxDepth)
	}

	if isArray {
		length, err := decoder.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		array := make([]any, 0, min(length, 1024))
		for range length {
			item, err := readMsgPackValue(decoder, depth+1)
			if err != nil {
				return nil, err
			}
			array = append(array, item)
		}
		return array, nil
	}

	length, err := decoder.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	object := make(vici.Section, 0, min(length, 1024))
	for range length {
		key, err := decoder.DecodeString()
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		value, err := readMsgPackValue(decoder, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		object = append(object, vici.Field{Key: key, Value: value})
	}
	return object, nil
}

type msgpackEmitter struct {
	encoder *msgpack.Encoder
}

func (e *msgpackEmitter) beginMap(size int) error { return e.encoder.EncodeMapLen(size) }

func (e *msgpackEmitter) key(name string) error { return e.encoder.EncodeString(name) }

func (e *msgpackEmitter) beginArray(size int) error { return e.encoder.EncodeArrayLen(size) }

func (e *msgpackEmitter) text(value string) error { return e.encoder.EncodeString(value) }

func (e *msgpackEmitter) bytes(value []byte) error { return e.encoder.EncodeBytes(value) }

func (e *msgpackEmitter) end() error { return nil }
