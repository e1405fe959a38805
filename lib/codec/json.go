// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/vici/lib/vici"
)

// JSON renders messages as indented JSON objects. Raw byte values are
// rendered as standard base64 strings; on input every JSON string is
// text. Input may contain comments and trailing commas.
var JSON Format = jsonFormat{}

type jsonFormat struct{}

func (jsonFormat) Name() string { return "json" }

func (jsonFormat) Marshal(message vici.Section) ([]byte, error) {
	var e jsonEmitter
	if err := marshalWith(&e, message); err != nil {
		return nil, err
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, e.buffer.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	indented.WriteByte('\n')
	return indented.Bytes(), nil
}

func (jsonFormat) Unmarshal(data []byte) (vici.Section, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.UseNumber()

	document, err := readJSONValue(decoder, 0)
	if err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("parsing JSON: unexpected data after the top-level value")
	}
	return topLevel(document)
}

// readJSONValue reads one value, keeping object members in document
// order.
func readJSONValue(decoder *json.Decoder, depth int) (any, error) {
	token, err := decoder.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	delimiter, ok := token.(json.Delim)
	if !ok {
		return token, nil
	}
	if depth >= maxDepth {
		return nil, fmt.Errorf("nesting deeper than %d", maxDepth)
	}
	switch delimiter {
	case '{':
		object := vici.Section{}
		for decoder.More() {
			keyToken, err := decoder.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyToken.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is not a string", keyToken)
			}
			value, err := readJSONValue(decoder, depth+1)
			if err != nil {
				return nil, err
			}
			object = append(object, vici.Field{Key: key, Value: value})
		}
		if _, err := decoder.Token(); err != nil {
			return nil, err
		}
		return object, nil
	case '[':
		array := []any{}
		for decoder.More() {
			value, err := readJSONValue(decoder, depth+1)
			if err != nil {
				return nil, err
			}
			array = append(array, value)
		}
		if _, err := decoder.Token(); err != nil {
			return nil, err
		}
		return array, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delimiter)
	}
}

// jsonEmitter writes compact JSON; Marshal indents it afterwards.
type jsonEmitter struct {
	buffer bytes.Buffer

	// populated records, per open container, whether a member has
	// been written; closing holds the container's closing byte.
	populated []bool
	closing   []byte

	// afterKey is set between a key and its value.
	afterKey bool
}

func (e *jsonEmitter) separate() {
	if e.afterKey {
		e.afterKey = false
		return
	}
	if depth := len(e.populated); depth > 0 {
		if e.populated[depth-1] {
			e.buffer.WriteByte(',')
		}
		e.populated[depth-1] = true
	}
}

func (e *jsonEmitter) writeString(value string) error {
	encoder := json.NewEncoder(&e.buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return err
	}
	// Encode terminates the value with a newline.
	e.buffer.Truncate(e.buffer.Len() - 1)
	return nil
}

func (e *jsonEmitter) open(opening, closing byte) {
	e.separate()
	e.buffer.WriteByte(opening)
	e.populated = append(e.populated, false)
	e.closing = append(e.closing, closing)
}

func (e *jsonEmitter) beginMap(int) error {
	e.open('{', '}')
	return nil
}

func (e *jsonEmitter) key(name string) error {
	e.separate()
	if err := e.writeString(name); err != nil {
		return err
	}
	e.buffer.WriteByte(':')
	e.afterKey = true
	return nil
}

func (e *jsonEmitter) beginArray(int) error {
	e.open('[', ']')
	return nil
}

func (e *jsonEmitter) text(value string) error {
	e.separate()
	return e.writeString(value)
}

func (e *jsonEmitter) bytes(value []byte) error {
	e.separate()
	return e.writeString(base64.StdEncoding.EncodeToString(value))
}

func (e *jsonEmitter) end() error {
	depth := len(e.populated)
	e.populated = e.populated[:depth-1]
	e.buffer.WriteByte(e.closing[depth-1])
	e.closing = e.closing[:depth-1]
	return nil
}
