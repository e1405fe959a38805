// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/bureau-foundation/vici/lib/vici"
)

// Format converts VICI messages to and from an interchange format.
type Format interface {
	// Name is the format's name as accepted by Lookup.
	Name() string

	// Marshal renders a message. Entry order is preserved.
	Marshal(message vici.Section) ([]byte, error)

	// Unmarshal parses a document whose top level is a map into a
	// message ready for vici.Marshal.
	Unmarshal(data []byte) (vici.Section, error)
}

var formats = map[string]Format{
	"cbor":    CBOR,
	"json":    JSON,
	"msgpack": MsgPack,
	"yaml":    YAML,
}

// Lookup returns the format registered under name.
func Lookup(name string) (Format, error) {
	format, ok := formats[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown format %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return format, nil
}

// Names returns the registered format names in sorted order.
func Names() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// maxDepth bounds the nesting of parsed input documents.
const maxDepth = 64

// canonical re-encodes message so that every value has one of the
// types a decoded message holds: string, []byte, []string or
// vici.Section. Anything vici.Marshal accepts is therefore accepted by
// every Format.
func canonical(message vici.Section) (vici.Section, error) {
	data, err := vici.Marshal(message)
	if err != nil {
		return nil, err
	}
	var result vici.Section
	if err := vici.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// emitter receives a canonical message in document order.
type emitter interface {
	beginMap(size int) error
	key(name string) error
	beginArray(size int) error
	text(value string) error
	bytes(value []byte) error
	end() error
}

// walk feeds a canonical message to e.
func walk(e emitter, message vici.Section) error {
	if err := e.beginMap(len(message)); err != nil {
		return err
	}
	for _, entry := range message {
		if err := e.key(entry.Key); err != nil {
			return err
		}
		switch value := entry.Value.(type) {
		case string:
			if err := e.text(value); err != nil {
				return err
			}
		case []byte:
			if err := e.bytes(value); err != nil {
				return err
			}
		case []string:
			if err := e.beginArray(len(value)); err != nil {
				return err
			}
			for _, item := range value {
				if err := e.text(item); err != nil {
					return err
				}
			}
			if err := e.end(); err != nil {
				return err
			}
		case vici.Section:
			if err := walk(e, value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected %T under key %q", entry.Value, entry.Key)
		}
	}
	return e.end()
}

// marshalWith canonicalizes message and walks it into e.
func marshalWith(e emitter, message vici.Section) error {
	message, err := canonical(message)
	if err != nil {
		return err
	}
	return walk(e, message)
}

// fromDocument converts a value parsed by a format's reader into a
// message value. Maps arrive as vici.Section and arrays as []any; both
// are converted recursively. Null values report skip.
func fromDocument(value any) (result any, skip bool, err error) {
	switch typed := value.(type) {
	case nil:
		return nil, true, nil
	case vici.Section:
		section, err := fromMap(typed)
		return section, false, err
	case []any:
		list, err := fromArray(typed)
		return list, false, err
	default:
		scalar, err := scalarValue(value)
		return scalar, false, err
	}
}

func fromMap(document vici.Section) (vici.Section, error) {
	result := make(vici.Section, 0, len(document))
	for _, entry := range document {
		value, skip, err := fromDocument(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Key, err)
		}
		if skip {
			continue
		}
		result = append(result, vici.Field{Key: entry.Key, Value: value})
	}
	return result, nil
}

// fromArray converts an array of scalars into a list and an array of
// maps into a list of sections.
func fromArray(items []any) (any, error) {
	if len(items) > 0 {
		if _, isMap := items[0].(vici.Section); isMap {
			sections := make([]vici.Section, len(items))
			for i, item := range items {
				document, ok := item.(vici.Section)
				if !ok {
					return nil, fmt.Errorf("item %d: array mixes maps and scalars", i)
				}
				section, err := fromMap(document)
				if err != nil {
					return nil, fmt.Errorf("item %d: %w", i, err)
				}
				sections[i] = section
			}
			return sections, nil
		}
	}

	list := make([]string, 0, len(items))
	for i, item := range items {
		switch item.(type) {
		case vici.Section:
			return nil, fmt.Errorf("item %d: array mixes maps and scalars", i)
		case []any:
			return nil, fmt.Errorf("item %d: nested arrays cannot be represented", i)
		case nil:
			return nil, fmt.Errorf("item %d: null list items cannot be represented", i)
		}
		scalar, err := scalarValue(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		switch typed := scalar.(type) {
		case string:
			list = append(list, typed)
		case []byte:
			list = append(list, string(typed))
		}
	}
	return list, nil
}

// scalarValue renders a parsed scalar as VICI value text. Byte strings
// stay []byte; booleans become "yes" or "no".
func scalarValue(value any) (any, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case []byte:
		return typed, nil
	case bool:
		if typed {
			return "yes", nil
		}
		return "no", nil
	case json.Number:
		return typed.String(), nil
	case int:
		return strconv.Itoa(typed), nil
	case int8:
		return strconv.FormatInt(int64(typed), 10), nil
	case int16:
		return strconv.FormatInt(int64(typed), 10), nil
	case int32:
		return strconv.FormatInt(int64(typed), 10), nil
	case int64:
		return strconv.FormatInt(typed, 10), nil
	case uint:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint64:
		return strconv.FormatUint(typed, 10), nil
	case float32:
		return formatFloat(float64(typed), 32)
	case float64:
		return formatFloat(typed, 64)
	default:
		return nil, fmt.Errorf("unsupported value of type %T", value)
	}
}

func formatFloat(value float64, bitSize int) (any, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("non-finite number %v", value)
	}
	return string(vici.AppendFloat(nil, value, bitSize)), nil
}

// topLevel checks that a parsed document is a map and converts it.
func topLevel(document any) (vici.Section, error) {
	section, ok := document.(vici.Section)
	if !ok {
		return nil, fmt.Errorf("top level must be a map, found %s", describe(document))
	}
	return fromMap(section)
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case []any:
		return "an array"
	case vici.Section:
		return "a map"
	default:
		return "a scalar"
	}
}
