// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import (
	"bytes"
	"encoding"
	"io"
	"reflect"
	"slices"
	"strconv"
)

// Marshal returns the VICI encoding of v, which must be a struct, a map
// with string keys, or a [Section] (or a pointer to one of these).
func Marshal(v any) ([]byte, error) {
	var buffer bytes.Buffer
	if err := NewEncoder(&buffer).Encode(v); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// encodeStateKind is the position the encoder is writing at. It decides
// how scalars are framed.
type encodeStateKind uint8

const (
	// encodeNone: outside any entry. Scalars cannot be written here.
	encodeNone encodeStateKind = iota

	// encodeKey: writing an entry key (one-byte length).
	encodeKey

	// encodeValue: writing an entry value (two-byte length).
	encodeValue

	// encodeListItem: inside a list. Before the first element the list
	// name is written with a one-byte length; elements use two bytes.
	encodeListItem
)

type encodeState struct {
	kind encodeStateKind

	// field is the shape of the entry whose key is being written.
	field shape

	// list is the shape of the elements of the open list.
	list shape

	// index is the position of the next list element, or -1 while the
	// list name is being written.
	index int
}

// Encoder writes VICI messages to an output stream.
type Encoder struct {
	w       io.Writer
	written int

	// level is the number of open sections; 0 is the implicit top
	// level.
	level int
	state encodeState

	scratch []byte
}

// NewEncoder returns an encoder that writes to w. Each call to Encode
// writes one complete message without buffering.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the VICI encoding of v.
func (e *Encoder) Encode(v any) error {
	e.level = 0
	e.state = encodeState{}
	value := reflect.ValueOf(v)
	top, err := probe(value)
	if err != nil {
		return err
	}
	if top != shapeSection {
		return messageError("cannot encode %s as a message: the top level must be a section", describe(value))
	}
	return e.encodeValue(value)
}

func describe(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	return v.Type().String()
}

func (e *Encoder) write(data []byte) error {
	n, err := e.w.Write(data)
	e.written += n
	if err != nil {
		return ioError(err, e.written)
	}
	return nil
}

func (e *Encoder) writeTag(tag ElementTag) error {
	e.scratch = append(e.scratch[:0], byte(tag))
	return e.write(e.scratch)
}

// keyPosition reports whether a scalar written in the current state
// takes a one-byte length prefix.
func (e *Encoder) keyPosition() bool {
	return e.state.kind == encodeKey || (e.state.kind == encodeListItem && e.state.index < 0)
}

// writeBytes writes a scalar framed for the current state.
func (e *Encoder) writeBytes(data []byte) error {
	switch {
	case e.state.kind == encodeNone:
		return messageError("cannot encode a scalar outside of a section")
	case e.keyPosition():
		if len(data) > MaxKeyLength {
			return messageError("key %q is %d bytes long, the limit is %d", truncateForError(data), len(data), MaxKeyLength)
		}
		e.scratch = append(e.scratch[:0], byte(len(data)))
	default:
		if len(data) > MaxValueLength {
			return messageError("value is %d bytes long, the limit is %d", len(data), MaxValueLength)
		}
		e.scratch = append(e.scratch[:0], byte(len(data)>>8), byte(len(data)))
	}
	e.scratch = append(e.scratch, data...)
	return e.write(e.scratch)
}

// writeAbsent writes the zero-length sentinel for a nil optional.
func (e *Encoder) writeAbsent() error {
	switch {
	case e.state.kind == encodeNone:
		return messageError("cannot encode an absent value outside of a section")
	case e.keyPosition():
		return e.write([]byte{0})
	default:
		return e.write([]byte{0, 0})
	}
}

func truncateForError(data []byte) string {
	if len(data) > 32 {
		return string(data[:32]) + "..."
	}
	return string(data)
}

// encodeValue writes v according to its Go type and the current state.
func (e *Encoder) encodeValue(v reflect.Value) error {
	for {
		if !v.IsValid() {
			return e.writeAbsent()
		}
		if v.Type() == sectionType {
			return e.encodeSection(v.Interface().(Section))
		}
		if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return e.writeAbsent()
			}
			if implementsTextMarshaler(v) && v.Kind() == reflect.Pointer {
				return e.encodeText(v)
			}
			v = v.Elem()
			continue
		}
		if implementsTextMarshaler(v) {
			return e.encodeText(v)
		}
		break
	}

	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return e.writeBytes([]byte("yes"))
		}
		return e.writeBytes([]byte("no"))
	case reflect.String:
		return e.writeBytes([]byte(v.String()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.writeBytes(strconv.AppendInt(nil, v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return e.writeBytes(strconv.AppendUint(nil, v.Uint(), 10))
	case reflect.Float32:
		return e.writeBytes(AppendFloat(nil, v.Float(), 32))
	case reflect.Float64:
		return e.writeBytes(AppendFloat(nil, v.Float(), 64))
	case reflect.Struct:
		return e.encodeStruct(v)
	case reflect.Map:
		return e.encodeMap(v)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return e.writeBytes(v.Bytes())
		}
		return e.encodeList(v)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			data := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(data), v)
			return e.writeBytes(data)
		}
		return e.encodeList(v)
	default:
		return messageError("cannot encode value of type %s", v.Type())
	}
}

func (e *Encoder) encodeText(v reflect.Value) error {
	if v.Kind() != reflect.Pointer && !v.Type().Implements(textMarshalerType) {
		v = v.Addr()
	}
	text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return messageError("encoding %s: %v", v.Type(), err)
	}
	return e.writeBytes(text)
}

// beginSection opens a section body. Only nested sections have an end
// tag; the top level is closed by the end of the message.
func (e *Encoder) beginSection() {
	e.level++
}

func (e *Encoder) endSection() error {
	if e.level > 1 {
		e.level--
		return e.writeTag(SectionEnd)
	}
	return nil
}

func (e *Encoder) encodeSection(section Section) error {
	e.beginSection()
	for _, entry := range section {
		if err := e.encodeEntry(entry.Key, reflect.ValueOf(entry.Value)); err != nil {
			return err
		}
	}
	return e.endSection()
}

func (e *Encoder) encodeStruct(v reflect.Value) error {
	e.beginSection()
	for _, field := range cachedFields(v.Type()).list {
		fieldValue, ok := fieldByIndex(v, field.index, false)
		if !ok {
			continue
		}
		if field.omitEmpty && isEmptyValue(fieldValue) {
			continue
		}
		if err := e.encodeEntry(field.name, fieldValue); err != nil {
			return err
		}
	}
	return e.endSection()
}

func (e *Encoder) encodeMap(v reflect.Value) error {
	if v.Type().Key().Kind() != reflect.String {
		return messageError("cannot encode map with %s keys", v.Type().Key())
	}
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		default:
			return 0
		}
	})
	e.beginSection()
	for _, key := range keys {
		if err := e.encodeEntry(key.String(), v.MapIndex(key)); err != nil {
			return err
		}
	}
	return e.endSection()
}

// encodeEntry writes one keyed entry. The value is probed first because
// its tag must be written before it.
func (e *Encoder) encodeEntry(key string, value reflect.Value) error {
	kind, err := probe(value)
	if err != nil {
		return err
	}
	e.state = encodeState{kind: encodeKey, field: kind, index: -1}
	switch kind {
	case shapeSectionList:
		e.state = encodeState{kind: encodeListItem, list: shapeSection, index: -1}
	case shapeScalarList:
		e.state = encodeState{kind: encodeListItem, list: shapeScalar, index: -1}
	}
	if err := e.writeTag(kind.tag()); err != nil {
		return err
	}
	if err := e.writeBytes([]byte(key)); err != nil {
		return err
	}
	if e.state.kind != encodeListItem {
		e.state = encodeState{kind: encodeValue, index: -1}
	}
	return e.encodeValue(value)
}

// encodeList writes the elements of a list whose name has been written.
func (e *Encoder) encodeList(v reflect.Value) error {
	for i := 0; i < v.Len(); i++ {
		if err := e.encodeElement(v.Index(i)); err != nil {
			return err
		}
	}
	if e.state.kind != encodeListItem {
		return messageError("cannot encode %s outside of a list", v.Type())
	}
	if e.state.list == shapeSection {
		return e.writeTag(SectionEnd)
	}
	return e.writeTag(ListEnd)
}

func (e *Encoder) encodeElement(element reflect.Value) error {
	if e.state.kind != encodeListItem {
		return messageError("cannot encode list element of type %s outside of a list", describe(element))
	}
	index := max(e.state.index, 0)
	switch e.state.list {
	case shapeScalar:
		if err := e.writeTag(ListItem); err != nil {
			return err
		}
		e.state = encodeState{kind: encodeListItem, list: shapeScalar, index: index}
		if err := e.encodeValue(element); err != nil {
			return err
		}
		e.state = encodeState{kind: encodeListItem, list: shapeScalar, index: index + 1}
		return nil
	default:
		if err := e.writeTag(SectionStart); err != nil {
			return err
		}
		e.state = encodeState{kind: encodeKey, field: shapeSection, index: -1}
		if err := e.writeBytes(strconv.AppendInt(nil, int64(index), 10)); err != nil {
			return err
		}
		e.state = encodeState{kind: encodeListItem, list: shapeSection, index: index}
		if err := e.encodeValue(element); err != nil {
			return err
		}
		e.state = encodeState{kind: encodeListItem, list: shapeSection, index: index + 1}
		return nil
	}
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer:
		return v.IsZero()
	default:
		return false
	}
}
