// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import (
	"bytes"
	"encoding"
	"io"
	"reflect"
	"strconv"
	"unicode/utf8"
)

// Unmarshal decodes the VICI message in data into the value pointed to
// by v. Byte slices in v never alias data.
func Unmarshal(data []byte, v any) error {
	return NewBytesDecoder(data).Decode(v)
}

// decodeStateKind is the position the decoder is reading at. It decides
// how the next token is parsed.
type decodeStateKind uint8

const (
	// decodeNone: at a section body (the top level, or after a
	// SectionStart name).
	decodeNone decodeStateKind = iota

	// decodeKey: a KeyValue tag was read; its key comes next.
	decodeKey

	// decodeValue: the value of a KeyValue or ListItem comes next.
	decodeValue

	// decodeSectionKey: a SectionStart tag was read; its name comes next.
	decodeSectionKey

	// decodeListName: a ListStart tag was read; its name comes next.
	decodeListName

	// decodeListItem: inside a list whose elements have shape list.
	decodeListItem
)

type decodeState struct {
	kind decodeStateKind

	// list is shapeScalar or shapeSection for decodeListItem.
	list shape
}

// describe names what the input holds at this state, for errors.
func (s decodeState) describe() string {
	switch s.kind {
	case decodeKey, decodeSectionKey, decodeListName:
		return "a key"
	case decodeValue:
		return "a value"
	case decodeListItem:
		if s.list == shapeSection {
			return "a list of sections"
		}
		return "a list"
	default:
		return "a section"
	}
}

// Decoder reads VICI messages from an input.
type Decoder struct {
	read reader

	// level is the number of open sections and lists; 0 is the
	// implicit top level.
	level int
	state decodeState

	scratch []byte
	alias   bool
}

// NewDecoder returns a decoder that reads from r. The decoder reads r
// in small chunks and consumes it to the end: a VICI message has no
// terminator, so r must hold exactly one message.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{read: newStreamReader(r)}
}

// NewBytesDecoder returns a decoder that reads the message in data
// without copying it.
func NewBytesDecoder(data []byte) *Decoder {
	return &Decoder{read: newSliceReader(data)}
}

// AliasInput makes byte slices decoded by a bytes decoder share memory
// with its input instead of being copied. It has no effect on a
// decoder reading from an io.Reader.
func (d *Decoder) AliasInput() {
	d.alias = true
}

// Position returns the number of input bytes consumed so far.
func (d *Decoder) Position() int {
	return d.read.position()
}

// Decode reads a message into the value pointed to by v.
func (d *Decoder) Decode(v any) error {
	target := reflect.ValueOf(v)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return messageError("cannot decode into %s: need a non-nil pointer", describe(target))
	}
	d.level = 0
	d.state = decodeState{}
	return d.decodeValue(target.Elem())
}

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

// decodeValue decodes the next value into v according to v's type and
// the current state. An invalid v skips the value.
func (d *Decoder) decodeValue(v reflect.Value) error {
	if !v.IsValid() {
		return d.skip()
	}
	if v.Type() == sectionType {
		return d.decodeSection(v)
	}
	if v.Kind() == reflect.Pointer {
		absent, err := d.absent()
		if err != nil {
			return err
		}
		if absent {
			v.SetZero()
			return nil
		}
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return d.decodeValue(v.Elem())
	}
	if v.CanAddr() && reflect.PointerTo(v.Type()).Implements(textUnmarshalerType) {
		return d.decodeText(v)
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.NumMethod() != 0 {
			return messageErrorAt(d.read.position(), "cannot decode into interface %s", v.Type())
		}
		value, err := d.decodeAny()
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(value))
		return nil
	case reflect.Struct:
		return d.decodeStruct(v)
	case reflect.Map:
		return d.decodeMap(v)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return d.decodeBytes(v)
		}
		return d.decodeList(v)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return d.decodeBytes(v)
		}
		return d.decodeList(v)
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return d.decodeScalar(v)
	default:
		return messageErrorAt(d.read.position(), "cannot decode into value of type %s", v.Type())
	}
}

// absent consumes a zero-length token and reports true when the current
// position permits an optional value. Section bodies and lists always
// hold a value.
func (d *Decoder) absent() (bool, error) {
	switch d.state.kind {
	case decodeValue:
		length, err := d.read.peekValueLength()
		if err != nil || length != 0 {
			return false, err
		}
		_, err = d.read.parseRawValue(&d.scratch)
		return err == nil, err
	case decodeKey, decodeSectionKey, decodeListName:
		length, err := d.read.peekKeyLength()
		if err != nil || length != 0 {
			return false, err
		}
		_, err = d.read.parseKey(&d.scratch)
		return err == nil, err
	default:
		return false, nil
	}
}

// parseText consumes a scalar and returns its validated text.
func (d *Decoder) parseText(target reflect.Type) ([]byte, error) {
	switch d.state.kind {
	case decodeKey, decodeSectionKey, decodeListName:
		return d.read.parseKey(&d.scratch)
	case decodeValue:
		return d.read.parseValue(&d.scratch)
	default:
		return nil, messageErrorAt(d.read.position(), "cannot decode %s into %s", d.state.describe(), target)
	}
}

// parseRaw consumes a scalar without validating it.
func (d *Decoder) parseRaw(target reflect.Type) ([]byte, error) {
	switch d.state.kind {
	case decodeKey, decodeSectionKey, decodeListName:
		return d.read.parseKey(&d.scratch)
	case decodeValue:
		return d.read.parseRawValue(&d.scratch)
	default:
		return nil, messageErrorAt(d.read.position(), "cannot decode %s into %s", d.state.describe(), target)
	}
}

func (d *Decoder) decodeScalar(v reflect.Value) error {
	start := d.read.position()
	text, err := d.parseText(v.Type())
	if err != nil {
		return err
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(string(text))
	case reflect.Bool:
		switch string(text) {
		case "yes":
			v.SetBool(true)
		case "no":
			v.SetBool(false)
		default:
			return messageErrorAt(start, "invalid boolean %q: expected \"yes\" or \"no\"", text)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(string(text), 10, v.Type().Bits())
		if err != nil {
			return messageErrorAt(start, "invalid %s %q: %v", v.Type(), text, numError(err))
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(string(text), 10, v.Type().Bits())
		if err != nil {
			return messageErrorAt(start, "invalid %s %q: %v", v.Type(), text, numError(err))
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(string(text), v.Type().Bits())
		if err != nil {
			return messageErrorAt(start, "invalid %s %q: %v", v.Type(), text, numError(err))
		}
		v.SetFloat(n)
	}
	return nil
}

// numError strips the function and input from a strconv error; the
// caller already reports the input.
func numError(err error) error {
	if numErr, ok := err.(*strconv.NumError); ok {
		return numErr.Err
	}
	return err
}

func (d *Decoder) decodeText(v reflect.Value) error {
	start := d.read.position()
	text, err := d.parseText(v.Type())
	if err != nil {
		return err
	}
	if err := v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText(text); err != nil {
		return messageErrorAt(start, "decoding %s: %v", v.Type(), err)
	}
	return nil
}

func (d *Decoder) decodeBytes(v reflect.Value) error {
	raw, err := d.parseRaw(v.Type())
	if err != nil {
		return err
	}
	if v.Kind() == reflect.Array {
		if len(raw) != v.Len() {
			return messageErrorAt(d.read.position(), "cannot decode %d bytes into %s", len(raw), v.Type())
		}
		reflect.Copy(v, reflect.ValueOf(raw))
		return nil
	}
	if !d.alias || !d.read.borrowed() {
		raw = bytes.Clone(raw)
	}
	v.SetBytes(raw)
	return nil
}

// expectSection fails unless the input holds a section body.
func (d *Decoder) expectSection(target reflect.Type) error {
	if d.state.kind == decodeNone || (d.state.kind == decodeListItem && d.state.list == shapeSection) {
		return nil
	}
	return messageErrorAt(d.read.position(), "cannot decode %s into %s", d.state.describe(), target)
}

// nextKey reads the tag and key of the next entry of the current
// section. It reports false at the end of the section.
func (d *Decoder) nextKey() (string, bool, error) {
	offset := d.read.position()
	tag, err := d.read.parseTag()
	if err != nil {
		if d.level == 0 && isEOF(err) {
			return "", false, nil
		}
		return "", false, err
	}
	switch tag {
	case SectionStart:
		d.level++
		d.state = decodeState{kind: decodeSectionKey}
	case ListStart:
		d.level++
		d.state = decodeState{kind: decodeListName}
	case KeyValue:
		d.state = decodeState{kind: decodeKey}
	case SectionEnd:
		if d.level == 0 {
			return "", false, unexpectedElement(tag, offset)
		}
		d.level--
		d.state = decodeState{}
		return "", false, nil
	default:
		return "", false, unexpectedElement(tag, offset)
	}
	key, err := d.read.parseKey(&d.scratch)
	if err != nil {
		return "", false, err
	}
	return string(key), true, nil
}

// nextValue decodes the value of the entry whose key was just read.
func (d *Decoder) nextValue(v reflect.Value) error {
	switch d.state.kind {
	case decodeListName:
		d.state = decodeState{kind: decodeListItem, list: shapeScalar}
	case decodeKey:
		d.state = decodeState{kind: decodeValue}
	default:
		d.state = decodeState{}
	}
	return d.decodeValue(v)
}

// nextElement decodes the next element of the current list into v. It
// reports false at the end of the list.
func (d *Decoder) nextElement(v reflect.Value) (bool, error) {
	offset := d.read.position()
	tag, err := d.read.parseTag()
	if err != nil {
		return false, err
	}
	list := d.state.list
	if d.state.kind != decodeListItem {
		return false, unexpectedElement(tag, offset)
	}
	switch {
	case tag == ListItem && list == shapeScalar:
		d.state = decodeState{kind: decodeValue}
		if err := d.decodeValue(v); err != nil {
			return false, err
		}
		d.state = decodeState{kind: decodeListItem, list: shapeScalar}
		return true, nil
	case tag == SectionStart && list == shapeSection:
		d.level++
		d.state = decodeState{kind: decodeSectionKey}
		// The name is the element's position and carries no information.
		if _, err := d.read.parseKey(&d.scratch); err != nil {
			return false, err
		}
		d.state = decodeState{kind: decodeListItem, list: shapeSection}
		if err := d.decodeValue(v); err != nil {
			return false, err
		}
		d.state = decodeState{kind: decodeListItem, list: shapeSection}
		return true, nil
	case (tag == ListEnd && list == shapeScalar) || (tag == SectionEnd && list == shapeSection):
		if d.level == 0 {
			return false, unexpectedElement(tag, offset)
		}
		d.level--
		d.state = decodeState{}
		return false, nil
	default:
		return false, unexpectedElement(tag, offset)
	}
}

// beginList prepares to read list elements. A list of sections is
// introduced by SectionStart, which leaves the decoder at a section
// body.
func (d *Decoder) beginList(target reflect.Type) error {
	if d.state.kind == decodeNone {
		d.state = decodeState{kind: decodeListItem, list: shapeSection}
	}
	if d.state.kind != decodeListItem {
		return messageErrorAt(d.read.position(), "cannot decode %s into %s", d.state.describe(), target)
	}
	return nil
}

func (d *Decoder) decodeList(v reflect.Value) error {
	if err := d.beginList(v.Type()); err != nil {
		return err
	}
	elementType := v.Type().Elem()
	if v.Kind() == reflect.Array {
		i := 0
		for ; ; i++ {
			element := reflect.Value{}
			if i < v.Len() {
				element = v.Index(i)
			}
			more, err := d.nextElement(element)
			if err != nil {
				return err
			}
			if !more {
				break
			}
			if i >= v.Len() {
				return messageErrorAt(d.read.position(), "too many elements for %s", v.Type())
			}
		}
		for ; i < v.Len(); i++ {
			v.Index(i).SetZero()
		}
		return nil
	}

	result := reflect.MakeSlice(v.Type(), 0, 0)
	for {
		element := reflect.New(elementType).Elem()
		more, err := d.nextElement(element)
		if err != nil {
			return err
		}
		if !more {
			break
		}
		result = reflect.Append(result, element)
	}
	v.Set(result)
	return nil
}

func (d *Decoder) decodeStruct(v reflect.Value) error {
	if err := d.expectSection(v.Type()); err != nil {
		return err
	}
	fields := cachedFields(v.Type())
	seen := make([]bool, len(fields.list))
	for {
		key, more, err := d.nextKey()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		index, known := fields.byName[key]
		if !known {
			if err := d.nextValue(reflect.Value{}); err != nil {
				return err
			}
			continue
		}
		target, _ := fieldByIndex(v, fields.list[index].index, true)
		if err := d.nextValue(target); err != nil {
			return err
		}
		seen[index] = true
	}
	for i, field := range fields.list {
		if field.required && !seen[i] {
			return messageErrorAt(d.read.position(), "missing required field %q in %s", field.name, v.Type())
		}
	}
	return nil
}

func (d *Decoder) decodeMap(v reflect.Value) error {
	if err := d.expectSection(v.Type()); err != nil {
		return err
	}
	mapType := v.Type()
	if mapType.Key().Kind() != reflect.String {
		return messageErrorAt(d.read.position(), "cannot decode into map with %s keys", mapType.Key())
	}
	if v.IsNil() {
		v.Set(reflect.MakeMap(mapType))
	}
	for {
		key, more, err := d.nextKey()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		element := reflect.New(mapType.Elem()).Elem()
		if err := d.nextValue(element); err != nil {
			return err
		}
		v.SetMapIndex(reflect.ValueOf(key).Convert(mapType.Key()), element)
	}
}

func (d *Decoder) decodeSection(v reflect.Value) error {
	section, err := d.readSection()
	if err != nil {
		return err
	}
	v.Set(reflect.ValueOf(section))
	return nil
}

func (d *Decoder) readSection() (Section, error) {
	if err := d.expectSection(sectionType); err != nil {
		return nil, err
	}
	section := Section{}
	for {
		key, more, err := d.nextKey()
		if err != nil {
			return nil, err
		}
		if !more {
			return section, nil
		}
		var value any
		if err := d.nextValue(reflect.ValueOf(&value).Elem()); err != nil {
			return nil, err
		}
		section = append(section, Field{Key: key, Value: value})
	}
}

// decodeAny decodes the next value into its schema-less form.
func (d *Decoder) decodeAny() (any, error) {
	switch d.state.kind {
	case decodeValue:
		raw, err := d.read.parseRawValue(&d.scratch)
		if err != nil {
			return nil, err
		}
		if utf8.Valid(raw) {
			return string(raw), nil
		}
		return bytes.Clone(raw), nil
	case decodeKey, decodeSectionKey, decodeListName:
		key, err := d.read.parseKey(&d.scratch)
		if err != nil {
			return nil, err
		}
		return string(key), nil
	case decodeListItem:
		if d.state.list == shapeScalar {
			items := []string{}
			if err := d.decodeList(reflect.ValueOf(&items).Elem()); err != nil {
				return nil, err
			}
			return items, nil
		}
		return d.readSection()
	default:
		return d.readSection()
	}
}

// skip consumes the next value without decoding it.
func (d *Decoder) skip() error {
	switch d.state.kind {
	case decodeValue:
		_, err := d.read.parseRawValue(&d.scratch)
		return err
	case decodeKey, decodeSectionKey, decodeListName:
		_, err := d.read.parseKey(&d.scratch)
		return err
	case decodeListItem:
		if d.state.list == shapeScalar {
			for {
				more, err := d.nextElement(reflect.Value{})
				if err != nil || !more {
					return err
				}
			}
		}
	}
	for {
		_, more, err := d.nextKey()
		if err != nil || !more {
			return err
		}
		if err := d.nextValue(reflect.Value{}); err != nil {
			return err
		}
	}
}
