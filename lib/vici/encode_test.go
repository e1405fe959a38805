// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestMarshalKeyValue(t *testing.T) {
	actual, err := Marshal(map[string]string{"key1": "value1"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	expected := []byte{3, 4, 'k', 'e', 'y', '1', 0, 6, 'v', 'a', 'l', 'u', 'e', '1'}
	if !bytes.Equal(actual, expected) {
		t.Errorf("Marshal = %v, want %v", actual, expected)
	}
}

func TestMarshalList(t *testing.T) {
	actual, err := Marshal(map[string][]string{"list1": {"item1", "item2"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	expected := []byte{
		4, 5, 'l', 'i', 's', 't', '1',
		5, 0, 5, 'i', 't', 'e', 'm', '1',
		5, 0, 5, 'i', 't', 'e', 'm', '2',
		6,
	}
	if !bytes.Equal(actual, expected) {
		t.Errorf("Marshal = %v, want %v", actual, expected)
	}
}

func TestMarshalNestedSections(t *testing.T) {
	actual, err := Marshal(exampleValue)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(actual, exampleMessage) {
		t.Errorf("Marshal =\n%v\nwant\n%v", actual, exampleMessage)
	}
}

func TestMarshalSectionList(t *testing.T) {
	actual, err := Marshal(poolsValue)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(actual, poolsMessage) {
		t.Errorf("Marshal =\n%v\nwant\n%v", actual, poolsMessage)
	}
}

func TestMarshalAbsentValue(t *testing.T) {
	type record struct {
		Name     string  `vici:"name"`
		Identity *string `vici:"identity"`
	}
	actual, err := Marshal(record{Name: "a"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	expected := message(keyValue("name", "a"), []byte{3, 8}, []byte("identity"), []byte{0, 0})
	if !bytes.Equal(actual, expected) {
		t.Errorf("Marshal = %v, want %v", actual, expected)
	}
}

func TestWriteAbsentFraming(t *testing.T) {
	tests := []struct {
		name     string
		state    encodeState
		expected []byte
	}{
		{"key", encodeState{kind: encodeKey, index: -1}, []byte{0}},
		{"list name", encodeState{kind: encodeListItem, list: shapeScalar, index: -1}, []byte{0}},
		{"value", encodeState{kind: encodeValue, index: -1}, []byte{0, 0}},
		{"list element", encodeState{kind: encodeListItem, list: shapeScalar, index: 2}, []byte{0, 0}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buffer bytes.Buffer
			encoder := NewEncoder(&buffer)
			encoder.state = test.state
			if err := encoder.writeAbsent(); err != nil {
				t.Fatalf("writeAbsent: %v", err)
			}
			if !bytes.Equal(buffer.Bytes(), test.expected) {
				t.Errorf("wrote %v, want %v", buffer.Bytes(), test.expected)
			}
		})
	}

	encoder := NewEncoder(&bytes.Buffer{})
	viciError(t, encoder.writeAbsent())
}

func TestMarshalScalarText(t *testing.T) {
	type scalars struct {
		Yes     bool    `vici:"yes"`
		No      bool    `vici:"no"`
		Int     int     `vici:"int"`
		Int8    int8    `vici:"int8"`
		Uint    uint64  `vici:"uint"`
		Float   float64 `vici:"float"`
		Float32 float32 `vici:"float32"`
		Rune    rune    `vici:"rune"`
		Bytes   []byte  `vici:"bytes"`
		Array   [2]byte `vici:"array"`
	}
	actual, err := Marshal(scalars{
		Yes:     true,
		Int:     -42,
		Int8:    7,
		Uint:    18446744073709551615,
		Float:   1.5,
		Float32: 0.1,
		Rune:    'A',
		Bytes:   []byte{0xff, 0x00},
		Array:   [2]byte{'o', 'k'},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	expected := message(
		keyValue("yes", "yes"),
		keyValue("no", "no"),
		keyValue("int", "-42"),
		keyValue("int8", "7"),
		keyValue("uint", "18446744073709551615"),
		keyValue("float", "1.5"),
		keyValue("float32", "0.1"),
		keyValue("rune", "65"),
		keyValue("bytes", "\xff\x00"),
		keyValue("array", "ok"),
	)
	if !bytes.Equal(actual, expected) {
		t.Errorf("Marshal =\n%q\nwant\n%q", actual, expected)
	}
}

func TestMarshalFieldOptions(t *testing.T) {
	type Common struct {
		Version string `vici:"version"`
	}
	type options struct {
		Common
		Name    string            `vici:"name"`
		Skipped string            `vici:"-"`
		Empty   string            `vici:"empty,omitempty"`
		Nil     *string           `vici:"nil,omitempty"`
		Labels  map[string]string `vici:"labels,omitempty"`
		Plain   string
		private string
	}
	actual, err := Marshal(&options{
		Common:  Common{Version: "2"},
		Name:    "n",
		Skipped: "s",
		Plain:   "p",
		private: "x",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	expected := message(
		keyValue("version", "2"),
		keyValue("name", "n"),
		keyValue("Plain", "p"),
	)
	if !bytes.Equal(actual, expected) {
		t.Errorf("Marshal =\n%q\nwant\n%q", actual, expected)
	}
}

func TestMarshalMapKeysSorted(t *testing.T) {
	actual, err := Marshal(map[string]any{"b": "2", "a": "1", "c": map[string]int{"z": 26, "y": 25}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	expected := message(
		keyValue("a", "1"),
		keyValue("b", "2"),
		sectionStart("c"),
		keyValue("y", "25"),
		keyValue("z", "26"),
		sectionEnd(),
	)
	if !bytes.Equal(actual, expected) {
		t.Errorf("Marshal =\n%q\nwant\n%q", actual, expected)
	}
}

func TestMarshalSectionOrder(t *testing.T) {
	section := Section{
		{Key: "z", Value: "last-name-first"},
		{Key: "a", Value: []string{}},
		{Key: "children", Value: []Section{
			{{Key: "mode", Value: "tunnel"}},
			{{Key: "mode", Value: "transport"}},
		}},
		{Key: "count", Value: 3},
	}
	actual, err := Marshal(section)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	expected := message(
		keyValue("z", "last-name-first"),
		listStart("a"),
		listEnd(),
		sectionStart("children"),
		sectionStart("0"),
		keyValue("mode", "tunnel"),
		sectionEnd(),
		sectionStart("1"),
		keyValue("mode", "transport"),
		sectionEnd(),
		sectionEnd(),
		keyValue("count", "3"),
	)
	if !bytes.Equal(actual, expected) {
		t.Errorf("Marshal =\n%q\nwant\n%q", actual, expected)
	}
}

func TestMarshalErrors(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		message string
	}{
		{"nil", nil, "top level must be a section"},
		{"scalar", "text", "top level must be a section"},
		{"list", []string{"a"}, "top level must be a section"},
		{"nil pointer", (*exampleRoot)(nil), "top level must be a section"},
		{"channel", map[string]any{"c": make(chan int)}, "cannot encode value of type chan int"},
		{"nested list", map[string]any{"l": [][]string{{"a"}}}, "lists cannot contain lists"},
		{"int keys", map[string]any{"m": map[int]string{1: "a"}}, "cannot encode map with int keys"},
		{"long key", map[string]string{strings.Repeat("k", 256): "v"}, "the limit is 255"},
		{"long value", map[string]string{"k": strings.Repeat("v", 65536)}, "the limit is 65535"},
		{"marshal text", map[string]leaseStatus{"s": leaseStatus(9)}, "unknown lease status"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Marshal(test.value)
			viciErr := viciError(t, err)
			if viciErr.Code != CodeMessage {
				t.Errorf("Code = %v, want %v", viciErr.Code, CodeMessage)
			}
			if !errors.Is(err, ErrInvalidData) {
				t.Errorf("errors.Is(%v, ErrInvalidData) = false", err)
			}
			if !strings.Contains(err.Error(), test.message) {
				t.Errorf("error %q does not contain %q", err, test.message)
			}
		})
	}
}

type failingWriter struct {
	remaining int
}

var errWriteFailed = errors.New("write failed")

func (w *failingWriter) Write(p []byte) (int, error) {
	if len(p) > w.remaining {
		n := w.remaining
		w.remaining = 0
		return n, errWriteFailed
	}
	w.remaining -= len(p)
	return len(p), nil
}

func TestEncoderWriteFailure(t *testing.T) {
	err := NewEncoder(&failingWriter{remaining: 5}).Encode(exampleValue)
	viciErr := viciError(t, err)
	if viciErr.Code != CodeIO {
		t.Errorf("Code = %v, want %v", viciErr.Code, CodeIO)
	}
	if !errors.Is(err, errWriteFailed) {
		t.Errorf("errors.Is(%v, errWriteFailed) = false", err)
	}
	if offset, ok := viciErr.Position(); !ok || offset != 5 {
		t.Errorf("Position() = %d, %v; want 5, true", offset, ok)
	}
}

func TestEncoderReuse(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for range 2 {
		if err := encoder.Encode(exampleValue); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	expected := message(exampleMessage, exampleMessage)
	if !bytes.Equal(buffer.Bytes(), expected) {
		t.Errorf("two encodes produced %v, want %v", buffer.Bytes(), expected)
	}
}
