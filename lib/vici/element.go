// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import "fmt"

// ElementTag identifies the kind of the next element in a message.
type ElementTag uint8

const (
	// SectionStart opens a named section. A key with the section name
	// follows.
	SectionStart ElementTag = iota + 1

	// SectionEnd closes the innermost open section.
	SectionEnd

	// KeyValue introduces a key followed by a value.
	KeyValue

	// ListStart opens a named list. A key with the list name follows.
	ListStart

	// ListItem introduces one value of the enclosing list.
	ListItem

	// ListEnd closes the innermost open list.
	ListEnd
)

// Valid reports whether t is one of the six defined tags.
func (t ElementTag) Valid() bool {
	return t >= SectionStart && t <= ListEnd
}

// HasKey reports whether a key follows the tag on the wire.
func (t ElementTag) HasKey() bool {
	return t == SectionStart || t == KeyValue || t == ListStart
}

// HasValue reports whether a value follows the tag (after the key, if
// any).
func (t ElementTag) HasValue() bool {
	return t == KeyValue || t == ListItem
}

func (t ElementTag) String() string {
	switch t {
	case SectionStart:
		return "SectionStart"
	case SectionEnd:
		return "SectionEnd"
	case KeyValue:
		return "KeyValue"
	case ListStart:
		return "ListStart"
	case ListItem:
		return "ListItem"
	case ListEnd:
		return "ListEnd"
	default:
		return fmt.Sprintf("ElementTag(%d)", uint8(t))
	}
}

const (
	// MaxKeyLength is the longest key a one-byte length prefix can
	// describe.
	MaxKeyLength = 1<<8 - 1

	// MaxValueLength is the longest value a two-byte length prefix can
	// describe.
	MaxValueLength = 1<<16 - 1
)
