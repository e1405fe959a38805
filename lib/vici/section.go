// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import (
	"reflect"
	"slices"
)

// Field is one entry of a [Section].
type Field struct {
	Key   string
	Value any
}

// Section is an ordered VICI section. It is the schema-less
// representation of a message: decoding into an empty interface or a
// Section yields values of the following types, and encoding a Section
// reproduces the original element order.
//
//   - string: a value that is valid UTF-8
//   - []byte: a value that is not valid UTF-8
//   - []string: a list
//   - Section: a nested section, including a list of sections, whose
//     children are keyed "0", "1", ...
//
// When encoding, a Section value may also hold anything else this
// package can encode, such as integers, structs or []Section.
type Section []Field

var sectionType = reflect.TypeFor[Section]()

// Len returns the number of entries.
func (s Section) Len() int { return len(s) }

// Keys returns the entry keys in order.
func (s Section) Keys() []string {
	keys := make([]string, len(s))
	for i, entry := range s {
		keys[i] = entry.Key
	}
	return keys
}

// Get returns the value of the first entry named key.
func (s Section) Get(key string) (any, bool) {
	for _, entry := range s {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return nil, false
}

// Text returns the value of key as a string. Raw byte values are
// converted; other types and missing keys yield "".
func (s Section) Text(key string) string {
	value, _ := s.Get(key)
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return ""
	}
}

// List returns the list stored under key, or nil.
func (s Section) List(key string) []string {
	value, _ := s.Get(key)
	list, _ := value.([]string)
	return list
}

// Child returns the nested section stored under key, or nil.
func (s Section) Child(key string) Section {
	value, _ := s.Get(key)
	child, _ := value.(Section)
	return child
}

// Children returns the elements of a list of sections stored under
// key. Both a decoded section keyed "0", "1", ... and a []Section value
// are accepted.
func (s Section) Children(key string) []Section {
	value, _ := s.Get(key)
	switch typed := value.(type) {
	case []Section:
		return typed
	case Section:
		children := make([]Section, 0, len(typed))
		for _, entry := range typed {
			if child, ok := entry.Value.(Section); ok {
				children = append(children, child)
			}
		}
		return children
	default:
		return nil
	}
}

// Set replaces the value of the first entry named key, or appends a new
// entry.
func (s *Section) Set(key string, value any) {
	for i := range *s {
		if (*s)[i].Key == key {
			(*s)[i].Value = value
			return
		}
	}
	*s = append(*s, Field{Key: key, Value: value})
}

// Delete removes every entry named key.
func (s *Section) Delete(key string) {
	*s = slices.DeleteFunc(*s, func(entry Field) bool { return entry.Key == key })
}
