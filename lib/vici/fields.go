// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import (
	"reflect"
	"strings"
	"sync"
)

// field describes one encodable struct field.
type field struct {
	name      string
	index     []int
	omitEmpty bool
	required  bool
}

// structFields is the field list of a struct type in declaration order,
// with a name index for decoding.
type structFields struct {
	list   []field
	byName map[string]int
}

var fieldCache sync.Map // map[reflect.Type]*structFields

// cachedFields returns the fields of struct type t, computing them on
// first use.
func cachedFields(t reflect.Type) *structFields {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(*structFields)
	}
	fields := &structFields{byName: make(map[string]int)}
	collectFields(t, nil, fields)
	actual, _ := fieldCache.LoadOrStore(t, fields)
	return actual.(*structFields)
}

func collectFields(t reflect.Type, parent []int, fields *structFields) {
	for i := 0; i < t.NumField(); i++ {
		structField := t.Field(i)
		tag, hasTag := structField.Tag.Lookup("vici")
		if tag == "-" {
			continue
		}
		index := make([]int, len(parent)+1)
		copy(index, parent)
		index[len(parent)] = i

		if structField.Anonymous && !hasTag {
			embedded := structField.Type
			if embedded.Kind() == reflect.Pointer {
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				collectFields(embedded, index, fields)
				continue
			}
		}
		if !structField.IsExported() {
			continue
		}

		name, options, _ := strings.Cut(tag, ",")
		if name == "" {
			name = structField.Name
		}
		entry := field{name: name, index: index}
		for options != "" {
			var option string
			option, options, _ = strings.Cut(options, ",")
			switch option {
			case "omitempty":
				entry.omitEmpty = true
			case "required":
				entry.required = true
			}
		}
		if _, duplicate := fields.byName[name]; duplicate {
			// The first field with a given name wins.
			continue
		}
		fields.byName[name] = len(fields.list)
		fields.list = append(fields.list, entry)
	}
}

// fieldByIndex returns the field at index, allocating nil embedded
// pointers when alloc is set. It reports false if a nil embedded pointer
// blocks the path and alloc is unset.
func fieldByIndex(v reflect.Value, index []int, alloc bool) (reflect.Value, bool) {
	for i, step := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !alloc {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(step)
	}
	return v, true
}
