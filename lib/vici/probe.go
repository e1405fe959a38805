// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import (
	"encoding"
	"reflect"
)

// shape is the wire form a Go value takes, which decides the tag that
// introduces it.
type shape uint8

const (
	shapeScalar shape = iota
	shapeSection
	shapeScalarList
	shapeSectionList
)

func (s shape) String() string {
	switch s {
	case shapeScalar:
		return "scalar"
	case shapeSection:
		return "section"
	case shapeScalarList:
		return "scalar list"
	case shapeSectionList:
		return "section list"
	default:
		return "unknown"
	}
}

// tag returns the element tag that introduces an entry of this shape.
func (s shape) tag() ElementTag {
	switch s {
	case shapeSection, shapeSectionList:
		return SectionStart
	case shapeScalarList:
		return ListStart
	default:
		return KeyValue
	}
}

var textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

// probe classifies v without writing anything. A slice or array is
// classified by its first element alone.
func probe(v reflect.Value) (shape, error) {
	for {
		if !v.IsValid() {
			return shapeScalar, nil
		}
		if v.Type() == sectionType {
			return shapeSection, nil
		}
		if implementsTextMarshaler(v) {
			return shapeScalar, nil
		}
		if v.Kind() != reflect.Pointer && v.Kind() != reflect.Interface {
			break
		}
		if v.IsNil() {
			return shapeScalar, nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return shapeScalar, nil
	case reflect.Struct:
		return shapeSection, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return 0, messageError("cannot encode map with %s keys", v.Type().Key())
		}
		return shapeSection, nil
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return shapeScalar, nil
		}
		if v.Len() == 0 {
			return shapeScalarList, nil
		}
		first, err := probe(v.Index(0))
		if err != nil {
			return 0, err
		}
		switch first {
		case shapeScalar:
			return shapeScalarList, nil
		case shapeSection:
			return shapeSectionList, nil
		default:
			return 0, messageError("cannot encode %s: lists cannot contain lists", v.Type())
		}
	default:
		return 0, messageError("cannot encode value of type %s", v.Type())
	}
}

// implementsTextMarshaler reports whether v, or a pointer to it, has a
// MarshalText method.
func implementsTextMarshaler(v reflect.Value) bool {
	if v.Type().Implements(textMarshalerType) {
		return true
	}
	return v.Kind() != reflect.Pointer && v.CanAddr() && reflect.PointerTo(v.Type()).Implements(textMarshalerType)
}
