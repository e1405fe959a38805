// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vici encodes and decodes messages of the VICI protocol, the
// versatile IKE control interface spoken by the strongSwan charon
// daemon.
//
// A VICI message is a flat stream of tagged elements. Every element
// starts with a one-byte [ElementTag]; keys are prefixed with a one-byte
// length and values with a two-byte big-endian length:
//
//	KeyValue     3 | keylen | key | vallen(2) | value
//	SectionStart 1 | keylen | name
//	SectionEnd   2
//	ListStart    4 | keylen | name
//	ListItem     5 | vallen(2) | value
//	ListEnd      6
//
// The outermost section of a message is implicit: it has no
// SectionStart/SectionEnd pair and ends with the input.
//
// # Go Mapping
//
// Go values map onto the wire as follows:
//
//   - bool encodes as "yes" or "no" and decodes only from exactly those
//     two strings.
//   - Integer and floating-point kinds encode as decimal text and decode
//     with strconv.
//   - string encodes verbatim. []byte encodes verbatim and decodes
//     without UTF-8 validation.
//   - encoding.TextMarshaler and encoding.TextUnmarshaler values are
//     scalars. Use them for enumerations.
//   - Pointers are optional values. A nil pointer encodes as a
//     zero-length value, and a zero-length value decodes to nil when the
//     target is a pointer.
//   - Structs and map[string]T encode as sections. Map keys are sorted.
//   - Slices of scalars encode as lists. Slices of structs or maps
//     encode as a section whose children are named "0", "1", ...; the
//     names are discarded on decode.
//   - [Section] preserves order and accepts any of the above as values.
//     Decoding into an empty interface produces a Section.
//
// Struct fields are named with the "vici" tag:
//
//	type Child struct {
//		Mode      string   `vici:"mode"`
//		Proposals []string `vici:"esp_proposals,omitempty"`
//		Updown    *string  `vici:"updown"`
//		Local     []string `vici:"local_ts,required"`
//	}
//
// The "omitempty" option skips zero values when encoding. The
// "required" option makes decoding fail when the key is missing. A tag
// of "-" excludes the field. Untagged exported fields use the Go field
// name, and untagged embedded structs are flattened into their parent.
//
// # Encoding
//
// The element tag of an entry precedes its value, but the tag depends on
// the value's shape. The encoder therefore classifies each entry before
// writing it: a probe inspects the value (for slices, only the first
// element) and reports scalar, section, scalar list or section list.
// Slices are assumed homogeneous; a slice mixing scalars and sections
// encodes every element with the kind of the first one.
//
// # Decoding
//
// [Unmarshal] and [NewBytesDecoder] read directly from a byte slice.
// [NewDecoder] reads from an io.Reader through a small refilling buffer
// and never holds more than one element plus one chunk in memory. Both
// produce identical values and identical errors for identical input.
//
// Decoding stops at the first error. Errors are [*Error] values that
// carry the byte offset of the failure; [errors.Is] reports
// [ErrInvalidData] for malformed input and [io.ErrUnexpectedEOF] for
// truncated input.
//
// Encoders and decoders are not safe for concurrent use.
package vici
