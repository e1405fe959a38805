// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec converts VICI messages to and from interchange formats
// for display and authoring: JSON, YAML, CBOR and MessagePack.
//
// Every [Format] maps a message onto the format's map type with entries
// in message order, lists onto arrays of strings, and nested sections
// onto nested maps. A list of sections appears as a map keyed "0",
// "1", ..., mirroring its wire layout, so converting a decoded message
// back to VICI reproduces the original bytes.
//
//	format, err := codec.Lookup("yaml")
//	text, err := format.Marshal(message)
//	message, err = format.Unmarshal(text)
//
// Raw byte values that are not valid UTF-8 are rendered as base64 text
// in JSON, !!binary in YAML and byte strings in CBOR and MessagePack.
// Only the binary-capable formats restore them as raw bytes.
//
// On input, numbers and booleans become their VICI text ("yes" and
// "no" for booleans), null entries are dropped, an array of maps
// becomes a list of sections, and any other array must hold only
// scalars. JSON input may contain comments and trailing commas.
//
// The CBOR format writes scalars with Core Deterministic Encoding
// (RFC 8949 §4.2). [Diagnose] renders CBOR in diagnostic notation for
// terminals.
package codec
