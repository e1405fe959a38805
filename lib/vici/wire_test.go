// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import (
	"bytes"
	"errors"
	"testing"
)

// Builders for expected wire bytes.

func keyValue(key, value string) []byte {
	b := []byte{byte(KeyValue), byte(len(key))}
	b = append(b, key...)
	b = append(b, byte(len(value)>>8), byte(len(value)))
	return append(b, value...)
}

func sectionStart(name string) []byte {
	return append([]byte{byte(SectionStart), byte(len(name))}, name...)
}

func sectionEnd() []byte {
	return []byte{byte(SectionEnd)}
}

func listStart(name string) []byte {
	return append([]byte{byte(ListStart), byte(len(name))}, name...)
}

func listItem(value string) []byte {
	b := []byte{byte(ListItem), byte(len(value) >> 8), byte(len(value))}
	return append(b, value...)
}

func listEnd() []byte {
	return []byte{byte(ListEnd)}
}

func message(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// A message with a nested section, a sub-section and a list.
type exampleRoot struct {
	Key1     string      `vici:"key1"`
	Section1 exampleMain `vici:"section1"`
}

type exampleMain struct {
	SubSection exampleSub `vici:"sub-section"`
	List1      []string   `vici:"list1"`
}

type exampleSub struct {
	Key2 string `vici:"key2"`
}

var exampleValue = exampleRoot{
	Key1: "value1",
	Section1: exampleMain{
		SubSection: exampleSub{Key2: "value2"},
		List1:      []string{"item1", "item2"},
	},
}

var exampleMessage = message(
	keyValue("key1", "value1"),
	sectionStart("section1"),
	sectionStart("sub-section"),
	keyValue("key2", "value2"),
	sectionEnd(),
	listStart("list1"),
	listItem("item1"),
	listItem("item2"),
	listEnd(),
	sectionEnd(),
)

// Address pools, as reported by the daemon, with a list of sections
// and an absent value.
type pool struct {
	Base    string  `vici:"base"`
	Size    uint32  `vici:"size"`
	Online  uint32  `vici:"online"`
	Offline uint32  `vici:"offline"`
	Leases  []lease `vici:"leases"`
}

type lease struct {
	Address  string      `vici:"address"`
	Identity *string     `vici:"identity"`
	Status   leaseStatus `vici:"status"`
}

type leaseStatus int

const (
	leaseOnline leaseStatus = iota
	leaseOffline
)

func (s leaseStatus) MarshalText() ([]byte, error) {
	switch s {
	case leaseOnline:
		return []byte("online"), nil
	case leaseOffline:
		return []byte("offline"), nil
	default:
		return nil, errors.New("unknown lease status")
	}
}

func (s *leaseStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "online":
		*s = leaseOnline
	case "offline":
		*s = leaseOffline
	default:
		return errors.New("unknown lease status " + string(text))
	}
	return nil
}

func stringPointer(s string) *string { return &s }

var poolsValue = map[string]pool{
	"pool-01": {
		Base:    "192.0.2.1",
		Size:    4,
		Online:  3,
		Offline: 1,
		Leases: []lease{
			{Address: "192.0.2.2", Identity: stringPointer("identity-01"), Status: leaseOnline},
			{Address: "192.0.2.3", Identity: stringPointer("identity-02"), Status: leaseOnline},
			{Address: "192.0.2.4", Identity: stringPointer("identity-03"), Status: leaseOnline},
			{Address: "192.0.2.5", Identity: nil, Status: leaseOffline},
		},
	},
}

var poolsMessage = message(
	sectionStart("pool-01"),
	keyValue("base", "192.0.2.1"),
	keyValue("size", "4"),
	keyValue("online", "3"),
	keyValue("offline", "1"),
	sectionStart("leases"),
	sectionStart("0"),
	keyValue("address", "192.0.2.2"),
	keyValue("identity", "identity-01"),
	keyValue("status", "online"),
	sectionEnd(),
	sectionStart("1"),
	keyValue("address", "192.0.2.3"),
	keyValue("identity", "identity-02"),
	keyValue("status", "online"),
	sectionEnd(),
	sectionStart("2"),
	keyValue("address", "192.0.2.4"),
	keyValue("identity", "identity-03"),
	keyValue("status", "online"),
	sectionEnd(),
	sectionStart("3"),
	keyValue("address", "192.0.2.5"),
	keyValue("identity", ""),
	keyValue("status", "offline"),
	sectionEnd(),
	sectionEnd(),
	sectionEnd(),
)

// viciError extracts the *Error from err or fails the test.
func viciError(t *testing.T, err error) *Error {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var viciErr *Error
	if !errors.As(err, &viciErr) {
		t.Fatalf("expected *vici.Error, got %T: %v", err, err)
	}
	return viciErr
}

// decoders returns a decoder over data for each input backend.
func decoders(data []byte) map[string]*Decoder {
	return map[string]*Decoder{
		"bytes":  NewBytesDecoder(data),
		"stream": NewDecoder(bytes.NewReader(data)),
	}
}
