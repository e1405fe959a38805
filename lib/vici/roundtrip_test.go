// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vici

import (
	"bytes"
	"reflect"
	"testing"
)

// connection is a representative daemon record mixing every mapping.
type connection struct {
	Version     uint8             `vici:"version"`
	LocalAddrs  []string          `vici:"local_addrs"`
	Mobike      bool              `vici:"mobike"`
	ReauthTime  int64             `vici:"reauth_time"`
	Weight      float64           `vici:"weight"`
	Pools       *[]string         `vici:"pools"`
	Certificate []byte            `vici:"cert"`
	Local       authentication    `vici:"local"`
	Children    map[string]child  `vici:"children"`
	Remotes     []authentication  `vici:"remotes"`
	Labels      map[string]string `vici:"labels"`
	Note        *string           `vici:"note"`
}

type authentication struct {
	Auth  string   `vici:"auth"`
	ID    string   `vici:"id"`
	Certs []string `vici:"certs"`
}

type child struct {
	Mode         string      `vici:"mode"`
	ESPProposals []string    `vici:"esp_proposals"`
	StartAction  *string     `vici:"start_action"`
	Status       leaseStatus `vici:"status"`
}

func TestRoundTripStructs(t *testing.T) {
	pools := []string{"v4", "v6"}
	original := connection{
		Version:     2,
		LocalAddrs:  []string{"192.0.2.1", "2001:db8::1"},
		Mobike:      true,
		ReauthTime:  -1,
		Weight:      0.25,
		Pools:       &pools,
		Certificate: []byte{0x30, 0x82, 0xff, 0x00},
		Local:       authentication{Auth: "pubkey", ID: "moon", Certs: []string{"moonCert.pem"}},
		Children: map[string]child{
			"net": {Mode: "tunnel", ESPProposals: []string{"aes128gcm16"}, StartAction: stringPointer("trap")},
			"host": {Mode: "transport", ESPProposals: []string{}, Status: leaseOffline},
		},
		Remotes: []authentication{
			{Auth: "eap", ID: "carol", Certs: []string{}},
			{Auth: "pubkey", ID: "dave", Certs: []string{"a", "b"}},
		},
		Labels: map[string]string{},
	}

	encoded, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for name, decoder := range decoders(encoded) {
		t.Run(name, func(t *testing.T) {
			var decoded connection
			if err := decoder.Decode(&decoded); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(decoded, original) {
				t.Errorf("round trip =\n%+v\nwant\n%+v", decoded, original)
			}
			reencoded, err := Marshal(decoded)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !bytes.Equal(reencoded, encoded) {
				t.Error("re-encoding the decoded value changed the bytes")
			}
		})
	}
}

// Decoding into a Section and encoding it again reproduces the input
// exactly, including lists of sections and absent values.
func TestRoundTripSectionBytes(t *testing.T) {
	messages := map[string][]byte{
		"example": exampleMessage,
		"pools":   poolsMessage,
		"binary":  message(keyValue("blob", "\x00\xff"), listStart("empty"), listEnd()),
		"empty sections": message(
			sectionStart("outer"),
			sectionStart("inner"),
			sectionEnd(),
			sectionEnd(),
		),
	}
	for name, data := range messages {
		t.Run(name, func(t *testing.T) {
			var section Section
			if err := Unmarshal(data, &section); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			encoded, err := Marshal(section)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !bytes.Equal(encoded, data) {
				t.Errorf("round trip =\n%q\nwant\n%q", encoded, data)
			}
		})
	}
}

func TestSectionAccessors(t *testing.T) {
	var section Section
	if err := Unmarshal(poolsMessage, &section); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	poolSection := section.Child("pool-01")
	if poolSection.Text("base") != "192.0.2.1" {
		t.Errorf("base = %q", poolSection.Text("base"))
	}
	leases := poolSection.Children("leases")
	if len(leases) != 4 {
		t.Fatalf("len(leases) = %d, want 4", len(leases))
	}
	if leases[3].Text("status") != "offline" {
		t.Errorf("leases[3].status = %q", leases[3].Text("status"))
	}

	var example Section
	if err := Unmarshal(exampleMessage, &example); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if list := example.Child("section1").List("list1"); !reflect.DeepEqual(list, []string{"item1", "item2"}) {
		t.Errorf("list1 = %v", list)
	}

	example.Set("key1", "changed")
	example.Set("key3", "added")
	example.Delete("section1")
	if !reflect.DeepEqual(example.Keys(), []string{"key1", "key3"}) {
		t.Errorf("Keys() = %v", example.Keys())
	}
	if value, ok := example.Get("key1"); !ok || value != "changed" {
		t.Errorf("Get(key1) = %v, %v", value, ok)
	}
	if _, ok := example.Get("missing"); ok {
		t.Error("Get(missing) reported present")
	}
}
