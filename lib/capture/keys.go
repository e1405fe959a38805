// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"fmt"

	"filippo.io/age"

	"github.com/bureau-foundation/vici/lib/secret"
)

// ParseRecipients parses age X25519 public keys (age1...).
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// LoadIdentities reads age identities from a file in the age identity
// format (one AGE-SECRET-KEY-1... per line, # comments allowed). The
// file is read into locked memory that is zeroed once parsed.
func LoadIdentities(path string) ([]age.Identity, error) {
	buffer, err := secret.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	defer buffer.Close()

	identities, err := age.ParseIdentities(bytes.NewReader(buffer.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
	}
	return identities, nil
}
