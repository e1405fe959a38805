// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package message implements "vici message": decode, encode, diag and
// validate over encoded VICI messages.
package message
