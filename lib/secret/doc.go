// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material outside the Go heap.
//
// A [Buffer] is an anonymous mmap region locked into RAM (mlock) and
// excluded from core dumps (MADV_DONTDUMP). Close zeroes, unlocks and
// unmaps it; any access after Close panics.
//
// [ReadFile] loads a file straight into a Buffer and zeroes the
// intermediate heap copy. lib/capture reads age identity files through
// it so capture decryption keys do not linger in collected memory.
package secret
