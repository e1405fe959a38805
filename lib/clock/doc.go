// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Capture writers stamp frames with Clock.Now and the mock daemon
// publishes periodic events from Clock.NewTicker. Production code uses
// Real(); tests use Fake(), which advances only when told to:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go publishPeriodically(ctx, c)
//	c.WaitForTickers(1) // the goroutine has created its ticker
//	c.Advance(10 * time.Second)
package clock
