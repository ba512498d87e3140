// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The cache stamps manifests with the current time, measures download
// durations, and polls the cross-process lock on a ticker. All of that
// goes through a Clock so tests can drive it deterministically:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	cache, _ := datacache.New(datacache.Options{Clock: c})
//	// ... start a goroutine that waits on the lock ...
//	c.WaitForTimers(1)
//	c.Advance(time.Second)
//
// Production code uses Real().
package clock
