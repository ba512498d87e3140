// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for shardset packages.
//
// [Frames] builds deterministic shard bytes for a frame geometry, and
// [WriteTree] lays out a complete extracted dataset directory (shards
// plus label file) the way a real archive would. [Archive] packs a set
// of entries into a tar stream, optionally compressed with gzip, zstd,
// or lz4, so cache and extraction tests can serve realistic archives
// from httptest servers.
//
// [RequireReceive] encapsulates the timeout safety valve pattern
// (select with time.After fallback) so that individual tests do not
// need direct time.After calls.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no shardset-internal dependencies.
package testutil
