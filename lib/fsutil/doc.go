// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fsutil provides the durable filesystem operations the cache
// relies on for crash safety.
//
// [WriteAtomic] writes a file so readers never see a partial state:
// write to a temporary file in the same directory, fsync, rename into
// place, fsync the parent directory. [SyncDir] flushes directory
// metadata after a rename. [RemoveAll] removes a tree and treats a
// missing path as success.
//
// This package has no dependencies on other shardset packages.
package fsutil
