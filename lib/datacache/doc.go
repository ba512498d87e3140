// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package datacache materializes a dataset archive on local disk
// exactly once and proves that what is on disk is complete.
//
// [Cache.EnsureLocal] is the only operation that touches the network.
// On a warm cache it reads the manifest stored inside the extracted
// directory, stats every configured shard against it, and returns
// without any download. On a cold cache it runs the populate sequence:
//
//  1. Create the cache root and take an exclusive flock(2) on
//     root/.<extracted>.lock. The lock is polled non-blockingly so a
//     cancelled context stops the wait.
//  2. Re-check completion. Another process may have populated the
//     cache while this one waited.
//  3. Create a private staging directory root/.staging-<id>, download
//     the archive into it, and check its SHA-256 when one is
//     configured.
//  4. Extract the archive into staging and verify every configured
//     shard: present, non-empty, a whole number of frames, and the
//     documented record totals per split.
//  5. Hash every shard with BLAKE3 and write the manifest atomically
//     inside the extracted directory.
//  6. Remove any stale final directory, rename the staged tree into
//     place, and fsync the cache root.
//
// The final directory therefore never exists unless verification
// passed, and its manifest is the completion sentinel. Staging is
// removed on every exit path. A directory that exists without a
// manifest (extracted by hand, or by an older tool) is verified and
// adopted in place without a download.
//
// Within one process, concurrent EnsureLocal calls for the same
// directory share a single attempt. Across processes the flock
// serializes populates. Verdicts are memoized per directory for the
// life of the Cache; [Cache.Purge] and a failed [Cache.Verify] forget
// them.
//
// Failures surface as the dataset package's typed errors:
// [dataset.DownloadError], [dataset.ExtractionError], and
// [dataset.IntegrityError]. There is no automatic retry.
package datacache
