// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides streaming content hashes for dataset files.
//
// Two digests are used, each for one job:
//
//   - SHA-256 ([HashReader]) is computed while a downloaded archive
//     is written to disk and checked against the checksum the dataset
//     publisher advertises. Publishers quote SHA-256, so that is what
//     is compared.
//   - BLAKE3 ([HashFileBLAKE3]) fingerprints every extracted shard in
//     the cache manifest. Deep verification rehashes the whole dataset,
//     and BLAKE3 keeps that pass I/O-bound rather than CPU-bound.
//
// Both stream their input through the hash in chunks (via io.Copy) so
// memory use is constant regardless of file size. [FormatDigest] and
// [ParseDigest] convert between a [32]byte digest and its canonical
// lowercase hex form, used in config files, manifests, and logs.
//
// This package has no dependencies on other shardset packages.
package binhash
