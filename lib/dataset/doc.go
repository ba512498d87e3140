// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataset defines the shared vocabulary of shardset: the
// immutable [Location] describing where a dataset lives and what it
// looks like, the [Split] partition, the [ShardFile] derived from a
// location, the frame [Geometry], and the error taxonomy returned by
// every other package.
//
// A Location is a plain value. It is constructed once (usually by
// lib/config) and passed into every operation; nothing in shardset
// keeps a package-level copy. Two Locations with different roots are
// two independent dataset instances, even inside one process.
//
// # Error taxonomy
//
// Every failure surfaced by shardset is one of:
//
//   - [DownloadError]: the archive could not be fetched (network, HTTP
//     status, local I/O, checksum mismatch)
//   - [ExtractionError]: the archive could not be unpacked
//   - [IntegrityError]: the extracted tree failed verification
//   - [LabelFileMissingError]: the label file does not exist
//   - [ShardMissingError]: a shard expected by a split is absent
//   - [TruncatedRecordError]: a stream ended partway through a frame
//   - [InvalidRecordError]: a decoded frame violates an invariant
//
// Each type matches its sentinel (ErrDownload, ErrExtraction, ...) via
// errors.Is, so callers can branch on the category without errors.As
// when they do not need the details.
//
// This package has no dependencies on other shardset packages.
package dataset
