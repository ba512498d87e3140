// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides shardset's standard CBOR encoding
// configuration.
//
// CBOR is used for on-disk state that shardset writes and reads back
// itself, chiefly the cache manifest that marks an extracted dataset
// as complete. Configuration stays in YAML or JSONC, which people edit.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same manifest therefore always produces identical bytes, which keeps
// manifests diffable and lets tests compare encodings directly.
//
//	data, err := codec.Marshal(manifest)
//	err = codec.Unmarshal(data, &manifest)
//
// Types serialized only as CBOR carry `cbor` struct tags. Types that
// also appear in CLI --json output carry `json` tags instead;
// fxamacker/cbor falls back to them when no `cbor` tag is present.
// Never put both tags on one field.
package codec
