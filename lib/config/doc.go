// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads shardset configuration.
//
// Configuration comes from a single file named by the SHARDSET_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no search path and no ~/.config discovery.
// With neither set, [Load] returns [Default], the CIFAR-10 binary
// distribution cached under ~/.cache/shardset.
//
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas; everything else is YAML. Unknown keys are rejected
// in both, so a misspelled key fails loudly instead of silently
// keeping its default.
//
// Keys a file omits keep their [Default] values. A file describing a
// different dataset must therefore set every dataset key it changes,
// including train_shards.
//
// ${HOME} and ${VAR:-default} patterns are expanded in root and
// archive_url after loading. No other environment variables override
// config values.
//
// [Config.Location] converts the result into the [dataset.Location]
// every other package takes.
package config
