// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the entrypoint error handler for shardset
// binaries. main() calls run() and hands any error to Fatal, which
// writes it to stderr without depending on the structured logger.
package process
