// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP helpers shared by the downloader and
// the CLI.
//
// Archive bodies are streamed to disk with io.Copy and never pass
// through here. These helpers cover the small reads around them: the
// body of a failed response, which only ends up in an error message.
package netutil

import (
	"io"
	"strings"
	"unicode/utf8"
)

// MaxErrorBodySize bounds how much of a failed response body is read
// for diagnostics. Mirrors and CDNs return HTML error pages; a
// kilobyte or two is enough to identify them.
const MaxErrorBodySize int64 = 4 << 10

// ErrorBody reads a failed HTTP response body and returns a trimmed,
// single-line excerpt for an error message. Read errors are ignored; a
// partial or empty body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBodySize))
	if !utf8.Valid(data) {
		return ""
	}
	return strings.Join(strings.Fields(string(data)), " ")
}

// DrainBody discards up to MaxErrorBodySize bytes of body so the
// underlying connection can be reused, then closes it.
func DrainBody(body io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxErrorBodySize))
	return body.Close()
}
