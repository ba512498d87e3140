// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorBody(t *testing.T) {
	t.Run("collapses whitespace", func(t *testing.T) {
		got := ErrorBody(strings.NewReader("<html>\n  <h1>404 Not Found</h1>\n</html>\n"))
		if want := "<html> <h1>404 Not Found</h1> </html>"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		if got := ErrorBody(bytes.NewReader(nil)); got != "" {
			t.Fatalf("expected empty, got %q", got)
		}
	})

	t.Run("bounded", func(t *testing.T) {
		got := ErrorBody(strings.NewReader(strings.Repeat("x", int(MaxErrorBodySize)*2)))
		if int64(len(got)) != MaxErrorBodySize {
			t.Fatalf("length = %d, want %d", len(got), MaxErrorBodySize)
		}
	})

	t.Run("binary body", func(t *testing.T) {
		if got := ErrorBody(bytes.NewReader([]byte{0xff, 0xfe, 0x00})); got != "" {
			t.Fatalf("expected empty for binary body, got %q", got)
		}
	})

	t.Run("read error returns empty", func(t *testing.T) {
		if got := ErrorBody(&failReader{}); got != "" {
			t.Fatalf("expected empty from failing reader, got %q", got)
		}
	})
}

func TestDrainBody(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("leftover")}
	if err := DrainBody(body); err != nil {
		t.Fatalf("DrainBody: %v", err)
	}
	if !body.closed {
		t.Error("body was not closed")
	}
	if rest, _ := io.ReadAll(body.Reader); len(rest) != 0 {
		t.Errorf("body not drained, %d bytes left", len(rest))
	}
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

// failReader always returns an error on Read.
type failReader struct{}

func (*failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
