// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive unpacks dataset archives into a directory.
//
// Archives are tar streams, optionally wrapped in gzip, zstd, or lz4
// frame compression. The wrapper is detected from the stream's magic
// bytes, not from the file name, since downloaded archives are staged
// under temporary names.
//
// Extraction only materializes directories and regular files. Entries
// whose names are absolute or climb out of the destination ("..") are
// rejected, as are symlinks and hard links: a dataset archive has no
// legitimate use for them and they are the usual vehicle for writing
// outside the destination.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format identifies the compression wrapper around the tar stream.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatTar
	FormatGzip
	FormatZstd
	FormatLZ4
)

// String returns the human-readable name of a format.
func (format Format) String() string {
	switch format {
	case FormatTar:
		return "tar"
	case FormatGzip:
		return "tar+gzip"
	case FormatZstd:
		return "tar+zstd"
	case FormatLZ4:
		return "tar+lz4"
	default:
		return fmt.Sprintf("unknown(%d)", format)
	}
}

// Magic numbers. The tar magic lives at offset 257 of the first header
// block; the compression magics are at offset 0.
var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
	tarMagic  = []byte("ustar")
)

// ErrUnsupportedFormat is returned when the stream matches none of the
// known formats.
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// ErrUnsafeEntry is returned for entries that would escape the
// destination or are not files or directories.
var ErrUnsafeEntry = errors.New("unsafe archive entry")

// Detect identifies the format from the first bytes of an archive. At
// least 262 bytes are needed to recognize an uncompressed tar.
func Detect(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return FormatGzip
	case bytes.HasPrefix(header, zstdMagic):
		return FormatZstd
	case bytes.HasPrefix(header, lz4Magic):
		return FormatLZ4
	case len(header) >= 262 && bytes.Equal(header[257:262], tarMagic):
		return FormatTar
	default:
		return FormatUnknown
	}
}

// Stats summarizes an extraction.
type Stats struct {
	Format      Format
	Files       int
	Directories int
	Bytes       int64
}

// EntryError reports a failure tied to one archive member.
type EntryError struct {
	Entry string
	Err   error
}

func (err *EntryError) Error() string {
	return fmt.Sprintf("entry %q: %v", err.Entry, err.Err)
}

func (err *EntryError) Unwrap() error { return err.Err }

// ExtractFile unpacks the archive at archivePath into destination,
// which must already exist. ctx is checked between entries and during
// long copies.
func ExtractFile(ctx context.Context, archivePath, destination string) (Stats, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return Stats{}, fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()
	return Extract(ctx, file, destination)
}

// Extract unpacks the archive read from source into destination.
func Extract(ctx context.Context, source io.Reader, destination string) (Stats, error) {
	buffered := bufio.NewReaderSize(source, 64*1024)
	header, err := buffered.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		return Stats{}, fmt.Errorf("reading archive header: %w", err)
	}

	stats := Stats{Format: Detect(header)}
	var stream io.Reader
	switch stats.Format {
	case FormatTar:
		stream = buffered
	case FormatGzip:
		reader, err := gzip.NewReader(buffered)
		if err != nil {
			return stats, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer reader.Close()
		stream = reader
	case FormatZstd:
		decoder, err := zstd.NewReader(buffered)
		if err != nil {
			return stats, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer decoder.Close()
		stream = decoder
	case FormatLZ4:
		stream = lz4.NewReader(buffered)
	default:
		return stats, ErrUnsupportedFormat
	}

	reader := tar.NewReader(&contextReader{ctx: ctx, reader: stream})
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return stats, &EntryError{Entry: entry.Name, Err: fmt.Errorf("%w: %v", ErrUnsafeEntry, err)}
		}
		if err != nil {
			return stats, fmt.Errorf("reading tar header: %w", err)
		}

		target, err := resolve(destination, entry.Name)
		if err != nil {
			return stats, &EntryError{Entry: entry.Name, Err: err}
		}
		if target == "" {
			continue
		}

		switch entry.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return stats, &EntryError{Entry: entry.Name, Err: err}
			}
			stats.Directories++
		case tar.TypeReg:
			written, err := writeFile(target, reader)
			if err != nil {
				return stats, &EntryError{Entry: entry.Name, Err: err}
			}
			stats.Files++
			stats.Bytes += written
		case tar.TypeXGlobalHeader, tar.TypeXHeader:
			// PAX metadata; the tar reader has already applied it.
		default:
			return stats, &EntryError{
				Entry: entry.Name,
				Err:   fmt.Errorf("%w: type %q", ErrUnsafeEntry, string(entry.Typeflag)),
			}
		}
	}

	return stats, nil
}

// resolve maps an entry name to a path under destination. It returns
// "" for the archive root itself.
func resolve(destination, name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: path escapes destination", ErrUnsafeEntry)
	}
	if cleaned == "." {
		return "", nil
	}
	return filepath.Join(destination, filepath.FromSlash(cleaned)), nil
}

func writeFile(target string, reader io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(file, reader)
	if err != nil {
		file.Close()
		return written, err
	}
	return written, file.Close()
}

// contextReader fails reads once ctx is done, so a cancelled
// extraction stops inside a large entry rather than after it.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (r *contextReader) Read(buffer []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.reader.Read(buffer)
}
