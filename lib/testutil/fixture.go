// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// T is the subset of testing.TB used by the fixture helpers.
type T interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Shape mirrors a frame geometry without importing lib/dataset.
type Shape struct {
	Width     int
	Height    int
	Channels  int
	NumLabels int
}

// FrameSize is 1 + Width*Height*Channels.
func (s Shape) FrameSize() int { return 1 + s.Width*s.Height*s.Channels }

// CIFARShape is the 32x32 RGB, 10-class frame shape.
var CIFARShape = Shape{Width: 32, Height: 32, Channels: 3, NumLabels: 10}

// Frames returns count frames. Frame i (counting from first) has class
// id i mod NumLabels and pixel byte j equal to (i + j) mod 251, so any
// reordering or misalignment is visible in the decoded output.
func Frames(shape Shape, first, count int) []byte {
	frameSize := shape.FrameSize()
	data := make([]byte, 0, count*frameSize)
	for i := first; i < first+count; i++ {
		data = append(data, byte(i%shape.NumLabels))
		for j := 0; j < frameSize-1; j++ {
			data = append(data, byte((i+j)%251))
		}
	}
	return data
}

// Tree describes an extracted dataset directory.
type Tree struct {
	// Shards maps shard file name to frame count. Frames are numbered
	// consecutively across shards in sorted name order.
	Shards map[string]int
	Labels string
	// LabelFile defaults to "batches.meta.txt".
	LabelFile string
	// Extra holds additional files written verbatim (readme, etc.).
	Extra map[string][]byte
}

// Files renders the tree as a map from relative path (under dir) to
// content.
func (tree Tree) Files(shape Shape, dir string) map[string][]byte {
	files := make(map[string][]byte)
	names := make([]string, 0, len(tree.Shards))
	for name := range tree.Shards {
		names = append(names, name)
	}
	sort.Strings(names)

	next := 0
	for _, name := range names {
		count := tree.Shards[name]
		files[filepath.Join(dir, name)] = Frames(shape, next, count)
		next += count
	}

	labelFile := tree.LabelFile
	if labelFile == "" {
		labelFile = "batches.meta.txt"
	}
	if tree.Labels != "" {
		files[filepath.Join(dir, labelFile)] = []byte(tree.Labels)
	}
	for name, content := range tree.Extra {
		files[filepath.Join(dir, name)] = content
	}
	return files
}

// WriteTree writes the tree into root/dir and returns root/dir.
func WriteTree(t T, shape Shape, root, dir string, tree Tree) string {
	t.Helper()
	for relative, content := range tree.Files(shape, dir) {
		path := filepath.Join(root, relative)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("creating %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	return filepath.Join(root, dir)
}

// CIFARLabels is the CIFAR-10 label file content, including the blank
// line the real file ends with.
const CIFARLabels = "airplane\nautomobile\nbird\ncat\ndeer\ndog\nfrog\nhorse\nship\ntruck\n\n"

// Entry is one tar member. Directories have a trailing slash and no
// content. Typeflag overrides the inferred type when non-zero.
type Entry struct {
	Name     string
	Content  []byte
	Typeflag byte
	Linkname string
}

// Entries converts a file map into sorted tar entries, emitting a
// directory entry for every parent directory.
func Entries(files map[string][]byte) []Entry {
	directories := make(map[string]bool)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
		for dir := filepath.Dir(name); dir != "." && dir != "/"; dir = filepath.Dir(dir) {
			directories[filepath.ToSlash(dir)+"/"] = true
		}
	}
	sort.Strings(names)

	var entries []Entry
	dirNames := make([]string, 0, len(directories))
	for dir := range directories {
		dirNames = append(dirNames, dir)
	}
	sort.Strings(dirNames)
	for _, dir := range dirNames {
		entries = append(entries, Entry{Name: dir})
	}
	for _, name := range names {
		entries = append(entries, Entry{Name: filepath.ToSlash(name), Content: files[name]})
	}
	return entries
}

// Archive packs entries into a tar stream compressed with compression
// ("", "gzip", "zstd", or "lz4").
func Archive(t T, compression string, entries []Entry) []byte {
	t.Helper()

	var buffer bytes.Buffer
	var sink io.WriteCloser
	switch compression {
	case "":
		sink = nopWriteCloser{&buffer}
	case "gzip":
		sink = gzip.NewWriter(&buffer)
	case "zstd":
		encoder, err := zstd.NewWriter(&buffer)
		if err != nil {
			t.Fatalf("creating zstd writer: %v", err)
		}
		sink = encoder
	case "lz4":
		sink = lz4.NewWriter(&buffer)
	default:
		t.Fatalf("unknown compression %q", compression)
	}

	writer := tar.NewWriter(sink)
	for _, entry := range entries {
		header := &tar.Header{
			Name:     entry.Name,
			Mode:     0644,
			Size:     int64(len(entry.Content)),
			Typeflag: entry.Typeflag,
			Linkname: entry.Linkname,
		}
		if header.Typeflag == 0 {
			header.Typeflag = tar.TypeReg
			if strings.HasSuffix(entry.Name, "/") {
				header.Typeflag = tar.TypeDir
				header.Mode = 0755
			}
		}
		if header.Typeflag != tar.TypeReg {
			header.Size = 0
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatalf("writing tar header %s: %v", entry.Name, err)
		}
		if header.Size > 0 {
			if _, err := writer.Write(entry.Content); err != nil {
				t.Fatalf("writing tar entry %s: %v", entry.Name, err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("closing %s writer: %v", compression, err)
	}
	return buffer.Bytes()
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
