// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package shardstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"testing/iotest"

	"github.com/bureau-foundation/shardset/lib/dataset"
	"github.com/bureau-foundation/shardset/lib/record"
	"github.com/bureau-foundation/shardset/lib/testutil"
)

var shape = testutil.Shape{Width: 2, Height: 2, Channels: 3, NumLabels: 4}

func location(root string, trainShards ...string) dataset.Location {
	return dataset.Location{
		Root:         root,
		ArchiveURL:   "https://example.invalid/data.tar.gz",
		ExtractedDir: "batches",
		TrainShards:  trainShards,
		TestShard:    "test_batch.bin",
		LabelFile:    "batches.meta.txt",
		Geometry:     dataset.Geometry{Width: 2, Height: 2, Channels: 3, NumLabels: 4},
	}
}

func TestOpenTestSplit(t *testing.T) {
	root := t.TempDir()
	dir := testutil.WriteTree(t, shape, root, "batches", testutil.Tree{
		Shards: map[string]int{"data_batch_1.bin": 3, "test_batch.bin": 2},
	})

	stream, err := Open(location(root, "data_batch_1.bin"), dataset.Test)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want, err := os.ReadFile(filepath.Join(dir, "test_batch.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, want) {
		t.Errorf("test split content differs from test_batch.bin")
	}
	if stream.Offset() != int64(len(want)) || stream.Size() != int64(len(want)) {
		t.Errorf("Offset = %d, Size = %d, want %d", stream.Offset(), stream.Size(), len(want))
	}
}

func TestOpenTrainSplitSortedConcatenation(t *testing.T) {
	root := t.TempDir()
	dir := testutil.WriteTree(t, shape, root, "batches", testutil.Tree{
		Shards: map[string]int{
			"data_batch_3.bin": 2,
			"data_batch_1.bin": 4,
			"data_batch_2.bin": 1,
			"test_batch.bin":   5,
		},
		Labels: "a\nb\nc\nd\n",
		Extra:  map[string][]byte{"readme.html": []byte("<html></html>")},
	})

	stream, err := Open(location(root, "data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin"), dataset.Train)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	var names []string
	for _, shard := range stream.Shards() {
		names = append(names, shard.Name())
	}
	wantNames := []string{"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin"}
	if !slices.Equal(names, wantNames) {
		t.Fatalf("shards = %v, want %v", names, wantNames)
	}

	var want []byte
	for _, name := range wantNames {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		want = append(want, content...)
	}

	// Odd-sized reads force frames to straddle shard boundaries.
	got, err := io.ReadAll(iotest.HalfReader(stream))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("train split is not the sorted concatenation of its shards")
	}
}

func TestTrainSplitDecodesAcrossBoundaries(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, shape, root, "batches", testutil.Tree{
		Shards: map[string]int{"a.bin": 3, "b.bin": 4, "c.bin": 5, "test_batch.bin": 2},
	})
	loc := location(root, "a.bin", "b.bin", "c.bin")

	stream, err := Open(loc, dataset.Train)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	decoder := record.NewDecoder(stream, loc.Geometry)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		got, err := decoder.Next(ctx)
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if got.ClassID != i%4 {
			t.Fatalf("record %d class = %d, want %d", i, got.ClassID, i%4)
		}
	}
	if _, err := decoder.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("Next after 12 records = %v, want io.EOF", err)
	}
}

func TestOpenMissingTestShard(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, shape, root, "batches", testutil.Tree{
		Shards: map[string]int{"data_batch_1.bin": 1},
	})

	_, err := Open(location(root, "data_batch_1.bin"), dataset.Test)
	var missing *dataset.ShardMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("Open = %v, want ShardMissingError", err)
	}
	if missing.Split != dataset.Test || filepath.Base(missing.Path) != "test_batch.bin" {
		t.Errorf("missing = %+v", missing)
	}
}

func TestOpenMissingTrainShard(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, shape, root, "batches", testutil.Tree{
		Shards: map[string]int{"data_batch_1.bin": 1, "data_batch_5.bin": 1, "test_batch.bin": 1},
	})

	// The location names a shard the directory does not contain under
	// that exact name.
	_, err := Open(location(root, "data_batch_1.bin", "data_batch5.bin"), dataset.Train)
	var missing *dataset.ShardMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("Open = %v, want ShardMissingError", err)
	}
	if filepath.Base(missing.Path) != "data_batch5.bin" {
		t.Errorf("missing shard = %s, want data_batch5.bin", missing.Path)
	}
}

func TestOpenMissingDirectory(t *testing.T) {
	_, err := Open(location(t.TempDir(), "data_batch_1.bin"), dataset.Train)
	if !errors.Is(err, dataset.ErrShardMissing) {
		t.Fatalf("Open = %v, want ErrShardMissing", err)
	}
}

func TestOpenReportsUnconfiguredShards(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, shape, root, "batches", testutil.Tree{
		Shards: map[string]int{"data_batch_1.bin": 1, "data_batch_extra.bin": 2, "test_batch.bin": 1},
	})

	stream, err := Open(location(root, "data_batch_1.bin"), dataset.Train)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	if got := stream.Unconfigured(); !slices.Equal(got, []string{"data_batch_extra.bin"}) {
		t.Errorf("Unconfigured = %v", got)
	}
	if got := len(stream.Shards()); got != 2 {
		t.Errorf("train split has %d shards, want 2", got)
	}
}

func TestShardDeletedAfterOpen(t *testing.T) {
	root := t.TempDir()
	dir := testutil.WriteTree(t, shape, root, "batches", testutil.Tree{
		Shards: map[string]int{"a.bin": 1, "b.bin": 1, "test_batch.bin": 1},
	})

	stream, err := Open(location(root, "a.bin", "b.bin"), dataset.Train)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	if err := os.Remove(filepath.Join(dir, "b.bin")); err != nil {
		t.Fatal(err)
	}
	_, err = io.ReadAll(stream)
	if !errors.Is(err, dataset.ErrShardMissing) {
		t.Fatalf("ReadAll = %v, want ErrShardMissing", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, shape, root, "batches", testutil.Tree{
		Shards: map[string]int{"a.bin": 2, "test_batch.bin": 1},
	})

	stream, err := Open(location(root, "a.bin"), dataset.Train)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buffer := make([]byte, 3)
	if _, err := stream.Read(buffer); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := stream.Read(buffer); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Read after Close = %v, want os.ErrClosed", err)
	}
}

func TestUnknownSplit(t *testing.T) {
	if _, err := Open(location(t.TempDir(), "a.bin"), dataset.Split("validation")); err == nil {
		t.Fatal("Open with unknown split should fail")
	}
}

func TestOpenRejectsMisalignedShards(t *testing.T) {
	root := t.TempDir()
	dir := testutil.WriteTree(t, shape, root, "batches", testutil.Tree{
		Shards: map[string]int{"data_batch_1.bin": 2, "test_batch.bin": 1},
	})
	// Two stray files whose lengths add up to one frame: reading them
	// back to back would decode a record spliced from both.
	frame := testutil.Frames(shape, 0, 1)
	if err := os.WriteFile(filepath.Join(dir, "extra_a.bin"), frame[:6], 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "extra_b.bin"), frame[6:], 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(location(root, "data_batch_1.bin"), dataset.Train)
	var integrity *dataset.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("Open = %v, want *dataset.IntegrityError", err)
	}
	if len(integrity.Problems) != 2 {
		t.Errorf("problems = %v, want one per misaligned shard", integrity.Problems)
	}
}

func TestOpenRejectsEmptyTestShard(t *testing.T) {
	root := t.TempDir()
	dir := testutil.WriteTree(t, shape, root, "batches", testutil.Tree{
		Shards: map[string]int{"data_batch_1.bin": 1},
	})
	if err := os.WriteFile(filepath.Join(dir, "test_batch.bin"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(location(root, "data_batch_1.bin"), dataset.Test); !errors.Is(err, dataset.ErrIntegrity) {
		t.Fatalf("Open = %v, want ErrIntegrity", err)
	}
}
