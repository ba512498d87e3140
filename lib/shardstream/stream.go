// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package shardstream exposes the shard files of one split as a single
// sequential byte stream.
//
// The test split is the single designated test shard. The train split
// is every file in the extracted directory that carries the shard
// extension and is not the test shard, sorted by file name. Sorting is
// what makes two runs over the same tree produce the same record order;
// directory enumeration order is never relied on.
//
// Every shard the split needs is checked at [Open] time, so a missing
// shard is reported as *dataset.ShardMissingError, and an empty or
// misaligned one as *dataset.IntegrityError, before the first byte is
// read. Files are then opened lazily, one at a time, as the reader
// crosses shard boundaries; the dataset is never buffered in memory.
package shardstream

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/shardset/lib/dataset"
)

// Stream is an io.ReadCloser over the ordered shards of one split. It
// is owned by a single consumer and is not safe for concurrent use.
type Stream struct {
	split        dataset.Split
	shards       []dataset.ShardFile
	sizes        []int64
	unconfigured []string

	current *os.File
	next    int
	offset  int64
	closed  bool
}

// Open resolves the shards of split under location and returns a
// stream positioned at the first byte of the first shard.
func Open(location dataset.Location, split dataset.Split) (*Stream, error) {
	var shards []dataset.ShardFile
	var unconfigured []string

	switch split {
	case dataset.Test:
		shards = []dataset.ShardFile{{
			Path:  filepath.Join(location.Dir(), location.TestShard),
			Split: dataset.Test,
		}}
	case dataset.Train:
		var err error
		shards, unconfigured, err = trainShards(location)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown split %q", split)
	}

	frameSize := int64(location.Geometry.FrameSize())
	var problems []string
	sizes := make([]int64, len(shards))
	for index, shard := range shards {
		info, err := os.Stat(shard.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &dataset.ShardMissingError{Split: split, Path: shard.Path}
			}
			return nil, fmt.Errorf("checking shard %s: %w", shard.Path, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("shard %s is not a regular file", shard.Path)
		}
		switch {
		case info.Size() == 0:
			problems = append(problems, fmt.Sprintf("shard %s is empty", shard.Name()))
		case info.Size()%frameSize != 0:
			problems = append(problems, fmt.Sprintf("shard %s: size %d is not a multiple of the %d-byte frame",
				shard.Name(), info.Size(), frameSize))
		}
		sizes[index] = info.Size()
	}
	// Frames never span files, so a misaligned shard would splice
	// records from neighbouring shards.
	if len(problems) > 0 {
		return nil, &dataset.IntegrityError{Dir: location.Dir(), Problems: problems}
	}

	return &Stream{
		split:        split,
		shards:       shards,
		sizes:        sizes,
		unconfigured: unconfigured,
	}, nil
}

// trainShards lists the train split: every shard-extension file in the
// directory except the test shard, in file name order. Configured train
// shards that are absent are reported as missing; present files that
// the location does not list are included and returned separately.
func trainShards(location dataset.Location) ([]dataset.ShardFile, []string, error) {
	dir := location.Dir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, &dataset.ShardMissingError{
				Split: dataset.Train,
				Path:  filepath.Join(dir, location.TrainShards[0]),
			}
		}
		return nil, nil, fmt.Errorf("listing shard directory: %w", err)
	}

	extension := location.Extension()
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, extension) || name == location.TestShard {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)

	for _, expected := range location.TrainShards {
		if _, found := slices.BinarySearch(names, expected); !found {
			return nil, nil, &dataset.ShardMissingError{
				Split: dataset.Train,
				Path:  filepath.Join(dir, expected),
			}
		}
	}

	var unconfigured []string
	shards := make([]dataset.ShardFile, len(names))
	for index, name := range names {
		shards[index] = dataset.ShardFile{
			Path:  filepath.Join(dir, name),
			Split: dataset.Train,
			Index: index,
		}
		if !slices.Contains(location.TrainShards, name) {
			unconfigured = append(unconfigured, name)
		}
	}
	return shards, unconfigured, nil
}

// Split returns the split this stream reads.
func (s *Stream) Split() dataset.Split { return s.split }

// Shards returns the shards in read order.
func (s *Stream) Shards() []dataset.ShardFile { return slices.Clone(s.shards) }

// Unconfigured returns train shard files that were found in the
// directory and included in the stream although the location does not
// list them.
func (s *Stream) Unconfigured() []string { return slices.Clone(s.unconfigured) }

// Size returns the total length of the split as measured at Open.
func (s *Stream) Size() int64 {
	var total int64
	for _, size := range s.sizes {
		total += size
	}
	return total
}

// Offset returns the number of bytes read so far.
func (s *Stream) Offset() int64 { return s.offset }

// Read reads from the current shard, advancing to the next shard when
// the current one is exhausted. It returns io.EOF only after the last
// shard is exhausted.
func (s *Stream) Read(buffer []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	if len(buffer) == 0 {
		return 0, nil
	}

	for {
		if s.current == nil {
			if s.next >= len(s.shards) {
				return 0, io.EOF
			}
			shard := s.shards[s.next]
			file, err := os.Open(shard.Path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return 0, &dataset.ShardMissingError{Split: s.split, Path: shard.Path}
				}
				return 0, fmt.Errorf("opening shard %s: %w", shard.Path, err)
			}
			s.current = file
			s.next++
		}

		read, err := s.current.Read(buffer)
		s.offset += int64(read)
		if errors.Is(err, io.EOF) {
			closeErr := s.current.Close()
			s.current = nil
			if closeErr != nil {
				return read, fmt.Errorf("closing shard: %w", closeErr)
			}
			if read > 0 {
				return read, nil
			}
			continue
		}
		if err != nil {
			return read, fmt.Errorf("reading shard %s: %w", s.shards[s.next-1].Path, err)
		}
		return read, nil
	}
}

// Close releases the open shard, if any. Close is idempotent.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	return err
}
