// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Split names one of the dataset's native partitions.
type Split string

const (
	// Train is the concatenation of every training shard.
	Train Split = "train"
	// Test is the single designated test shard.
	Test Split = "test"
)

// ParseSplit converts a command-line or config value into a Split.
func ParseSplit(value string) (Split, error) {
	switch Split(strings.ToLower(value)) {
	case Train:
		return Train, nil
	case Test:
		return Test, nil
	default:
		return "", fmt.Errorf("unknown split %q (want %q or %q)", value, Train, Test)
	}
}

// Geometry describes one fixed-length frame: a single class-id byte
// followed by Width*Height*Channels pixel bytes in channel-major planar
// order.
type Geometry struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	Channels  int `json:"channels"`
	NumLabels int `json:"num_labels"`
}

// PlaneSize is the number of bytes in one channel plane.
func (g Geometry) PlaneSize() int { return g.Width * g.Height }

// PixelSize is the number of pixel bytes in one frame.
func (g Geometry) PixelSize() int { return g.Width * g.Height * g.Channels }

// FrameSize is the total length of one frame, label byte included.
func (g Geometry) FrameSize() int { return 1 + g.PixelSize() }

// Validate reports whether the geometry can describe a frame. The
// class id is a single unsigned byte, so at most 256 labels fit.
func (g Geometry) Validate() error {
	var errs []error
	if g.Width <= 0 {
		errs = append(errs, fmt.Errorf("width must be positive, got %d", g.Width))
	}
	if g.Height <= 0 {
		errs = append(errs, fmt.Errorf("height must be positive, got %d", g.Height))
	}
	if g.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channels must be positive, got %d", g.Channels))
	}
	if g.NumLabels <= 0 || g.NumLabels > 256 {
		errs = append(errs, fmt.Errorf("num_labels must be in [1, 256], got %d", g.NumLabels))
	}
	return errors.Join(errs...)
}

// Location is the immutable description of one dataset instance: where
// the archive comes from, where it is cached, and what the extracted
// tree contains. Construct it once and pass it by value.
type Location struct {
	// Root is the cache directory. The extracted tree lives at
	// Root/ExtractedDir.
	Root string

	// ArchiveURL is the http(s) URL of the compressed archive. A
	// file:// URL or a plain absolute path is accepted for offline
	// mirrors.
	ArchiveURL string

	// ArchiveSHA256 is the optional hex SHA-256 of the archive. When
	// set, a downloaded archive that does not match is rejected before
	// extraction.
	ArchiveSHA256 string

	// ExtractedDir is the name of the top-level directory the archive
	// extracts to.
	ExtractedDir string

	// TrainShards lists the training shard file names expected inside
	// ExtractedDir.
	TrainShards []string

	// TestShard is the file name of the single test shard.
	TestShard string

	// LabelFile is the file name of the newline-separated class names.
	LabelFile string

	// ShardExtension selects which files in ExtractedDir belong to the
	// train split when it is opened. Defaults to ".bin".
	ShardExtension string

	Geometry Geometry

	// TrainRecords and TestRecords are the documented record counts of
	// each split. Zero disables the count check.
	TrainRecords int
	TestRecords  int
}

// Dir returns the final extracted directory.
func (l Location) Dir() string {
	return filepath.Join(l.Root, l.ExtractedDir)
}

// LabelPath returns the path of the label file.
func (l Location) LabelPath() string {
	return filepath.Join(l.Dir(), l.LabelFile)
}

// Extension returns ShardExtension, or ".bin" when unset.
func (l Location) Extension() string {
	if l.ShardExtension == "" {
		return ".bin"
	}
	return l.ShardExtension
}

// ExpectedShards returns every shard the location references, test
// shard last. Index orders shards within their split.
func (l Location) ExpectedShards() []ShardFile {
	shards := make([]ShardFile, 0, len(l.TrainShards)+1)
	for index, name := range l.TrainShards {
		shards = append(shards, ShardFile{
			Path:  filepath.Join(l.Dir(), name),
			Split: Train,
			Index: index,
		})
	}
	shards = append(shards, ShardFile{
		Path:  filepath.Join(l.Dir(), l.TestShard),
		Split: Test,
		Index: 0,
	})
	return shards
}

// ExpectedRecords returns the documented record count for split, or
// zero when unchecked.
func (l Location) ExpectedRecords(split Split) int {
	if split == Train {
		return l.TrainRecords
	}
	return l.TestRecords
}

// Validate checks that the location is usable: required fields are
// present, the geometry is sane, shard names are plain file names, and
// the train and test shard sets are disjoint.
func (l Location) Validate() error {
	var errs []error

	if l.Root == "" {
		errs = append(errs, errors.New("root is required"))
	}
	if l.ArchiveURL == "" {
		errs = append(errs, errors.New("archive_url is required"))
	}
	if l.ArchiveSHA256 != "" {
		if decoded, err := hex.DecodeString(strings.TrimSpace(l.ArchiveSHA256)); err != nil || len(decoded) != 32 {
			errs = append(errs, fmt.Errorf("archive_sha256 %q is not a hex SHA-256 digest", l.ArchiveSHA256))
		}
	}
	if l.ExtractedDir == "" {
		errs = append(errs, errors.New("extracted_dir is required"))
	} else if !isPlainName(l.ExtractedDir) {
		errs = append(errs, fmt.Errorf("extracted_dir %q must be a single path element", l.ExtractedDir))
	}
	if len(l.TrainShards) == 0 {
		errs = append(errs, errors.New("train_shards must list at least one shard"))
	}
	if l.TestShard == "" {
		errs = append(errs, errors.New("test_shard is required"))
	}
	if l.LabelFile == "" {
		errs = append(errs, errors.New("label_file is required"))
	}
	if l.TrainRecords < 0 || l.TestRecords < 0 {
		errs = append(errs, errors.New("record counts must not be negative"))
	}
	if err := l.Geometry.Validate(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool, len(l.TrainShards))
	for _, name := range l.TrainShards {
		if !isPlainName(name) {
			errs = append(errs, fmt.Errorf("train shard %q must be a plain file name", name))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("train shard %q listed twice", name))
		}
		seen[name] = true
	}
	if l.TestShard != "" {
		if !isPlainName(l.TestShard) {
			errs = append(errs, fmt.Errorf("test shard %q must be a plain file name", l.TestShard))
		}
		if seen[l.TestShard] {
			errs = append(errs, fmt.Errorf("shard %q is in both the train and test splits", l.TestShard))
		}
	}

	return errors.Join(errs...)
}

func isPlainName(name string) bool {
	return name != "." && name != ".." && filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}

// ShardFile is one shard on disk. Index is used only to order shards
// deterministically within a split.
type ShardFile struct {
	Path  string
	Split Split
	Index int
}

// Name returns the shard's file name.
func (s ShardFile) Name() string { return filepath.Base(s.Path) }

// CIFAR10 returns the location of the CIFAR-10 binary distribution
// cached under root. The train shard names are the ones the archive
// actually contains; they are still checked against the extracted
// directory at populate time.
func CIFAR10(root string) Location {
	return Location{
		Root:         root,
		ArchiveURL:   "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz",
		ExtractedDir: "cifar-10-batches-bin",
		TrainShards: []string{
			"data_batch_1.bin",
			"data_batch_2.bin",
			"data_batch_3.bin",
			"data_batch_4.bin",
			"data_batch_5.bin",
		},
		TestShard:      "test_batch.bin",
		LabelFile:      "batches.meta.txt",
		ShardExtension: ".bin",
		Geometry: Geometry{
			Width:     32,
			Height:    32,
			Channels:  3,
			NumLabels: 10,
		},
		TrainRecords: 50000,
		TestRecords:  10000,
	}
}
