// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datacache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bureau-foundation/shardset/lib/binhash"
	"github.com/bureau-foundation/shardset/lib/dataset"
)

// verifyTree checks every shard the location references inside dir and
// returns one entry per shard, digests not yet filled in. Every problem
// found is collected into a single IntegrityError.
func verifyTree(location dataset.Location, dir string) ([]ShardEntry, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &dataset.IntegrityError{
			Dir:      dir,
			Problems: []string{fmt.Sprintf("directory %s does not exist", filepath.Base(dir))},
			Present:  listNames(filepath.Dir(dir), ""),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, &dataset.IntegrityError{
			Dir:      dir,
			Problems: []string{fmt.Sprintf("%s is not a directory", filepath.Base(dir))},
		}
	}

	frameSize := int64(location.Geometry.FrameSize())
	var problems []string
	entries := make([]ShardEntry, 0, len(location.TrainShards)+1)
	totals := make(map[dataset.Split]int64)

	for _, shard := range location.ExpectedShards() {
		path := filepath.Join(dir, shard.Name())
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			problems = append(problems, fmt.Sprintf("%s shard %s is missing", shard.Split, shard.Name()))
			continue
		case err != nil:
			return nil, fmt.Errorf("inspecting shard %s: %w", path, err)
		case !info.Mode().IsRegular():
			problems = append(problems, fmt.Sprintf("shard %s is not a regular file", shard.Name()))
			continue
		case info.Size() == 0:
			problems = append(problems, fmt.Sprintf("shard %s is empty", shard.Name()))
			continue
		case info.Size()%frameSize != 0:
			problems = append(problems, fmt.Sprintf("shard %s: size %d is not a multiple of the %d-byte frame",
				shard.Name(), info.Size(), frameSize))
			continue
		}
		records := info.Size() / frameSize
		totals[shard.Split] += records
		entries = append(entries, ShardEntry{
			Name:    shard.Name(),
			Split:   shard.Split,
			Size:    info.Size(),
			Records: records,
		})
	}

	// Totals are only meaningful when every shard of the split passed.
	if len(problems) == 0 {
		for _, split := range []dataset.Split{dataset.Train, dataset.Test} {
			want := int64(location.ExpectedRecords(split))
			if want != 0 && totals[split] != want {
				problems = append(problems, fmt.Sprintf("%s split has %d records, want %d", split, totals[split], want))
			}
		}
	}

	if len(problems) > 0 {
		return nil, &dataset.IntegrityError{
			Dir:      dir,
			Problems: problems,
			Present:  listNames(dir, location.Extension()),
		}
	}
	return entries, nil
}

// checkAgainstManifest is the warm-cache check: every configured shard
// must be listed in the manifest and still have the recorded size. It
// returns the problems found; none means the manifest can be trusted.
func checkAgainstManifest(location dataset.Location, manifest *Manifest) []string {
	var problems []string
	if manifest.Geometry != location.Geometry {
		problems = append(problems, fmt.Sprintf("manifest geometry %+v does not match %+v", manifest.Geometry, location.Geometry))
	}
	frameSize := int64(location.Geometry.FrameSize())
	for _, shard := range location.ExpectedShards() {
		entry, ok := manifest.Shard(shard.Name())
		if !ok {
			problems = append(problems, fmt.Sprintf("shard %s is not in the manifest", shard.Name()))
			continue
		}
		if entry.Split != shard.Split {
			problems = append(problems, fmt.Sprintf("shard %s is recorded in the %s split", shard.Name(), entry.Split))
		}
		info, err := os.Stat(shard.Path)
		if err != nil {
			problems = append(problems, fmt.Sprintf("shard %s: %v", shard.Name(), err))
			continue
		}
		if info.Size() != entry.Size {
			problems = append(problems, fmt.Sprintf("shard %s: size %d, manifest records %d", shard.Name(), info.Size(), entry.Size))
			continue
		}
		if info.Size() == 0 || info.Size()%frameSize != 0 {
			problems = append(problems, fmt.Sprintf("shard %s: size %d is not frame-aligned", shard.Name(), info.Size()))
		}
	}
	return problems
}

// checkDigests re-hashes every shard in the manifest.
func checkDigests(ctx context.Context, dir string, manifest *Manifest) ([]string, error) {
	var problems []string
	for _, entry := range manifest.Shards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		digest, err := binhash.HashFileBLAKE3(filepath.Join(dir, entry.Name))
		if errors.Is(err, os.ErrNotExist) {
			problems = append(problems, fmt.Sprintf("shard %s is missing", entry.Name))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", entry.Name, err)
		}
		if got := binhash.FormatDigest(digest); !strings.EqualFold(got, entry.BLAKE3) {
			problems = append(problems, fmt.Sprintf("shard %s: BLAKE3 %s, manifest records %s", entry.Name, got, entry.BLAKE3))
		}
	}
	return problems, nil
}

// listNames returns the sorted names in dir that end in extension, or
// every name when extension is empty. Hidden entries are skipped.
func listNames(dir, extension string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if extension != "" && filepath.Ext(name) != extension {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
