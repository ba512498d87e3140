// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datacache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/shardset/lib/binhash"
	"github.com/bureau-foundation/shardset/lib/codec"
	"github.com/bureau-foundation/shardset/lib/dataset"
	"github.com/bureau-foundation/shardset/lib/fsutil"
)

// ManifestName is the file name of the completion sentinel inside the
// extracted directory.
const ManifestName = ".shardset-manifest.cbor"

// manifestVersion is bumped when the manifest layout changes
// incompatibly. A manifest with another version is treated as absent.
const manifestVersion = 1

// Manifest records a verified extraction.
type Manifest struct {
	Version int `json:"version"`

	// ArchiveURL is where the archive was fetched from. Empty for an
	// adopted directory.
	ArchiveURL string `json:"archive_url,omitempty"`

	// ArchiveSHA256 is the hex digest of the archive as downloaded.
	ArchiveSHA256 string `json:"archive_sha256,omitempty"`

	// ArchiveBytes is the size of the downloaded archive.
	ArchiveBytes int64 `json:"archive_bytes,omitempty"`

	// Adopted is set when the directory was found on disk and
	// verified rather than populated by this package.
	Adopted bool `json:"adopted,omitempty"`

	CompletedAt time.Time        `json:"completed_at"`
	Geometry    dataset.Geometry `json:"geometry"`
	Shards      []ShardEntry     `json:"shards"`
}

// ShardEntry describes one verified shard.
type ShardEntry struct {
	Name    string        `json:"name"`
	Split   dataset.Split `json:"split"`
	Size    int64         `json:"size"`
	Records int64         `json:"records"`

	// BLAKE3 is the hex BLAKE3-256 digest of the shard.
	BLAKE3 string `json:"blake3"`
}

// Shard returns the entry for name, if present.
func (m *Manifest) Shard(name string) (ShardEntry, bool) {
	for _, entry := range m.Shards {
		if entry.Name == name {
			return entry, true
		}
	}
	return ShardEntry{}, false
}

// Records returns the total record count of split.
func (m *Manifest) Records(split dataset.Split) int64 {
	var total int64
	for _, entry := range m.Shards {
		if entry.Split == split {
			total += entry.Records
		}
	}
	return total
}

// errNoManifest is returned by ReadManifest when the directory has no
// usable manifest.
var errNoManifest = errors.New("no manifest")

// ReadManifest loads the manifest from an extracted directory. A
// missing file, an undecodable file, or a manifest of another version
// all wrap errNoManifest, and the caller falls back to full
// verification.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNoManifest
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var manifest Manifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", errNoManifest, ManifestName, err)
	}
	if manifest.Version != manifestVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", errNoManifest, manifest.Version, manifestVersion)
	}
	return &manifest, nil
}

func writeManifest(dir string, manifest *Manifest) error {
	data, err := codec.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return fsutil.WriteAtomic(filepath.Join(dir, ManifestName), data, 0644)
}

// digestShards fills in the BLAKE3 digest of every entry. ctx is
// checked between shards.
func digestShards(ctx context.Context, dir string, entries []ShardEntry) error {
	for index := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		digest, err := binhash.HashFileBLAKE3(filepath.Join(dir, entries[index].Name))
		if err != nil {
			return fmt.Errorf("hashing %s: %w", entries[index].Name, err)
		}
		entries[index].BLAKE3 = binhash.FormatDigest(digest)
	}
	return nil
}
