// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/shardset/lib/dataset"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ExtractedDir != "cifar-10-batches-bin" {
		t.Errorf("expected extracted_dir=cifar-10-batches-bin, got %s", cfg.ExtractedDir)
	}
	if len(cfg.TrainShards) != 5 || cfg.TestShard != "test_batch.bin" {
		t.Errorf("unexpected shards: train=%v test=%s", cfg.TrainShards, cfg.TestShard)
	}
	if cfg.Width != 32 || cfg.Height != 32 || cfg.Channels != 3 || cfg.NumLabels != 10 {
		t.Errorf("unexpected geometry %dx%dx%d/%d", cfg.Width, cfg.Height, cfg.Channels, cfg.NumLabels)
	}
	if !strings.HasSuffix(cfg.Root, filepath.Join(".cache", "shardset")) {
		t.Errorf("expected root under .cache/shardset, got %s", cfg.Root)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() should validate: %v", err)
	}

	frameSize := cfg.Location().Geometry.FrameSize()
	if frameSize != 3073 {
		t.Errorf("frame size = %d, want 3073", frameSize)
	}
}

func TestLoad_WithoutConfigReturnsDefault(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ArchiveURL != Default().ArchiveURL {
		t.Errorf("expected default archive URL, got %s", cfg.ArchiveURL)
	}
}

func TestLoad_WithShardsetConfig(t *testing.T) {
	configPath := writeConfig(t, "shardset.yaml", `
root: /test/cache
archive_url: https://mirror.example/cifar-10-binary.tar.gz
log_level: debug
`)
	t.Setenv(EnvironmentVariable, configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Root != "/test/cache" {
		t.Errorf("expected root=/test/cache, got %s", cfg.Root)
	}
	if cfg.ArchiveURL != "https://mirror.example/cifar-10-binary.tar.gz" {
		t.Errorf("unexpected archive_url %s", cfg.ArchiveURL)
	}
	// Unset keys keep their defaults.
	if !slices.Equal(cfg.TrainShards, Default().TrainShards) {
		t.Errorf("train_shards should default, got %v", cfg.TrainShards)
	}
	if level, err := cfg.Level(); err != nil || level != slog.LevelDebug {
		t.Errorf("Level() = %v, %v; want debug", level, err)
	}
}

func TestLoadFile_ReplacesTrainShards(t *testing.T) {
	configPath := writeConfig(t, "small.yaml", `
root: /data
extracted_dir: batches
train_shards: [a.bin, b.bin]
test_shard: t.bin
width: 2
height: 2
channels: 1
num_labels: 3
train_records: 0
test_records: 0
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if !slices.Equal(cfg.TrainShards, []string{"a.bin", "b.bin"}) {
		t.Errorf("train_shards = %v, want [a.bin b.bin]", cfg.TrainShards)
	}

	location := cfg.Location()
	if location.Dir() != filepath.Join("/data", "batches") {
		t.Errorf("Dir() = %s", location.Dir())
	}
	if location.Geometry != (dataset.Geometry{Width: 2, Height: 2, Channels: 1, NumLabels: 3}) {
		t.Errorf("geometry = %+v", location.Geometry)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	configPath := writeConfig(t, "shardset.jsonc", `{
  // Offline mirror on the shared volume.
  "root": "/scratch/cache",
  "archive_url": "file:///mnt/mirror/cifar-10-binary.tar.gz",
  "archive_sha256": "c4a38c50a1bc5f3a1c5537f2155ab9d68f9f25eb1ed8d9ddda3db29a59bca1dd",
  "lock_poll_interval": "1s", /* trailing comma below */
}
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Root != "/scratch/cache" {
		t.Errorf("expected root=/scratch/cache, got %s", cfg.Root)
	}
	if interval, err := cfg.PollInterval(); err != nil || interval != time.Second {
		t.Errorf("PollInterval() = %v, %v; want 1s", interval, err)
	}
	if cfg.Location().ArchiveSHA256 == "" {
		t.Error("archive_sha256 not carried into the location")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestLoadFile_RejectsUnknownKeys(t *testing.T) {
	for name, content := range map[string]string{
		"typo.yaml": "archive_ulr: https://example.invalid/x.tar.gz\n",
		"typo.json": `{"test_shards": "t.bin"}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, name, content)); err == nil {
				t.Fatal("expected error for unknown key")
			}
		})
	}
}

func TestLoadFile_Empty(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "empty.yaml", "\n"))
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.ExtractedDir != Default().ExtractedDir {
		t.Errorf("empty file should leave defaults, got extracted_dir=%s", cfg.ExtractedDir)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	configPath := writeConfig(t, "vars.yaml", `
root: ${HOME}/datasets
archive_url: file://${SHARDSET_ROOT}/mirror.tar.gz
`)
	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Root != "/home/tester/datasets" {
		t.Errorf("expected root=/home/tester/datasets, got %s", cfg.Root)
	}
	if cfg.ArchiveURL != "file:///home/tester/datasets/mirror.tar.gz" {
		t.Errorf("archive_url = %s, want the expanded root", cfg.ArchiveURL)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("SHARDSET_TEST_VAR", "from-env")

	tests := []struct {
		input string
		vars  map[string]string
		want  string
	}{
		{"${HOME}/cache", map[string]string{"HOME": "/h"}, "/h/cache"},
		{"${SHARDSET_TEST_VAR}", nil, "from-env"},
		{"${SHARDSET_UNSET_VAR:-fallback}", nil, "fallback"},
		{"${SHARDSET_UNSET_VAR}", nil, ""},
		{"plain", nil, "plain"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, test.vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative root", func(c *Config) { c.Root = "cache" }, "absolute path"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad interval", func(c *Config) { c.LockPollInterval = "soon" }, "lock_poll_interval"},
		{"zero interval", func(c *Config) { c.LockPollInterval = "0s" }, "must be positive"},
		{"extension without dot", func(c *Config) { c.ShardExtension = "bin" }, "shard_extension"},
		{"overlapping splits", func(c *Config) { c.TestShard = c.TrainShards[0] }, "both the train and test splits"},
		{"too many labels", func(c *Config) { c.NumLabels = 300 }, "num_labels"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			cfg.Root = "/cache"
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %q", err, test.want)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Root = ""
	cfg.LogLevel = "loud"
	cfg.Width = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"root is required", "log_level", "width must be positive"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
