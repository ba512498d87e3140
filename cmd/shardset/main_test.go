// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/shardset/lib/config"
	"github.com/bureau-foundation/shardset/lib/process"
	"github.com/bureau-foundation/shardset/lib/testutil"
)

var shape = testutil.Shape{Width: 2, Height: 2, Channels: 3, NumLabels: 4}

var tree = testutil.Tree{
	Shards: map[string]int{
		"data_batch_1.bin": 4,
		"data_batch_2.bin": 4,
		"test_batch.bin":   4,
	},
	Labels: "cat\ndog\nbird\nfish\n",
}

// writeConfig writes an archive mirror and a config file that points at
// it, and returns the config path and the cache root.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	t.Setenv(config.EnvironmentVariable, "")
	dir := t.TempDir()

	archivePath := filepath.Join(dir, "mirror.tar.lz4")
	archive := testutil.Archive(t, "lz4", testutil.Entries(tree.Files(shape, "batches")))
	if err := os.WriteFile(archivePath, archive, 0644); err != nil {
		t.Fatal(err)
	}

	root := filepath.Join(dir, "cache")
	configPath := filepath.Join(dir, "shardset.yaml")
	content := strings.Join([]string{
		"root: " + root,
		"archive_url: file://" + archivePath,
		"extracted_dir: batches",
		"train_shards: [data_batch_1.bin, data_batch_2.bin]",
		"width: 2",
		"height: 2",
		"channels: 3",
		"num_labels: 4",
		"train_records: 8",
		"test_records: 4",
		"log_level: debug",
		"lock_poll_interval: 10ms",
	}, "\n") + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return configPath, root
}

func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestFetchVerifyCountPurge(t *testing.T) {
	configPath, root := writeConfig(t)
	dir := filepath.Join(root, "batches")
	metricsPath := filepath.Join(t.TempDir(), "shardset.prom")

	stdout, stderr, err := runCommand(t, "--config", configPath, "fetch", "--metrics-textfile", metricsPath)
	if err != nil {
		t.Fatalf("fetch: %v\nstderr:\n%s", err, stderr)
	}
	if !strings.Contains(stdout, dir) || !strings.Contains(stdout, "train:   8 records") {
		t.Errorf("fetch output:\n%s", stdout)
	}
	if !strings.Contains(stderr, `"command":"fetch"`) {
		t.Errorf("fetch logs are not JSON tagged with the command:\n%s", stderr)
	}
	metrics, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("reading metrics textfile: %v", err)
	}
	if !strings.Contains(string(metrics), `shardset_cache_ensure_total{outcome="populated"} 1`) {
		t.Errorf("metrics textfile:\n%s", metrics)
	}

	stdout, _, err = runCommand(t, "--config", configPath, "verify", "--deep", "--manifest")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(stdout, "ok (deep, 3 shards, 12 records") {
		t.Errorf("verify output:\n%s", stdout)
	}
	if !strings.Contains(stdout, `"blake3"`) {
		t.Errorf("verify --manifest did not print the manifest:\n%s", stdout)
	}

	stdout, _, err = runCommand(t, "--config", configPath, "labels")
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(stdout), "\n"); len(lines) != 4 || !strings.HasSuffix(lines[3], "fish") {
		t.Errorf("labels output:\n%s", stdout)
	}

	stdout, _, err = runCommand(t, "--config", configPath, "count", "--split", "train")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if !strings.HasPrefix(stdout, "train: 8 records in 2 shards") {
		t.Errorf("count output:\n%s", stdout)
	}
	if !strings.Contains(stdout, "dog") || !strings.Contains(stdout, "25.0%") {
		t.Errorf("count output lacks the per-class table:\n%s", stdout)
	}

	if _, _, err := runCommand(t, "--config", configPath, "purge"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dataset directory survived purge (stat: %v)", err)
	}
}

func TestVerifyReportsDamage(t *testing.T) {
	configPath, root := writeConfig(t)
	if _, _, err := runCommand(t, "--config", configPath, "fetch"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := os.Truncate(filepath.Join(root, "batches", "test_batch.bin"), 20); err != nil {
		t.Fatal(err)
	}

	_, _, err := runCommand(t, "--config", configPath, "verify")
	if code := process.ExitCode(err); err == nil || code != 3 {
		t.Fatalf("verify on a damaged tree = %v (exit %d), want exit 3", err, code)
	}
}

func TestVerifyBeforeFetch(t *testing.T) {
	configPath, _ := writeConfig(t)
	_, _, err := runCommand(t, "--config", configPath, "verify")
	if process.ExitCode(err) != 3 {
		t.Fatalf("verify without a cached copy = %v, want exit 3", err)
	}
}

func TestCountBothSplitsFetchesOnDemand(t *testing.T) {
	configPath, _ := writeConfig(t)
	stdout, _, err := runCommand(t, "--config", configPath, "count")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if !strings.Contains(stdout, "train: 8 records") || !strings.Contains(stdout, "test: 4 records in 1 shards") {
		t.Errorf("count output:\n%s", stdout)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	configPath, _ := writeConfig(t)
	t.Setenv(config.EnvironmentVariable, configPath)
	stdout, _, err := runCommand(t, "labels")
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	if !strings.Contains(stdout, "cat") {
		t.Errorf("labels output:\n%s", stdout)
	}
}

func TestUsageErrors(t *testing.T) {
	configPath, _ := writeConfig(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"unknown flag", []string{"--config", configPath, "fetch", "--bogus"}},
		{"stray argument", []string{"--config", configPath, "purge", "now"}},
		{"bad split", []string{"--config", configPath, "count", "--split", "validation"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := runCommand(t, test.args...)
			if process.ExitCode(err) != 2 {
				t.Errorf("err = %v (exit %d), want exit 2", err, process.ExitCode(err))
			}
		})
	}
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	configPath := filepath.Join(t.TempDir(), "shardset.yaml")
	if err := os.WriteFile(configPath, []byte("root: relative/path\nlog_level: loud\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, _, err := runCommand(t, "--config", configPath, "fetch")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("err = %v, want an invalid configuration error", err)
	}
	if !strings.Contains(err.Error(), "log_level") || !strings.Contains(err.Error(), "absolute") {
		t.Errorf("err = %v, want every problem reported", err)
	}
}

func TestHelpAndVersion(t *testing.T) {
	_, stderr, err := runCommand(t, "--help")
	if err != nil {
		t.Fatalf("--help: %v", err)
	}
	for _, name := range commandOrder {
		if !strings.Contains(stderr, name) {
			t.Errorf("help does not mention %s", name)
		}
	}

	stdout, _, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(stdout, "shardset ") {
		t.Errorf("version output = %q", stdout)
	}
}
