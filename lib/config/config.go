// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/shardset/lib/dataset"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "SHARDSET_CONFIG"

// Config is the shardset configuration file.
type Config struct {
	// Root is the cache directory. Default: ${HOME}/.cache/shardset.
	Root string `yaml:"root"`

	// ArchiveURL is an http(s) URL, a file:// URL, or an absolute
	// path to the dataset archive.
	ArchiveURL string `yaml:"archive_url"`

	// ArchiveSHA256 is the optional hex digest the archive must match.
	ArchiveSHA256 string `yaml:"archive_sha256"`

	// ExtractedDir is the top-level directory the archive unpacks to.
	ExtractedDir string `yaml:"extracted_dir"`

	TrainShards    []string `yaml:"train_shards"`
	TestShard      string   `yaml:"test_shard"`
	LabelFile      string   `yaml:"label_file"`
	ShardExtension string   `yaml:"shard_extension"`

	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	Channels  int `yaml:"channels"`
	NumLabels int `yaml:"num_labels"`

	// TrainRecords and TestRecords are the documented split sizes.
	// Zero disables the check.
	TrainRecords int `yaml:"train_records"`
	TestRecords  int `yaml:"test_records"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level"`

	// LockPollInterval is how often a held cache lock is retried, as a
	// Go duration string. Default: 250ms.
	LockPollInterval string `yaml:"lock_poll_interval"`
}

// Default returns the CIFAR-10 configuration. Load and LoadFile start
// from it, so every key is optional in a file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	location := dataset.CIFAR10(filepath.Join(homeDir, ".cache", "shardset"))

	return &Config{
		Root:             location.Root,
		ArchiveURL:       location.ArchiveURL,
		ExtractedDir:     location.ExtractedDir,
		TrainShards:      location.TrainShards,
		TestShard:        location.TestShard,
		LabelFile:        location.LabelFile,
		ShardExtension:   location.ShardExtension,
		Width:            location.Geometry.Width,
		Height:           location.Geometry.Height,
		Channels:         location.Geometry.Channels,
		NumLabels:        location.Geometry.NumLabels,
		TrainRecords:     location.TrainRecords,
		TestRecords:      location.TestRecords,
		LogLevel:         "info",
		LockPollInterval: "250ms",
	}
}

// Load loads the file named by SHARDSET_CONFIG, or returns Default
// when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	// A file that lists train_shards replaces the default list rather
	// than merging into it element by element.
	cfg.TrainShards = nil

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	if cfg.TrainShards == nil {
		cfg.TrainShards = Default().TrainShards
	}

	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the same decoder and struct tags
		// serve both once comments are stripped.
		data = jsonc.ToJSON(data)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		// An empty file decodes to io.EOF; it simply sets nothing.
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return err
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Root = expandVars(c.Root, vars)
	vars["SHARDSET_ROOT"] = c.Root
	c.ArchiveURL = expandVars(c.ArchiveURL, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then the environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Location converts the configuration into a dataset location.
func (c *Config) Location() dataset.Location {
	return dataset.Location{
		Root:           c.Root,
		ArchiveURL:     c.ArchiveURL,
		ArchiveSHA256:  c.ArchiveSHA256,
		ExtractedDir:   c.ExtractedDir,
		TrainShards:    append([]string(nil), c.TrainShards...),
		TestShard:      c.TestShard,
		LabelFile:      c.LabelFile,
		ShardExtension: c.ShardExtension,
		Geometry: dataset.Geometry{
			Width:     c.Width,
			Height:    c.Height,
			Channels:  c.Channels,
			NumLabels: c.NumLabels,
		},
		TrainRecords: c.TrainRecords,
		TestRecords:  c.TestRecords,
	}
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// PollInterval returns LockPollInterval as a duration.
func (c *Config) PollInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.LockPollInterval)
	if err != nil {
		return 0, fmt.Errorf("lock_poll_interval: %w", err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("lock_poll_interval must be positive, got %s", c.LockPollInterval)
	}
	return interval, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Location().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ShardExtension != "" && !strings.HasPrefix(c.ShardExtension, ".") {
		errs = append(errs, fmt.Errorf("shard_extension %q must start with a dot", c.ShardExtension))
	}
	if strings.Contains(c.Root, "${") {
		errs = append(errs, fmt.Errorf("root %q has an unexpanded variable", c.Root))
	}
	if c.Root != "" && !filepath.IsAbs(c.Root) {
		errs = append(errs, fmt.Errorf("root %q must be an absolute path", c.Root))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.PollInterval(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
