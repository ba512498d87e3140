// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// shardset materializes an image-classification dataset distributed as
// a compressed archive of fixed-size binary shards (CIFAR-10 by
// default) and inspects the local copy.
//
// Configuration comes from the file named by --config, else the file
// named by SHARDSET_CONFIG, else the built-in CIFAR-10 defaults under
// ~/.cache/shardset.
//
// Logs go to stderr: text when stderr is a terminal, JSON otherwise.
// Command output goes to stdout.
//
// Exit status is 0 on success, 1 on failure, 2 on a usage error, and 3
// when verify finds the cached copy damaged or incomplete.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/shardset/lib/config"
	"github.com/bureau-foundation/shardset/lib/datacache"
	"github.com/bureau-foundation/shardset/lib/process"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		process.Fatal(err)
	}
}

// environment is what every subcommand receives.
type environment struct {
	config *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

// command is one subcommand. run receives the arguments after the
// subcommand name.
type command struct {
	summary string
	run     func(ctx context.Context, env *environment, args []string) error
}

var commands = map[string]command{
	"fetch":   {"download and extract the dataset if not cached", runFetch},
	"verify":  {"check the cached dataset against its manifest", runVerify},
	"labels":  {"print the class names", runLabels},
	"count":   {"decode a split and count records per class", runCount},
	"purge":   {"remove the cached dataset", runPurge},
	"version": {"print version information", runVersion},
}

var commandOrder = []string{"fetch", "verify", "labels", "count", "purge", "version"}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var configPath string

	flagSet := pflag.NewFlagSet("shardset", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML or JSONC config file (default: $"+config.EnvironmentVariable+")")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderr, flagSet)
		return nil
	}

	remaining := flagSet.Args()
	if len(remaining) == 0 {
		printHelp(stderr, flagSet)
		return &process.ExitError{Code: 2, Err: errors.New("no command given")}
	}
	name, commandArgs := remaining[0], remaining[1:]
	selected, ok := commands[name]
	if !ok {
		return &process.ExitError{Code: 2, Err: fmt.Errorf("unknown command %q", name)}
	}
	if name == "version" {
		return selected.run(ctx, &environment{stdout: stdout, stderr: stderr}, commandArgs)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, _ := cfg.Level()
	env := &environment{
		config: cfg,
		logger: newLogger(stderr, level).With("command", name),
		stdout: stdout,
		stderr: stderr,
	}
	return selected.run(ctx, env, commandArgs)
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger writes text to a terminal and JSON to anything else.
func newLogger(stderr io.Writer, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if file, ok := stderr.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return slog.New(slog.NewTextHandler(stderr, options))
	}
	return slog.New(slog.NewJSONHandler(stderr, options))
}

// newCache builds a Cache from the environment's config. metrics may
// be nil.
func (env *environment) newCache(metrics datacache.Metrics) *datacache.Cache {
	interval, _ := env.config.PollInterval()
	return datacache.New(datacache.Options{
		Logger:           env.logger,
		Metrics:          metrics,
		LockPollInterval: interval,
	})
}

func printHelp(output io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(output, `shardset fetches and inspects a sharded image dataset.

Usage:
  shardset [--config FILE] <command> [flags]

Commands:
`)
	for _, name := range commandOrder {
		fmt.Fprintf(output, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(output, `
Run "shardset <command> --help" for command flags.

Flags:
`)
	flagSet.SetOutput(output)
	flagSet.PrintDefaults()
}
