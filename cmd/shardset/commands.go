// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shardset/lib/codec"
	"github.com/bureau-foundation/shardset/lib/datacache"
	"github.com/bureau-foundation/shardset/lib/dataset"
	"github.com/bureau-foundation/shardset/lib/process"
	"github.com/bureau-foundation/shardset/lib/version"
	"github.com/bureau-foundation/shardset/loader"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "shardset"

// parseFlags parses a subcommand's flags. done is true when the
// command should return err without running (help or a parse error).
func (env *environment) parseFlags(flagSet *pflag.FlagSet, args []string) (done bool, err error) {
	flagSet.SetOutput(env.stderr)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return true, &process.ExitError{Code: 2, Err: err}
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return true, &process.ExitError{Code: 2, Err: fmt.Errorf("unexpected argument: %s", extra[0])}
	}
	return false, nil
}

func runFetch(ctx context.Context, env *environment, args []string) error {
	var metricsTextfile string
	flagSet := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	flagSet.StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics for this run to FILE in text format")
	if done, err := env.parseFlags(flagSet, args); done {
		return err
	}

	var metrics datacache.Metrics
	registry := prometheus.NewRegistry()
	if metricsTextfile != "" {
		prom, err := datacache.NewProm(registry, metricsNamespace)
		if err != nil {
			return err
		}
		metrics = prom
	}

	location := env.config.Location()
	manifest, err := env.newCache(metrics).EnsureLocal(ctx, location)
	if metricsTextfile != "" {
		if writeErr := prometheus.WriteToTextfile(metricsTextfile, registry); writeErr != nil {
			err = errors.Join(err, fmt.Errorf("writing metrics: %w", writeErr))
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(env.stdout, "%s\n", location.Dir())
	if manifest.Adopted {
		fmt.Fprintf(env.stdout, "  source:  existing directory (adopted)\n")
	} else {
		fmt.Fprintf(env.stdout, "  source:  %s (%s)\n", manifest.ArchiveURL, humanize.IBytes(uint64(manifest.ArchiveBytes)))
		fmt.Fprintf(env.stdout, "  sha256:  %s\n", manifest.ArchiveSHA256)
	}
	fmt.Fprintf(env.stdout, "  train:   %s records\n", humanize.Comma(manifest.Records(dataset.Train)))
	fmt.Fprintf(env.stdout, "  test:    %s records\n", humanize.Comma(manifest.Records(dataset.Test)))
	fmt.Fprintf(env.stdout, "  ready:   %s\n", manifest.CompletedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func runVerify(ctx context.Context, env *environment, args []string) error {
	var deep, showManifest bool
	flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	flagSet.BoolVar(&deep, "deep", false, "also re-hash every shard and compare BLAKE3 digests")
	flagSet.BoolVar(&showManifest, "manifest", false, "print the manifest in CBOR diagnostic notation")
	if done, err := env.parseFlags(flagSet, args); done {
		return err
	}

	location := env.config.Location()
	manifest, err := env.newCache(nil).Verify(ctx, location, deep)
	if err != nil {
		if errors.Is(err, dataset.ErrIntegrity) {
			return &process.ExitError{Code: 3, Err: err}
		}
		return err
	}

	var size int64
	for _, shard := range manifest.Shards {
		size += shard.Size
	}
	mode := "shallow"
	if deep {
		mode = "deep"
	}
	fmt.Fprintf(env.stdout, "%s: ok (%s, %d shards, %s records, %s)\n",
		location.Dir(), mode, len(manifest.Shards),
		humanize.Comma(manifest.Records(dataset.Train)+manifest.Records(dataset.Test)),
		humanize.IBytes(uint64(size)))

	if showManifest {
		data, err := os.ReadFile(filepath.Join(location.Dir(), datacache.ManifestName))
		if err != nil {
			return err
		}
		notation, err := codec.Diagnose(data)
		if err != nil {
			return fmt.Errorf("decoding manifest: %w", err)
		}
		fmt.Fprintln(env.stdout, notation)
	}
	return nil
}

func runLabels(ctx context.Context, env *environment, args []string) error {
	var allowMissing bool
	flagSet := pflag.NewFlagSet("labels", pflag.ContinueOnError)
	flagSet.BoolVar(&allowMissing, "allow-missing", false, "print nothing instead of failing when the label file is absent")
	if done, err := env.parseFlags(flagSet, args); done {
		return err
	}

	l, err := loader.New(env.config.Location(), loader.Options{
		Cache:              env.newCache(nil),
		Logger:             env.logger,
		AllowMissingLabels: allowMissing,
	})
	if err != nil {
		return err
	}
	catalog, err := l.Labels(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(env.stdout, 2, 0, 3, ' ', 0)
	for id, name := range catalog {
		fmt.Fprintf(writer, "%d\t%s\n", id, name)
	}
	return writer.Flush()
}

func runCount(ctx context.Context, env *environment, args []string) error {
	var splitName string
	flagSet := pflag.NewFlagSet("count", pflag.ContinueOnError)
	flagSet.StringVar(&splitName, "split", "", "count only this split (train or test); default both")
	if done, err := env.parseFlags(flagSet, args); done {
		return err
	}

	splits := loader.Splits()
	if splitName != "" {
		split, err := dataset.ParseSplit(splitName)
		if err != nil {
			return &process.ExitError{Code: 2, Err: err}
		}
		splits = []dataset.Split{split}
	}

	l, err := loader.New(env.config.Location(), loader.Options{
		Cache:              env.newCache(nil),
		Logger:             env.logger,
		AllowMissingLabels: true,
	})
	if err != nil {
		return err
	}
	catalog, err := l.Labels(ctx)
	if err != nil {
		return err
	}

	for index, split := range splits {
		counts, err := l.Count(ctx, split)
		if err != nil {
			return err
		}
		if index > 0 {
			fmt.Fprintln(env.stdout)
		}
		fmt.Fprintf(env.stdout, "%s: %s records in %d shards\n",
			split, humanize.Comma(counts.Records), len(counts.Shards))

		writer := tabwriter.NewWriter(env.stdout, 2, 0, 3, ' ', 0)
		fmt.Fprintf(writer, "ID\tCLASS\tRECORDS\tSHARE\n")
		for class, n := range counts.PerClass {
			share := 0.0
			if counts.Records > 0 {
				share = 100 * float64(n) / float64(counts.Records)
			}
			fmt.Fprintf(writer, "%d\t%s\t%s\t%.1f%%\n", class, catalog.Name(class), humanize.Comma(n), share)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func runPurge(ctx context.Context, env *environment, args []string) error {
	flagSet := pflag.NewFlagSet("purge", pflag.ContinueOnError)
	if done, err := env.parseFlags(flagSet, args); done {
		return err
	}

	location := env.config.Location()
	if err := env.newCache(nil).Purge(ctx, location); err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "removed %s\n", location.Dir())
	return nil
}

func runVersion(_ context.Context, env *environment, args []string) error {
	flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
	if done, err := env.parseFlags(flagSet, args); done {
		return err
	}
	fmt.Fprintf(env.stdout, "shardset %s\n", version.Full())
	return nil
}
