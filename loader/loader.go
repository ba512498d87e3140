// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/shardset/lib/datacache"
	"github.com/bureau-foundation/shardset/lib/dataset"
	"github.com/bureau-foundation/shardset/lib/labels"
	"github.com/bureau-foundation/shardset/lib/record"
	"github.com/bureau-foundation/shardset/lib/shardstream"
)

// Options configures a Loader.
type Options struct {
	// Cache materializes the dataset. Nil creates a private Cache
	// with Logger.
	Cache *datacache.Cache

	// Logger defaults to discard.
	Logger *slog.Logger

	// AllowMissingLabels makes an absent label file yield an empty
	// catalog instead of an error.
	AllowMissingLabels bool
}

// Loader serves records of one dataset location.
type Loader struct {
	location     dataset.Location
	cache        *datacache.Cache
	logger       *slog.Logger
	allowMissing bool

	mu      sync.Mutex
	catalog labels.Catalog
	loaded  bool
}

// New validates location and returns a Loader for it. Nothing is
// downloaded until the first call that needs data.
func New(location dataset.Location, options Options) (*Loader, error) {
	if err := location.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset location: %w", err)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cache := options.Cache
	if cache == nil {
		cache = datacache.New(datacache.Options{Logger: logger})
	}
	return &Loader{
		location:     location,
		cache:        cache,
		logger:       logger,
		allowMissing: options.AllowMissingLabels,
	}, nil
}

// Location returns the dataset location.
func (l *Loader) Location() dataset.Location { return l.location }

// Ensure makes the dataset available locally.
func (l *Loader) Ensure(ctx context.Context) (*datacache.Manifest, error) {
	return l.cache.EnsureLocal(ctx, l.location)
}

// Labels returns the class-name catalog, loading it on first use.
func (l *Loader) Labels(ctx context.Context) (labels.Catalog, error) {
	if _, err := l.Ensure(ctx); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.catalog, nil
	}

	load := labels.Load
	if l.allowMissing {
		load = labels.LoadAllowMissing
	}
	catalog, err := load(l.location.LabelPath())
	if err != nil {
		return nil, err
	}
	if catalog.Len() != l.location.Geometry.NumLabels && catalog.Len() != 0 {
		l.logger.Warn("label file does not match the configured class count",
			slog.String("path", l.location.LabelPath()),
			slog.Int("labels", catalog.Len()),
			slog.Int("num_labels", l.location.Geometry.NumLabels))
	}
	l.catalog = catalog
	l.loaded = true
	return catalog, nil
}

// Split is an open split: a shard stream, its decoder, and the label
// catalog. It is owned by one consumer.
type Split struct {
	Labels labels.Catalog

	stream  *shardstream.Stream
	decoder *record.Decoder
}

// Open ensures the dataset, loads the labels, and opens split.
func (l *Loader) Open(ctx context.Context, split dataset.Split) (*Split, error) {
	catalog, err := l.Labels(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := shardstream.Open(l.location, split)
	if err != nil {
		return nil, err
	}
	if unconfigured := stream.Unconfigured(); len(unconfigured) > 0 {
		l.logger.Warn("train split includes shard files that are not configured",
			slog.Any("files", unconfigured))
	}
	return &Split{
		Labels:  catalog,
		stream:  stream,
		decoder: record.NewDecoder(stream, l.location.Geometry),
	}, nil
}

// Next decodes the next record. It returns io.EOF after the last one.
func (s *Split) Next(ctx context.Context) (record.ImageRecord, error) {
	return s.decoder.Next(ctx)
}

// Records yields the remaining records of the split. The sequence is
// single-use; reopen the split to start over.
func (s *Split) Records(ctx context.Context) iter.Seq2[record.ImageRecord, error] {
	return func(yield func(record.ImageRecord, error) bool) {
		for {
			next, err := s.decoder.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(record.ImageRecord{}, err)
				return
			}
			if !yield(next, nil) {
				return
			}
		}
	}
}

// Shards returns the shard files behind the split, in read order.
func (s *Split) Shards() []dataset.ShardFile { return s.stream.Shards() }

// Close releases the open shard file.
func (s *Split) Close() error { return s.stream.Close() }

// Records is a convenience that opens split, yields every record, and
// closes it.
func (l *Loader) Records(ctx context.Context, split dataset.Split) iter.Seq2[record.ImageRecord, error] {
	return func(yield func(record.ImageRecord, error) bool) {
		opened, err := l.Open(ctx, split)
		if err != nil {
			yield(record.ImageRecord{}, err)
			return
		}
		defer opened.Close()
		for next, err := range opened.Records(ctx) {
			if !yield(next, err) {
				return
			}
		}
	}
}

// Counts summarizes a split.
type Counts struct {
	Split   dataset.Split `json:"split"`
	Records int64         `json:"records"`
	Shards  []string      `json:"shards"`

	// PerClass is indexed by class id.
	PerClass []int64 `json:"per_class"`
}

// Count decodes every record of split and tallies them by class.
func (l *Loader) Count(ctx context.Context, split dataset.Split) (Counts, error) {
	opened, err := l.Open(ctx, split)
	if err != nil {
		return Counts{}, err
	}
	defer opened.Close()

	total, perClass, err := record.Count(ctx, opened.stream, l.location.Geometry)
	if err != nil {
		return Counts{}, fmt.Errorf("counting %s split: %w", split, err)
	}
	counts := Counts{Split: split, Records: total, PerClass: perClass}
	for _, shard := range opened.Shards() {
		counts.Shards = append(counts.Shards, shard.Name())
	}
	return counts, nil
}

// Splits lists the splits in canonical order.
func Splits() []dataset.Split {
	return []dataset.Split{dataset.Train, dataset.Test}
}
