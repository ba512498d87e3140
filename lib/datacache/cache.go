// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datacache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/shardset/lib/archive"
	"github.com/bureau-foundation/shardset/lib/binhash"
	"github.com/bureau-foundation/shardset/lib/clock"
	"github.com/bureau-foundation/shardset/lib/dataset"
	"github.com/bureau-foundation/shardset/lib/fsutil"
)

// DefaultLockPollInterval is how often a held cache lock is retried.
const DefaultLockPollInterval = 250 * time.Millisecond

// stagingPrefix names the per-populate scratch directories in the
// cache root.
const stagingPrefix = ".staging-"

// archiveName is the downloaded archive's name inside staging.
const archiveName = "archive.download"

// Options configures a Cache. The zero value is usable.
type Options struct {
	// Logger receives populate progress. Nil discards.
	Logger *slog.Logger

	// Clock drives manifest timestamps, durations, and lock polling.
	// Nil uses the real clock.
	Clock clock.Clock

	// HTTPClient fetches http(s) archives. Nil uses a client without
	// an overall timeout; cancellation comes from the context.
	HTTPClient *http.Client

	// Metrics receives populate outcomes. Nil uses Noop.
	Metrics Metrics

	// LockPollInterval defaults to DefaultLockPollInterval.
	LockPollInterval time.Duration
}

// Cache makes datasets available on local disk. A Cache is safe for
// concurrent use; create one per process and share it.
type Cache struct {
	logger           *slog.Logger
	clock            clock.Clock
	httpClient       *http.Client
	metrics          Metrics
	lockPollInterval time.Duration

	group singleflight.Group

	mu       sync.Mutex
	verdicts map[string]*Manifest
}

// New creates a Cache.
func New(options Options) *Cache {
	cache := &Cache{
		logger:           options.Logger,
		clock:            options.Clock,
		httpClient:       options.HTTPClient,
		metrics:          options.Metrics,
		lockPollInterval: options.LockPollInterval,
		verdicts:         make(map[string]*Manifest),
	}
	if cache.logger == nil {
		cache.logger = slog.New(slog.DiscardHandler)
	}
	if cache.clock == nil {
		cache.clock = clock.Real()
	}
	if cache.httpClient == nil {
		cache.httpClient = &http.Client{}
	}
	if cache.metrics == nil {
		cache.metrics = Noop{}
	}
	if cache.lockPollInterval <= 0 {
		cache.lockPollInterval = DefaultLockPollInterval
	}
	return cache
}

// EnsureLocal guarantees that the location's extracted tree is present
// and verified, downloading and extracting it at most once. It returns
// the manifest describing the verified tree.
//
// Concurrent calls for the same directory share one attempt. The attempt
// runs under the context of the call that started it; that caller waits
// for it to unwind before returning. A caller that joined returns as
// soon as its own ctx is done, and when the attempt was abandoned only
// because its starter was cancelled, a joined caller whose ctx is still
// live starts a new attempt.
func (c *Cache) EnsureLocal(ctx context.Context, location dataset.Location) (*Manifest, error) {
	if err := location.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset location: %w", err)
	}
	dir := location.Dir()

	for {
		if manifest := c.verdict(dir); manifest != nil {
			return manifest, nil
		}

		started := make(chan struct{})
		results := c.group.DoChan(dir, func() (any, error) {
			close(started)
			return c.attempt(ctx, location)
		})

		var result singleflight.Result
		select {
		case result = <-results:
		case <-ctx.Done():
			if !closed(started) {
				return nil, ctx.Err()
			}
			// This call's attempt is running under ctx; wait for it to
			// clean up its staging directory.
			result = <-results
		}

		if result.Err != nil {
			if !closed(started) && ctx.Err() == nil && isContextError(result.Err) {
				c.logger.Debug("shared populate was cancelled by its caller, retrying", slog.String("dir", dir))
				continue
			}
			return nil, result.Err
		}
		return result.Val.(*Manifest), nil
	}
}

// attempt runs one ensure and records its outcome.
func (c *Cache) attempt(ctx context.Context, location dataset.Location) (*Manifest, error) {
	started := c.clock.Now()
	manifest, outcome, err := c.ensure(ctx, location)
	if err != nil {
		outcome = OutcomeFailed
	}
	c.metrics.ObserveEnsure(outcome, c.clock.Now().Sub(started).Seconds())
	if err != nil {
		return nil, err
	}
	c.remember(location.Dir(), manifest)
	return manifest, nil
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) ensure(ctx context.Context, location dataset.Location) (*Manifest, string, error) {
	// The attempt may start after its caller already gave up.
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	dir := location.Dir()

	if manifest, ok := c.trustedManifest(location); ok {
		c.logger.Debug("dataset already cached", slog.String("dir", dir))
		return manifest, OutcomeCached, nil
	}

	if err := os.MkdirAll(location.Root, 0755); err != nil {
		return nil, "", fmt.Errorf("creating cache root: %w", err)
	}
	lock, err := c.acquireLock(ctx, lockPath(location))
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err := lock.release(); err != nil {
			c.logger.Warn("releasing cache lock", slog.Any("error", err))
		}
	}()

	// Another process may have finished while this one waited.
	if manifest, ok := c.trustedManifest(location); ok {
		c.logger.Info("dataset populated by another process", slog.String("dir", dir))
		return manifest, OutcomeCached, nil
	}

	if manifest, err := c.adopt(ctx, location); err != nil {
		return nil, "", err
	} else if manifest != nil {
		return manifest, OutcomeAdopted, nil
	}

	manifest, err := c.populate(ctx, location)
	if err != nil {
		return nil, "", err
	}
	return manifest, OutcomePopulated, nil
}

// trustedManifest returns the manifest in the final directory when it
// exists and every configured shard still matches it.
func (c *Cache) trustedManifest(location dataset.Location) (*Manifest, bool) {
	manifest, err := ReadManifest(location.Dir())
	if err != nil {
		if !errors.Is(err, errNoManifest) {
			c.logger.Warn("unreadable manifest", slog.String("dir", location.Dir()), slog.Any("error", err))
		}
		return nil, false
	}
	if problems := checkAgainstManifest(location, manifest); len(problems) > 0 {
		c.logger.Warn("cached dataset does not match its manifest",
			slog.String("dir", location.Dir()),
			slog.Any("problems", problems))
		return nil, false
	}
	return manifest, true
}

// adopt verifies a final directory that exists without a trusted
// manifest. It returns nil, nil when there is nothing to adopt or the
// directory fails verification, in which case populate replaces it.
// Must be called with the lock held.
func (c *Cache) adopt(ctx context.Context, location dataset.Location) (*Manifest, error) {
	dir := location.Dir()
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	entries, err := verifyTree(location, dir)
	var integrityErr *dataset.IntegrityError
	if errors.As(err, &integrityErr) {
		c.logger.Warn("replacing incomplete dataset directory",
			slog.String("dir", dir),
			slog.Any("problems", integrityErr.Problems))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := digestShards(ctx, dir, entries); err != nil {
		return nil, err
	}
	manifest := &Manifest{
		Version:     manifestVersion,
		Adopted:     true,
		CompletedAt: c.clock.Now().UTC(),
		Geometry:    location.Geometry,
		Shards:      entries,
	}
	if err := writeManifest(dir, manifest); err != nil {
		return nil, err
	}
	c.logger.Info("adopted existing dataset directory", slog.String("dir", dir), slog.Int("shards", len(entries)))
	return manifest, nil
}

// populate downloads, extracts, verifies, and publishes the dataset.
// Must be called with the lock held.
func (c *Cache) populate(ctx context.Context, location dataset.Location) (*Manifest, error) {
	populateID := uuid.NewString()
	logger := c.logger.With(slog.String("populate_id", populateID))

	staging := filepath.Join(location.Root, stagingPrefix+populateID)
	if err := os.Mkdir(staging, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() {
		if err := fsutil.RemoveAll(staging); err != nil {
			logger.Warn("removing staging directory", slog.Any("error", err))
		}
	}()

	archivePath := filepath.Join(staging, archiveName)
	download, err := c.fetch(ctx, location, archivePath)
	if err != nil {
		return nil, err
	}

	stats, err := archive.ExtractFile(ctx, archivePath, staging)
	if err != nil {
		return nil, extractionError(location.ArchiveURL, err)
	}
	logger.Info("extracted archive",
		slog.String("format", stats.Format.String()),
		slog.Int("files", stats.Files),
		slog.Int64("bytes", stats.Bytes))
	if err := os.Remove(archivePath); err != nil {
		return nil, fmt.Errorf("removing downloaded archive: %w", err)
	}

	extracted := filepath.Join(staging, location.ExtractedDir)
	entries, err := verifyTree(location, extracted)
	if err != nil {
		return nil, err
	}
	if err := digestShards(ctx, extracted, entries); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Version:       manifestVersion,
		ArchiveURL:    location.ArchiveURL,
		ArchiveSHA256: binhash.FormatDigest(download.SHA256),
		ArchiveBytes:  download.Bytes,
		CompletedAt:   c.clock.Now().UTC(),
		Geometry:      location.Geometry,
		Shards:        entries,
	}
	if err := writeManifest(extracted, manifest); err != nil {
		return nil, err
	}

	// Last chance to abandon before the final name appears.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final := location.Dir()
	if err := fsutil.RemoveAll(final); err != nil {
		return nil, fmt.Errorf("removing stale dataset directory: %w", err)
	}
	if err := os.Rename(extracted, final); err != nil {
		return nil, fmt.Errorf("publishing dataset directory: %w", err)
	}
	if err := fsutil.SyncDir(location.Root); err != nil {
		return nil, err
	}

	logger.Info("dataset ready",
		slog.String("dir", final),
		slog.Int64("train_records", manifest.Records(dataset.Train)),
		slog.Int64("test_records", manifest.Records(dataset.Test)))
	return manifest, nil
}

func extractionError(archiveURL string, err error) error {
	var entryErr *archive.EntryError
	if errors.As(err, &entryErr) {
		return &dataset.ExtractionError{Archive: archiveURL, Entry: entryErr.Entry, Err: entryErr.Err}
	}
	if errors.Is(err, archive.ErrUnsupportedFormat) {
		err = fmt.Errorf("%w: %w", dataset.ErrUnsupportedFormat, err)
	}
	return &dataset.ExtractionError{Archive: archiveURL, Err: err}
}

// Verify re-checks a populated dataset. The manifest must exist. A
// shallow verify checks shard presence, size, and alignment against
// the location and the manifest; deep also re-hashes every shard and
// compares BLAKE3 digests. A failure forgets the memoized verdict, so
// the next EnsureLocal repairs the directory.
func (c *Cache) Verify(ctx context.Context, location dataset.Location, deep bool) (*Manifest, error) {
	if err := location.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset location: %w", err)
	}
	dir := location.Dir()

	manifest, err := ReadManifest(dir)
	if errors.Is(err, errNoManifest) {
		c.forget(dir)
		return nil, &dataset.IntegrityError{
			Dir:      dir,
			Problems: []string{fmt.Sprintf("no usable %s (%v)", ManifestName, err)},
			Present:  listNames(dir, location.Extension()),
		}
	}
	if err != nil {
		return nil, err
	}

	if _, err := verifyTree(location, dir); err != nil {
		c.forget(dir)
		return nil, err
	}
	problems := checkAgainstManifest(location, manifest)
	if deep {
		digestProblems, err := checkDigests(ctx, dir, manifest)
		if err != nil {
			return nil, err
		}
		problems = append(problems, digestProblems...)
	}
	if len(problems) > 0 {
		c.forget(dir)
		return nil, &dataset.IntegrityError{Dir: dir, Problems: problems}
	}
	return manifest, nil
}

// Purge removes the location's extracted directory under the cache
// lock. Purging an absent directory is not an error.
func (c *Cache) Purge(ctx context.Context, location dataset.Location) error {
	if err := location.Validate(); err != nil {
		return fmt.Errorf("invalid dataset location: %w", err)
	}
	if _, err := os.Stat(location.Root); errors.Is(err, os.ErrNotExist) {
		c.forget(location.Dir())
		return nil
	}

	lock, err := c.acquireLock(ctx, lockPath(location))
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.release(); err != nil {
			c.logger.Warn("releasing cache lock", slog.Any("error", err))
		}
	}()

	c.forget(location.Dir())
	if err := fsutil.RemoveAll(location.Dir()); err != nil {
		return err
	}
	c.logger.Info("purged dataset directory", slog.String("dir", location.Dir()))
	return fsutil.SyncDir(location.Root)
}

func lockPath(location dataset.Location) string {
	return filepath.Join(location.Root, "."+location.ExtractedDir+".lock")
}

func (c *Cache) verdict(dir string) *Manifest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verdicts[dir]
}

func (c *Cache) remember(dir string, manifest *Manifest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts[dir] = manifest
}

func (c *Cache) forget(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.verdicts, dir)
}
