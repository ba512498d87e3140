// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datacache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/shardset/lib/binhash"
	"github.com/bureau-foundation/shardset/lib/dataset"
	"github.com/bureau-foundation/shardset/lib/netutil"
)

// fetched describes an archive written to staging.
type fetched struct {
	Bytes  int64
	SHA256 [32]byte
}

// fetch copies the archive named by location.ArchiveURL into
// destination and checks its digest. Every failure is a
// *dataset.DownloadError.
func (c *Cache) fetch(ctx context.Context, location dataset.Location, destination string) (fetched, error) {
	source, size, err := c.openSource(ctx, location.ArchiveURL)
	if err != nil {
		return fetched{}, err
	}
	defer source.Close()

	attrs := []any{slog.String("url", location.ArchiveURL)}
	if size > 0 {
		attrs = append(attrs, slog.String("size", humanize.IBytes(uint64(size))))
	}
	c.logger.Info("downloading archive", attrs...)
	started := c.clock.Now()

	file, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fetched{}, &dataset.DownloadError{URL: location.ArchiveURL, Err: err}
	}
	digest, written, copyErr := binhash.HashReader(io.TeeReader(&contextReader{ctx: ctx, reader: source}, file))
	c.metrics.AddDownloadedBytes(written)
	if copyErr == nil {
		copyErr = file.Sync()
	}
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			copyErr = ctxErr
		}
		return fetched{}, &dataset.DownloadError{URL: location.ArchiveURL, Err: copyErr}
	}
	if size > 0 && written != size {
		return fetched{}, &dataset.DownloadError{
			URL: location.ArchiveURL,
			Err: fmt.Errorf("received %d of %d bytes", written, size),
		}
	}

	result := fetched{Bytes: written, SHA256: digest}

	if location.ArchiveSHA256 != "" {
		want, err := binhash.ParseDigest(location.ArchiveSHA256)
		if err != nil {
			return fetched{}, &dataset.DownloadError{URL: location.ArchiveURL, Err: err}
		}
		if result.SHA256 != want {
			return fetched{}, &dataset.DownloadError{
				URL: location.ArchiveURL,
				Err: fmt.Errorf("%w: got %s, want %s", dataset.ErrChecksumMismatch,
					binhash.FormatDigest(result.SHA256), binhash.FormatDigest(want)),
			}
		}
	}

	elapsed := c.clock.Now().Sub(started)
	c.logger.Info("downloaded archive",
		slog.String("url", location.ArchiveURL),
		slog.Int64("bytes", written),
		slog.String("size", humanize.IBytes(uint64(written))),
		slog.Duration("duration", elapsed),
		slog.String("sha256", binhash.FormatDigest(result.SHA256)),
	)
	return result, nil
}

// openSource opens an http(s) URL, a file:// URL, or an absolute path.
// size is the expected length, or -1 when unknown.
func (c *Cache) openSource(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	if filepath.IsAbs(rawURL) {
		return openLocal(rawURL, rawURL)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, &dataset.DownloadError{URL: rawURL, Err: err}
	}

	switch parsed.Scheme {
	case "file":
		return openLocal(rawURL, parsed.Path)
	case "http", "https":
	default:
		return nil, 0, &dataset.DownloadError{
			URL: rawURL,
			Err: fmt.Errorf("unsupported URL scheme %q", parsed.Scheme),
		}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, &dataset.DownloadError{URL: rawURL, Err: err}
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, 0, &dataset.DownloadError{URL: rawURL, Err: err}
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		excerpt := netutil.ErrorBody(response.Body)
		netutil.DrainBody(response.Body)
		if excerpt == "" {
			excerpt = http.StatusText(response.StatusCode)
		}
		return nil, 0, &dataset.DownloadError{
			URL:        rawURL,
			StatusCode: response.StatusCode,
			Err:        errors.New(excerpt),
		}
	}
	return response.Body, response.ContentLength, nil
}

func openLocal(rawURL, path string) (io.ReadCloser, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, &dataset.DownloadError{URL: rawURL, Err: err}
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, &dataset.DownloadError{URL: rawURL, Err: err}
	}
	return file, info.Size(), nil
}

// contextReader fails reads once ctx is done. HTTP bodies already
// honor the request context; this covers local copies.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (r *contextReader) Read(buffer []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.reader.Read(buffer)
}
