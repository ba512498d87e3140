// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrDownload          = errors.New("dataset: download failed")
	ErrExtraction        = errors.New("dataset: extraction failed")
	ErrIntegrity         = errors.New("dataset: integrity check failed")
	ErrLabelFileMissing  = errors.New("dataset: label file missing")
	ErrShardMissing      = errors.New("dataset: shard missing")
	ErrTruncatedRecord   = errors.New("dataset: truncated record")
	ErrInvalidRecord     = errors.New("dataset: invalid record")
	ErrChecksumMismatch  = errors.New("dataset: archive checksum mismatch")
	ErrUnsupportedFormat = errors.New("dataset: unsupported archive format")
)

// DownloadError reports that the archive could not be fetched into the
// staging area. StatusCode is set for non-2xx HTTP responses.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (err *DownloadError) Error() string {
	if err.StatusCode != 0 {
		return fmt.Sprintf("downloading %s: HTTP %d: %v", err.URL, err.StatusCode, err.Err)
	}
	return fmt.Sprintf("downloading %s: %v", err.URL, err.Err)
}

func (err *DownloadError) Unwrap() error { return err.Err }

func (err *DownloadError) Is(target error) bool { return target == ErrDownload }

// ExtractionError reports that the archive could not be unpacked.
// Entry names the archive member being processed, when known.
type ExtractionError struct {
	Archive string
	Entry   string
	Err     error
}

func (err *ExtractionError) Error() string {
	if err.Entry != "" {
		return fmt.Sprintf("extracting %s (entry %q): %v", err.Archive, err.Entry, err.Err)
	}
	return fmt.Sprintf("extracting %s: %v", err.Archive, err.Err)
}

func (err *ExtractionError) Unwrap() error { return err.Err }

func (err *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// IntegrityError reports every verification problem found in an
// extracted tree. Present lists the shard-extension files that were
// actually found, so a misnamed shard shows up next to the name that
// was expected instead of being silently corrected.
type IntegrityError struct {
	Dir      string
	Problems []string
	Present  []string
}

func (err *IntegrityError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "verifying %s: %s", err.Dir, strings.Join(err.Problems, "; "))
	if len(err.Present) > 0 {
		fmt.Fprintf(&builder, " (shards present: %s)", strings.Join(err.Present, ", "))
	}
	return builder.String()
}

func (err *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// LabelFileMissingError reports that the label file does not exist.
// It is recoverable: callers that can proceed without class names use
// labels.LoadAllowMissing instead of ignoring this error.
type LabelFileMissingError struct {
	Path string
	Err  error
}

func (err *LabelFileMissingError) Error() string {
	return fmt.Sprintf("label file %s does not exist", err.Path)
}

func (err *LabelFileMissingError) Unwrap() error { return err.Err }

func (err *LabelFileMissingError) Is(target error) bool { return target == ErrLabelFileMissing }

// ShardMissingError reports a shard that a split needs but that is not
// on disk. It is returned before any byte of the split is produced.
type ShardMissingError struct {
	Split Split
	Path  string
}

func (err *ShardMissingError) Error() string {
	return fmt.Sprintf("%s split: shard %s does not exist", err.Split, err.Path)
}

func (err *ShardMissingError) Is(target error) bool { return target == ErrShardMissing }

// TruncatedRecordError reports a stream that ended partway through a
// frame. Record is the zero-based index of the incomplete frame and
// Have is how many of its Want bytes were read.
type TruncatedRecordError struct {
	Record int64
	Have   int
	Want   int
}

func (err *TruncatedRecordError) Error() string {
	return fmt.Sprintf("record %d truncated: read %d of %d bytes", err.Record, err.Have, err.Want)
}

func (err *TruncatedRecordError) Is(target error) bool { return target == ErrTruncatedRecord }

// InvalidRecordError reports a complete frame that violates the
// dataset's invariants, such as a class id outside [0, NumLabels).
type InvalidRecordError struct {
	Record int64
	Reason string
}

func (err *InvalidRecordError) Error() string {
	return fmt.Sprintf("record %d invalid: %s", err.Record, err.Reason)
}

func (err *InvalidRecordError) Is(target error) bool { return target == ErrInvalidRecord }
