// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package record decodes fixed-length shard frames into labeled image
// records.
//
// A frame is 1 + Width*Height*Channels bytes: the class id, then every
// pixel of channel 0, then channel 1, and so on, each plane row-major.
// The decoder pulls exactly one frame per call; a stream that ends on a
// frame boundary returns io.EOF, and a stream that ends inside a frame
// returns *dataset.TruncatedRecordError. The two are never confused.
package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/bureau-foundation/shardset/lib/dataset"
)

// ImageRecord is one decoded frame. Pixels has length
// Width*Height*Channels in channel-major planar layout.
type ImageRecord struct {
	ClassID int
	Pixels  []byte

	geometry dataset.Geometry
}

// Plane returns the pixels of channel c, sharing the record's buffer.
func (r ImageRecord) Plane(c int) []byte {
	size := r.geometry.PlaneSize()
	return r.Pixels[c*size : (c+1)*size]
}

// At returns the value of channel c at row y, column x.
func (r ImageRecord) At(c, y, x int) byte {
	return r.Pixels[c*r.geometry.PlaneSize()+y*r.geometry.Width+x]
}

// Decoder reads frames from an underlying byte stream. A Decoder is
// owned by one consumer and is not safe for concurrent use.
type Decoder struct {
	reader   io.Reader
	geometry dataset.Geometry
	frame    []byte
	index    int64
	failed   error
}

// NewDecoder returns a decoder for frames of the given geometry.
func NewDecoder(reader io.Reader, geometry dataset.Geometry) *Decoder {
	return &Decoder{
		reader:   reader,
		geometry: geometry,
		frame:    make([]byte, geometry.FrameSize()),
	}
}

// Index returns the number of records decoded so far.
func (d *Decoder) Index() int64 { return d.index }

// Next decodes the next frame. It returns io.EOF when the stream ends
// exactly on a frame boundary. After any other error the decoder is
// spent and keeps returning that error.
//
// ctx is checked before each frame; a frame already being read is
// finished before cancellation is observed.
func (d *Decoder) Next(ctx context.Context) (ImageRecord, error) {
	if d.failed != nil {
		return ImageRecord{}, d.failed
	}
	if err := ctx.Err(); err != nil {
		return ImageRecord{}, err
	}

	read, err := io.ReadFull(d.reader, d.frame)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && read == 0:
		d.failed = io.EOF
		return ImageRecord{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		d.failed = &dataset.TruncatedRecordError{Record: d.index, Have: read, Want: len(d.frame)}
		return ImageRecord{}, d.failed
	default:
		d.failed = fmt.Errorf("reading record %d: %w", d.index, err)
		return ImageRecord{}, d.failed
	}

	classID := int(d.frame[0])
	if classID >= d.geometry.NumLabels {
		d.failed = &dataset.InvalidRecordError{
			Record: d.index,
			Reason: fmt.Sprintf("class id %d outside [0, %d)", classID, d.geometry.NumLabels),
		}
		return ImageRecord{}, d.failed
	}

	pixels := make([]byte, d.geometry.PixelSize())
	copy(pixels, d.frame[1:])
	d.index++

	return ImageRecord{ClassID: classID, Pixels: pixels, geometry: d.geometry}, nil
}

// Records returns a lazy sequence over every frame in reader. The
// sequence stops cleanly at a frame-boundary EOF; any other error is
// yielded once as the final element.
func Records(ctx context.Context, reader io.Reader, geometry dataset.Geometry) iter.Seq2[ImageRecord, error] {
	return func(yield func(ImageRecord, error) bool) {
		decoder := NewDecoder(reader, geometry)
		for {
			record, err := decoder.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(ImageRecord{}, err)
				return
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

// Count decodes every frame in reader and returns the number of
// records and the per-class histogram (indexed by class id).
func Count(ctx context.Context, reader io.Reader, geometry dataset.Geometry) (int64, []int64, error) {
	histogram := make([]int64, geometry.NumLabels)
	var total int64
	for record, err := range Records(ctx, reader, geometry) {
		if err != nil {
			return total, histogram, err
		}
		histogram[record.ClassID]++
		total++
	}
	return total, histogram, nil
}
