// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datacache

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for EnsureLocal attempts.
const (
	OutcomeCached    = "cached"
	OutcomeAdopted   = "adopted"
	OutcomePopulated = "populated"
	OutcomeFailed    = "failed"
)

// Metrics receives cache events.
type Metrics interface {
	// ObserveEnsure records one EnsureLocal attempt that was not
	// answered from the in-memory verdict.
	ObserveEnsure(outcome string, durationSeconds float64)

	// AddDownloadedBytes counts archive bytes written to staging.
	AddDownloadedBytes(n int64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveEnsure(string, float64) {}
func (Noop) AddDownloadedBytes(int64)      {}

// Prom implements Metrics with Prometheus collectors.
type Prom struct {
	ensures    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	downloaded prometheus.Counter
}

// NewProm creates the collectors under namespace and registers them
// with registerer.
func NewProm(registerer prometheus.Registerer, namespace string) (*Prom, error) {
	p := &Prom{
		ensures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "ensure_total",
			Help:      "EnsureLocal attempts by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "ensure_duration_seconds",
			Help:      "EnsureLocal latency by outcome",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"outcome"}),
		downloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "downloaded_bytes_total",
			Help:      "Archive bytes downloaded into staging",
		}),
	}
	for _, collector := range []prometheus.Collector{p.ensures, p.duration, p.downloaded} {
		if err := registerer.Register(collector); err != nil {
			return nil, fmt.Errorf("registering cache metrics: %w", err)
		}
	}
	return p, nil
}

func (p *Prom) ObserveEnsure(outcome string, durationSeconds float64) {
	p.ensures.WithLabelValues(outcome).Inc()
	p.duration.WithLabelValues(outcome).Observe(durationSeconds)
}

func (p *Prom) AddDownloadedBytes(n int64) {
	p.downloaded.Add(float64(n))
}
