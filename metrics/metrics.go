// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics defines Prometheus collectors for minification.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded in minhtml_documents_total.
const (
	OutcomeMinified        = "minified"
	OutcomeCacheHit        = "cache_hit"
	OutcomeSkippedRequest  = "skipped_request"
	OutcomeSkippedResponse = "skipped_response"
	OutcomeSkippedDoctype  = "skipped_doctype"
)

// TransformBuckets covers single passes over documents of a few KB to a
// few MB, from 10µs to 1s.
var TransformBuckets = prometheus.ExponentialBuckets(0.00001, 4, 9)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	Documents         *prometheus.CounterVec
	BytesIn           prometheus.Counter
	BytesOut          prometheus.Counter
	TransformDuration *prometheus.HistogramVec
	CacheErrors       prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Documents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minhtml_documents_total",
				Help: "Documents seen by the gate, by outcome",
			},
			[]string{"outcome"},
		),
		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minhtml_bytes_in_total",
			Help: "Bytes of markup before minification",
		}),
		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minhtml_bytes_out_total",
			Help: "Bytes of markup after minification",
		}),
		TransformDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minhtml_transform_duration_seconds",
				Help:    "Time spent in each transformer",
				Buckets: TransformBuckets,
			},
			[]string{"transformer"},
		),
		CacheErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minhtml_cache_errors_total",
			Help: "Result cache failures",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Documents, m.BytesIn, m.BytesOut, m.TransformDuration, m.CacheErrors)
	}
	return m
}

// Document counts a document with the given outcome.
func (m *Metrics) Document(outcome string) {
	if m == nil {
		return
	}
	m.Documents.WithLabelValues(outcome).Inc()
}

// Bytes records sizes before and after minification.
func (m *Metrics) Bytes(in, out int) {
	if m == nil {
		return
	}
	m.BytesIn.Add(float64(in))
	m.BytesOut.Add(float64(out))
}

// Transform records the duration of one transformer pass.
func (m *Metrics) Transform(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.TransformDuration.WithLabelValues(name).Observe(d.Seconds())
}

// CacheError counts a failed cache call.
func (m *Metrics) CacheError() {
	if m == nil {
		return
	}
	m.CacheErrors.Inc()
}
