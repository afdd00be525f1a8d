// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sourcectx

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for enrichment operations.
var (
	tracer = otel.Tracer("crashlens.sourcectx")
	meter  = otel.Meter("crashlens.sourcectx")
)

// Metrics for remote fetches and enrichment passes.
var (
	fetchTotal      metric.Int64Counter
	fetchFailures   metric.Int64Counter
	fetchCacheHits  metric.Int64Counter
	fetchLatency    metric.Float64Histogram
	entriesProduced metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		fetchTotal, err = meter.Int64Counter(
			"sourcectx_fetch_total",
			metric.WithDescription("Total number of remote source fetches"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fetchFailures, err = meter.Int64Counter(
			"sourcectx_fetch_failures_total",
			metric.WithDescription("Total number of failed remote source fetches"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fetchCacheHits, err = meter.Int64Counter(
			"sourcectx_fetch_cache_hits_total",
			metric.WithDescription("Total number of per-pass fetch cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fetchLatency, err = meter.Float64Histogram(
			"sourcectx_fetch_latency_seconds",
			metric.WithDescription("Latency of remote source fetches"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		entriesProduced, err = meter.Int64Counter(
			"sourcectx_entries_total",
			metric.WithDescription("Source context entries produced, by status"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordFetch records one completed fetch attempt.
func recordFetch(ctx context.Context, provider Provider, start time.Time, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", string(provider)))
	fetchTotal.Add(ctx, 1, attrs)
	if err != nil {
		fetchFailures.Add(ctx, 1, attrs)
	}
	fetchLatency.Record(ctx, time.Since(start).Seconds(), attrs)
}

// recordCacheHit records one per-pass fetch cache hit.
func recordCacheHit(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	fetchCacheHits.Add(ctx, 1)
}

// recordEntry records one produced entry by status.
func recordEntry(ctx context.Context, status string) {
	if initMetrics() != nil {
		return
	}
	entriesProduced.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
