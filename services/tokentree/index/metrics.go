// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for index operations.
var (
	tracer = otel.Tracer("tokentree.index")
	meter  = otel.Meter("tokentree.index")
)

// Metrics for index operations.
var (
	operationLatency metric.Float64Histogram
	operationTotal   metric.Int64Counter
	nodeCount        metric.Int64Gauge
	searchResults    metric.Int64Histogram
	splitTotal       metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		operationLatency, err = meter.Float64Histogram(
			"tokentree_index_operation_duration_seconds",
			metric.WithDescription("Duration of index operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		operationTotal, err = meter.Int64Counter(
			"tokentree_index_operation_total",
			metric.WithDescription("Total number of index operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodeCount, err = meter.Int64Gauge(
			"tokentree_index_nodes",
			metric.WithDescription("Current number of nodes in the index tree"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		searchResults, err = meter.Int64Histogram(
			"tokentree_index_search_results",
			metric.WithDescription("Number of ids returned per search"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		splitTotal, err = meter.Int64Counter(
			"tokentree_index_splits_total",
			metric.WithDescription("Edges split while inserting texts"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startOperationSpan creates a span for an index operation.
func startOperationSpan(ctx context.Context, operation string, tokens int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Index."+operation,
		trace.WithAttributes(
			attribute.String("index.operation", operation),
			attribute.Int("index.tokens", tokens),
		),
	)
}

// setOperationSpanResult sets the result attributes on an operation span.
func setOperationSpanResult(span trace.Span, resultCount int, success bool) {
	span.SetAttributes(
		attribute.Int("index.result_count", resultCount),
		attribute.Bool("index.success", success),
	)
}

// setOperationSpanError marks an operation span as failed.
func setOperationSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Bool("index.success", false))
}

// recordOperationMetrics records metrics for an index operation.
func recordOperationMetrics(ctx context.Context, operation string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	)

	operationLatency.Record(ctx, duration.Seconds(), attrs)
	operationTotal.Add(ctx, 1, attrs)
}

// recordSearchResults records the number of ids a search returned.
func recordSearchResults(ctx context.Context, count int) {
	if err := initMetrics(); err != nil {
		return
	}
	searchResults.Record(ctx, int64(count))
}

// recordInsertShape records the tree size and splits after an insertion.
func recordInsertShape(ctx context.Context, nodes, splits int) {
	if err := initMetrics(); err != nil {
		return
	}
	nodeCount.Record(ctx, int64(nodes))
	if splits > 0 {
		splitTotal.Add(ctx, int64(splits))
	}
}
