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
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var (
	spanRecorder = tracetest.NewSpanRecorder()
	metricReader = sdkmetric.NewManualReader()
)

func TestMain(m *testing.M) {
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder)))
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader)))
	os.Exit(m.Run())
}

// failedInsertSpan returns the ended Insert span whose error status
// mentions detail.
func failedInsertSpan(t *testing.T, detail string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range spanRecorder.Ended() {
		if s.Name() == "Index.Insert" && s.Status().Code == codes.Error &&
			strings.Contains(s.Status().Description, detail) {
			return s
		}
	}
	t.Fatalf("no failed Index.Insert span mentioning %q", detail)
	return nil
}

// insertCount returns the Insert operation counter for the given outcome.
func insertCount(t *testing.T, success bool) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, metricReader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "tokentree_index_operation_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value(attribute.Key("operation"))
				outcome, _ := dp.Attributes.Value(attribute.Key("success"))
				if op.AsString() == "Insert" && outcome.AsBool() == success {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestInsert_RejectionsAreRecorded(t *testing.T) {
	ctx := context.Background()
	before := insertCount(t, false)

	idx := New[string, string](WithMaxTexts(1))
	require.NoError(t, idx.Insert(ctx, toks("a b"), "t1"))
	assert.ErrorIs(t, idx.Insert(ctx, toks("c"), "t2"), ErrMaxTextsExceeded)
	assert.ErrorIs(t, idx.Insert(ctx, nil, "t3"), ErrInvalidInput)

	assert.Equal(t, before+2, insertCount(t, false))

	span := failedInsertSpan(t, "limit 1")
	require.NotEmpty(t, span.Events())
	assert.Equal(t, "exception", span.Events()[0].Name)
	failedInsertSpan(t, "empty token sequence")
}

func TestInsert_PanicMarksSpanFailed(t *testing.T) {
	ctx := context.Background()
	before := insertCount(t, false)

	// A slice id cannot be hashed into a match-id set, so construction
	// panics part way through.
	idx := New[string, any]()
	assert.Panics(t, func() {
		_ = idx.Insert(ctx, toks("a b"), []int{1})
	})

	assert.Equal(t, before+1, insertCount(t, false))
	span := failedInsertSpan(t, "unhashable")
	assert.NotEmpty(t, span.Events())
}
