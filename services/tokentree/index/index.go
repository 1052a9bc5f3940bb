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
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel/trace"
)

// Stats contains statistics about the index.
type Stats struct {
	// Texts is the number of texts inserted.
	Texts int `json:"texts"`

	// Tokens is the total number of tokens across all inserted texts.
	Tokens int64 `json:"tokens"`

	// Nodes is the number of index nodes, root included.
	Nodes int `json:"nodes"`

	// Edges is the number of index edges.
	Edges int `json:"edges"`

	// Splits is the number of edges split across all insertions.
	Splits int64 `json:"splits"`

	// MaxTexts is the configured capacity. Zero means unlimited.
	MaxTexts int `json:"max_texts"`
}

// Index is a generalized suffix tree over sequences of T, each tagged with
// an ID.
//
// Thread Safety:
//
//	Index is NOT safe for concurrent use. See the package documentation.
//
// Ownership:
//
//	Insert copies the token slice. The index never retains caller slices.
type Index[T comparable, ID comparable] struct {
	tree indexTree[T, ID]

	// ov is reused across insertions.
	ov overlay[T]

	texts  int
	tokens int64
	splits int64

	options Options
	logger  *slog.Logger
}

// New creates an empty index.
//
// Example:
//
//	idx := index.New[string, string]()
//	_ = idx.Insert(ctx, []string{"e1", "e2", "e3"}, "t1")
//	ids := idx.Search(ctx, []string{"e2", "e3"}) // {"t1"}
func New[T comparable, ID comparable](opts ...Option) *Index[T, ID] {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Index[T, ID]{
		tree:    newIndexTree[T, ID](),
		options: options,
		logger:  logger.With(slog.String("component", "tokentree.index")),
	}
}

// Insert adds one tagged token sequence to the index.
//
// Description:
//
//	Runs the online construction for tokens on top of the existing tree.
//	Amortized time is linear in len(tokens). Inserting the same sequence
//	again under another id adds that id to every suffix; inserting it again
//	under the same id changes nothing observable.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil. Insert is not cancellable.
//	tokens - The text. Copied before use.
//	id - The identifier Search reports for this text.
//
// Errors:
//
//	ErrNilContext - ctx is nil
//	ErrInvalidInput - tokens is empty and the policy is EmptyTextReject
//	ErrMaxTextsExceeded - the index holds MaxTexts texts already
//
// Thread Safety:
//
//	Must not run concurrently with any other method.
func (idx *Index[T, ID]) Insert(ctx context.Context, tokens []T, id ID) (err error) {
	if ctx == nil {
		return ErrNilContext
	}

	ctx, span := startOperationSpan(ctx, "Insert", len(tokens))
	defer span.End()
	start := time.Now()

	if len(tokens) == 0 {
		if idx.options.EmptyTexts == EmptyTextIgnore {
			setOperationSpanResult(span, 0, true)
			recordOperationMetrics(ctx, "Insert", time.Since(start), true)
			return nil
		}
		return idx.rejectInsert(ctx, span, start, fmt.Errorf("%w: empty token sequence", ErrInvalidInput))
	}
	if idx.options.MaxTexts > 0 && idx.texts >= idx.options.MaxTexts {
		return idx.rejectInsert(ctx, span, start, fmt.Errorf("%w: limit %d", ErrMaxTextsExceeded, idx.options.MaxTexts))
	}

	text := make([]T, len(tokens))
	copy(text, tokens)

	b := newBuilder(&idx.tree, &idx.ov, text, id)
	func() {
		defer func() {
			if r := recover(); r != nil {
				idx.logger.Error("index construction failed",
					slog.Any("panic", r),
					slog.Int("tokens", len(text)),
				)
				setOperationSpanError(span, panicError(r))
				recordOperationMetrics(ctx, "Insert", time.Since(start), false)
				panic(r)
			}
		}()
		b.build()
	}()

	idx.texts++
	idx.tokens += int64(len(text))
	idx.splits += int64(b.splits)

	created := b.nodesCreated()
	setOperationSpanResult(span, created, true)
	recordOperationMetrics(ctx, "Insert", time.Since(start), true)
	recordInsertShape(ctx, len(idx.tree.nodes), b.splits)

	idx.logger.Debug("text inserted",
		slog.Int("tokens", len(text)),
		slog.Int("nodes_created", created),
		slog.Int("splits", b.splits),
		slog.Int("leaves", len(b.leaves)),
	)
	return nil
}

// rejectInsert records a refused insertion on span and in the metrics.
func (idx *Index[T, ID]) rejectInsert(ctx context.Context, span trace.Span, start time.Time, err error) error {
	setOperationSpanError(span, err)
	recordOperationMetrics(ctx, "Insert", time.Since(start), false)
	return err
}

// panicError turns a recovered value into an error for span recording.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

// Search returns the ids of every text containing tokens as a contiguous
// run. The result is empty when tokens is empty or occurs nowhere.
func (idx *Index[T, ID]) Search(ctx context.Context, tokens []T) mapset.Set[ID] {
	return idx.SearchLimit(ctx, tokens, 0)
}

// SearchLimit is Search returning at most limit ids. A limit <= 0 is
// unlimited. Which ids are kept when the limit is hit is unspecified.
//
// A nil ctx is treated as context.Background(). Search never fails.
func (idx *Index[T, ID]) SearchLimit(ctx context.Context, tokens []T, limit int) mapset.Set[ID] {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := startOperationSpan(ctx, "Search", len(tokens))
	defer span.End()
	start := time.Now()

	out := mapset.NewThreadUnsafeSet[ID]()
	if len(tokens) > 0 {
		if n, ok := idx.tree.locate(tokens); ok {
			idx.tree.fillMatchIDs(n, out, limit)
		}
	}

	setOperationSpanResult(span, out.Cardinality(), true)
	recordOperationMetrics(ctx, "Search", time.Since(start), true)
	recordSearchResults(ctx, out.Cardinality())
	return out
}

// Contains reports whether tokens occurs in any inserted text. An empty
// sequence is contained in nothing.
func (idx *Index[T, ID]) Contains(tokens []T) bool {
	if len(tokens) == 0 {
		return false
	}
	_, ok := idx.tree.locate(tokens)
	return ok
}

// Len returns the number of texts inserted.
func (idx *Index[T, ID]) Len() int {
	return idx.texts
}

// Stats returns statistics about the index.
func (idx *Index[T, ID]) Stats() Stats {
	return Stats{
		Texts:    idx.texts,
		Tokens:   idx.tokens,
		Nodes:    len(idx.tree.nodes),
		Edges:    len(idx.tree.edges),
		Splits:   idx.splits,
		MaxTexts: idx.options.MaxTexts,
	}
}

// Validate checks the structural invariants of the index tree.
//
// Description:
//
//	Verifies that every edge is resolved with a non-empty label keyed by
//	its first token, that every node other than the root has exactly one
//	parent edge and is reachable from the root, that the root carries no
//	ids, and that every leaf carries at least one id.
//
// Outputs:
//
//	error - nil if the tree is consistent, otherwise wraps ErrCorruptTree.
func (idx *Index[T, ID]) Validate() error {
	t := &idx.tree
	if ids := t.nodes[rootNode].matchIDs; ids != nil && ids.Cardinality() > 0 {
		return fmt.Errorf("%w: root carries %d ids", ErrCorruptTree, ids.Cardinality())
	}

	parents := make([]int, len(t.nodes))
	for n := range t.nodes {
		for tok, eid := range t.nodes[n].children {
			if int(eid) < 0 || int(eid) >= len(t.edges) {
				return fmt.Errorf("%w: node %d has dangling edge %d", ErrCorruptTree, n, eid)
			}
			e := &t.edges[eid]
			if e.open() {
				return fmt.Errorf("%w: edge %d is still open", ErrCorruptTree, eid)
			}
			if len(e.label) == 0 {
				return fmt.Errorf("%w: edge %d has an empty label", ErrCorruptTree, eid)
			}
			if e.label[0] != tok {
				return fmt.Errorf("%w: edge %d is keyed by %v but starts with %v", ErrCorruptTree, eid, tok, e.label[0])
			}
			parents[e.child]++
		}
	}

	for n := range t.nodes {
		want := 1
		if nodeID(n) == rootNode {
			want = 0
		}
		if parents[n] != want {
			return fmt.Errorf("%w: node %d has %d parent edges, want %d", ErrCorruptTree, n, parents[n], want)
		}
		node := &t.nodes[n]
		if nodeID(n) != rootNode && len(node.children) == 0 && (node.matchIDs == nil || node.matchIDs.Cardinality() == 0) {
			return fmt.Errorf("%w: leaf %d carries no ids", ErrCorruptTree, n)
		}
	}

	// A single parent per node still allows detached cycles.
	seen := make([]bool, len(t.nodes))
	stack := []nodeID{rootNode}
	reached := 0
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		reached++
		for _, eid := range t.nodes[n].children {
			stack = append(stack, t.edges[eid].child)
		}
	}
	if reached != len(t.nodes) {
		return fmt.Errorf("%w: %d of %d nodes reachable from root", ErrCorruptTree, reached, len(t.nodes))
	}
	return nil
}
