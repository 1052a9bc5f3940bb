// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index provides an in-memory generalized suffix tree over token
// sequences.
//
// The index ingests many tagged token sequences ("texts") and answers
// containment queries: which texts contain a given token sequence as a
// contiguous run. A query costs time proportional to its own length,
// independent of how many texts were indexed.
//
// # Construction
//
// Each insertion runs an online (Ukkonen style) construction on top of the
// tree built by earlier insertions. A transient overlay tree shadows the part
// of the permanent tree the insertion visits; it carries the suffix links and
// the active point bookkeeping and is reset before the next insertion.
//
// # Ownership Model
//
// The index copies every inserted token slice. Callers may reuse or mutate
// their slices after Insert returns.
//
// # Thread Safety
//
// Index is NOT safe for concurrent use. Insert mutates the tree in place and
// must not run concurrently with any other call on the same index. Callers
// that share an index across goroutines must provide their own locking
// (single writer, or a sync.RWMutex with Search under the read lock).
package index

import (
	"errors"
	"fmt"
)

// Sentinel errors for index operations.
var (
	// ErrInvalidInput is returned when Insert receives an empty token
	// sequence and the index rejects empty texts.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMaxTextsExceeded is returned when the index has reached its
	// configured maximum number of texts.
	ErrMaxTextsExceeded = errors.New("maximum text count exceeded")

	// ErrNilContext is returned when a nil context is passed to Insert.
	ErrNilContext = errors.New("ctx must not be nil")

	// ErrCorruptTree is returned by Validate when a structural invariant
	// of the index tree does not hold.
	ErrCorruptTree = errors.New("corrupt index tree")
)

// InvariantError describes a violated construction invariant.
//
// It is only ever used as a panic value. A construction that reaches one of
// these states has a bug; the tree cannot be trusted afterwards.
type InvariantError struct {
	// Op is the construction step that detected the violation.
	Op string

	// Detail describes the state that was found.
	Detail string
}

// Error implements error.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("index invariant violated in %s: %s", e.Op, e.Detail)
}

// invariant panics with an InvariantError.
func invariant(op, format string, args ...any) {
	panic(&InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)})
}
