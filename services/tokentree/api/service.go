// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes a token index over HTTP.
//
// Routes (see SetupRoutes):
//
//	GET  /health
//	GET  /metrics
//	POST /v1/texts         insert one text
//	POST /v1/texts/batch   insert several texts
//	POST /v1/search        ids of texts containing a token run
//	POST /v1/contains      whether a token run occurs at all
//	GET  /v1/stats         index statistics
//	GET  /v1/search/ws     search session over a WebSocket
//
// The index itself is single-writer. Service serializes writers behind a
// sync.RWMutex and lets searches share the read lock.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/tokentree/services/tokentree/corpus"
	"github.com/AleutianAI/tokentree/services/tokentree/index"
)

// ErrTooManyTokens is returned for a text longer than MaxTokens.
var ErrTooManyTokens = errors.New("text exceeds the token limit")

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// WriteRate is the sustained number of write requests per second.
	// Zero disables write rate limiting.
	// Default: 0
	WriteRate float64

	// WriteBurst is the write request burst size.
	// Default: 1
	WriteBurst int

	// MaxResults caps the ids returned per search. Zero means unlimited.
	// Default: 0
	MaxResults int

	// MaxTokens caps the tokens of one inserted text. Zero means unlimited.
	// Default: 0
	MaxTokens int

	// MaxBodyBytes caps request bodies and WebSocket messages. Zero means
	// unlimited.
	// Default: 0
	MaxBodyBytes int64

	// Logger receives request and ingest records.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Service guards one index for concurrent HTTP use.
//
// Thread Safety:
//
//	Safe for concurrent use. Inserts are serialized; searches run in
//	parallel with each other but never alongside an insert.
type Service struct {
	mu  sync.RWMutex
	idx *index.Index[string, string]

	limiter      *rate.Limiter
	maxResults   int
	maxTokens    int
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewService wraps idx. The caller must not use idx directly afterwards.
func NewService(idx *index.Index[string, string], opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if opts.WriteRate > 0 {
		burst := opts.WriteBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.WriteRate), burst)
	}
	return &Service{
		idx:          idx,
		limiter:      limiter,
		maxResults:   opts.MaxResults,
		maxTokens:    opts.MaxTokens,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       logger,
	}
}

// Insert adds one text. It satisfies corpus.Inserter.
func (s *Service) Insert(ctx context.Context, tokens []string, id string) error {
	if err := s.checkLength(tokens); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.Insert(ctx, tokens, id)
}

// InsertBatch adds texts in order under a single write lock. It returns
// how many were inserted before the first failure.
func (s *Service) InsertBatch(ctx context.Context, texts []corpus.Text) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, text := range texts {
		err := s.checkLength(text.Tokens)
		if err == nil {
			err = s.idx.Insert(ctx, text.Tokens, text.ID)
		}
		if err != nil {
			return i, fmt.Errorf("text %d (%s): %w", i, text.ID, err)
		}
	}
	return len(texts), nil
}

// Search returns the sorted ids of texts containing tokens, capped at
// limit or the service's MaxResults, whichever is smaller and positive.
func (s *Service) Search(ctx context.Context, tokens []string, limit int) []string {
	if s.maxResults > 0 && (limit <= 0 || limit > s.maxResults) {
		limit = s.maxResults
	}

	s.mu.RLock()
	found := s.idx.SearchLimit(ctx, tokens, limit)
	s.mu.RUnlock()

	ids := found.ToSlice()
	slices.Sort(ids)
	return ids
}

// Contains reports whether tokens occurs in any text.
func (s *Service) Contains(tokens []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Contains(tokens)
}

// Stats returns index statistics.
func (s *Service) Stats() index.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Stats()
}

// Validate checks the index structure under the read lock.
func (s *Service) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Validate()
}

func (s *Service) checkLength(tokens []string) error {
	if s.maxTokens > 0 && len(tokens) > s.maxTokens {
		return fmt.Errorf("%w: %d tokens, limit %d", ErrTooManyTokens, len(tokens), s.maxTokens)
	}
	return nil
}

// allowWrite reports whether a write request may proceed now.
func (s *Service) allowWrite() bool {
	return s.limiter == nil || s.limiter.Allow()
}

var _ corpus.Inserter = (*Service)(nil)
