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

import "log/slog"

// EmptyTextPolicy decides what Insert does with an empty token sequence.
type EmptyTextPolicy int

const (
	// EmptyTextReject makes Insert return ErrInvalidInput. This is the default.
	EmptyTextReject EmptyTextPolicy = iota

	// EmptyTextIgnore makes Insert a no-op returning nil. The text is not
	// counted and its id is not recorded anywhere.
	EmptyTextIgnore
)

// String returns the configuration name of the policy.
func (p EmptyTextPolicy) String() string {
	switch p {
	case EmptyTextReject:
		return "reject"
	case EmptyTextIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// ParseEmptyTextPolicy converts a configuration name into a policy.
// The empty string selects the default.
func ParseEmptyTextPolicy(name string) (EmptyTextPolicy, bool) {
	switch name {
	case "", "reject":
		return EmptyTextReject, true
	case "ignore":
		return EmptyTextIgnore, true
	default:
		return EmptyTextReject, false
	}
}

// Options configures Index behavior and limits.
type Options struct {
	// MaxTexts is the maximum number of texts the index accepts.
	// Zero means unlimited.
	// Default: 0
	MaxTexts int

	// EmptyTexts selects how Insert treats an empty token sequence.
	// Default: EmptyTextReject
	EmptyTexts EmptyTextPolicy

	// Logger receives per-insertion debug records.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		MaxTexts:   0,
		EmptyTexts: EmptyTextReject,
	}
}

// Option is a functional option for configuring Index.
type Option func(*Options)

// WithMaxTexts sets the maximum number of texts the index accepts.
func WithMaxTexts(max int) Option {
	return func(o *Options) {
		o.MaxTexts = max
	}
}

// WithEmptyTextPolicy sets how Insert treats empty token sequences.
func WithEmptyTextPolicy(p EmptyTextPolicy) Option {
	return func(o *Options) {
		o.EmptyTexts = p
	}
}

// WithLogger sets the logger used by the index.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
