// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpus reads pre-tokenized texts from YAML corpus files and
// feeds them into an index.
//
// A corpus file looks like:
//
//	texts:
//	  - id: t1
//	    tokens: [e1, e2, e3]
//	  - tokens: [e2, e3, e4]   # id assigned as a random UUID
//
// Tokens are taken as given; this package does not split text.
package corpus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Sentinel errors for corpus operations.
var (
	// ErrEmptyCorpus is returned when a file or directory holds no texts.
	ErrEmptyCorpus = errors.New("corpus holds no texts")

	// ErrInvalidText is returned when a text fails validation.
	ErrInvalidText = errors.New("invalid text")
)

// DefaultLoadConcurrency bounds parallel file reads in LoadFiles.
const DefaultLoadConcurrency = 8

// Text is one tagged token sequence.
type Text struct {
	// ID tags the text in search results. Empty means assign a UUID.
	ID string `yaml:"id" json:"id" validate:"max=256"`

	// Tokens is the token sequence.
	Tokens []string `yaml:"tokens" json:"tokens" validate:"required,min=1"`

	// Source is the file the text was read from. Not serialized.
	Source string `yaml:"-" json:"-"`
}

// File is the on-disk corpus document.
type File struct {
	Texts []Text `yaml:"texts"`
}

// LoadError locates a failure inside a corpus file.
type LoadError struct {
	// Path is the corpus file.
	Path string

	// Entry is the position of the offending text, or -1 for file level
	// failures.
	Entry int

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *LoadError) Error() string {
	if e.Entry < 0 {
		return fmt.Sprintf("corpus %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("corpus %s: text %d: %v", e.Path, e.Entry, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes one corpus document. source names the document in errors.
//
// Texts without an id get a random UUID. A document without texts yields
// ErrEmptyCorpus.
func Parse(r io.Reader, source string) ([]Text, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Path: source, Entry: -1, Err: ErrEmptyCorpus}
		}
		return nil, &LoadError{Path: source, Entry: -1, Err: err}
	}
	if len(f.Texts) == 0 {
		return nil, &LoadError{Path: source, Entry: -1, Err: ErrEmptyCorpus}
	}

	for i := range f.Texts {
		text := &f.Texts[i]
		if err := validate.Struct(text); err != nil {
			return nil, &LoadError{Path: source, Entry: i, Err: fmt.Errorf("%w: %v", ErrInvalidText, err)}
		}
		if text.ID == "" {
			text.ID = uuid.NewString()
		}
		text.Source = source
	}
	return f.Texts, nil
}

// LoadFile reads and parses one corpus file.
func LoadFile(path string) ([]Text, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Entry: -1, Err: err}
	}
	return Parse(bytes.NewReader(data), path)
}

// LoadFiles reads the files in parallel and returns their texts in the
// order of paths, each file's texts in document order. The first failure
// cancels the remaining reads.
func LoadFiles(ctx context.Context, paths []string) ([]Text, error) {
	results := make([][]Text, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultLoadConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			texts, err := LoadFile(path)
			if err != nil {
				return err
			}
			results[i] = texts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Text
	for _, texts := range results {
		out = append(out, texts...)
	}
	return out, nil
}

// IsCorpusFile reports whether path has a corpus file extension.
func IsCorpusFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// ListDir returns the corpus files directly inside dir, sorted by name.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsCorpusFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

// LoadDir loads every corpus file directly inside dir.
func LoadDir(ctx context.Context, dir string) ([]Text, error) {
	paths, err := ListDir(dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Entry: -1, Err: err}
	}
	if len(paths) == 0 {
		return nil, &LoadError{Path: dir, Entry: -1, Err: ErrEmptyCorpus}
	}
	return LoadFiles(ctx, paths)
}

// Inserter accepts tagged token sequences. *index.Index[string, string]
// satisfies it.
type Inserter interface {
	Insert(ctx context.Context, tokens []string, id string) error
}

// Ingest inserts texts in order and returns how many were inserted. It
// stops at the first failure or when ctx is done.
func Ingest(ctx context.Context, dst Inserter, texts []Text, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := dst.Insert(ctx, text.Tokens, text.ID); err != nil {
			return i, fmt.Errorf("insert text %q from %s: %w", text.ID, text.Source, err)
		}
	}
	logger.Info("corpus ingested", slog.Int("texts", len(texts)))
	return len(texts), nil
}
