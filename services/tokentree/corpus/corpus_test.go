// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tokentree/services/tokentree/index"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		texts, err := Parse(strings.NewReader(`
texts:
  - id: t1
    tokens: [e1, e2, e3]
  - tokens: [e2, e3, e4]
`), "mem")
		require.NoError(t, err)
		require.Len(t, texts, 2)

		assert.Equal(t, "t1", texts[0].ID)
		assert.Equal(t, []string{"e1", "e2", "e3"}, texts[0].Tokens)
		assert.Equal(t, "mem", texts[0].Source)

		_, err = uuid.Parse(texts[1].ID)
		assert.NoError(t, err, "missing id should become a UUID")
	})

	tests := []struct {
		name    string
		doc     string
		wantErr error
		entry   int
	}{
		{"empty document", "", ErrEmptyCorpus, -1},
		{"no texts", "texts: []\n", ErrEmptyCorpus, -1},
		{"empty tokens", "texts:\n  - id: a\n    tokens: []\n", ErrInvalidText, 0},
		{"second text invalid", "texts:\n  - tokens: [a]\n  - id: b\n", ErrInvalidText, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc), "mem")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr))
			assert.Equal(t, tt.entry, loadErr.Entry)
			assert.Equal(t, "mem", loadErr.Path)
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		_, err := Parse(strings.NewReader("texts:\n  - tokenz: [a]\n"), "mem")
		assert.Error(t, err)
	})
}

func TestLoadFiles_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"c.yaml", "a.yaml", "b.yml"} {
		paths = append(paths, writeFile(t, dir, name,
			"texts:\n  - id: "+name+"-1\n    tokens: [x]\n  - id: "+name+"-2\n    tokens: [y]\n"))
	}

	texts, err := LoadFiles(context.Background(), paths)
	require.NoError(t, err)

	var got []string
	for _, text := range texts {
		got = append(got, text.ID)
	}
	assert.Equal(t, []string{"c.yaml-1", "c.yaml-2", "a.yaml-1", "a.yaml-2", "b.yml-1", "b.yml-2"}, got)
}

func TestLoadFiles_Failure(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", "texts:\n  - tokens: [a]\n")

	_, err := LoadFiles(context.Background(), []string{good, filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "texts:\n  - id: b\n    tokens: [b]\n")
	writeFile(t, dir, "a.yml", "texts:\n  - id: a\n    tokens: [a]\n")
	writeFile(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755))

	texts, err := LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Equal(t, "a", texts[0].ID)
	assert.Equal(t, "b", texts[1].ID)

	_, err = LoadDir(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	idx := index.New[string, string]()
	texts := []Text{
		{ID: "t1", Tokens: []string{"e1", "e2", "e3"}},
		{ID: "t2", Tokens: []string{"e2", "e3", "e4"}},
	}

	n, err := Ingest(ctx, idx, texts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := idx.Search(ctx, []string{"e2", "e3"})
	assert.ElementsMatch(t, []string{"t1", "t2"}, got.ToSlice())
}

func TestIngest_StopsOnError(t *testing.T) {
	ctx := context.Background()
	idx := index.New[string, string](index.WithMaxTexts(1))
	texts := []Text{
		{ID: "t1", Tokens: []string{"a"}, Source: "f.yaml"},
		{ID: "t2", Tokens: []string{"b"}, Source: "f.yaml"},
	}

	n, err := Ingest(ctx, idx, texts, nil)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, index.ErrMaxTextsExceeded)
	assert.Contains(t, err.Error(), "f.yaml")
}

func TestIngest_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := Ingest(ctx, index.New[string, string](), []Text{{ID: "a", Tokens: []string{"a"}}}, nil)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsCorpusFile(t *testing.T) {
	assert.True(t, IsCorpusFile("x.yaml"))
	assert.True(t, IsCorpusFile("x.YML"))
	assert.False(t, IsCorpusFile("x.json"))
}
