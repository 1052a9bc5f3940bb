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
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toks(s string) []string {
	return strings.Fields(s)
}

func ids(values ...string) mapset.Set[string] {
	return mapset.NewThreadUnsafeSet(values...)
}

// buildIndex inserts texts keyed by id and validates the result.
func buildIndex(t *testing.T, texts [][2]string, opts ...Option) *Index[string, string] {
	t.Helper()
	idx := New[string, string](opts...)
	for _, tx := range texts {
		require.NoError(t, idx.Insert(context.Background(), toks(tx[1]), tx[0]))
	}
	require.NoError(t, idx.Validate())
	return idx
}

func TestIndex_Scenarios(t *testing.T) {
	idx := buildIndex(t, [][2]string{
		{"t1", "e1 e2 e3"},
		{"t2", "e2 e3 e4"},
	})
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  mapset.Set[string]
	}{
		{"shared middle", "e2 e3", ids("t1", "t2")},
		{"whole first text", "e1 e2 e3", ids("t1")},
		{"last token of second text", "e4", ids("t2")},
		{"runs past every text", "e4 e5", ids()},
		{"tokens out of order", "e1 e3 e2", ids()},
		{"single shared token", "e3", ids("t1", "t2")},
		{"unknown token", "e9", ids()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := idx.Search(ctx, toks(tt.query))
			assert.True(t, tt.want.Equal(got), "search %q: want %v, got %v", tt.query, tt.want, got)
		})
	}
}

func TestIndex_EmptyQuery(t *testing.T) {
	idx := buildIndex(t, [][2]string{{"t1", "a b"}})
	ctx := context.Background()

	assert.Equal(t, 0, idx.Search(ctx, nil).Cardinality())
	assert.Equal(t, 0, idx.Search(ctx, []string{}).Cardinality())
	assert.False(t, idx.Contains(nil))
}

func TestIndex_EmptySearchOnEmptyIndex(t *testing.T) {
	idx := New[string, string]()
	assert.Equal(t, 0, idx.Search(context.Background(), toks("a")).Cardinality())
	assert.NoError(t, idx.Validate())
}

func TestIndex_DuplicateTexts(t *testing.T) {
	ctx := context.Background()

	t.Run("same text different ids", func(t *testing.T) {
		for _, order := range [][]string{{"x", "y"}, {"y", "x"}} {
			idx := New[string, string]()
			for _, id := range order {
				require.NoError(t, idx.Insert(ctx, toks("a b a c"), id))
			}
			require.NoError(t, idx.Validate())
			for _, q := range []string{"a", "b", "a b", "a c", "b a c", "a b a c", "c"} {
				assert.True(t, ids("x", "y").Equal(idx.Search(ctx, toks(q))), "order %v query %q", order, q)
			}
		}
	})

	t.Run("same text same id", func(t *testing.T) {
		idx := New[string, string]()
		require.NoError(t, idx.Insert(ctx, toks("a b"), "x"))
		require.NoError(t, idx.Insert(ctx, toks("a b"), "x"))
		require.NoError(t, idx.Validate())

		got := idx.Search(ctx, toks("b"))
		assert.Equal(t, 1, got.Cardinality())
		assert.True(t, got.Contains("x"))
	})
}

func TestIndex_PrefixOfEarlierText(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		texts [][2]string
		query string
		want  mapset.Set[string]
	}{
		{
			name:  "repeated token then extension",
			texts: [][2]string{{"t1", "a a"}, {"t2", "a a c"}},
			query: "a a",
			want:  ids("t1", "t2"),
		},
		{
			name:  "shorter text ends inside an edge",
			texts: [][2]string{{"t1", "a b c d"}, {"t2", "b c"}},
			query: "b c",
			want:  ids("t1", "t2"),
		},
		{
			name:  "later text ends inside own repeat",
			texts: [][2]string{{"t1", "x y"}, {"t2", "a b a b"}},
			query: "b a b",
			want:  ids("t2"),
		},
		{
			name:  "suffix of later text equals earlier text",
			texts: [][2]string{{"t1", "c d"}, {"t2", "a b c d"}},
			query: "c d",
			want:  ids("t1", "t2"),
		},
		{
			name:  "earlier text fully inside later text",
			texts: [][2]string{{"t1", "b c"}, {"t2", "a b c d"}},
			query: "b",
			want:  ids("t1", "t2"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := buildIndex(t, tt.texts)
			got := idx.Search(ctx, toks(tt.query))
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestIndex_Insert_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty text rejected by default", func(t *testing.T) {
		idx := New[string, string]()
		err := idx.Insert(ctx, nil, "t1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("empty text ignored", func(t *testing.T) {
		idx := New[string, string](WithEmptyTextPolicy(EmptyTextIgnore))
		require.NoError(t, idx.Insert(ctx, []string{}, "t1"))
		assert.Equal(t, 0, idx.Len())
		assert.Equal(t, 1, idx.Stats().Nodes)
		require.NoError(t, idx.Validate())
	})

	t.Run("nil context", func(t *testing.T) {
		idx := New[string, string]()
		//nolint:staticcheck // nil context is the case under test
		err := idx.Insert(nil, toks("a"), "t1")
		assert.ErrorIs(t, err, ErrNilContext)
	})

	t.Run("max texts", func(t *testing.T) {
		idx := New[string, string](WithMaxTexts(2))
		require.NoError(t, idx.Insert(ctx, toks("a"), "t1"))
		require.NoError(t, idx.Insert(ctx, toks("b"), "t2"))
		err := idx.Insert(ctx, toks("c"), "t3")
		assert.ErrorIs(t, err, ErrMaxTextsExceeded)
		assert.False(t, idx.Contains(toks("c")))
	})
}

func TestIndex_CopiesInput(t *testing.T) {
	ctx := context.Background()
	idx := New[string, string]()

	text := toks("a b c")
	require.NoError(t, idx.Insert(ctx, text, "t1"))
	text[1] = "z"

	assert.True(t, idx.Contains(toks("a b c")))
	assert.False(t, idx.Contains(toks("a z")))
}

func TestIndex_SearchLimit(t *testing.T) {
	ctx := context.Background()
	idx := New[string, int]()
	for i := 0; i < 10; i++ {
		require.NoError(t, idx.Insert(ctx, toks("p q r"), i))
	}

	assert.Equal(t, 10, idx.Search(ctx, toks("q")).Cardinality())
	assert.Equal(t, 3, idx.SearchLimit(ctx, toks("q"), 3).Cardinality())
	assert.Equal(t, 10, idx.SearchLimit(ctx, toks("q"), -1).Cardinality())
	assert.Equal(t, 10, idx.SearchLimit(ctx, toks("q"), 50).Cardinality())
}

func TestIndex_Stats(t *testing.T) {
	idx := buildIndex(t, [][2]string{{"t1", "a b a b"}, {"t2", "b b"}}, WithMaxTexts(5))
	stats := idx.Stats()

	assert.Equal(t, 2, stats.Texts)
	assert.Equal(t, int64(6), stats.Tokens)
	assert.Equal(t, 5, stats.MaxTexts)
	assert.Greater(t, stats.Splits, int64(0))
	// Every node but the root has exactly one parent edge.
	assert.Equal(t, stats.Nodes-1, stats.Edges)
}

func TestIndex_Validate_DetectsCorruption(t *testing.T) {
	idx := buildIndex(t, [][2]string{{"t1", "a b"}})

	idx.tree.stamp(rootNode, "bogus")
	err := idx.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptTree)
}

func TestIndex_IntTokens(t *testing.T) {
	ctx := context.Background()
	idx := New[int, int]()
	require.NoError(t, idx.Insert(ctx, []int{1, 2, 1, 2, 3}, 100))
	require.NoError(t, idx.Insert(ctx, []int{2, 3, 2}, 200))
	require.NoError(t, idx.Validate())

	assert.True(t, mapset.NewThreadUnsafeSet(100, 200).Equal(idx.Search(ctx, []int{2, 3})))
	assert.True(t, mapset.NewThreadUnsafeSet(100).Equal(idx.Search(ctx, []int{1, 2, 1})))
	assert.True(t, mapset.NewThreadUnsafeSet(200).Equal(idx.Search(ctx, []int{3, 2})))
}

// containsRun reports whether sub occurs contiguously in text.
func containsRun(text, sub []int) bool {
	for i := 0; i+len(sub) <= len(text); i++ {
		match := true
		for j := range sub {
			if text[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func randomText(r *rand.Rand, alphabet, maxLen int) []int {
	n := 1 + r.IntN(maxLen)
	text := make([]int, n)
	for i := range text {
		text[i] = r.IntN(alphabet)
	}
	return text
}

func TestIndex_MatchesBruteForce(t *testing.T) {
	ctx := context.Background()

	for seed := uint64(1); seed <= 40; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			r := rand.New(rand.NewPCG(seed, seed*7919))
			alphabet := 2 + r.IntN(3)

			texts := make([][]int, 1+r.IntN(8))
			for i := range texts {
				texts[i] = randomText(r, alphabet, 12)
			}

			idx := New[int, int]()
			for i, text := range texts {
				require.NoError(t, idx.Insert(ctx, text, i))
			}
			require.NoError(t, idx.Validate())

			// Every substring of every text, plus random queries.
			var queries [][]int
			for _, text := range texts {
				for i := range text {
					for j := i + 1; j <= len(text); j++ {
						queries = append(queries, text[i:j])
					}
				}
			}
			for i := 0; i < 50; i++ {
				queries = append(queries, randomText(r, alphabet+1, 6))
			}

			for _, q := range queries {
				want := mapset.NewThreadUnsafeSet[int]()
				for i, text := range texts {
					if containsRun(text, q) {
						want.Add(i)
					}
				}
				got := idx.Search(ctx, q)
				require.True(t, want.Equal(got), "query %v over %v: want %v, got %v", q, texts, want, got)
				require.Equal(t, want.Cardinality() > 0, idx.Contains(q))
			}
		})
	}
}

func TestIndex_OrderIndependence(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewPCG(42, 4242))

	texts := make([][]int, 6)
	for i := range texts {
		texts[i] = randomText(r, 3, 10)
	}

	forward := New[int, int]()
	for i := range texts {
		require.NoError(t, forward.Insert(ctx, texts[i], i))
	}
	backward := New[int, int]()
	for i := len(texts) - 1; i >= 0; i-- {
		require.NoError(t, backward.Insert(ctx, texts[i], i))
	}

	for i := 0; i < 200; i++ {
		q := randomText(r, 3, 5)
		assert.True(t, forward.Search(ctx, q).Equal(backward.Search(ctx, q)), "query %v", q)
	}
}

func TestParseEmptyTextPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want EmptyTextPolicy
		ok   bool
	}{
		{"", EmptyTextReject, true},
		{"reject", EmptyTextReject, true},
		{"ignore", EmptyTextIgnore, true},
		{"drop", EmptyTextReject, false},
	}
	for _, tt := range tests {
		got, ok := ParseEmptyTextPolicy(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, "ignore", EmptyTextIgnore.String())
}
