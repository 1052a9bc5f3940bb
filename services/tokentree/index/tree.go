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
	mapset "github.com/deckarep/golang-set/v2"
)

// nodeID is a handle into indexTree.nodes.
type nodeID int32

// edgeID is a handle into indexTree.edges.
type edgeID int32

const (
	// rootNode is always the first node allocated.
	rootNode nodeID = 0

	// noNode marks an open edge: created by the running insertion, child
	// and label assigned once the text length is known.
	noNode nodeID = -1
)

// indexNode is a branch point shared across all inserted texts.
type indexNode[T comparable, ID comparable] struct {
	// children maps the first token of each outgoing edge to that edge.
	// Allocated on first child.
	children map[T]edgeID

	// matchIDs holds the ids of texts having a suffix that ends exactly
	// here. Nil until the first stamp.
	matchIDs mapset.Set[ID]
}

// indexEdge is a labeled transition between two index nodes.
type indexEdge[T comparable] struct {
	// label is a contiguous slice of one inserted text. Nil while open.
	label []T

	// child is the target node, or noNode while open.
	child nodeID
}

// open reports whether the edge is still awaiting resolution.
func (e *indexEdge[T]) open() bool {
	return e.child == noNode
}

// indexTree is the permanent arena holding every node and edge.
//
// Handles are stable for the life of the tree. Nothing is ever freed.
type indexTree[T comparable, ID comparable] struct {
	nodes []indexNode[T, ID]
	edges []indexEdge[T]
}

func newIndexTree[T comparable, ID comparable]() indexTree[T, ID] {
	t := indexTree[T, ID]{
		nodes: make([]indexNode[T, ID], 0, 64),
		edges: make([]indexEdge[T], 0, 64),
	}
	t.newNode()
	return t
}

func (t *indexTree[T, ID]) newNode() nodeID {
	t.nodes = append(t.nodes, indexNode[T, ID]{})
	return nodeID(len(t.nodes) - 1)
}

func (t *indexTree[T, ID]) newEdge(label []T, child nodeID) edgeID {
	t.edges = append(t.edges, indexEdge[T]{label: label, child: child})
	return edgeID(len(t.edges) - 1)
}

func (t *indexTree[T, ID]) newOpenEdge() edgeID {
	return t.newEdge(nil, noNode)
}

// child returns the edge leaving n whose label starts with tok.
func (t *indexTree[T, ID]) child(n nodeID, tok T) (edgeID, bool) {
	e, ok := t.nodes[n].children[tok]
	return e, ok
}

// setChild installs or replaces the edge leaving n under tok.
func (t *indexTree[T, ID]) setChild(n nodeID, tok T, e edgeID) {
	node := &t.nodes[n]
	if node.children == nil {
		node.children = make(map[T]edgeID, 2)
	}
	node.children[tok] = e
}

// stamp records id on n. Returns false if n already carried it.
func (t *indexTree[T, ID]) stamp(n nodeID, id ID) bool {
	node := &t.nodes[n]
	if node.matchIDs == nil {
		node.matchIDs = mapset.NewThreadUnsafeSet[ID]()
	}
	return node.matchIDs.Add(id)
}

// resolve closes an open edge.
func (t *indexTree[T, ID]) resolve(e edgeID, label []T, child nodeID) {
	t.edges[e].label = label
	t.edges[e].child = child
}

// trim drops the first offset tokens of a resolved edge's label.
func (t *indexTree[T, ID]) trim(e edgeID, offset int) {
	t.edges[e].label = t.edges[e].label[offset:]
}

// locate walks query from the root. It returns the node at or directly
// below the end of the match, and false when query does not occur.
func (t *indexTree[T, ID]) locate(query []T) (nodeID, bool) {
	n := rootNode
	for i := 0; i < len(query); {
		eid, ok := t.child(n, query[i])
		if !ok {
			return noNode, false
		}
		e := &t.edges[eid]
		j := 1
		for ; j < len(e.label) && i+j < len(query); j++ {
			if e.label[j] != query[i+j] {
				return noNode, false
			}
		}
		i += j
		n = e.child
	}
	return n, true
}

// fillMatchIDs adds ids found in the subtree under from into out until
// budget new ids have been added. A budget <= 0 is unlimited. Each node's
// own ids are drained before its children are visited. Returns the number
// of ids newly added to out.
func (t *indexTree[T, ID]) fillMatchIDs(from nodeID, out mapset.Set[ID], budget int) int {
	added := 0
	full := func() bool { return budget > 0 && added >= budget }

	stack := []nodeID{from}
	for len(stack) > 0 && !full() {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := &t.nodes[n]
		if node.matchIDs != nil {
			node.matchIDs.Each(func(id ID) bool {
				if out.Add(id) {
					added++
				}
				return full()
			})
		}
		for _, eid := range node.children {
			if child := t.edges[eid].child; child != noNode {
				stack = append(stack, child)
			}
		}
	}
	return added
}
