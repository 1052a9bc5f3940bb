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

import "math"

// ovNodeID is a handle into overlay.nodes.
type ovNodeID int32

// ovEdgeID is a handle into overlay.edges.
type ovEdgeID int32

const (
	// overlayRoot shadows rootNode.
	overlayRoot ovNodeID = 0

	// noLink is the suffix link of the root, and of nodes whose link has
	// not been assigned yet.
	noLink ovNodeID = -1
)

// edgeKind tags the three shapes an overlay edge can take.
type edgeKind uint8

const (
	// edgeDiscovery wraps an index edge this insertion has reached but not
	// walked. Only index is meaningful.
	edgeDiscovery edgeKind = iota

	// edgeOpen is a leaf edge of the running insertion. Its label is
	// text[start:] and grows with every processed token.
	edgeOpen

	// edgeResolved spans text[start..end] and ends at child.
	edgeResolved
)

func (k edgeKind) String() string {
	switch k {
	case edgeDiscovery:
		return "discovery"
	case edgeOpen:
		return "open"
	case edgeResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// overlayNode shadows one index node for the duration of an insertion.
type overlayNode[T comparable] struct {
	index    nodeID
	children map[T]ovEdgeID
	link     ovNodeID
}

// overlayEdge shadows one index edge.
type overlayEdge struct {
	kind  edgeKind
	index edgeID
	start int
	end   int
	child ovNodeID
}

// overlay is the per-insertion arena. It is retained by the Index and
// reset before each insertion so the slices and maps are reused.
type overlay[T comparable] struct {
	nodes []overlayNode[T]
	edges []overlayEdge
}

// reset empties the overlay and shadows root with a fresh overlay root.
func (o *overlay[T]) reset(root nodeID) {
	for i := range o.nodes {
		clear(o.nodes[i].children)
	}
	o.nodes = o.nodes[:0]
	o.edges = o.edges[:0]
	o.newNode(root)
}

// newNode shadows the index node n. The suffix link starts unset.
func (o *overlay[T]) newNode(n nodeID) ovNodeID {
	if len(o.nodes) < cap(o.nodes) {
		// Reuse the previous insertion's child map.
		o.nodes = o.nodes[:len(o.nodes)+1]
		node := &o.nodes[len(o.nodes)-1]
		node.index = n
		node.link = noLink
	} else {
		o.nodes = append(o.nodes, overlayNode[T]{index: n, link: noLink})
	}
	return ovNodeID(len(o.nodes) - 1)
}

func (o *overlay[T]) newEdge(e overlayEdge) ovEdgeID {
	o.edges = append(o.edges, e)
	return ovEdgeID(len(o.edges) - 1)
}

// discover registers index edge e under s without walking it.
func (o *overlay[T]) discover(s ovNodeID, tok T, e edgeID) ovEdgeID {
	id := o.newEdge(overlayEdge{kind: edgeDiscovery, index: e, child: noLink})
	o.setChild(s, tok, id)
	return id
}

// openLeaf registers the open index edge e under s, starting at start.
func (o *overlay[T]) openLeaf(s ovNodeID, tok T, e edgeID, start int) ovEdgeID {
	id := o.newEdge(overlayEdge{kind: edgeOpen, index: e, start: start, child: noLink})
	o.setChild(s, tok, id)
	return id
}

// newResolved creates a resolved edge. The caller registers it.
func (o *overlay[T]) newResolved(e edgeID, start, end int, child ovNodeID) ovEdgeID {
	return o.newEdge(overlayEdge{kind: edgeResolved, index: e, start: start, end: end, child: child})
}

// resolve converts a discovery edge into a resolved edge over
// text[start..end] ending at child, now backed by index edge e.
func (o *overlay[T]) resolve(id ovEdgeID, e edgeID, start, end int, child ovNodeID) {
	edge := &o.edges[id]
	if edge.kind != edgeDiscovery {
		invariant("resolve", "edge %d is %s, want discovery", id, edge.kind)
	}
	edge.kind = edgeResolved
	edge.index = e
	edge.start = start
	edge.end = end
	edge.child = child
}

func (o *overlay[T]) setChild(s ovNodeID, tok T, id ovEdgeID) {
	node := &o.nodes[s]
	if node.children == nil {
		node.children = make(map[T]ovEdgeID, 2)
	}
	node.children[tok] = id
}

func (o *overlay[T]) child(s ovNodeID, tok T) (ovEdgeID, bool) {
	id, ok := o.nodes[s].children[tok]
	return id, ok
}

// span returns the number of tokens an edge covers. Open edges are
// unbounded while the insertion runs.
func (o *overlay[T]) span(id ovEdgeID, labelLen int) int {
	e := &o.edges[id]
	switch e.kind {
	case edgeOpen:
		return math.MaxInt
	case edgeResolved:
		return e.end - e.start + 1
	default:
		return labelLen
	}
}
