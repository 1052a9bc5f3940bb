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

// builder runs one insertion.
//
// Positions are 0-based. The active point (s, k) with a processed prefix
// ending at p denotes the string path(s) + text[k..p]; it is empty when
// k > p. The root has no suffix link. Where the textbook algorithm would
// step from the root to an auxiliary state below it, the builder advances
// k by one instead.
//
// Overlay handles are re-read after any call that may append to an arena.
// Pointers into the arenas are never held across such calls.
type builder[T comparable, ID comparable] struct {
	tree *indexTree[T, ID]
	ov   *overlay[T]
	text []T
	id   ID

	// leaves lists the open edges created by this insertion.
	leaves []ovEdgeID

	// walks is canonize's worklist, kept to reuse its storage.
	walks []canonWalk

	nodesBefore int
	splits      int
}

func newBuilder[T comparable, ID comparable](tree *indexTree[T, ID], ov *overlay[T], text []T, id ID) *builder[T, ID] {
	ov.reset(rootNode)
	return &builder[T, ID]{
		tree:        tree,
		ov:          ov,
		text:        text,
		id:          id,
		nodesBefore: len(tree.nodes),
	}
}

// build inserts the whole text. Every suffix of the text ends at an
// explicit index node carrying id once build returns.
func (b *builder[T, ID]) build() {
	s, k := overlayRoot, 0
	for i := range b.text {
		s, k = b.update(s, k, i)
		s, k = b.canonize(s, k, i)
	}
	b.stampSuffixes(s, k, len(b.text)-1)
	b.resolveLeaves()
}

// update extends every suffix of text[..i-1] that lacks a text[i]
// continuation, starting from the active point (s, k, i-1).
func (b *builder[T, ID]) update(s ovNodeID, k, i int) (ovNodeID, int) {
	t := b.text[i]
	oldr := overlayRoot

	end, r := b.testAndSplit(s, k, i-1, t)
	for !end {
		b.addLeaf(r, t, i)
		if oldr != overlayRoot {
			b.ov.nodes[oldr].link = r
		}
		oldr = r

		if s == overlayRoot {
			if k > i-1 {
				// Empty active string at the root: the next suffix is the
				// empty suffix of text[..i], which needs no extension.
				k++
				break
			}
			k++
		} else {
			s = b.link(s, "update")
		}
		s, k = b.canonize(s, k, i-1)
		end, r = b.testAndSplit(s, k, i-1, t)
	}
	if oldr != overlayRoot {
		b.ov.nodes[oldr].link = s
	}
	return s, k
}

// testAndSplit reports whether (s, k, p) already continues with t. When it
// does not, the position is made explicit and returned as r.
func (b *builder[T, ID]) testAndSplit(s ovNodeID, k, p int, t T) (bool, ovNodeID) {
	if k <= p {
		eid := b.overlayChild(s, b.text[k])
		if b.tokenAt(eid, p-k+1) == t {
			return true, s
		}
		return false, b.split(s, k, p)
	}

	if _, ok := b.ov.child(s, t); ok {
		return true, s
	}
	if e, ok := b.tree.child(b.ov.nodes[s].index, t); ok {
		b.ov.discover(s, t, e)
		return true, s
	}
	return false, s
}

// split makes the implicit position (s, k, p) explicit. The edge leaving s
// under text[k] is cut after p-k+1 tokens. Returns the new overlay node.
func (b *builder[T, ID]) split(s ovNodeID, k, p int) ovNodeID {
	head := b.text[k]
	eid, ok := b.ov.child(s, head)
	if !ok {
		invariant("split", "no edge under %v at overlay node %d", head, s)
	}
	offset := p - k + 1
	next := b.tokenAt(eid, offset)
	e := b.ov.edges[eid]

	sIdx := b.ov.nodes[s].index
	rIdx := b.tree.newNode()
	upper := b.tree.newEdge(b.text[k:p+1], rIdx)
	b.tree.setChild(sIdx, head, upper)
	if e.kind != edgeOpen {
		b.tree.trim(e.index, offset)
	}
	b.tree.setChild(rIdx, next, e.index)

	r := b.ov.newNode(rIdx)
	switch e.kind {
	case edgeDiscovery:
		// The lower half stays index-only until something walks it.
		b.ov.resolve(eid, upper, k, p, r)
	default:
		top := b.ov.newResolved(upper, k, p, r)
		b.ov.setChild(s, head, top)
		b.ov.edges[eid].start = e.start + offset
		b.ov.setChild(r, next, eid)
	}
	b.splits++
	return r
}

// canonize walks (s, k, p) down every edge fully covered by text[k..p].
//
// Walking a discovery edge shadows its target node, whose suffix link is
// found by canonizing the same string one token shorter. That walk may
// shadow further nodes in turn, so pending walks are kept on b.walks
// rather than the goroutine stack: re-walking a long text over an existing
// tree nests them as deep as the text is long.
func (b *builder[T, ID]) canonize(s ovNodeID, k, p int) (ovNodeID, int) {
	stack := append(b.walks[:0], canonWalk{s: s, k: k, end: p, target: noLink})
	for {
		top := len(stack) - 1
		w := stack[top]
		pending, ok := b.advance(&w)
		stack[top] = w
		if ok {
			stack = append(stack, pending)
			continue
		}

		stack = stack[:top]
		if len(stack) == 0 {
			b.walks = stack
			return w.s, w.k
		}
		if w.k <= w.end {
			invariant("canonize", "suffix link target of overlay node %d is implicit at %d", w.target, w.s)
		}
		b.ov.nodes[w.target].link = w.s
	}
}

// canonWalk is one pending canonize. target is the overlay node whose
// suffix link is the walk's result, or noLink for the outermost walk.
type canonWalk struct {
	s      ovNodeID
	k, end int
	target ovNodeID
}

// advance moves w down covered edges until it stops or crosses a discovery
// edge. Crossing one shadows the edge's target and returns the walk that
// computes the new node's suffix link.
func (b *builder[T, ID]) advance(w *canonWalk) (canonWalk, bool) {
	for w.k <= w.end {
		eid := b.overlayChild(w.s, b.text[w.k])
		e := b.ov.edges[eid]
		if e.kind == edgeOpen {
			break
		}
		length := b.ov.span(eid, len(b.tree.edges[e.index].label))
		if length > w.end-w.k+1 {
			break
		}
		if e.kind != edgeDiscovery {
			w.s = e.child
			w.k += length
			continue
		}

		last := w.k + length - 1
		child := b.ov.newNode(b.tree.edges[e.index].child)
		b.ov.resolve(eid, e.index, w.k, last, child)

		link := canonWalk{s: w.s, k: w.k, end: last, target: child}
		if link.s == overlayRoot {
			link.k++
		} else {
			link.s = b.link(link.s, "canonize")
		}
		w.s = child
		w.k += length
		return link, true
	}
	return canonWalk{}, false
}

// stampSuffixes records id on every non-empty suffix from the final active
// point downward, splitting edges where a suffix ends mid-edge. Longer
// suffixes end on leaf edges and are stamped by resolveLeaves.
func (b *builder[T, ID]) stampSuffixes(s ovNodeID, k, p int) {
	for {
		if k > p {
			if s == overlayRoot {
				return
			}
			b.tree.stamp(b.ov.nodes[s].index, b.id)
			s = b.link(s, "stampSuffixes")
			continue
		}

		r := b.split(s, k, p)
		b.tree.stamp(b.ov.nodes[r].index, b.id)
		if s == overlayRoot {
			k++
		} else {
			s = b.link(s, "stampSuffixes")
		}
		s, k = b.canonize(s, k, p)
	}
}

// resolveLeaves closes every open edge created by this insertion with a
// new leaf carrying id.
func (b *builder[T, ID]) resolveLeaves() {
	for _, eid := range b.leaves {
		e := b.ov.edges[eid]
		leaf := b.tree.newNode()
		b.tree.stamp(leaf, b.id)
		b.tree.resolve(e.index, b.text[e.start:], leaf)
	}
}

// addLeaf opens a new leaf edge under r for the suffix starting at i.
func (b *builder[T, ID]) addLeaf(r ovNodeID, t T, i int) {
	e := b.tree.newOpenEdge()
	b.tree.setChild(b.ov.nodes[r].index, t, e)
	id := b.ov.openLeaf(r, t, e, i)
	b.leaves = append(b.leaves, id)
}

// overlayChild returns the overlay edge leaving s under tok, discovering
// it from the index when this insertion has not reached it yet.
func (b *builder[T, ID]) overlayChild(s ovNodeID, tok T) ovEdgeID {
	if id, ok := b.ov.child(s, tok); ok {
		return id
	}
	e, ok := b.tree.child(b.ov.nodes[s].index, tok)
	if !ok {
		invariant("overlayChild", "no edge under %v at overlay node %d", tok, s)
	}
	return b.ov.discover(s, tok, e)
}

// tokenAt returns the token offset positions into an edge.
func (b *builder[T, ID]) tokenAt(eid ovEdgeID, offset int) T {
	e := &b.ov.edges[eid]
	if e.kind == edgeDiscovery {
		return b.tree.edges[e.index].label[offset]
	}
	return b.text[e.start+offset]
}

func (b *builder[T, ID]) link(s ovNodeID, op string) ovNodeID {
	l := b.ov.nodes[s].link
	if l == noLink {
		invariant(op, "overlay node %d has no suffix link", s)
	}
	return l
}

// nodesCreated reports how many index nodes this insertion allocated.
func (b *builder[T, ID]) nodesCreated() int {
	return len(b.tree.nodes) - b.nodesBefore
}
