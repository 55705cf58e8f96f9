package tree

import "slices"

// Child is a child edge handed to the builder.
type Child struct {
	ID    NodeID
	Field string
}

// NodeSpec describes a node to append. Positions are in the new text.
type NodeSpec struct {
	Kind    string
	Message string
	Symbol  int32
	Flags   Flags
	Start   int
	End     int
	LookEnd int
}

// Mark is a builder position to roll back to.
type Mark struct {
	nodes int
	refs  int
}

// Builder appends nodes in post-order to a fresh slab. An incremental builder
// may also hand out nodes of its base tree, which keep their slab.
type Builder struct {
	base  *Tree
	shift Shift
	slab  *slab
	index int
}

func NewBuilder() *Builder {
	return &Builder{slab: &slab{}}
}

// NewIncrementalBuilder builds a tree for the text produced by applying e to
// base's source. Nodes of base used by the new tree must lie entirely before
// e.Start or entirely after e.OldEnd.
func NewIncrementalBuilder(base *Tree, e Edit) *Builder {
	return &Builder{base: base, shift: e.Shift(), slab: &slab{}, index: len(base.slabs)}
}

func (b *Builder) Mark() Mark { return Mark{len(b.slab.nodes), len(b.slab.refs)} }

// Reset discards every node appended since m.
func (b *Builder) Reset(m Mark) {
	b.slab.nodes = b.slab.nodes[:m.nodes]
	b.slab.refs = b.slab.refs[:m.refs]
}

// Len is the number of nodes in the fresh slab.
func (b *Builder) Len() int { return len(b.slab.nodes) }

// Add appends a node with the given children and returns its id.
func (b *Builder) Add(spec NodeSpec, children []Child) NodeID {
	lo := len(b.slab.refs)
	for _, c := range children {
		b.slab.refs = append(b.slab.refs, ref{id: c.ID, field: c.Field})
	}
	b.slab.nodes = append(b.slab.nodes, node{
		kind:    spec.Kind,
		msg:     spec.Message,
		symbol:  spec.Symbol,
		flags:   spec.Flags,
		start:   spec.Start,
		end:     spec.End,
		lookEnd: spec.LookEnd,
		refLo:   uint32(lo),
		refHi:   uint32(len(b.slab.refs)),
	})
	return makeID(b.index, len(b.slab.nodes)-1)
}

// Span returns the start, end and lookahead end of id in the new text.
func (b *Builder) Span(id NodeID) (start, end, lookEnd int) {
	if id.slab() == b.index {
		nd := &b.slab.nodes[id.index()]
		return nd.start, nd.end, nd.lookEnd
	}
	nd := b.base.node(id)
	sh := b.base.shifts[id.slab()]
	one := []Shift{b.shift}
	return mapStart(mapStart(nd.start, sh), one),
		mapEnd(mapEnd(nd.end, sh), one),
		mapEnd(mapEnd(nd.lookEnd, sh), one)
}

// Flags returns the flags of id, which may belong to the base tree.
func (b *Builder) Flags(id NodeID) Flags {
	if id.slab() == b.index {
		return b.slab.nodes[id.index()].flags
	}
	return b.base.node(id).flags
}

// Finish seals the builder into a tree rooted at root.
func (b *Builder) Finish(root NodeID, language, version string, src []byte) *Tree {
	t := &Tree{
		language: language,
		version:  version,
		src:      src,
		root:     root,
	}
	if b.base != nil {
		t.slabs = append(slices.Clip(b.base.slabs), b.slab)
		t.shifts = make([][]Shift, len(t.slabs))
		for i, sh := range b.base.shifts {
			t.shifts[i] = append(slices.Clip(sh), b.shift)
		}
	} else {
		t.slabs = []*slab{b.slab}
		t.shifts = make([][]Shift, 1)
	}
	return t
}
