// Package tree holds immutable concrete syntax trees.
//
// Nodes live in arena slabs and are addressed by NodeID. A tree produced by an
// incremental reparse appends one fresh slab to the slabs of the tree it was
// derived from and references unchanged subtrees in those older slabs
// directly. Positions stored in an old slab are mapped into the current text
// through the list of edits applied since the slab was built.
package tree

import (
	"sync"

	"validatetest/internal/engine/lexer"
)

// NodeID addresses a node: the slab index in the high bits, the node index in the low bits.
type NodeID uint32

const (
	slabShift = 27
	indexMask = 1<<slabShift - 1

	// MaxSlabs bounds the slab chain of a tree. Reparsing a tree at the bound
	// falls back to a full parse.
	MaxSlabs = 1 << (32 - slabShift)

	// NoNode is returned where no node exists.
	NoNode NodeID = 1<<32 - 1
)

func makeID(slab, index int) NodeID { return NodeID(slab<<slabShift | index) }

func (id NodeID) slab() int  { return int(id >> slabShift) }
func (id NodeID) index() int { return int(id & indexMask) }

// Flags describe a node.
type Flags uint8

const (
	Named Flags = 1 << iota
	// Extra marks trivia: whitespace, newlines, comments.
	Extra
	// Error marks ERROR nodes and MISSING nodes.
	Error
	// Missing marks zero-width nodes standing in for expected syntax.
	Missing
)

// NoSymbol marks leaves and nodes built outside the native parser.
const NoSymbol int32 = -1

type node struct {
	kind    string
	msg     string
	symbol  int32
	flags   Flags
	start   int
	end     int
	lookEnd int
	refLo   uint32
	refHi   uint32
}

// ref is a child edge. Field names live on the edge, not the child.
type ref struct {
	id    NodeID
	field string
}

type slab struct {
	nodes []node
	refs  []ref
}

// Shift records how one edit moved positions of an older slab.
type Shift struct {
	Start  int
	OldEnd int
	Delta  int
}

// Nodes reachable through an edit lie entirely before Start or entirely after
// OldEnd, so start offsets shift when at or after OldEnd and end offsets shift
// when past Start.
func mapStart(p int, shifts []Shift) int {
	for _, s := range shifts {
		if p >= s.OldEnd {
			p += s.Delta
		}
	}
	return p
}

func mapEnd(p int, shifts []Shift) int {
	for _, s := range shifts {
		if p > s.Start {
			p += s.Delta
		}
	}
	return p
}

// Tree is an immutable syntax tree over one source text.
// It is safe for concurrent use.
type Tree struct {
	language string
	version  string
	src      []byte
	slabs    []*slab
	shifts   [][]Shift
	root     NodeID

	linesOnce sync.Once
	lines     *lexer.LineIndex

	parentsOnce sync.Once
	parents     [][]NodeID

	symbolsOnce sync.Once
	bySymbol    map[symbolKey]NodeID
}

type symbolKey struct {
	symbol int32
	start  int
}

func (t *Tree) Root() NodeID          { return t.root }
func (t *Tree) Source() []byte         { return t.src }
func (t *Tree) Language() string       { return t.language }
func (t *Tree) GrammarVersion() string { return t.version }

// Slabs is the number of arena slabs the tree references.
func (t *Tree) Slabs() int { return len(t.slabs) }

// Lines returns the line index of the tree's source.
func (t *Tree) Lines() *lexer.LineIndex {
	t.linesOnce.Do(func() { t.lines = lexer.NewLineIndex(t.src) })
	return t.lines
}

func (t *Tree) node(n NodeID) *node {
	return &t.slabs[n.slab()].nodes[n.index()]
}

func (t *Tree) refs(n NodeID) []ref {
	s := t.slabs[n.slab()]
	nd := &s.nodes[n.index()]
	return s.refs[nd.refLo:nd.refHi]
}

func (t *Tree) Kind(n NodeID) string { return t.node(n).kind }
func (t *Tree) Flags(n NodeID) Flags { return t.node(n).flags }

func (t *Tree) IsNamed(n NodeID) bool   { return t.node(n).flags&Named != 0 }
func (t *Tree) IsExtra(n NodeID) bool   { return t.node(n).flags&Extra != 0 }
func (t *Tree) IsError(n NodeID) bool   { return t.node(n).flags&Error != 0 }
func (t *Tree) IsMissing(n NodeID) bool { return t.node(n).flags&Missing != 0 }

// Symbol is the grammar symbol that produced n, or NoSymbol.
func (t *Tree) Symbol(n NodeID) int32 { return t.node(n).symbol }

// Message is the diagnostic text of an error node.
func (t *Tree) Message(n NodeID) string { return t.node(n).msg }

// ByteRange returns the half-open byte range of n in the tree's source.
func (t *Tree) ByteRange(n NodeID) (start, end int) {
	nd := t.node(n)
	sh := t.shifts[n.slab()]
	return mapStart(nd.start, sh), mapEnd(nd.end, sh)
}

func (t *Tree) StartByte(n NodeID) int {
	return mapStart(t.node(n).start, t.shifts[n.slab()])
}

func (t *Tree) EndByte(n NodeID) int {
	return mapEnd(t.node(n).end, t.shifts[n.slab()])
}

// LookEnd is the furthest byte (exclusive) the parser examined while building n.
// A value of len(source)+1 means n depended on the end of input.
func (t *Tree) LookEnd(n NodeID) int {
	return mapEnd(t.node(n).lookEnd, t.shifts[n.slab()])
}

func (t *Tree) StartPosition(n NodeID) lexer.Position {
	return t.Lines().Position(t.StartByte(n))
}

func (t *Tree) EndPosition(n NodeID) lexer.Position {
	return t.Lines().Position(t.EndByte(n))
}

func (t *Tree) Text(n NodeID) string {
	start, end := t.ByteRange(n)
	return string(t.src[start:end])
}

func (t *Tree) ChildCount(n NodeID) int { return len(t.refs(n)) }

func (t *Tree) Child(n NodeID, i int) NodeID {
	refs := t.refs(n)
	if i < 0 || i >= len(refs) {
		return NoNode
	}
	return refs[i].id
}

// FieldName is the field label of the i-th child of n, or "".
func (t *Tree) FieldName(n NodeID, i int) string {
	refs := t.refs(n)
	if i < 0 || i >= len(refs) {
		return ""
	}
	return refs[i].field
}

// ChildByField returns the first child of n labelled name.
func (t *Tree) ChildByField(n NodeID, name string) NodeID {
	for _, r := range t.refs(n) {
		if r.field == name {
			return r.id
		}
	}
	return NoNode
}

// ChildrenByField returns every child of n labelled name.
func (t *Tree) ChildrenByField(n NodeID, name string) []NodeID {
	var out []NodeID
	for _, r := range t.refs(n) {
		if r.field == name {
			out = append(out, r.id)
		}
	}
	return out
}

func (t *Tree) Children(n NodeID) []NodeID {
	refs := t.refs(n)
	out := make([]NodeID, len(refs))
	for i, r := range refs {
		out[i] = r.id
	}
	return out
}

func (t *Tree) NamedChildren(n NodeID) []NodeID {
	var out []NodeID
	for _, r := range t.refs(n) {
		if t.node(r.id).flags&Named != 0 {
			out = append(out, r.id)
		}
	}
	return out
}

// ChildByKind returns the first child of n with the given kind.
func (t *Tree) ChildByKind(n NodeID, kind string) NodeID {
	for _, r := range t.refs(n) {
		if t.node(r.id).kind == kind {
			return r.id
		}
	}
	return NoNode
}

// Parent returns the parent of n, or NoNode for the root.
func (t *Tree) Parent(n NodeID) NodeID {
	t.parentsOnce.Do(t.buildParents)
	p := t.parents[n.slab()]
	if p == nil || n.index() >= len(p) {
		return NoNode
	}
	return p[n.index()]
}

func (t *Tree) buildParents() {
	t.parents = make([][]NodeID, len(t.slabs))
	var visit func(n NodeID)
	visit = func(n NodeID) {
		for _, r := range t.refs(n) {
			s := r.id.slab()
			if t.parents[s] == nil {
				t.parents[s] = make([]NodeID, len(t.slabs[s].nodes))
				for i := range t.parents[s] {
					t.parents[s][i] = NoNode
				}
			}
			t.parents[s][r.id.index()] = n
			visit(r.id)
		}
	}
	visit(t.root)
}

// NodeForSymbol returns the outermost node produced by grammar symbol sym
// that starts at offset, if any.
func (t *Tree) NodeForSymbol(sym int32, offset int) (NodeID, bool) {
	t.symbolsOnce.Do(func() {
		t.bySymbol = make(map[symbolKey]NodeID)
		for n := range t.Walk(t.root) {
			nd := t.node(n)
			if nd.symbol == NoSymbol {
				continue
			}
			key := symbolKey{nd.symbol, t.StartByte(n)}
			if _, ok := t.bySymbol[key]; !ok {
				t.bySymbol[key] = n
			}
		}
	})
	n, ok := t.bySymbol[symbolKey{sym, offset}]
	return n, ok
}

// Descendant returns the smallest node containing [start, end).
func (t *Tree) Descendant(start, end int) NodeID {
	n := t.root
	for {
		next := NoNode
		for _, r := range t.refs(n) {
			s, e := t.ByteRange(r.id)
			if s <= start && end <= e && (s < e || start == end) {
				next = r.id
				break
			}
		}
		if next == NoNode {
			return n
		}
		n = next
	}
}

// HasError reports whether the tree contains any error or missing node.
func (t *Tree) HasError() bool {
	for range t.ErrorNodes() {
		return true
	}
	return false
}
