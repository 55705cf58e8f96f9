package tree

import (
	"iter"
	"slices"
)

// Range is a half-open byte range.
type Range struct {
	Start int
	End   int
}

// Walk yields n and its descendants in pre-order.
func (t *Tree) Walk(n NodeID) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		stack := []NodeID{n}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(cur) {
				return
			}
			refs := t.refs(cur)
			for i := len(refs) - 1; i >= 0; i-- {
				stack = append(stack, refs[i].id)
			}
		}
	}
}

// Leaves yields the childless nodes under n from left to right. Their ranges
// concatenate to the text of n.
func (t *Tree) Leaves(n NodeID) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		for id := range t.Walk(n) {
			if len(t.refs(id)) == 0 && !yield(id) {
				return
			}
		}
	}
}

// ErrorNodes yields every error and missing node in pre-order. The children
// of an error node are not visited.
func (t *Tree) ErrorNodes() iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		stack := []NodeID{t.root}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if t.IsError(cur) {
				if !yield(cur) {
					return
				}
				continue
			}
			refs := t.refs(cur)
			for i := len(refs) - 1; i >= 0; i-- {
				stack = append(stack, refs[i].id)
			}
		}
	}
}

// Equal reports whether two trees have the same structure: kinds, flags,
// ranges, fields and error messages. Node ids and slab layout are ignored.
func Equal(a, b *Tree) bool {
	return a.language == b.language && EqualNodes(a, a.root, b, b.root)
}

// EqualNodes compares the subtrees at an and bn.
func EqualNodes(a *Tree, an NodeID, b *Tree, bn NodeID) bool {
	type pair struct{ a, b NodeID }
	stack := []pair{{an, bn}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		na, nb := a.node(p.a), b.node(p.b)
		if na.kind != nb.kind || na.flags != nb.flags || na.msg != nb.msg {
			return false
		}
		as, ae := a.ByteRange(p.a)
		bs, be := b.ByteRange(p.b)
		if as != bs || ae != be {
			return false
		}
		ra, rb := a.refs(p.a), b.refs(p.b)
		if len(ra) != len(rb) {
			return false
		}
		for i := range ra {
			if ra[i].field != rb[i].field {
				return false
			}
			stack = append(stack, pair{ra[i].id, rb[i].id})
		}
	}
	return true
}

// ChangedRanges returns the merged ranges of leaves in next that were built
// afresh rather than shared with prev. Unless next was reparsed from prev,
// the whole text of next is reported.
func ChangedRanges(prev, next *Tree) []Range {
	if len(next.slabs) != len(prev.slabs)+1 || !slices.Equal(prev.slabs, next.slabs[:len(prev.slabs)]) {
		return []Range{{0, len(next.src)}}
	}
	shared := func(s int) bool { return s < len(prev.slabs) }
	var out []Range
	stack := []NodeID{next.root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if shared(cur.slab()) {
			continue
		}
		refs := next.refs(cur)
		if len(refs) == 0 {
			s, e := next.ByteRange(cur)
			out = append(out, Range{s, e})
			continue
		}
		for i := len(refs) - 1; i >= 0; i-- {
			stack = append(stack, refs[i].id)
		}
	}
	return mergeRanges(out)
}

func mergeRanges(rs []Range) []Range {
	if len(rs) == 0 {
		return nil
	}
	slices.SortFunc(rs, func(a, b Range) int { return a.Start - b.Start })
	out := rs[:1]
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			last.End = max(last.End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}
