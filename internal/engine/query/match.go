package query

import (
	"maps"
	"regexp"
	"slices"

	"validatetest/internal/engine/tree"
)

type predicateOp uint8

const (
	opEq predicateOp = iota
	opMatch
	opAnyOf
)

type predicate struct {
	op      predicateOp
	negate  bool
	capture int
	other   int
	values  []string
	re      *regexp.Regexp
}

type hit struct {
	id   int
	node tree.NodeID
}

type kid struct {
	id    tree.NodeID
	field string
}

type matcher struct {
	q        *Query
	t        *tree.Tree
	anchored bool
	hits     []hit
}

// try matches pattern p with its root at node n.
func (m *matcher) try(index int, p *pattern, n tree.NodeID) (Match, bool) {
	m.anchored = p.anchored
	m.hits = m.hits[:0]
	if !m.match(p.root, n) || !m.holds(p.predicates) {
		return Match{}, false
	}
	return m.result(index, p), true
}

func (m *matcher) match(st *step, n tree.NodeID) bool {
	mark := len(m.hits)
	if m.matchStep(st, n) {
		return true
	}
	m.hits = m.hits[:mark]
	return false
}

func (m *matcher) matchStep(st *step, n tree.NodeID) bool {
	if st.kind == stepAlt {
		for _, alt := range st.alts {
			if m.match(alt, n) {
				m.capture(st, n)
				return true
			}
		}
		return false
	}
	if !m.head(st, n) {
		return false
	}
	for _, f := range st.negated {
		if m.t.ChildByField(n, f) != tree.NoNode {
			return false
		}
	}
	m.capture(st, n)
	if len(st.children) > 0 && !m.matchChildren(st, n) {
		return false
	}
	return m.holds(st.predicates)
}

func (m *matcher) capture(st *step, n tree.NodeID) {
	for _, id := range st.captures {
		m.hits = append(m.hits, hit{id: id, node: n})
	}
}

func (m *matcher) head(st *step, n tree.NodeID) bool {
	t := m.t
	switch st.kind {
	case stepNode:
		return t.IsNamed(n) && t.Kind(n) == st.nodeKind
	case stepWildcardNamed:
		return t.IsNamed(n)
	case stepWildcard:
		return true
	case stepLiteral:
		return !t.IsNamed(n) && t.Kind(n) == st.nodeKind
	case stepMissing:
		return t.IsMissing(n) && (st.nodeKind == "" || t.Kind(n) == st.nodeKind)
	}
	return false
}

func (m *matcher) significant(n tree.NodeID) []kid {
	count := m.t.ChildCount(n)
	out := make([]kid, 0, count)
	for i := range count {
		c := m.t.Child(n, i)
		if m.t.IsExtra(c) {
			continue
		}
		out = append(out, kid{id: c, field: m.t.FieldName(n, i)})
	}
	return out
}

// matchChildren matches the child steps of st in order. Each step takes the
// first suitable child after the previous match and keeps it.
func (m *matcher) matchChildren(st *step, n tree.NodeID) bool {
	kids := m.significant(n)
	next, prev := 0, -1
	for _, c := range st.children {
		count := 0
		for {
			// Repetitions of one step are always adjacent.
			j := m.find(c, kids, next, prev, m.anchored || count > 0)
			if j < 0 {
				break
			}
			prev, next = j, j+1
			count++
			if c.quant == quantOne || c.quant == quantOptional {
				break
			}
		}
		if count == 0 && (c.quant == quantOne || c.quant == quantPlus) {
			return false
		}
	}
	return true
}

// find returns the index of the first child at or after next that matches c,
// or -1. With adjacent set the child must directly follow prev; a step that
// only matches named nodes may skip anonymous ones.
func (m *matcher) find(c *step, kids []kid, next, prev int, adjacent bool) int {
	for j := next; j < len(kids); j++ {
		if adjacent && prev >= 0 && j > prev+1 {
			if !c.namedOnly() || m.t.IsNamed(kids[j-1].id) {
				return -1
			}
		}
		if c.field != "" && kids[j].field != c.field {
			continue
		}
		if m.match(c, kids[j].id) {
			return j
		}
	}
	return -1
}

func (m *matcher) nodes(id int) []tree.NodeID {
	var out []tree.NodeID
	for _, h := range m.hits {
		if h.id == id {
			out = append(out, h.node)
		}
	}
	return out
}

// holds evaluates preds against the captures bound so far. A predicate on a
// capture that matched no node holds.
func (m *matcher) holds(preds []predicate) bool {
	for i := range preds {
		pr := &preds[i]
		for _, n := range m.nodes(pr.capture) {
			if m.test(pr, m.t.Text(n)) == pr.negate {
				return false
			}
		}
	}
	return true
}

func (m *matcher) test(pr *predicate, text string) bool {
	switch pr.op {
	case opEq:
		if pr.other < 0 {
			return text == pr.values[0]
		}
		others := m.nodes(pr.other)
		return len(others) > 0 && m.t.Text(others[0]) == text
	case opMatch:
		return pr.re.MatchString(text)
	case opAnyOf:
		return slices.Contains(pr.values, text)
	}
	return false
}

func (m *matcher) result(index int, p *pattern) Match {
	mt := Match{PatternIndex: index, Properties: maps.Clone(p.props)}
	lang := p.props[PropInjectionLanguage]
	if lang == "" {
		for _, h := range m.hits {
			if m.q.captures[h.id] == CaptureInjectionLanguage {
				lang = m.t.Text(h.node)
				break
			}
		}
	}
	size := len(m.t.Source())
	mt.Captures = make([]Capture, len(m.hits))
	for i, h := range m.hits {
		start, end := m.t.ByteRange(h.node)
		if off, ok := p.offsets[h.id]; ok {
			start = min(max(start+off.start, 0), size)
			end = min(max(end+off.end, start), size)
		}
		c := Capture{
			PatternIndex: index,
			Name:         m.q.captures[h.id],
			Node:         h.node,
			Start:        start,
			End:          end,
		}
		if c.Name == CaptureInjectionContent {
			c.Language = lang
		}
		mt.Captures[i] = c
	}
	return mt
}
