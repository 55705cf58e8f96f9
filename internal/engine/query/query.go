// Package query compiles tree-sitter style S-expression patterns and runs them
// against syntax trees.
//
// A query is a list of patterns. Running it walks the tree in pre-order and
// tries every pattern, in declaration order, at every node. Child patterns
// are matched in the order they are written against the node's non-extra
// children. Quantifiers are greedy and a child match, once made, is never
// revisited, so some matches that a backtracking matcher would find are
// missed. A pattern is floating by default, allowing unmatched siblings
// between its children; the anchored keyword requires the matched children
// to be adjacent, ignoring anonymous nodes between named steps.
//
// A predicate written inside a node pattern is checked when that node
// matches, against the captures bound so far; predicates in a top-level
// group are checked once the whole pattern has matched.
package query

import (
	"errors"
	"fmt"
	"iter"
	"maps"

	"validatetest/internal/engine/tree"
)

// Well-known capture names and properties of injection queries.
const (
	CaptureInjectionContent  = "injection.content"
	CaptureInjectionLanguage = "injection.language"
	PropInjectionLanguage    = "injection.language"
)

var ErrStaleQuery = errors.New("query was compiled for a different grammar version")

// KindSet describes the node kinds and field names a language produces.
// Queries compiled against a KindSet may only be run on trees of the same
// language and version.
type KindSet interface {
	Name() string
	Version() string
	HasKind(kind string) (named bool, ok bool)
	HasField(name string) bool
}

// CompileError locates a problem in query source. Line and Col are 1-based.
type CompileError struct {
	Offset  int
	Line    int
	Col     int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("query:%d:%d: %s", e.Line, e.Col, e.Message)
}

// Capture is a node bound to a capture name by a match. Start and End are the
// node's byte range, moved by any #offset! directive. Language is set on
// injection.content captures whose match names a target grammar.
type Capture struct {
	PatternIndex int
	Name         string
	Node         tree.NodeID
	Start        int
	End          int
	Language     string
}

// IsInjection reports whether the capture hands its range to another grammar.
func (c Capture) IsInjection() bool {
	return c.Name == CaptureInjectionContent && c.Language != ""
}

// Match is one pattern matched at one node.
type Match struct {
	PatternIndex int
	Captures     []Capture
	Properties   map[string]string
}

// Query is a compiled pattern list. It is immutable and safe for concurrent use.
type Query struct {
	language string
	version  string
	source   string
	patterns []*pattern
	captures []string
}

func (q *Query) PatternCount() int      { return len(q.patterns) }
func (q *Query) CaptureNames() []string { return q.captures }
func (q *Query) Source() string         { return q.source }

// Language is the name of the language the query was validated against, or
// "" for an unbound query.
func (q *Query) Language() string { return q.language }
func (q *Query) Version() string  { return q.version }

// IsAnchored reports whether pattern i was declared anchored.
func (q *Query) IsAnchored(i int) bool { return q.patterns[i].anchored }

// Properties returns the #set! properties of pattern i.
func (q *Query) Properties(i int) map[string]string { return maps.Clone(q.patterns[i].props) }

// Compile parses source. When lang is not nil every node kind and field name
// is checked against it and the query is bound to its version.
func Compile(lang KindSet, source string) (*Query, error) {
	q := &Query{source: source}
	if lang != nil {
		q.language, q.version = lang.Name(), lang.Version()
	}
	c := newCompiler(lang, source, q)
	if err := c.parse(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Query) check(t *tree.Tree) error {
	if q.version == "" {
		return nil
	}
	if t.Language() != q.language || t.GrammarVersion() != q.version {
		return fmt.Errorf("%w: query %s %s, tree %s %s", ErrStaleQuery,
			q.language, q.version, t.Language(), t.GrammarVersion())
	}
	return nil
}

// Run yields every capture of every match, match by match.
func (q *Query) Run(t *tree.Tree) (iter.Seq[Capture], error) {
	matches, err := q.Matches(t)
	if err != nil {
		return nil, err
	}
	return func(yield func(Capture) bool) {
		for m := range matches {
			for _, c := range m.Captures {
				if !yield(c) {
					return
				}
			}
		}
	}, nil
}

// Matches yields the matches of t in pre-order. At most one match is
// reported per pattern and node.
func (q *Query) Matches(t *tree.Tree) (iter.Seq[Match], error) {
	if err := q.check(t); err != nil {
		return nil, err
	}
	return func(yield func(Match) bool) {
		m := &matcher{q: q, t: t}
		for n := range t.Walk(t.Root()) {
			for i, p := range q.patterns {
				if mt, ok := m.try(i, p, n); ok && !yield(mt) {
					return
				}
			}
		}
	}, nil
}

// Captures collects Run into a slice.
func (q *Query) Captures(t *tree.Tree) ([]Capture, error) {
	seq, err := q.Run(t)
	if err != nil {
		return nil, err
	}
	var out []Capture
	for c := range seq {
		out = append(out, c)
	}
	return out, nil
}
