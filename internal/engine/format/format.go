// Package format pretty-prints ValidateTest sources.
//
// Structures that fit within the line length stay on one line, property
// actions and expected issues are always split, and nested blocks pack short
// values onto shared lines. Comments and blank lines between top-level items
// are kept. Formatting a formatted source returns it unchanged.
package format

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"validatetest/internal/engine/grammar"
	"validatetest/internal/engine/parser"
	"validatetest/internal/engine/tree"
)

const (
	DefaultIndentWidth   = 4
	DefaultMaxLineLength = 120
)

var (
	ErrSyntax          = errors.New("source has syntax errors")
	ErrCommentPosition = errors.New("comment cannot be kept in place")
)

// Options control the layout. Zero fields take their defaults.
type Options struct {
	IndentWidth   int
	MaxLineLength int
	// AlwaysMultiline adds structure names that are always split, on top of
	// the property actions and expected-issue.
	AlwaysMultiline []string
}

func (o Options) withDefaults() Options {
	if o.IndentWidth <= 0 {
		o.IndentWidth = DefaultIndentWidth
	}
	if o.MaxLineLength <= 0 {
		o.MaxLineLength = DefaultMaxLineLength
	}
	return o
}

// splitStructures are top-level and block structures that never stay on one line.
var splitStructures = []string{
	"check-properties",
	"check-child-properties",
	"set-child-properties",
	"set-properties",
	"expected-issue",
}

// splitArrayStructures are array structures that never stay on one line.
var splitArrayStructures = append([]string{"change-severity"}, splitStructures...)

// quotedStructures prefix strings that are rewritten as array structures.
var quotedStructures = []string{"expected-issue,", "change-severity,"}

// Format parses src and returns it formatted. Sources with syntax errors are refused.
func Format(src []byte, opts Options) (string, error) {
	t, diags := parser.Parse(grammar.ValidateTest(), src)
	if len(diags) > 0 {
		d := diags[0]
		return "", fmt.Errorf("%w: parse error at line %d, column %d: %s", ErrSyntax, d.Pos.Line, d.Pos.Col, d.Message)
	}
	return FormatTree(t, opts)
}

// FormatTree formats an error-free ValidateTest tree.
func FormatTree(t *tree.Tree, opts Options) (string, error) {
	if t.HasError() {
		return "", ErrSyntax
	}
	f := newFormatter(t, opts.withDefaults(), 0)
	if err := f.checkComments(); err != nil {
		return "", err
	}
	f.sourceFile(t.Root())
	out := f.out.String()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out, nil
}

type formatter struct {
	t      *tree.Tree
	opts   Options
	out    strings.Builder
	indent int

	split      []string
	splitArray []string
}

func newFormatter(t *tree.Tree, opts Options, indent int) *formatter {
	return &formatter{
		t:          t,
		opts:       opts,
		indent:     indent,
		split:      append(slices.Clone(splitStructures), opts.AlwaysMultiline...),
		splitArray: append(slices.Clone(splitArrayStructures), opts.AlwaysMultiline...),
	}
}

func (f *formatter) text(n tree.NodeID) string { return f.t.Text(n) }
func (f *formatter) pad() string              { return strings.Repeat(" ", f.indent) }
func (f *formatter) kind(n tree.NodeID) string { return f.t.Kind(n) }

func (f *formatter) isComment(n tree.NodeID) bool {
	return f.t.IsExtra(n) && f.t.Kind(n) == "comment"
}

func (f *formatter) line(offset int) int { return f.t.Lines().Position(offset).Line }

// sameLine reports whether b starts on the line where a ends.
func (f *formatter) sameLine(a, b tree.NodeID) bool {
	return f.line(f.t.EndByte(a)) == f.line(f.t.StartByte(b))
}

// kids returns the non-extra children of n of the given kind.
func (f *formatter) kids(n tree.NodeID, kind string) []tree.NodeID {
	var out []tree.NodeID
	for _, c := range f.t.Children(n) {
		if !f.t.IsExtra(c) && f.t.Kind(c) == kind {
			out = append(out, c)
		}
	}
	return out
}

// items returns the named children and comments of n in order.
func (f *formatter) items(n tree.NodeID) []tree.NodeID {
	var out []tree.NodeID
	for _, c := range f.t.Children(n) {
		if f.isComment(c) || (!f.t.IsExtra(c) && f.t.IsNamed(c)) {
			out = append(out, c)
		}
	}
	return out
}

func (f *formatter) first(n tree.NodeID, kind string) tree.NodeID {
	for _, c := range f.t.Children(n) {
		if !f.t.IsExtra(c) && f.t.Kind(c) == kind {
			return c
		}
	}
	return tree.NoNode
}

func (f *formatter) name(n tree.NodeID) string {
	if id := f.t.ChildByField(n, "name"); id != tree.NoNode {
		return f.text(id)
	}
	return ""
}

// hasComment reports whether any comment lies inside n.
func (f *formatter) hasComment(n tree.NodeID) bool {
	for d := range f.t.Walk(n) {
		if f.isComment(d) {
			return true
		}
	}
	return false
}

// checkComments refuses comments the layout would have to drop.
func (f *formatter) checkComments() error {
	for n := range f.t.Walk(f.t.Root()) {
		if !f.isComment(n) {
			continue
		}
		p := f.t.Parent(n)
		switch f.kind(p) {
		case "source_file", "scenario_block", "nested_structure_block", "array", "angle_bracket_array", "field_list":
			continue
		case "structure":
			if fl := f.first(p, "field_list"); fl != tree.NoNode && f.t.StartByte(n) < f.t.StartByte(fl) {
				continue
			}
		}
		pos := f.t.StartPosition(n)
		return fmt.Errorf("%w: line %d, column %d", ErrCommentPosition, pos.Line, pos.Col)
	}
	return nil
}

// blankLinesBetween counts the empty lines between two byte offsets.
func (f *formatter) blankLinesBetween(end, start int) int {
	if start <= end {
		return 0
	}
	return max(strings.Count(string(f.t.Source()[end:start]), "\n")-1, 0)
}

func (f *formatter) sourceFile(root tree.NodeID) {
	prev := tree.NoNode
	for _, c := range f.items(root) {
		if prev != tree.NoNode {
			if f.isComment(c) && !f.isComment(prev) && f.sameLine(prev, c) && f.fitsTrailing(c) {
				f.out.WriteString("  ")
				f.out.WriteString(f.text(c))
				prev = c
				continue
			}
			f.out.WriteString("\n")
			for range f.blankLinesBetween(f.t.EndByte(prev), f.t.StartByte(c)) {
				f.out.WriteString("\n")
			}
		}
		switch f.kind(c) {
		case "comment":
			f.comment(c)
		case "structure":
			f.structure(c)
		case "scenario_block":
			f.scenarioBlock(c)
		}
		prev = c
	}
}

// fitsTrailing reports whether comment c fits after the current output line.
func (f *formatter) fitsTrailing(c tree.NodeID) bool {
	out := f.out.String()
	last := out[strings.LastIndexByte(out, '\n')+1:]
	return len(last)+2+len(f.text(c)) <= f.opts.MaxLineLength
}

func (f *formatter) comment(n tree.NodeID) {
	pad := f.pad()
	text := f.text(n)
	if f.indent+len(text) <= f.opts.MaxLineLength {
		f.out.WriteString(pad)
		f.out.WriteString(text)
		return
	}
	content := strings.TrimPrefix(strings.TrimPrefix(text, "#"), " ")
	prefix := pad + "# "
	width := f.opts.MaxLineLength - len(prefix)
	var cur string
	first := true
	emit := func() {
		if !first {
			f.out.WriteString("\n")
		}
		f.out.WriteString(prefix)
		f.out.WriteString(cur)
		first = false
	}
	for _, word := range strings.Fields(content) {
		switch {
		case cur == "":
			cur = word
		case len(cur)+1+len(word) <= width:
			cur += " " + word
		default:
			emit()
			cur = word
		}
	}
	if cur != "" {
		emit()
	}
}
