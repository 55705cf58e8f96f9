package parser

import (
	"fmt"

	"validatetest/internal/engine/lexer"
	"validatetest/internal/engine/tree"
)

// Diagnostic describes one syntax error. Every diagnostic corresponds to an
// ERROR or MISSING node of the tree.
type Diagnostic struct {
	Start   int
	End     int
	Pos     lexer.Position
	Message string
	Missing bool
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Pos, d.Message)
}

// Diagnostics derives the diagnostics of t from its error nodes, in document order.
func Diagnostics(t *tree.Tree) []Diagnostic {
	var out []Diagnostic
	for n := range t.ErrorNodes() {
		start, end := t.ByteRange(n)
		out = append(out, Diagnostic{
			Start:   start,
			End:     end,
			Pos:     t.Lines().Position(start),
			Message: t.Message(n),
			Missing: t.IsMissing(n),
		})
	}
	return out
}
