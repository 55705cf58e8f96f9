package tree

import (
	"strconv"
	"strings"
)

// SExpr renders the named structure under n, with field labels, in the
// usual tree-sitter notation. Anonymous and extra nodes other than comments
// are left out; missing nodes print as (MISSING kind).
func (t *Tree) SExpr(n NodeID) string {
	var b strings.Builder
	t.writeSExpr(&b, n, "")
	return b.String()
}

func (t *Tree) writeSExpr(b *strings.Builder, n NodeID, field string) {
	if field != "" {
		b.WriteString(field)
		b.WriteString(": ")
	}
	nd := t.node(n)
	if nd.flags&Missing != 0 {
		b.WriteString("(MISSING ")
		if nd.flags&Named != 0 {
			b.WriteString(nd.kind)
		} else {
			b.WriteString(strconv.Quote(nd.kind))
		}
		b.WriteByte(')')
		return
	}
	b.WriteByte('(')
	b.WriteString(nd.kind)
	for _, r := range t.refs(n) {
		if !t.visible(r.id) {
			continue
		}
		b.WriteByte(' ')
		t.writeSExpr(b, r.id, r.field)
	}
	b.WriteByte(')')
}

func (t *Tree) visible(n NodeID) bool {
	f := t.node(n).flags
	return f&Missing != 0 || f&Named != 0
}

// ExportNode is a serialisable copy of a subtree.
type ExportNode struct {
	Kind     string        `json:"kind" yaml:"kind"`
	Field    string        `json:"field,omitempty" yaml:"field,omitempty"`
	Start    int           `json:"start" yaml:"start"`
	End      int           `json:"end" yaml:"end"`
	Named    bool          `json:"named,omitempty" yaml:"named,omitempty"`
	Extra    bool          `json:"extra,omitempty" yaml:"extra,omitempty"`
	Error    bool          `json:"error,omitempty" yaml:"error,omitempty"`
	Missing  bool          `json:"missing,omitempty" yaml:"missing,omitempty"`
	Message  string        `json:"message,omitempty" yaml:"message,omitempty"`
	Text     string        `json:"text,omitempty" yaml:"text,omitempty"`
	Children []*ExportNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// Export copies the subtree at n. Leaves carry their text. Extra nodes are
// dropped unless withExtras is set.
func (t *Tree) Export(n NodeID, withExtras bool) *ExportNode {
	return t.export(n, "", withExtras)
}

func (t *Tree) export(n NodeID, field string, withExtras bool) *ExportNode {
	nd := t.node(n)
	start, end := t.ByteRange(n)
	out := &ExportNode{
		Kind:    nd.kind,
		Field:   field,
		Start:   start,
		End:     end,
		Named:   nd.flags&Named != 0,
		Extra:   nd.flags&Extra != 0,
		Error:   nd.flags&Error != 0,
		Missing: nd.flags&Missing != 0,
		Message: nd.msg,
	}
	refs := t.refs(n)
	if len(refs) == 0 {
		out.Text = string(t.src[start:end])
	}
	for _, r := range refs {
		if !withExtras && t.IsExtra(r.id) {
			continue
		}
		out.Children = append(out.Children, t.export(r.id, r.field, withExtras))
	}
	return out
}
