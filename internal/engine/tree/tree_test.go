package tree

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// build returns the tree for "a, b=1":
// (structure name: (structure_name) "," (field name: (identifier) "=" value: (number)))
func build(t *testing.T) *Tree {
	t.Helper()
	src := []byte("a, b=1")
	b := NewBuilder()
	name := b.Add(NodeSpec{Kind: "structure_name", Symbol: NoSymbol, Flags: Named, Start: 0, End: 1, LookEnd: 2}, nil)
	comma := b.Add(NodeSpec{Kind: ",", Symbol: NoSymbol, Start: 1, End: 2, LookEnd: 2}, nil)
	ws := b.Add(NodeSpec{Kind: "whitespace", Symbol: NoSymbol, Flags: Extra, Start: 2, End: 3, LookEnd: 3}, nil)
	id := b.Add(NodeSpec{Kind: "identifier", Symbol: NoSymbol, Flags: Named, Start: 3, End: 4, LookEnd: 5}, nil)
	eq := b.Add(NodeSpec{Kind: "=", Symbol: NoSymbol, Start: 4, End: 5, LookEnd: 5}, nil)
	num := b.Add(NodeSpec{Kind: "number", Symbol: NoSymbol, Flags: Named, Start: 5, End: 6, LookEnd: 7}, nil)
	field := b.Add(NodeSpec{Kind: "field", Symbol: 5, Flags: Named, Start: 3, End: 6, LookEnd: 7},
		[]Child{{id, "name"}, {eq, ""}, {num, "value"}})
	root := b.Add(NodeSpec{Kind: "structure", Symbol: 3, Flags: Named, Start: 0, End: 6, LookEnd: 7},
		[]Child{{name, "name"}, {comma, ""}, {ws, ""}, {field, ""}})
	return b.Finish(root, "test", "v1", src)
}

func TestTraversal(t *testing.T) {
	tr := build(t)
	root := tr.Root()
	assert.Equal(t, "structure", tr.Kind(root))
	assert.Equal(t, 4, tr.ChildCount(root))
	assert.Equal(t, "name", tr.FieldName(root, 0))
	assert.Equal(t, "", tr.FieldName(root, 1))

	name := tr.ChildByField(root, "name")
	require.NotEqual(t, NoNode, name)
	assert.Equal(t, "a", tr.Text(name))

	field := tr.Child(root, 3)
	assert.Equal(t, "field", tr.Kind(field))
	assert.Equal(t, "b=1", tr.Text(field))
	value := tr.ChildByField(field, "value")
	assert.Equal(t, "1", tr.Text(value))
	assert.Equal(t, field, tr.Parent(value))
	assert.Equal(t, root, tr.Parent(field))
	assert.Equal(t, NoNode, tr.Parent(root))

	assert.Equal(t, NoNode, tr.Child(root, 9))
	assert.Equal(t, NoNode, tr.ChildByField(root, "value"))
	assert.Len(t, tr.NamedChildren(root), 2)
	assert.True(t, tr.IsExtra(tr.Child(root, 2)))
	assert.False(t, tr.HasError())

	assert.Equal(t, "a, b=1", tr.Text(root))
	pos := tr.StartPosition(value)
	assert.Equal(t, 1, pos.Line)
	assert.Equal(t, 6, pos.Col)

	assert.Equal(t, field, tr.Descendant(3, 6))
	assert.Equal(t, value, tr.Descendant(5, 6))
	got, ok := tr.NodeForSymbol(5, 3)
	assert.True(t, ok)
	assert.Equal(t, field, got)
}

func TestLeavesReconstructText(t *testing.T) {
	tr := build(t)
	var text []byte
	for leaf := range tr.Leaves(tr.Root()) {
		text = append(text, tr.Text(leaf)...)
	}
	assert.Equal(t, "a, b=1", string(text))
}

func TestWalkOrder(t *testing.T) {
	tr := build(t)
	var kinds []string
	for n := range tr.Walk(tr.Root()) {
		kinds = append(kinds, tr.Kind(n))
	}
	assert.Equal(t, []string{"structure", "structure_name", ",", "whitespace", "field", "identifier", "=", "number"}, kinds)

	kinds = kinds[:0]
	for n := range tr.Walk(tr.Root()) {
		kinds = append(kinds, tr.Kind(n))
		if len(kinds) == 2 {
			break
		}
	}
	assert.Len(t, kinds, 2)
}

func TestSExpr(t *testing.T) {
	tr := build(t)
	assert.Equal(t,
		"(structure name: (structure_name) (field name: (identifier) value: (number)))",
		tr.SExpr(tr.Root()))
}

func TestExport(t *testing.T) {
	tr := build(t)
	out := tr.Export(tr.Root(), false)
	require.Len(t, out.Children, 3)
	assert.Equal(t, "name", out.Children[0].Field)
	assert.Equal(t, "a", out.Children[0].Text)
	assert.Empty(t, out.Text)
	assert.Len(t, tr.Export(tr.Root(), true).Children, 4)
}

func TestErrorNodes(t *testing.T) {
	b := NewBuilder()
	bad := b.Add(NodeSpec{Kind: "unknown", Symbol: NoSymbol, Start: 0, End: 1}, nil)
	errNode := b.Add(NodeSpec{Kind: "ERROR", Message: "unexpected ?", Symbol: NoSymbol, Flags: Named | Error, Start: 0, End: 1}, []Child{{bad, ""}})
	missing := b.Add(NodeSpec{Kind: "}", Message: "missing }", Symbol: NoSymbol, Flags: Error | Missing, Start: 1, End: 1}, nil)
	root := b.Add(NodeSpec{Kind: "source_file", Symbol: 0, Flags: Named, Start: 0, End: 1}, []Child{{errNode, ""}, {missing, ""}})
	tr := b.Finish(root, "test", "v1", []byte("?"))

	assert.Equal(t, []NodeID{errNode, missing}, slices.Collect(tr.ErrorNodes()))
	assert.True(t, tr.HasError())
	assert.Equal(t, `(source_file (ERROR) (MISSING "}"))`, tr.SExpr(root))
	assert.Equal(t, "unexpected ?", tr.Message(errNode))
}

func TestBuilderReset(t *testing.T) {
	b := NewBuilder()
	b.Add(NodeSpec{Kind: "a", End: 1}, nil)
	m := b.Mark()
	x := b.Add(NodeSpec{Kind: "b", Start: 1, End: 2}, nil)
	b.Add(NodeSpec{Kind: "c", Start: 1, End: 2}, []Child{{x, ""}})
	assert.Equal(t, 3, b.Len())
	b.Reset(m)
	assert.Equal(t, 1, b.Len())
}

func TestIncrementalBuilderSharesSlabs(t *testing.T) {
	old := build(t)
	// "a, b=1" -> "xyz, b=1": the field is reused after the edit.
	e := Replace(0, 1, []byte("xyz"))
	src, err := e.Apply(old.Source())
	require.NoError(t, err)
	require.Equal(t, "xyz, b=1", string(src))

	oldField := old.Child(old.Root(), 3)
	b := NewIncrementalBuilder(old, e)
	start, end, look := b.Span(oldField)
	assert.Equal(t, []int{5, 8, 9}, []int{start, end, look})

	name := b.Add(NodeSpec{Kind: "structure_name", Symbol: NoSymbol, Flags: Named, Start: 0, End: 3, LookEnd: 4}, nil)
	comma := b.Add(NodeSpec{Kind: ",", Symbol: NoSymbol, Start: 3, End: 4, LookEnd: 4}, nil)
	ws := b.Add(NodeSpec{Kind: "whitespace", Symbol: NoSymbol, Flags: Extra, Start: 4, End: 5, LookEnd: 5}, nil)
	root := b.Add(NodeSpec{Kind: "structure", Symbol: 3, Flags: Named, Start: 0, End: 8, LookEnd: 9},
		[]Child{{name, "name"}, {comma, ""}, {ws, ""}, {oldField, ""}})
	next := b.Finish(root, "test", "v1", src)

	assert.Equal(t, 2, next.Slabs())
	field := next.Child(next.Root(), 3)
	assert.Equal(t, oldField, field, "reused by reference")
	assert.Equal(t, "b=1", next.Text(field))
	assert.Equal(t, "1", next.Text(next.ChildByField(field, "value")))
	assert.Equal(t, 9, next.LookEnd(field))
	assert.Equal(t, next.Root(), next.Parent(field))
	// The old tree is untouched.
	assert.Equal(t, "b=1", old.Text(oldField))
	assert.Equal(t, old.Root(), old.Parent(oldField))

	assert.Equal(t, []Range{{0, 5}}, ChangedRanges(old, next))
	assert.Equal(t, []Range{{0, 6}}, ChangedRanges(next, old), "unrelated trees change entirely")
}

func TestShiftsCompose(t *testing.T) {
	first := []Shift{{Start: 0, OldEnd: 1, Delta: 2}}
	assert.Equal(t, 5, mapStart(3, first))
	assert.Equal(t, 0, mapStart(0, first))

	// Insertion at 10: nodes ending at 10 stay, nodes starting at 10 move.
	ins := []Shift{{Start: 10, OldEnd: 10, Delta: 4}}
	assert.Equal(t, 10, mapEnd(10, ins))
	assert.Equal(t, 14, mapStart(10, ins))

	both := append(first, ins[0])
	assert.Equal(t, 16, mapStart(10, both))
	assert.Equal(t, 4, mapEnd(2, both))
}

func TestEqual(t *testing.T) {
	a, b := build(t), build(t)
	assert.True(t, Equal(a, b))

	bl := NewBuilder()
	leaf := bl.Add(NodeSpec{Kind: "structure_name", Flags: Named, End: 1}, nil)
	root := bl.Add(NodeSpec{Kind: "structure", Flags: Named, End: 1}, []Child{{leaf, "name"}})
	c := bl.Finish(root, "test", "v1", []byte("a"))
	assert.False(t, Equal(a, c))
}

func TestEditValidate(t *testing.T) {
	tests := []struct {
		name string
		edit Edit
		ok   bool
	}{
		{"insert", Replace(2, 2, []byte("x")), true},
		{"delete", Replace(0, 3, nil), true},
		{"past end", Replace(2, 9, nil), false},
		{"reversed", Edit{Start: 3, OldEnd: 2, NewEnd: 3}, false},
		{"length mismatch", Edit{Start: 0, OldEnd: 0, NewEnd: 2, NewText: []byte("x")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.edit.Apply([]byte("abc"))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidEdit)
			}
		})
	}
	assert.True(t, Replace(1, 1, nil).IsNoop())
	assert.Equal(t, 2, Replace(0, 1, []byte("abc")).Delta())
}
