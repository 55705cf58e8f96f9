package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"validatetest/internal/engine/grammar"
	"validatetest/internal/engine/tree"
)

const scenario = `# A scenario
meta,
    handles-states=true,
    seek=true,
    args = {
        "videotestsrc num-buffers=3 ! fakesink",
    }

set-vars, x=(string)"abc", caps=(GstCaps)[video/x-raw, width=320]
play
set-state, state=playing;
check-properties,
    videotestsrc0::pattern=snow,
    list=<1, 2, 3>,
    vars=$(position)
foo, cmd=` + "`ls -l`" + `
check, expected-issues = {
    expected-issue, level=critical, summary="a summary",
}
stop
`

func parse(t *testing.T, src string) (*tree.Tree, []Diagnostic) {
	t.Helper()
	tr, diags := Parse(grammar.ValidateTest(), []byte(src))
	require.NotNil(t, tr)
	assertReconstructs(t, tr, src)
	assertWellFormed(t, tr)
	return tr, diags
}

func assertReconstructs(t *testing.T, tr *tree.Tree, src string) {
	t.Helper()
	var b strings.Builder
	for leaf := range tr.Leaves(tr.Root()) {
		b.WriteString(tr.Text(leaf))
	}
	require.Equal(t, src, b.String())
}

// assertWellFormed checks that children are ordered, disjoint and inside their parent.
func assertWellFormed(t *testing.T, tr *tree.Tree) {
	t.Helper()
	for n := range tr.Walk(tr.Root()) {
		start, end := tr.ByteRange(n)
		require.LessOrEqual(t, start, end)
		prev := start
		for i := range tr.ChildCount(n) {
			c := tr.Child(n, i)
			cs, ce := tr.ByteRange(c)
			require.GreaterOrEqual(t, cs, prev, "child %d of %s", i, tr.Kind(n))
			require.LessOrEqual(t, ce, end, "child %d of %s", i, tr.Kind(n))
			require.Equal(t, n, tr.Parent(c))
			prev = ce
		}
	}
}

func TestScenarioBlockExample(t *testing.T) {
	tr, diags := parse(t, `test.scenario { pipeline: "videotestsrc ! fakesink" }`)
	assert.Empty(t, diags)
	assert.Equal(t,
		`(source_file (scenario_block name: (structure_name) (field name: (identifier) value: (field_value (value (string))))))`,
		tr.SExpr(tr.Root()))

	block := tr.NamedChildren(tr.Root())[0]
	assert.Equal(t, "scenario_block", tr.Kind(block))
	var fields []tree.NodeID
	for _, c := range tr.NamedChildren(block) {
		if tr.Kind(c) == "field" {
			fields = append(fields, c)
		}
	}
	require.Len(t, fields, 1)
	assert.Equal(t, "pipeline", tr.Text(tr.ChildByField(fields[0], "name")))
}

func TestValidScenario(t *testing.T) {
	tr, diags := parse(t, scenario)
	assert.Empty(t, diags)
	assert.False(t, tr.HasError())

	var names []string
	for _, c := range tr.NamedChildren(tr.Root()) {
		if tr.Kind(c) == "structure" {
			names = append(names, tr.Text(tr.ChildByField(c, "name")))
		}
	}
	assert.Equal(t, []string{"meta", "set-vars", "play", "set-state", "check-properties", "foo", "check", "stop"}, names)
}

func TestShapes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "structure with semicolon",
			src:  "play;",
			want: "(source_file (structure name: (structure_name)))",
		},
		{
			name: "typed value",
			src:  `a, x=(int)5`,
			want: "(source_file (structure name: (structure_name) (field_list (field name: (identifier) value: (field_value (typed_value type: (type_name) value: (value (number))))))))",
		},
		{
			name: "array of structures",
			src:  `a, l=[s, k=1]`,
			want: "(source_file (structure name: (structure_name) (field_list (field name: (identifier) value: (field_value (array (array_element (array_structure name: (structure_name) (field_list (field name: (identifier) value: (field_value (value (number))))))))))))))",
		},
		{
			name: "nested block keeps plain values",
			src:  `a, args={-t, video}`,
			want: "(source_file (structure name: (structure_name) (field_list (field name: (identifier) value: (field_value (nested_structure_block (field_value (value (word))) (field_value (value (word)))))))))",
		},
		{
			name: "nested block structure",
			src:  `a, b={ s, k=true }`,
			want: "(source_file (structure name: (structure_name) (field_list (field name: (identifier) value: (field_value (nested_structure_block (structure name: (structure_name) (field_list (field name: (identifier) value: (field_value (value (boolean))))))))))))",
		},
		{
			name: "angle array",
			src:  `a, l=<1, "x">`,
			want: "(source_file (structure name: (structure_name) (field_list (field name: (identifier) value: (field_value (angle_bracket_array (field_value (value (number))) (field_value (value (string)))))))))",
		},
		{
			name: "comment",
			src:  "# hi\nplay",
			want: "(source_file (comment) (structure name: (structure_name)))",
		},
		{
			name: "shell command and variable",
			src:  "a, c=`ls`, v=$(x)",
			want: "(source_file (structure name: (structure_name) (field_list (field name: (identifier) value: (field_value (value (embedded_shell_command)))) (field name: (identifier) value: (field_value (value (variable)))))))",
		},
		{
			name: "empty",
			src:  "",
			want: "(source_file)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, diags := parse(t, tt.src)
			assert.Empty(t, diags)
			assert.Equal(t, tt.want, tr.SExpr(tr.Root()))
		})
	}
}

func TestUnterminatedString(t *testing.T) {
	src := "set-vars, name=\"abc\nplay\n"
	tr, diags := parse(t, src)
	require.Len(t, diags, 1)
	d := diags[0]
	assert.Equal(t, strings.Index(src, `"`), d.Start)
	assert.Equal(t, "unterminated string literal", d.Message)
	assert.Equal(t, 1, d.Pos.Line)
	assert.Equal(t, 16, d.Pos.Col)

	assert.Equal(t,
		"(source_file (structure name: (structure_name) (field_list (field name: (identifier) (ERROR (unterminated))))) (structure name: (structure_name)))",
		tr.SExpr(tr.Root()))
}

func TestMissingBrace(t *testing.T) {
	tr, diags := parse(t, "foo { a=1")
	require.Len(t, diags, 1)
	assert.True(t, diags[0].Missing)
	assert.Equal(t, `missing "}"`, diags[0].Message)
	assert.Equal(t, 9, diags[0].Start)
	assert.Equal(t, 9, diags[0].End)
	assert.Equal(t,
		`(source_file (scenario_block name: (structure_name) (field name: (identifier) value: (field_value (value (number)))) (MISSING "}")))`,
		tr.SExpr(tr.Root()))
}

func TestMissingValue(t *testing.T) {
	tr, diags := parse(t, "a, b=\nplay")
	require.Len(t, diags, 1)
	assert.Equal(t, "missing field_value", diags[0].Message)
	assert.Equal(t, 5, diags[0].Start)
	field := tr.Descendant(3, 5)
	assert.Equal(t, "field", tr.Kind(field))
	assert.True(t, tr.IsMissing(tr.ChildByField(field, "value")))
}

func TestRecovery(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		messages []string
	}{
		{"stray brace", "play\n}\nstop", []string{`"}" is not expected here`}},
		{"unknown byte", "play ?\nstop", []string{`unexpected character "?"`}},
		{"garbage value", "a, b= ) c", []string{`")" is not expected here`}},
		{"unclosed array", "a, l=[1, 2 }\nb", []string{`missing "]"`, `"}" is not expected here`}},
		{"unterminated command", "a, c=`ls", []string{"unterminated shell command"}},
		{"bad field in block", "s { a=1 ]] b=2 }", []string{`"]" is not expected here`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, diags := parse(t, tt.src)
			var got []string
			for _, d := range diags {
				got = append(got, d.Message)
			}
			assert.Equal(t, tt.messages, got)
			assert.True(t, tr.HasError())
		})
	}
}

func TestPipelineGrammar(t *testing.T) {
	src := "videotestsrc num-buffers=3 ! video/x-raw,format=(string)I420 ! fakesink"
	tr, diags := Parse(grammar.Pipeline(), []byte(src))
	assert.Empty(t, diags)
	assertReconstructs(t, tr, src)
	assert.Equal(t,
		"(pipeline (element name: (element_name) (property name: (identifier) value: (field_value (value (number))))) "+
			"(element name: (element_name) (property name: (identifier) value: (field_value (typed_value type: (type_name) value: (value (word)))))) "+
			"(element name: (element_name)))",
		tr.SExpr(tr.Root()))
}

func TestMaxInputSize(t *testing.T) {
	p := New(grammar.ValidateTest()).WithMaxInputSize(4)
	tr, diags := p.Parse([]byte("play, a=1"))
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "exceeds")
	assertReconstructs(t, tr, "play, a=1")
}

func TestReparseRejectsForeignTree(t *testing.T) {
	tr, _ := Parse(grammar.Pipeline(), []byte("fakesink"))
	_, _, err := Reparse(grammar.ValidateTest(), tr, tree.Replace(0, 0, []byte("x")))
	assert.ErrorIs(t, err, ErrGrammarMismatch)

	vt, _ := Parse(grammar.ValidateTest(), []byte("play"))
	_, _, err = Reparse(grammar.ValidateTest(), vt, tree.Replace(3, 9, nil))
	assert.ErrorIs(t, err, tree.ErrInvalidEdit)
}
