package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"validatetest/internal/engine/grammar"
	"validatetest/internal/engine/query"
)

func TestDefaultRegistry(t *testing.T) {
	r, err := Default(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"css", "go", "gst-pipeline", "html", "java", "javascript", "python", "rust", "typescript", "validatetest"}, r.Names())

	l, ok := r.ForPath("tests/check/seek.validatetest")
	require.True(t, ok)
	assert.Equal(t, grammar.ValidateTestName, l.Name)
	assert.Same(t, grammar.ValidateTest(), l.Native)

	l, ok = r.ForPath(`C:\scenarios\play.SCENARIO`)
	require.True(t, ok)
	assert.Equal(t, grammar.ValidateTestName, l.Name)

	_, ok = r.ForPath("README.md")
	assert.False(t, ok)
	assert.Contains(t, r.Extensions(), ".py")
}

func TestEmbeddedQueriesCompile(t *testing.T) {
	r, err := Default(nil, nil)
	require.NoError(t, err)
	for _, name := range r.Names() {
		t.Run(name, func(t *testing.T) {
			l, _ := r.Lookup(name)
			hl, err := r.HighlightsQuery(l)
			require.NoError(t, err)
			require.NotNil(t, hl)
			assert.Equal(t, name, hl.Language())

			_, err = r.InjectionsQuery(l)
			require.NoError(t, err)
		})
	}

	l, _ := r.Lookup(grammar.PipelineName)
	inj, err := r.InjectionsQuery(l)
	require.NoError(t, err)
	assert.Nil(t, inj)
}

func TestNativeParse(t *testing.T) {
	l := Native(grammar.ValidateTest())
	tr, err := l.Parse([]byte("play\nstop\n"))
	require.NoError(t, err)
	assert.Equal(t, "(source_file (structure name: (structure_name)) (structure name: (structure_name)))", tr.SExpr(tr.Root()))
	assert.Equal(t, grammar.ValidateTestName, tr.Language())
}

func TestSitterParse(t *testing.T) {
	l, err := Sitter("python")
	require.NoError(t, err)

	tr, err := l.Parse([]byte("def f(x):\n    return x\n"))
	require.NoError(t, err)
	assert.Equal(t, "module", tr.Kind(tr.Root()))
	assert.False(t, tr.HasError())
	assert.Equal(t, "python", tr.Language())

	fn := tr.NamedChildren(tr.Root())[0]
	assert.Equal(t, "function_definition", tr.Kind(fn))
	assert.Equal(t, "f", tr.Text(tr.ChildByField(fn, "name")))

	named, ok := l.Kinds.HasKind("function_definition")
	assert.True(t, ok)
	assert.True(t, named)
	named, ok = l.Kinds.HasKind("def")
	assert.True(t, ok)
	assert.False(t, named)
	assert.True(t, l.Kinds.HasField("name"))
	assert.False(t, l.Kinds.HasField("no_such_field"))

	_, err = Sitter("cobol")
	assert.Error(t, err)
}

func TestSitterErrors(t *testing.T) {
	l, err := Sitter("javascript")
	require.NoError(t, err)
	tr, err := l.Parse([]byte("function ( {"))
	require.NoError(t, err)
	assert.True(t, tr.HasError())
}

func TestParserPoolLeases(t *testing.T) {
	pool := NewParserPool(sitterSpecs["python"].load())
	sp := pool.Get()
	assert.Equal(t, 1, pool.Leased())
	pool.Put(sp)
	assert.Equal(t, 0, pool.Leased())
	pool.Put(nil)
}

func TestOverrides(t *testing.T) {
	disabled := false
	r, err := Default(nil, map[string]Override{
		"python":       {Enabled: &disabled},
		"validatetest": {Extensions: []string{"vt"}, Highlights: "(comment) @comment"},
	})
	require.NoError(t, err)
	_, ok := r.Lookup("python")
	assert.False(t, ok)
	_, ok = r.ForPath("x.py")
	assert.False(t, ok)

	l, ok := r.ForPath("a.vt")
	require.True(t, ok)
	_, ok = r.ForPath("a.validatetest")
	assert.False(t, ok)
	hl, err := r.HighlightsQuery(l)
	require.NoError(t, err)
	assert.Equal(t, 1, hl.PatternCount())

	_, err = Default(nil, map[string]Override{"cobol": {}})
	assert.ErrorContains(t, err, `unknown language override "cobol"`)

	_, err = Default(nil, map[string]Override{"javascript": {Extensions: []string{".py"}}})
	assert.ErrorContains(t, err, "duplicate extension")
}

func TestBrokenQueryOverride(t *testing.T) {
	r, err := Default(nil, map[string]Override{"validatetest": {Highlights: "(nope) @x"}})
	require.NoError(t, err)
	l, _ := r.Lookup("validatetest")
	_, err = r.HighlightsQuery(l)
	var ce *query.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "highlights query for validatetest")
}

func TestRegisterRejectsIncompleteLanguage(t *testing.T) {
	r := NewRegistry(nil)
	assert.Error(t, r.Register(&Language{Name: "x"}))
	assert.Error(t, r.Register(nil))
}
