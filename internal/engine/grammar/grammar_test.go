package grammar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"validatetest/internal/engine/lexer"
)

func TestCompileBuiltins(t *testing.T) {
	for _, g := range []*Grammar{ValidateTest(), Pipeline()} {
		t.Run(g.Name(), func(t *testing.T) {
			require.NotEmpty(t, g.Version())
			start := g.Symbol(g.Start())
			assert.False(t, start.Hidden)
			assert.True(t, start.Rule.Nullable(), "start symbol accepts empty input")
		})
	}
}

func TestValidateTestKinds(t *testing.T) {
	g := ValidateTest()
	for _, kind := range []string{
		"source_file", "scenario_block", "structure", "field_list", "field", "field_value",
		"nested_structure_block", "array", "array_element", "array_structure",
		"angle_bracket_array", "typed_value", "value", "structure_name", "identifier",
		"type_name", "string", "embedded_shell_command", "variable", "number", "boolean",
		"word", "comment", KindError,
	} {
		named, ok := g.HasKind(kind)
		assert.True(t, ok, kind)
		assert.True(t, named, kind)
	}
	for _, kind := range []string{",", "{", "}", ";", "="} {
		named, ok := g.HasKind(kind)
		assert.True(t, ok, kind)
		assert.False(t, named, kind)
	}
	_, ok := g.HasKind("_item")
	assert.False(t, ok, "hidden symbols produce no nodes")
	_, ok = g.HasKind("_block_structure")
	assert.False(t, ok)

	assert.Equal(t, []string{"name", "type", "value"}, g.Fields())
}

func TestFirstSets(t *testing.T) {
	g := ValidateTest()
	fv, ok := g.Lookup("field_value")
	require.True(t, ok)
	first := fv.Rule.First()
	for _, k := range []lexer.Kind{lexer.LBrace, lexer.LBracket, lexer.LAngle, lexer.LParen, lexer.String, lexer.Word, lexer.Number} {
		assert.True(t, first.Has(k), k.String())
	}
	assert.False(t, first.Has(lexer.Comma))
	assert.False(t, fv.Rule.Nullable())

	st, _ := g.Lookup("structure")
	assert.Equal(t, SetOf(lexer.Word), st.Rule.First())
}

func TestVersionIsStable(t *testing.T) {
	a := MustCompile(ValidateTestDefinition())
	b := MustCompile(ValidateTestDefinition())
	assert.Equal(t, a.Version(), b.Version())
	assert.NotEqual(t, a.Version(), Pipeline().Version())

	def := ValidateTestDefinition()
	def.Symbols[len(def.Symbols)-1].Rule = Choice(Leaf(lexer.String, "string"))
	c := MustCompile(def)
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		want string
	}{
		{
			name: "unknown reference",
			def:  Definition{Name: "x", Symbols: []SymbolDef{{Name: "a", Rule: Ref("b")}}},
			want: `unknown symbol "b"`,
		},
		{
			name: "duplicate",
			def: Definition{Name: "x", Symbols: []SymbolDef{
				{Name: "a", Rule: Tok(lexer.Word)},
				{Name: "a", Rule: Tok(lexer.Word)},
			}},
			want: "duplicate symbol",
		},
		{
			name: "left recursion",
			def: Definition{Name: "x", Symbols: []SymbolDef{
				{Name: "a", Rule: Seq(Opt(Tok(lexer.Comma)), Ref("b"))},
				{Name: "b", Rule: Choice(Tok(lexer.Word), Seq(Ref("a"), Tok(lexer.Word)))},
			}},
			want: "left recursion a -> b -> a",
		},
		{
			name: "nullable repeat",
			def:  Definition{Name: "x", Symbols: []SymbolDef{{Name: "a", Rule: Repeat(Opt(Tok(lexer.Word)))}}},
			want: "can match empty input",
		},
		{
			name: "cut outside sequence",
			def:  Definition{Name: "x", Symbols: []SymbolDef{{Name: "a", Rule: Choice(Cut(), Tok(lexer.Word))}}},
			want: "cut outside a sequence",
		},
		{
			name: "trivia token",
			def:  Definition{Name: "x", Symbols: []SymbolDef{{Name: "a", Rule: Tok(lexer.Comment)}}},
			want: "matches token comment",
		},
		{
			name: "hidden start",
			def:  Definition{Name: "x", Symbols: []SymbolDef{{Name: "_a", Rule: Tok(lexer.Word)}}},
			want: "start symbol",
		},
		{
			name: "empty choice",
			def:  Definition{Name: "x", Symbols: []SymbolDef{{Name: "a", Rule: Choice()}}},
			want: "empty choice",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.def)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidGrammar))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompileDoesNotModifyDefinition(t *testing.T) {
	ref := Ref("b")
	def := Definition{Name: "x", Symbols: []SymbolDef{
		{Name: "a", Rule: Seq(ref, Tok(lexer.Comma))},
		{Name: "b", Rule: Tok(lexer.Word)},
	}}
	g, err := Compile(def)
	require.NoError(t, err)
	assert.Equal(t, SymbolID(0), ref.Symbol)
	assert.Equal(t, TokenSet(0), ref.First())
	a, _ := g.Lookup("a")
	assert.Equal(t, SymbolID(1), a.Rule.Members[0].Symbol)
}

func TestRuleString(t *testing.T) {
	r := Seq(Field("name", Leaf(lexer.Word, "identifier")), Lit(lexer.Word, "true"), Cut(), Recover(Ref("x"), lexer.RBrace))
	assert.Equal(t, `seq(name: word as identifier "true" ^ recover(x until {}}))`, r.String())
}

func TestLeafKinds(t *testing.T) {
	assert.Equal(t, "boolean", LitLeaf(lexer.Word, "true", "boolean").LeafKind())
	assert.Equal(t, "true", Lit(lexer.Word, "true").LeafKind())
	assert.False(t, Lit(lexer.Word, "true").LeafNamed())
	assert.Equal(t, ",", Tok(lexer.Comma).LeafKind())
	assert.False(t, Tok(lexer.Comma).LeafNamed())
	assert.True(t, Tok(lexer.Word).LeafNamed())
}
