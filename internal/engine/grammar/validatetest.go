package grammar

import (
	"sync"

	"validatetest/internal/engine/lexer"
)

const (
	ValidateTestName = "validatetest"
	PipelineName     = "gst-pipeline"
)

// valueSync ends recovery inside a field or a typed value.
var valueSync = []lexer.Kind{lexer.Comma, lexer.Semicolon, lexer.RBrace, lexer.RBracket, lexer.RAngle}

// ValidateTestDefinition describes GStreamer validate scenario and .validatetest files.
func ValidateTestDefinition() Definition {
	return Definition{
		Name: ValidateTestName,
		Symbols: []SymbolDef{
			{Name: "source_file", Rule: Recover(Ref("_item"))},
			{Name: "_item", Rule: Choice(Ref("scenario_block"), Ref("structure"))},
			{
				Name: "scenario_block",
				Rule: Seq(
					Field("name", Leaf(lexer.Word, "structure_name")),
					Tok(lexer.LBrace), Cut(),
					Recover(Seq(Ref("field"), Opt(Tok(lexer.Comma))), lexer.RBrace),
					Tok(lexer.RBrace),
				),
				Sync: []lexer.Kind{lexer.RBrace},
			},
			{
				Name: "structure",
				Rule: Seq(
					Field("name", Leaf(lexer.Word, "structure_name")),
					Opt(Seq(Tok(lexer.Comma), Ref("field_list"), Opt(Tok(lexer.Comma)))),
					Opt(Tok(lexer.Semicolon)),
				),
			},
			{Name: "field_list", Rule: Seq(Ref("field"), Repeat(Seq(Tok(lexer.Comma), Ref("field"))))},
			{
				Name: "field",
				Rule: Seq(
					Field("name", Leaf(lexer.Word, "identifier")),
					Choice(Tok(lexer.Equals), Tok(lexer.Colon)), Cut(),
					Field("value", Ref("field_value")),
				),
				Sync: valueSync,
			},
			{
				Name: "field_value",
				Rule: Choice(
					Ref("nested_structure_block"),
					Ref("array"),
					Ref("angle_bracket_array"),
					Ref("typed_value"),
					Ref("value"),
				),
			},
			{
				Name: "nested_structure_block",
				Rule: Seq(
					Tok(lexer.LBrace), Cut(),
					Recover(Seq(Choice(Ref("_block_structure"), Ref("field_value")), Opt(Tok(lexer.Comma))), lexer.RBrace),
					Tok(lexer.RBrace),
				),
				Sync: []lexer.Kind{lexer.RBrace},
			},
			{
				Name:  "_block_structure",
				Alias: "structure",
				Rule: Seq(
					Field("name", Leaf(lexer.Word, "structure_name")),
					Tok(lexer.Comma),
					Ref("field_list"),
				),
			},
			{
				Name: "array",
				Rule: Seq(
					Tok(lexer.LBracket), Cut(),
					Recover(Seq(Ref("array_element"), Opt(Tok(lexer.Comma))), lexer.RBracket),
					Tok(lexer.RBracket),
				),
				Sync: []lexer.Kind{lexer.RBracket, lexer.RBrace},
			},
			{Name: "array_element", Rule: Choice(Ref("array_structure"), Ref("field_value"))},
			{
				Name: "array_structure",
				Rule: Seq(
					Field("name", Leaf(lexer.Word, "structure_name")),
					Tok(lexer.Comma),
					Ref("field_list"),
				),
			},
			{
				Name: "angle_bracket_array",
				Rule: Seq(
					Tok(lexer.LAngle), Cut(),
					Recover(Seq(Ref("field_value"), Opt(Tok(lexer.Comma))), lexer.RAngle),
					Tok(lexer.RAngle),
				),
				Sync: []lexer.Kind{lexer.RAngle, lexer.RBracket, lexer.RBrace},
			},
			{
				Name: "typed_value",
				Rule: Seq(
					Tok(lexer.LParen),
					Field("type", Leaf(lexer.Word, "type_name")),
					Tok(lexer.RParen), Cut(),
					Field("value", Choice(Ref("array"), Ref("angle_bracket_array"), Ref("value"))),
				),
				Sync: valueSync,
			},
			{Name: "value", Rule: Choice(scalars()...)},
		},
	}
}

func scalars() []*Rule {
	return []*Rule{
		Leaf(lexer.String, "string"),
		Leaf(lexer.ShellCommand, "embedded_shell_command"),
		Leaf(lexer.Variable, "variable"),
		Leaf(lexer.Number, "number"),
		LitLeaf(lexer.Word, "true", "boolean"),
		LitLeaf(lexer.Word, "false", "boolean"),
		Leaf(lexer.Word, "word"),
	}
}

// PipelineDefinition describes gst-launch pipeline descriptions, which appear
// inside ValidateTest strings.
func PipelineDefinition() Definition {
	return Definition{
		Name: PipelineName,
		Symbols: []SymbolDef{
			{Name: "pipeline", Rule: Recover(Seq(Ref("element"), Opt(Tok(lexer.Bang))))},
			{
				Name: "element",
				Rule: Seq(
					Field("name", Leaf(lexer.Word, "element_name")),
					Repeat(Seq(Opt(Tok(lexer.Comma)), Ref("property"))),
				),
			},
			{
				Name: "property",
				Rule: Seq(
					Field("name", Leaf(lexer.Word, "identifier")),
					Tok(lexer.Equals), Cut(),
					Field("value", Ref("field_value")),
				),
				Sync: []lexer.Kind{lexer.Bang, lexer.Comma},
			},
			{
				Name: "field_value",
				Rule: Choice(Ref("typed_value"), Ref("value")),
			},
			{
				Name: "typed_value",
				Rule: Seq(
					Tok(lexer.LParen),
					Field("type", Leaf(lexer.Word, "type_name")),
					Tok(lexer.RParen), Cut(),
					Field("value", Ref("value")),
				),
				Sync: []lexer.Kind{lexer.Bang, lexer.Comma},
			},
			{Name: "value", Rule: Choice(scalars()...)},
		},
	}
}

var (
	validateTestOnce sync.Once
	validateTest     *Grammar
	pipelineOnce     sync.Once
	pipeline         *Grammar
)

// ValidateTest returns the shared compiled ValidateTest grammar.
func ValidateTest() *Grammar {
	validateTestOnce.Do(func() { validateTest = MustCompile(ValidateTestDefinition()) })
	return validateTest
}

// Pipeline returns the shared compiled gst-pipeline grammar.
func Pipeline() *Grammar {
	pipelineOnce.Do(func() { pipeline = MustCompile(PipelineDefinition()) })
	return pipeline
}
