package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"validatetest/internal/engine/grammar"
	"validatetest/internal/engine/tree"
)

var fragments = []string{
	"play", "stop", "meta", "a", "b-c", "x.y", "1", "-2.5", "true", "\"s\"", "\"un", "`ls`", "$(v)",
	",", ";", "=", ":", "{", "}", "[", "]", "<", ">", "(", ")", "(int)", "!",
	" ", "  ", "\n", "\n\n", "# c\n", "\\\n", "?", "é",
	"set-vars, x=1", "s { k=v }", "l=[1, 2]", "a, b={ c, d=2 }",
}

func genText(t *rapid.T, label string) string {
	return strings.Join(rapid.SliceOfN(rapid.SampledFrom(fragments), 0, 40).Draw(t, label), "")
}

func genEdit(t *rapid.T, src string) tree.Edit {
	start := rapid.IntRange(0, len(src)).Draw(t, "start")
	end := rapid.IntRange(start, len(src)).Draw(t, "end")
	text := genText(t, "insert")
	if len(text) > 12 {
		text = text[:12]
	}
	return tree.Replace(start, end, []byte(text))
}

func messages(diags []Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Pos.String() + " " + d.Message
	}
	return out
}

func TestNoopReparse(t *testing.T) {
	g := grammar.ValidateTest()
	full, diags := Parse(g, []byte(scenario))
	again, againDiags, err := Reparse(g, full, tree.Replace(0, 0, nil))
	require.NoError(t, err)
	assert.True(t, tree.Equal(full, again))
	assert.Equal(t, diags, againDiags)
	// Only the comments and line breaks between reused items are rebuilt.
	for _, r := range tree.ChangedRanges(full, again) {
		for line := range strings.Lines(scenario[r.Start:r.End]) {
			line = strings.TrimSpace(line)
			assert.True(t, line == "" || strings.HasPrefix(line, "#"), "rebuilt %q", line)
		}
	}
}

func TestReparseReusesUnchangedNodes(t *testing.T) {
	g := grammar.ValidateTest()
	p := New(g)
	old, _ := p.ParseWithStats([]byte(scenario))

	at := strings.Index(scenario, "play\n")
	edit := tree.Replace(at, at+len("play"), []byte("pause"))
	next, stats, err := p.ReparseWithStats(old, edit)
	require.NoError(t, err)
	assert.Positive(t, stats.Reused)

	text, err := edit.Apply([]byte(scenario))
	require.NoError(t, err)
	full, _ := p.ParseWithStats(text)
	assert.True(t, tree.Equal(full, next))
	assertReconstructs(t, next, string(text))
	assertWellFormed(t, next)

	changed := tree.ChangedRanges(old, next)
	require.NotEmpty(t, changed)
	covered := false
	for _, r := range changed {
		if r.Start <= at && at+len("pause") <= r.End {
			covered = true
		}
	}
	assert.True(t, covered, "changed ranges %v miss the edit", changed)
}

func TestReparseAfterEditInsideString(t *testing.T) {
	g := grammar.ValidateTest()
	src := "set-vars, a=\"abc\"\nplay\n"
	old, diags := Parse(g, []byte(src))
	require.Empty(t, diags)

	// Deleting the closing quote turns the rest of the line into an unterminated literal.
	at := strings.LastIndex(src, `"`)
	next, nextDiags, err := Reparse(g, old, tree.Replace(at, at+1, nil))
	require.NoError(t, err)
	require.Len(t, nextDiags, 1)
	assert.Equal(t, "unterminated string literal", nextDiags[0].Message)

	fixed, fixedDiags, err := Reparse(g, next, tree.Replace(at, at, []byte(`"`)))
	require.NoError(t, err)
	assert.Empty(t, fixedDiags)
	assert.True(t, tree.Equal(old, fixed))
}

func TestReparseFallsBackAfterManyEdits(t *testing.T) {
	g := grammar.ValidateTest()
	cur, _ := Parse(g, []byte("play\n"))
	for range tree.MaxSlabs + 2 {
		var err error
		cur, _, err = Reparse(g, cur, tree.Replace(0, 0, []byte("a\n")))
		require.NoError(t, err)
		assert.Less(t, cur.Slabs(), tree.MaxSlabs)
	}
	assert.Equal(t, strings.Repeat("a\n", tree.MaxSlabs+2)+"play\n", string(cur.Source()))
}

// An incrementally reparsed tree is indistinguishable from a fresh parse.
func TestIncrementalMatchesFullParse(t *testing.T) {
	g := grammar.ValidateTest()
	rapid.Check(t, func(t *rapid.T) {
		src := genText(t, "src")
		cur, _ := Parse(g, []byte(src))
		steps := rapid.IntRange(1, 4).Draw(t, "steps")
		for range steps {
			edit := genEdit(t, string(cur.Source()))
			next, diags, err := Reparse(g, cur, edit)
			if err != nil {
				t.Fatalf("reparse %v: %v", edit, err)
			}
			full, fullDiags := Parse(g, next.Source())
			if !tree.Equal(full, next) {
				t.Fatalf("after %v on %q:\nfull:  %s\nincr:  %s", edit, cur.Source(), full.SExpr(full.Root()), next.SExpr(next.Root()))
			}
			if a, b := messages(fullDiags), messages(diags); strings.Join(a, "|") != strings.Join(b, "|") {
				t.Fatalf("diagnostics differ: %v vs %v", a, b)
			}
			cur = next
		}
	})
}

func TestIncrementalMatchesFullParsePipeline(t *testing.T) {
	g := grammar.Pipeline()
	rapid.Check(t, func(t *rapid.T) {
		src := genText(t, "src")
		old, _ := Parse(g, []byte(src))
		edit := genEdit(t, src)
		next, _, err := Reparse(g, old, edit)
		if err != nil {
			t.Fatalf("reparse: %v", err)
		}
		full, _ := Parse(g, next.Source())
		if !tree.Equal(full, next) {
			t.Fatalf("after %v on %q:\nfull:  %s\nincr:  %s", edit, src, full.SExpr(full.Root()), next.SExpr(next.Root()))
		}
	})
}

func TestParseProperties(t *testing.T) {
	g := grammar.ValidateTest()
	rapid.Check(t, func(t *rapid.T) {
		src := genText(t, "src")
		tr, diags := Parse(g, []byte(src))

		var b strings.Builder
		for leaf := range tr.Leaves(tr.Root()) {
			b.WriteString(tr.Text(leaf))
		}
		if b.String() != src {
			t.Fatalf("leaves %q do not reproduce %q", b.String(), src)
		}
		if (len(diags) > 0) != tr.HasError() {
			t.Fatalf("diagnostics %v disagree with HasError", diags)
		}
		for n := range tr.Walk(tr.Root()) {
			if tr.IsNamed(n) && !tr.IsExtra(n) && tr.ChildCount(n) > 0 {
				// Named nodes start and end on significant tokens.
				first, last := tr.Child(n, 0), tr.Child(n, tr.ChildCount(n)-1)
				if n != tr.Root() && (tr.IsExtra(first) || tr.IsExtra(last)) {
					t.Fatalf("%s %q has trivia at its edge", tr.Kind(n), tr.Text(n))
				}
			}
		}
	})
}
