package app

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"validatetest/internal/core/errors"
	"validatetest/internal/core/ports"
	"validatetest/internal/engine/format"
	"validatetest/internal/engine/grammar"
	"validatetest/internal/engine/highlight"
	"validatetest/internal/engine/language"
	"validatetest/internal/engine/parser"
	"validatetest/internal/engine/query"
	"validatetest/internal/engine/tree"
)

func newService(t *testing.T, overrides map[string]language.Override) *Service {
	t.Helper()
	r, err := language.Default(nil, overrides)
	require.NoError(t, err)
	s, err := NewService(Options{
		Registry: r,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return s
}

func TestOpen(t *testing.T) {
	s := newService(t, nil)
	doc, err := s.Open(t.Context(), "seek.validatetest", []byte("play\nseek, start=1.0\n"))
	require.NoError(t, err)

	assert.Equal(t, grammar.ValidateTestName, doc.Language)
	assert.Equal(t, 1, doc.Version)
	assert.Empty(t, doc.Diagnostics)
	assert.False(t, doc.Incremental)
	assert.Positive(t, doc.Stats.Tokens)

	got, ok := s.Document("seek.validatetest")
	require.True(t, ok)
	assert.Same(t, doc, got)
	assert.Equal(t, []string{"seek.validatetest"}, s.Paths())
}

func TestOpenCopiesText(t *testing.T) {
	s := newService(t, nil)
	text := []byte("play")
	doc, err := s.Open(t.Context(), "a.validatetest", text)
	require.NoError(t, err)
	text[0] = 'x'
	assert.Equal(t, "play", string(doc.Text()))
}

func TestOpenUnknownExtension(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Open(t.Context(), "notes.txt", []byte("play"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	assert.Empty(t, s.Paths())

	_, err = s.OpenAs(t.Context(), "notes.txt", "cobol", []byte("play"))
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestUpdateReparsesIncrementally(t *testing.T) {
	s := newService(t, nil)
	path := "seek.validatetest"
	_, err := s.Open(t.Context(), path, []byte("play\nseek, start=1.0\nstop\n"))
	require.NoError(t, err)

	next := []byte("play\nseek, start=2.5, flags=accurate\nstop\n")
	doc, err := s.Update(t.Context(), path, next)
	require.NoError(t, err)

	assert.Equal(t, 2, doc.Version)
	assert.True(t, doc.Incremental)
	assert.Positive(t, doc.Stats.Reused)
	assert.NotEmpty(t, doc.Changed)
	assert.Equal(t, string(next), string(doc.Text()))

	full, _ := parser.Parse(grammar.ValidateTest(), next)
	assert.True(t, tree.Equal(full, doc.Tree), "incremental tree differs from a full parse")

	same, err := s.Update(t.Context(), path, next)
	require.NoError(t, err)
	assert.Same(t, doc, same, "unchanged text keeps the document")
}

func TestUpdateOpensUnknownPath(t *testing.T) {
	s := newService(t, nil)
	doc, err := s.Update(t.Context(), "new.scenario", []byte("play"))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
}

func TestUpdateSitterDocument(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Open(t.Context(), "a.py", []byte("x = 1\n"))
	require.NoError(t, err)
	doc, err := s.Update(t.Context(), "a.py", []byte("x = 2\n"))
	require.NoError(t, err)
	assert.Equal(t, "python", doc.Language)
	assert.False(t, doc.Incremental)
	assert.Equal(t, 2, doc.Version)
}

func TestApply(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Apply(t.Context(), "missing.validatetest", tree.Replace(0, 0, []byte("x")))
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	_, err = s.Open(t.Context(), "a.validatetest", []byte("play"))
	require.NoError(t, err)
	_, err = s.Apply(t.Context(), "a.validatetest", tree.Replace(2, 10, nil))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
	assert.ErrorIs(t, err, tree.ErrInvalidEdit)

	doc, err := s.Apply(t.Context(), "a.validatetest", tree.Replace(4, 4, []byte(", a=1")))
	require.NoError(t, err)
	assert.Equal(t, "play, a=1", string(doc.Text()))
}

func TestDiagnostics(t *testing.T) {
	s := newService(t, nil)
	doc, err := s.Open(t.Context(), "a.validatetest", []byte("foo, a=\"oops\nbar"))
	require.NoError(t, err)
	require.Len(t, doc.Diagnostics, 1)
	assert.Equal(t, 7, doc.Diagnostics[0].Start)
}

func TestClose(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Open(t.Context(), "a.validatetest", []byte("play"))
	require.NoError(t, err)
	assert.True(t, s.Close("a.validatetest"))
	assert.False(t, s.Close("a.validatetest"))
	_, ok := s.Document("a.validatetest")
	assert.False(t, ok)
}

func TestRecheck(t *testing.T) {
	s := newService(t, nil)
	path := filepath.Join(t.TempDir(), "a.validatetest")
	require.NoError(t, os.WriteFile(path, []byte("play"), 0o644))

	doc, err := s.Recheck(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)

	require.NoError(t, os.WriteFile(path, []byte("play\nstop"), 0o644))
	doc, err = s.Recheck(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)

	require.NoError(t, os.Remove(path))
	_, err = s.Recheck(t.Context(), path)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	_, ok := s.Document(path)
	assert.False(t, ok, "removed files are closed")
}

func TestHighlight(t *testing.T) {
	s := newService(t, nil)
	src := `test.scenario { pipeline: "videotestsrc ! fakesink" }`
	_, err := s.Open(t.Context(), "a.validatetest", []byte(src))
	require.NoError(t, err)

	spans, err := s.Highlight(t.Context(), "a.validatetest")
	require.NoError(t, err)
	langs := map[string]bool{}
	for _, sp := range spans {
		langs[sp.Language] = true
	}
	assert.True(t, langs["validatetest"])
	assert.True(t, langs["gst-pipeline"])
}

func TestHighlightCycleIsClassified(t *testing.T) {
	s := newService(t, map[string]language.Override{
		"gst-pipeline": {Injections: `((element) @injection.content (#set! injection.language "validatetest"))`},
	})
	_, err := s.Open(t.Context(), "a.validatetest", []byte(`s { pipeline: "fakesink" }`))
	require.NoError(t, err)

	_, err = s.Highlight(t.Context(), "a.validatetest")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInjectionCycle))
	var cycle *highlight.InjectionCycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"validatetest", "gst-pipeline", "validatetest"}, cycle.Chain)
}

func TestQuery(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Open(t.Context(), "a.validatetest", []byte(`test.scenario { pipeline: "videotestsrc ! fakesink" }`))
	require.NoError(t, err)

	captures, err := s.Query(t.Context(), "a.validatetest", "(field name: (identifier) @property)")
	require.NoError(t, err)
	require.Len(t, captures, 1)
	assert.Equal(t, "property", captures[0].Name)

	_, err = s.Query(t.Context(), "a.validatetest", "(field name: (bogus_kind) @x)")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeQueryCompile))
	var compileErr *query.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, 1, compileErr.Line)

	var de *errors.DomainError
	require.True(t, stderrors.As(err, &de))
	assert.Equal(t, "query", de.Context[errors.CtxOperation])
	assert.Equal(t, "a.validatetest", de.Context[errors.CtxPath])
}

func TestFormat(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Open(t.Context(), "a.validatetest", []byte("action,foo=bar,baz=123"))
	require.NoError(t, err)
	out, err := s.Format(t.Context(), "a.validatetest")
	require.NoError(t, err)
	assert.Equal(t, "action, foo=bar, baz=123\n", out)

	s.SetFormatOptions(format.Options{AlwaysMultiline: []string{"action"}})
	out, err = s.Format(t.Context(), "a.validatetest")
	require.NoError(t, err)
	assert.Equal(t, "action,\n    foo=bar,\n    baz=123\n", out)
}

func TestFormatErrors(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Open(t.Context(), "broken.validatetest", []byte("play, a="))
	require.NoError(t, err)
	_, err = s.Format(t.Context(), "broken.validatetest")
	assert.True(t, errors.IsCode(err, errors.CodeSyntax))
	assert.ErrorIs(t, err, format.ErrSyntax)

	_, err = s.Open(t.Context(), "comment.validatetest", []byte("foo, a= # c\n 1"))
	require.NoError(t, err)
	_, err = s.Format(t.Context(), "comment.validatetest")
	assert.True(t, errors.IsCode(err, errors.CodeNotSupported))
	assert.ErrorIs(t, err, format.ErrCommentPosition)

	_, err = s.Open(t.Context(), "a.py", []byte("x = 1\n"))
	require.NoError(t, err)
	_, err = s.Format(t.Context(), "a.py")
	assert.True(t, errors.IsCode(err, errors.CodeNotSupported))

	_, err = s.Format(t.Context(), "closed.validatetest")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestExport(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Open(t.Context(), "a.validatetest", []byte("play # go"))
	require.NoError(t, err)

	out, err := s.Export(t.Context(), "a.validatetest", ports.ExportSExpr)
	require.NoError(t, err)
	assert.Equal(t, "(source_file (structure name: (structure_name)) (comment))\n", string(out))

	out, err = s.Export(t.Context(), "a.validatetest", ports.ExportJSON)
	require.NoError(t, err)
	var fromJSON tree.ExportNode
	require.NoError(t, json.Unmarshal(out, &fromJSON))
	assert.Equal(t, "source_file", fromJSON.Kind)
	require.NotEmpty(t, fromJSON.Children)
	assert.Equal(t, "structure", fromJSON.Children[0].Kind)

	out, err = s.Export(t.Context(), "a.validatetest", ports.ExportYAML)
	require.NoError(t, err)
	var fromYAML tree.ExportNode
	require.NoError(t, yaml.Unmarshal(out, &fromYAML))
	assert.Equal(t, fromJSON, fromYAML)

	_, err = s.Export(t.Context(), "a.validatetest", ports.ExportFormat("xml"))
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestParseExportFormat(t *testing.T) {
	for in, want := range map[string]ports.ExportFormat{
		"":      ports.ExportSExpr,
		"sexp":  ports.ExportSExpr,
		" JSON": ports.ExportJSON,
		"yaml":  ports.ExportYAML,
	} {
		got, err := ports.ParseExportFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ports.ParseExportFormat("toml")
	assert.Error(t, err)
}

func TestConcurrentUpdates(t *testing.T) {
	s := newService(t, nil)
	path := "a.validatetest"
	_, err := s.Open(t.Context(), path, []byte("play"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text := []byte("play, n=" + string(rune('0'+i)))
			_, err := s.Update(t.Context(), path, text)
			assert.NoError(t, err)
			_, err = s.Highlight(t.Context(), path)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, ok := s.Document(path)
	require.True(t, ok)
	assert.Equal(t, 9, doc.Version)
	full, _ := parser.Parse(grammar.ValidateTest(), doc.Text())
	assert.True(t, tree.Equal(full, doc.Tree))
}
