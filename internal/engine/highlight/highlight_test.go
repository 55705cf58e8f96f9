package highlight

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"validatetest/internal/engine/language"
)

func newHighlighter(t *testing.T, overrides map[string]language.Override, opts ...Option) *Highlighter {
	t.Helper()
	r, err := language.Default(nil, overrides)
	require.NoError(t, err)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(r, opts...)
}

type span struct {
	capture string
	text    string
	lang    string
}

func collect(src string, spans []Span) []span {
	out := make([]span, 0, len(spans))
	for _, s := range spans {
		out = append(out, span{s.Capture, src[s.Start:s.End], s.Language})
	}
	return out
}

func TestHighlightValidateTest(t *testing.T) {
	h := newHighlighter(t, nil)
	src := "play, a=1 # go\n"
	spans, err := h.Highlight("validatetest", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, []span{
		{"function", "play", "validatetest"},
		{"punctuation.delimiter", ",", "validatetest"},
		{"property", "a", "validatetest"},
		{"operator", "=", "validatetest"},
		{"number", "1", "validatetest"},
		{"comment", "# go", "validatetest"},
	}, collect(src, spans))
}

func TestHighlightPipelineInjection(t *testing.T) {
	h := newHighlighter(t, nil)
	src := `test.scenario { pipeline: "videotestsrc num-buffers=3 ! fakesink" }`
	spans, err := h.Highlight("validatetest", []byte(src))
	require.NoError(t, err)

	var injected []span
	for _, s := range spans {
		if s.Language == "gst-pipeline" {
			assert.Equal(t, 1, s.Depth)
			injected = append(injected, span{s.Capture, src[s.Start:s.End], s.Language})
		}
	}
	assert.Equal(t, []span{
		{"function", "videotestsrc", "gst-pipeline"},
		{"property", "num-buffers", "gst-pipeline"},
		{"operator", "=", "gst-pipeline"},
		{"number", "3", "gst-pipeline"},
		{"operator", "!", "gst-pipeline"},
		{"function", "fakesink", "gst-pipeline"},
	}, injected)

	// The string itself is still highlighted by the outer language, before its contents.
	outer := collect(src, spans)
	assert.Contains(t, outer, span{"string", `"videotestsrc num-buffers=3 ! fakesink"`, "validatetest"})
	for i := 1; i < len(spans); i++ {
		assert.LessOrEqual(t, spans[i-1].Start, spans[i].Start)
	}
}

func TestHighlightSitterInjection(t *testing.T) {
	h := newHighlighter(t, nil)
	src := `run, python="print(1)"`
	spans, err := h.Highlight("validatetest", []byte(src))
	require.NoError(t, err)
	assert.Contains(t, collect(src, spans), span{"function.call", "print", "python"})
	assert.Contains(t, collect(src, spans), span{"number", "1", "python"})
}

func TestHighlightHTMLScript(t *testing.T) {
	h := newHighlighter(t, nil)
	src := "<p>x</p><script>go(1)</script><style>p { color: red }</style>"
	spans, err := h.Highlight("html", []byte(src))
	require.NoError(t, err)
	got := collect(src, spans)
	assert.Contains(t, got, span{"type", "script", "html"})
	assert.Contains(t, got, span{"function.call", "go", "javascript"})
	assert.Contains(t, got, span{"property", "color", "css"})
}

func TestUnknownInjectionIsSkipped(t *testing.T) {
	h := newHighlighter(t, nil)
	src := "foo, a=`ls -l`"
	spans, err := h.Highlight("validatetest", []byte(src))
	require.NoError(t, err)
	for _, s := range spans {
		assert.Equal(t, "validatetest", s.Language)
	}
	assert.Contains(t, collect(src, spans), span{"string.special", "`ls -l`", "validatetest"})
}

func TestInjectionCycle(t *testing.T) {
	h := newHighlighter(t, map[string]language.Override{
		"gst-pipeline": {Injections: `((element) @injection.content (#set! injection.language "validatetest"))`},
	})
	_, err := h.Highlight("validatetest", []byte(`s { pipeline: "fakesink" }`))
	var cycle *InjectionCycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"validatetest", "gst-pipeline", "validatetest"}, cycle.Chain)
	assert.Equal(t, "injection cycle: validatetest -> gst-pipeline -> validatetest", err.Error())

	h = newHighlighter(t, map[string]language.Override{
		"validatetest": {Injections: `((structure) @injection.content (#set! injection.language "validatetest"))`},
	})
	_, err = h.Highlight("validatetest", []byte("play"))
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"validatetest", "validatetest"}, cycle.Chain)
}

func TestInjectionDepthBound(t *testing.T) {
	h := newHighlighter(t, nil, WithMaxDepth(1))
	spans, err := h.Highlight("validatetest", []byte(`s { pipeline: "fakesink" }`))
	require.NoError(t, err)
	for _, s := range spans {
		assert.Zero(t, s.Depth)
	}
}

func TestUnknownLanguage(t *testing.T) {
	h := newHighlighter(t, nil)
	_, err := h.Highlight("cobol", []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestRender(t *testing.T) {
	h := newHighlighter(t, nil)
	src := "# top\nplay, a=\"x\",\tb=1\n"
	spans, err := h.Highlight("validatetest", []byte(src))
	require.NoError(t, err)

	theme := DefaultTheme(lipgloss.NewRenderer(io.Discard))
	assert.Equal(t, src, Render([]byte(src), spans, theme))

	_, ok := theme.lookup("function.call")
	assert.True(t, ok)
	_, ok = theme.lookup("unknown.capture")
	assert.False(t, ok)
	assert.True(t, strings.HasPrefix(Render([]byte("ab"), []Span{{Start: 0, End: 5, Capture: "string"}}, theme), "ab"))
}
