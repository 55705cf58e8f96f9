// Package highlight runs highlight queries over a document and over every
// region its injection queries hand to another language.
package highlight

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"validatetest/internal/engine/language"
	"validatetest/internal/engine/query"
	"validatetest/internal/engine/tree"
)

// DefaultMaxDepth bounds how many injections may nest inside one another.
const DefaultMaxDepth = 8

var ErrUnknownLanguage = errors.New("unknown language")

// Span is a highlighted byte range of the outermost document. Depth is 0 for
// the document's own language and grows by one per injection.
type Span struct {
	Start    int
	End      int
	Capture  string
	Language string
	Depth    int
}

// InjectionCycleError reports an injection into a language that is already
// being highlighted further up the chain.
type InjectionCycleError struct {
	Chain []string
}

func (e *InjectionCycleError) Error() string {
	return "injection cycle: " + strings.Join(e.Chain, " -> ")
}

type Highlighter struct {
	registry *language.Registry
	maxDepth int
	logger   *slog.Logger
}

type Option func(*Highlighter)

func WithMaxDepth(n int) Option {
	return func(h *Highlighter) {
		if n > 0 {
			h.maxDepth = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Highlighter) {
		if l != nil {
			h.logger = l
		}
	}
}

func New(r *language.Registry, opts ...Option) *Highlighter {
	h := &Highlighter{registry: r, maxDepth: DefaultMaxDepth, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Highlight parses text as langName and returns its spans, including the
// spans of injected regions, ordered by start, outer spans first.
func (h *Highlighter) Highlight(langName string, text []byte) ([]Span, error) {
	l, ok := h.registry.Lookup(langName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, langName)
	}
	t, err := l.Parse(text)
	if err != nil {
		return nil, err
	}
	return h.HighlightTree(l, t)
}

// HighlightTree highlights an already parsed document of language l.
func (h *Highlighter) HighlightTree(l *language.Language, t *tree.Tree) ([]Span, error) {
	var spans []Span
	if err := h.run(l, t, 0, []string{l.Name}, &spans); err != nil {
		return nil, err
	}
	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End > b.End
		}
		return a.Depth < b.Depth
	})
	return spans, nil
}

func (h *Highlighter) run(l *language.Language, t *tree.Tree, base int, stack []string, out *[]Span) error {
	hl, err := h.registry.HighlightsQuery(l)
	if err != nil {
		return err
	}
	if hl != nil {
		caps, err := hl.Captures(t)
		if err != nil {
			return err
		}
		for _, c := range caps {
			if c.Start == c.End || strings.HasPrefix(c.Name, "_") {
				continue
			}
			*out = append(*out, Span{
				Start:    base + c.Start,
				End:      base + c.End,
				Capture:  c.Name,
				Language: l.Name,
				Depth:    len(stack) - 1,
			})
		}
	}

	inj, err := h.registry.InjectionsQuery(l)
	if err != nil || inj == nil {
		return err
	}
	caps, err := inj.Captures(t)
	if err != nil {
		return err
	}
	for _, c := range caps {
		if !c.IsInjection() || c.Start == c.End {
			continue
		}
		if err := h.inject(c, t, base, stack, out); err != nil {
			return err
		}
	}
	return nil
}

func (h *Highlighter) inject(c query.Capture, t *tree.Tree, base int, stack []string, out *[]Span) error {
	for _, name := range stack {
		if name == c.Language {
			return &InjectionCycleError{Chain: append(append([]string(nil), stack...), c.Language)}
		}
	}
	target, ok := h.registry.Lookup(c.Language)
	if !ok {
		h.logger.Debug("skipping injection", "language", c.Language, "start", base+c.Start, "end", base+c.End)
		return nil
	}
	if len(stack) >= h.maxDepth {
		h.logger.Debug("injection too deep", "language", c.Language, "depth", len(stack))
		return nil
	}
	sub, err := target.Parse(t.Source()[c.Start:c.End])
	if err != nil {
		h.logger.Debug("failed to parse injection", "language", c.Language, "error", err)
		return nil
	}
	return h.run(target, sub, base+c.Start, append(stack, c.Language), out)
}
