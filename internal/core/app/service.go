package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"validatetest/internal/core/errors"
	"validatetest/internal/core/ports"
	"validatetest/internal/engine/format"
	"validatetest/internal/engine/grammar"
	"validatetest/internal/engine/highlight"
	"validatetest/internal/engine/language"
	"validatetest/internal/engine/parser"
	"validatetest/internal/engine/query"
	"validatetest/internal/engine/tree"
	"validatetest/internal/shared/observability"
)

// Options configure a Service. A nil Registry selects language.Default.
type Options struct {
	Registry *language.Registry
	Format   format.Options
	Logger   *slog.Logger
}

// Service holds the latest tree of every open document. It is safe for
// concurrent use; updates of one document are serialised.
type Service struct {
	registry    *language.Registry
	highlighter *highlight.Highlighter
	logger      *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	fmtOpts format.Options
}

type entry struct {
	mu  sync.Mutex
	doc *ports.Document
}

var (
	_ ports.DocumentService = (*Service)(nil)
	_ ports.Rechecker       = (*Service)(nil)
)

func NewService(opts Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		r, err := language.Default(nil, nil)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to build language registry")
		}
		opts.Registry = r
	}
	return &Service{
		registry:    opts.Registry,
		highlighter: highlight.New(opts.Registry, highlight.WithLogger(opts.Logger)),
		logger:      opts.Logger,
		entries:     make(map[string]*entry),
		fmtOpts:     opts.Format,
	}, nil
}

func (s *Service) Registry() *language.Registry { return s.registry }

// SetFormatOptions replaces the options used by Format.
func (s *Service) SetFormatOptions(opts format.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fmtOpts = opts
}

func (s *Service) formatOptions() format.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fmtOpts
}

// Open parses text as the language owning path's extension and stores it,
// replacing any open document of the same path.
func (s *Service) Open(ctx context.Context, path string, text []byte) (*ports.Document, error) {
	l, ok := s.registry.ForPath(path)
	if !ok {
		err := errors.New(errors.CodeNotFound, "no language registered for file")
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return s.OpenAs(ctx, path, l.Name, text)
}

// OpenAs is Open with an explicit language.
func (s *Service) OpenAs(ctx context.Context, path, lang string, text []byte) (*ports.Document, error) {
	ctx, span := observability.Tracer.Start(ctx, "Service.Open", trace.WithAttributes(
		attribute.String("path", path),
		attribute.String("language", lang),
	))
	defer span.End()

	l, ok := s.registry.Lookup(lang)
	if !ok {
		return nil, s.fail(span, errors.AddContext(
			errors.New(errors.CodeNotFound, "unknown language"), errors.CtxLanguage, lang))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := s.entry(path)
	e.mu.Lock()
	defer e.mu.Unlock()

	version := 1
	if e.doc != nil {
		version = e.doc.Version + 1
	}
	doc, err := s.parse(ctx, path, l, bytes.Clone(text))
	if err != nil {
		if e.doc == nil {
			s.Close(path)
		}
		return nil, s.fail(span, err)
	}
	doc.Version = version
	e.doc = doc
	s.logger.Debug("document opened", "path", path, "language", l.Name, "diagnostics", len(doc.Diagnostics))
	return doc, nil
}

// Update replaces the text of path. Documents of native grammars are
// reparsed incrementally from the edit between the old and new text. A path
// that is not open is opened.
func (s *Service) Update(ctx context.Context, path string, text []byte) (*ports.Document, error) {
	if _, ok := s.Document(path); !ok {
		return s.Open(ctx, path, text)
	}
	return s.change(ctx, "Service.Update", path, func(prev *ports.Document) tree.Edit {
		return editBetween(prev.Text(), text)
	})
}

// Apply applies edit to the open document at path.
func (s *Service) Apply(ctx context.Context, path string, edit tree.Edit) (*ports.Document, error) {
	return s.change(ctx, "Service.Apply", path, func(*ports.Document) tree.Edit { return edit })
}

// change derives an edit from the current document and applies it while
// holding the document lock.
func (s *Service) change(ctx context.Context, op, path string, derive func(*ports.Document) tree.Edit) (*ports.Document, error) {
	ctx, span := observability.Tracer.Start(ctx, op, trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	s.mu.RLock()
	e, ok := s.entries[path]
	s.mu.RUnlock()
	if !ok {
		return nil, s.fail(span, notOpen(path))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return nil, s.fail(span, notOpen(path))
	}
	prev := e.doc
	edit := derive(prev)
	span.SetAttributes(attribute.String("edit", edit.String()))
	if err := edit.Validate(len(prev.Text())); err != nil {
		return nil, s.fail(span, errors.AddContext(
			errors.Wrap(err, errors.CodeValidationError, "invalid edit"), errors.CtxPath, path))
	}
	if edit.IsNoop() {
		return prev, nil
	}

	l, ok := s.registry.Lookup(prev.Language)
	if !ok {
		return nil, s.fail(span, errors.AddContext(
			errors.New(errors.CodeNotFound, "language is no longer registered"), errors.CtxLanguage, prev.Language))
	}

	var doc *ports.Document
	var err error
	if l.Native != nil && prev.Tree.Language() == l.Native.Name() {
		doc, err = s.reparse(path, l, prev, edit)
	} else {
		var text []byte
		if text, err = edit.Apply(prev.Text()); err == nil {
			doc, err = s.parse(ctx, path, l, text)
		}
	}
	if err != nil {
		return nil, s.fail(span, err)
	}
	doc.Version = prev.Version + 1
	doc.Changed = tree.ChangedRanges(prev.Tree, doc.Tree)
	e.doc = doc
	span.SetAttributes(attribute.Int("reused", doc.Stats.Reused))
	return doc, nil
}

// Recheck reads path from disk and updates its document.
func (s *Service) Recheck(ctx context.Context, path string) (*ports.Document, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.Close(path)
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "failed to read file"), errors.CtxPath, path)
	}
	return s.Update(ctx, path, text)
}

// Close drops path. It reports whether the document was open.
func (s *Service) Close(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[path]; !ok {
		return false
	}
	delete(s.entries, path)
	observability.OpenDocuments.Set(float64(len(s.entries)))
	return true
}

func (s *Service) Document(path string) (*ports.Document, bool) {
	s.mu.RLock()
	e, ok := s.entries[path]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc, e.doc != nil
}

// Paths returns the open document paths in sorted order.
func (s *Service) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.entries))
}

// Highlight returns the highlight spans of path, injected regions included.
func (s *Service) Highlight(ctx context.Context, path string) ([]highlight.Span, error) {
	_, span := observability.Tracer.Start(ctx, "Service.Highlight", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	doc, l, err := s.lookup(path)
	if err != nil {
		return nil, s.fail(span, err)
	}
	start := time.Now()
	spans, err := s.highlighter.HighlightTree(l, doc.Tree)
	observability.HighlightDuration.WithLabelValues(l.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.fail(span, classify(err, "highlight", path))
	}
	span.SetAttributes(attribute.Int("spans", len(spans)))
	return spans, nil
}

// Query compiles source for the language of path and returns its captures.
func (s *Service) Query(ctx context.Context, path, source string) ([]query.Capture, error) {
	_, span := observability.Tracer.Start(ctx, "Service.Query", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	doc, l, err := s.lookup(path)
	if err != nil {
		return nil, s.fail(span, err)
	}
	q, err := s.registry.Compile(l, source)
	if err != nil {
		return nil, s.fail(span, errors.AddContext(classify(err, "query", path), errors.CtxLanguage, l.Name))
	}
	start := time.Now()
	captures, err := q.Captures(doc.Tree)
	observability.QueryDuration.WithLabelValues(l.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.fail(span, classify(err, "query", path))
	}
	span.SetAttributes(attribute.Int("captures", len(captures)))
	return captures, nil
}

// Format formats a ValidateTest document.
func (s *Service) Format(ctx context.Context, path string) (string, error) {
	_, span := observability.Tracer.Start(ctx, "Service.Format", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	doc, _, err := s.lookup(path)
	if err != nil {
		return "", s.fail(span, err)
	}
	if doc.Language != grammar.ValidateTestName {
		err := errors.New(errors.CodeNotSupported, "only validatetest documents can be formatted")
		return "", s.fail(span, errors.AddContext(err, errors.CtxLanguage, doc.Language))
	}
	if len(doc.Diagnostics) > 0 {
		d := doc.Diagnostics[0]
		err := fmt.Errorf("%w: parse error at line %d, column %d: %s", format.ErrSyntax, d.Pos.Line, d.Pos.Col, d.Message)
		return "", s.fail(span, classify(err, "format", path))
	}
	start := time.Now()
	out, err := format.FormatTree(doc.Tree, s.formatOptions())
	observability.FormatDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", s.fail(span, classify(err, "format", path))
	}
	return out, nil
}

// Export serialises the tree of path.
func (s *Service) Export(ctx context.Context, path string, f ports.ExportFormat) ([]byte, error) {
	_, span := observability.Tracer.Start(ctx, "Service.Export", trace.WithAttributes(
		attribute.String("path", path),
		attribute.String("format", string(f)),
	))
	defer span.End()

	doc, _, err := s.lookup(path)
	if err != nil {
		return nil, s.fail(span, err)
	}
	out, err := Export(doc.Tree, f)
	if err != nil {
		return nil, s.fail(span, errors.AddContext(
			errors.Wrap(err, errors.CodeValidationError, "export failed"), errors.CtxPath, path))
	}
	return out, nil
}

func (s *Service) entry(path string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok {
		e = &entry{}
		s.entries[path] = e
		observability.OpenDocuments.Set(float64(len(s.entries)))
	}
	return e
}

func (s *Service) lookup(path string) (*ports.Document, *language.Language, error) {
	doc, ok := s.Document(path)
	if !ok {
		return nil, nil, notOpen(path)
	}
	l, ok := s.registry.Lookup(doc.Language)
	if !ok {
		return nil, nil, errors.AddContext(
			errors.New(errors.CodeNotFound, "language is no longer registered"), errors.CtxLanguage, doc.Language)
	}
	return doc, l, nil
}

func (s *Service) parse(ctx context.Context, path string, l *language.Language, text []byte) (*ports.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	var t *tree.Tree
	var stats parser.Stats
	if l.Native != nil {
		t, stats = parser.New(l.Native).ParseWithStats(text)
	} else {
		var err error
		if t, err = l.Parse(text); err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "parse failed"), errors.CtxPath, path)
		}
	}
	observability.ParseDuration.WithLabelValues(l.Name, "full").Observe(time.Since(start).Seconds())
	return s.document(path, l, t, stats, false), nil
}

func (s *Service) reparse(path string, l *language.Language, prev *ports.Document, edit tree.Edit) (*ports.Document, error) {
	start := time.Now()
	t, stats, err := parser.New(l.Native).ReparseWithStats(prev.Tree, edit)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "reparse failed"), errors.CtxPath, path)
	}
	observability.ParseDuration.WithLabelValues(l.Name, "incremental").Observe(time.Since(start).Seconds())
	observability.ReusedNodes.Add(float64(stats.Reused))
	return s.document(path, l, t, stats, stats.Reused > 0), nil
}

func (s *Service) document(path string, l *language.Language, t *tree.Tree, stats parser.Stats, incremental bool) *ports.Document {
	diags := parser.Diagnostics(t)
	if len(diags) > 0 {
		observability.ParseErrorNodes.WithLabelValues(l.Name).Add(float64(len(diags)))
	}
	return &ports.Document{
		Path:        path,
		Language:    l.Name,
		Tree:        t,
		Diagnostics: slices.Clip(diags),
		Incremental: incremental,
		Stats:       stats,
	}
}

// fail records err on span and returns it.
func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func notOpen(path string) error {
	return errors.AddContext(errors.New(errors.CodeNotFound, "document is not open"), errors.CtxPath, path)
}
