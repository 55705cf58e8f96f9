// Package language registers the grammars the tooling knows about and the
// highlight and injection queries that go with them.
package language

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"

	"validatetest/internal/engine/grammar"
	"validatetest/internal/engine/parser"
	"validatetest/internal/engine/query"
	"validatetest/internal/engine/tree"
	"validatetest/internal/shared/observability"
)

// ParseFunc parses a complete source text.
type ParseFunc func(src []byte) (*tree.Tree, error)

// Language is one registered grammar with its parse entry point and query sources.
type Language struct {
	Name       string
	Extensions []string
	Kinds      query.KindSet
	Parse      ParseFunc
	Highlights string
	Injections string
	// Native is set for grammars built on the incremental parser.
	Native *grammar.Grammar
}

// Override adjusts a registered language. Query fields hold query source text.
type Override struct {
	Enabled    *bool
	Extensions []string
	Highlights string
	Injections string
}

// Registry maps language names and file extensions to languages and compiles
// their queries through a shared cache.
type Registry struct {
	mu    sync.RWMutex
	langs map[string]*Language
	exts  map[string]string
	cache *query.Cache
}

func NewRegistry(cache *query.Cache) *Registry {
	if cache == nil {
		cache = query.NewCache(query.DefaultExpiration, query.DefaultCleanupInterval)
	}
	return &Registry{
		langs: make(map[string]*Language),
		exts:  make(map[string]string),
		cache: cache,
	}
}

// Native wraps a grammar of the incremental parser as a Language.
func Native(g *grammar.Grammar, exts ...string) *Language {
	p := parser.New(g)
	return &Language{
		Name:       g.Name(),
		Extensions: normalizeExtensions(exts),
		Kinds:      g,
		Native:     g,
		Parse: func(src []byte) (*tree.Tree, error) {
			t, _ := p.Parse(src)
			return t, nil
		},
	}
}

// Register adds l, replacing any language of the same name. Two languages
// may not claim the same extension.
func (r *Registry) Register(l *Language) error {
	if l == nil || l.Name == "" || l.Parse == nil {
		return fmt.Errorf("language needs a name and a parse function")
	}
	exts := normalizeExtensions(l.Extensions)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		if owner, ok := r.exts[ext]; ok && owner != l.Name {
			return fmt.Errorf("duplicate extension %q owned by %q and %q", ext, owner, l.Name)
		}
	}
	if prev, ok := r.langs[l.Name]; ok {
		for _, ext := range prev.Extensions {
			delete(r.exts, ext)
		}
	}
	l.Extensions = exts
	for _, ext := range exts {
		r.exts[ext] = l.Name
	}
	r.langs[l.Name] = l
	return nil
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.langs[name]; ok {
		for _, ext := range l.Extensions {
			delete(r.exts, ext)
		}
		delete(r.langs, name)
	}
}

func (r *Registry) Lookup(name string) (*Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.langs[name]
	return l, ok
}

// ForPath picks the language owning the extension of p.
func (r *Registry) ForPath(p string) (*Language, bool) {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(p, "\\", "/")))
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.exts[ext]
	if !ok {
		return nil, false
	}
	return r.langs[name], true
}

// Names returns the registered language names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.langs))
	for name := range r.langs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extensions returns every claimed extension in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.exts))
	for ext := range r.exts {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// HighlightsQuery compiles the highlights of l. A language without
// highlights returns a nil query.
func (r *Registry) HighlightsQuery(l *Language) (*query.Query, error) {
	return r.compile(l, l.Highlights, "highlights")
}

// InjectionsQuery compiles the injections of l. A language without
// injections returns a nil query.
func (r *Registry) InjectionsQuery(l *Language) (*query.Query, error) {
	return r.compile(l, l.Injections, "injections")
}

// Compile compiles a query for l through the registry cache.
func (r *Registry) Compile(l *Language, source string) (*query.Query, error) {
	return r.cached(l, source)
}

func (r *Registry) cached(l *Language, source string) (*query.Query, error) {
	q, hit, err := r.cache.Compile(l.Kinds, source)
	switch {
	case err != nil:
		observability.QueryCacheLookups.WithLabelValues("error").Inc()
	case hit:
		observability.QueryCacheLookups.WithLabelValues("hit").Inc()
	default:
		observability.QueryCacheLookups.WithLabelValues("miss").Inc()
	}
	return q, err
}

func (r *Registry) compile(l *Language, source, role string) (*query.Query, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}
	q, err := r.cached(l, source)
	if err != nil {
		return nil, fmt.Errorf("%s query for %s: %w", role, l.Name, err)
	}
	return q, nil
}

// Apply applies overrides keyed by language name. Disabled languages are removed.
func (r *Registry) Apply(overrides map[string]Override) error {
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		o := overrides[name]
		l, ok := r.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown language override %q", name)
		}
		if o.Enabled != nil && !*o.Enabled {
			r.Remove(name)
			continue
		}
		next := *l
		if len(o.Extensions) > 0 {
			next.Extensions = o.Extensions
		}
		if o.Highlights != "" {
			next.Highlights = o.Highlights
		}
		if o.Injections != "" {
			next.Injections = o.Injections
		}
		if err := r.Register(&next); err != nil {
			return err
		}
	}
	return nil
}

// Default registers the native ValidateTest and pipeline grammars and the
// tree-sitter grammars, with their embedded queries, then applies overrides.
func Default(cache *query.Cache, overrides map[string]Override) (*Registry, error) {
	r := NewRegistry(cache)
	vt := Native(grammar.ValidateTest(), ".validatetest", ".scenario")
	pl := Native(grammar.Pipeline())
	langs := []*Language{vt, pl}
	for _, name := range SitterLanguages() {
		l, err := Sitter(name)
		if err != nil {
			return nil, err
		}
		langs = append(langs, l)
	}
	for _, l := range langs {
		l.Highlights, l.Injections = embeddedQuery(l.Name, "highlights"), embeddedQuery(l.Name, "injections")
		if err := r.Register(l); err != nil {
			return nil, err
		}
	}
	if err := r.Apply(overrides); err != nil {
		return nil, err
	}
	return r, nil
}

func normalizeExtensions(values []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(values))
	for _, value := range values {
		raw := strings.TrimSpace(strings.ToLower(value))
		if raw == "" {
			continue
		}
		if !strings.HasPrefix(raw, ".") {
			raw = "." + raw
		}
		if seen[raw] {
			continue
		}
		seen[raw] = true
		out = append(out, raw)
	}
	sort.Strings(out)
	return out
}
