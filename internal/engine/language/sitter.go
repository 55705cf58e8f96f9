package language

import (
	"fmt"
	"sort"
	"sync"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_css "github.com/tree-sitter/tree-sitter-css/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_html "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"validatetest/internal/engine/tree"
)

type sitterSpec struct {
	version    string
	extensions []string
	load       func() *sitter.Language
}

var sitterSpecs = map[string]sitterSpec{
	"css": {
		version:    "tree-sitter-css@v0.25.0",
		extensions: []string{".css"},
		load:       func() *sitter.Language { return sitter.NewLanguage(tree_sitter_css.Language()) },
	},
	"go": {
		version:    "tree-sitter-go@v0.25.0",
		extensions: []string{".go"},
		load:       func() *sitter.Language { return sitter.NewLanguage(tree_sitter_go.Language()) },
	},
	"html": {
		version:    "tree-sitter-html@v0.23.2",
		extensions: []string{".html", ".htm"},
		load:       func() *sitter.Language { return sitter.NewLanguage(tree_sitter_html.Language()) },
	},
	"java": {
		version:    "tree-sitter-java@v0.23.5",
		extensions: []string{".java"},
		load:       func() *sitter.Language { return sitter.NewLanguage(tree_sitter_java.Language()) },
	},
	"javascript": {
		version:    "tree-sitter-javascript@v0.25.0",
		extensions: []string{".js", ".cjs", ".mjs"},
		load:       func() *sitter.Language { return sitter.NewLanguage(tree_sitter_javascript.Language()) },
	},
	"python": {
		version:    "tree-sitter-python@v0.25.0",
		extensions: []string{".py"},
		load:       func() *sitter.Language { return sitter.NewLanguage(tree_sitter_python.Language()) },
	},
	"rust": {
		version:    "tree-sitter-rust@v0.24.0",
		extensions: []string{".rs"},
		load:       func() *sitter.Language { return sitter.NewLanguage(tree_sitter_rust.Language()) },
	},
	"typescript": {
		version:    "tree-sitter-typescript@v0.23.2",
		extensions: []string{".ts", ".mts", ".cts"},
		load:       func() *sitter.Language { return sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()) },
	},
}

// SitterLanguages lists the tree-sitter grammars compiled into the binary.
func SitterLanguages() []string {
	names := make([]string, 0, len(sitterSpecs))
	for name := range sitterSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sitter loads a tree-sitter grammar as a Language. Its trees carry no
// incremental reuse information and are rebuilt on every parse.
func Sitter(name string) (*Language, error) {
	spec, ok := sitterSpecs[name]
	if !ok {
		return nil, fmt.Errorf("language %q has no tree-sitter grammar", name)
	}
	lang := spec.load()
	if lang == nil {
		return nil, fmt.Errorf("failed to load tree-sitter grammar %q", name)
	}
	kinds := newSitterKinds(name, spec.version, lang)
	pool := NewParserPool(lang)
	return &Language{
		Name:       name,
		Extensions: spec.extensions,
		Kinds:      kinds,
		Parse: func(src []byte) (*tree.Tree, error) {
			return pool.Parse(src, kinds)
		},
	}, nil
}

// sitterKinds reports the visible node kinds and field names of a
// tree-sitter grammar.
type sitterKinds struct {
	name    string
	version string
	kinds   map[string]bool
	fields  map[string]bool
}

func newSitterKinds(name, version string, lang *sitter.Language) *sitterKinds {
	k := &sitterKinds{
		name:    name,
		version: version,
		kinds:   map[string]bool{"ERROR": true},
		fields:  make(map[string]bool),
	}
	for id := uint16(0); uint32(id) < lang.NodeKindCount(); id++ {
		if !lang.NodeKindIsVisible(id) {
			continue
		}
		kind := lang.NodeKindForId(id)
		if kind == "" {
			continue
		}
		k.kinds[kind] = k.kinds[kind] || lang.NodeKindIsNamed(id)
	}
	for id := uint16(1); uint32(id) <= lang.FieldCount(); id++ {
		if f := lang.FieldNameForId(id); f != "" {
			k.fields[f] = true
		}
	}
	return k
}

func (k *sitterKinds) Name() string    { return k.name }
func (k *sitterKinds) Version() string { return k.version }

func (k *sitterKinds) HasKind(kind string) (bool, bool) {
	named, ok := k.kinds[kind]
	return named, ok
}

func (k *sitterKinds) HasField(name string) bool { return k.fields[name] }

// ParserPool recycles tree-sitter parsers of one grammar.
// It is safe for concurrent use.
type ParserPool struct {
	lang *sitter.Language
	pool sync.Pool

	leases   map[*sitter.Parser]time.Time
	leasesMu sync.Mutex
}

func NewParserPool(lang *sitter.Language) *ParserPool {
	p := &ParserPool{
		lang:   lang,
		leases: make(map[*sitter.Parser]time.Time),
	}
	p.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			sp.SetLanguage(lang)
			return sp
		},
	}
	return p
}

// Get leases a parser configured for the pool's grammar.
func (p *ParserPool) Get() *sitter.Parser {
	sp := p.pool.Get().(*sitter.Parser)
	sp.SetLanguage(p.lang)

	p.leasesMu.Lock()
	p.leases[sp] = time.Now()
	p.leasesMu.Unlock()
	return sp
}

// Put resets sp and returns it to the pool.
func (p *ParserPool) Put(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	p.leasesMu.Lock()
	delete(p.leases, sp)
	p.leasesMu.Unlock()

	sp.Reset()
	p.pool.Put(sp)
}

// Leased returns the number of parsers currently handed out.
func (p *ParserPool) Leased() int {
	p.leasesMu.Lock()
	defer p.leasesMu.Unlock()
	return len(p.leases)
}

// Parse parses src and copies the result into a tree.Tree.
func (p *ParserPool) Parse(src []byte, kinds *sitterKinds) (*tree.Tree, error) {
	sp := p.Get()
	defer p.Put(sp)
	st := sp.Parse(src, nil)
	if st == nil {
		return nil, fmt.Errorf("tree-sitter failed to parse %s source", kinds.name)
	}
	defer st.Close()
	b := tree.NewBuilder()
	root := convert(b, st.RootNode())
	return b.Finish(root, kinds.name, kinds.version, src), nil
}

// convert appends n and its subtree to b in post-order.
func convert(b *tree.Builder, n *sitter.Node) tree.NodeID {
	count := n.ChildCount()
	children := make([]tree.Child, 0, count)
	for i := uint(0); i < count; i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		children = append(children, tree.Child{ID: convert(b, c), Field: n.FieldNameForChild(uint32(i))})
	}
	spec := tree.NodeSpec{
		Kind:   n.Kind(),
		Symbol: tree.NoSymbol,
		Start:  int(n.StartByte()),
		End:    int(n.EndByte()),
	}
	spec.LookEnd = spec.End
	if n.IsNamed() {
		spec.Flags |= tree.Named
	}
	if n.IsExtra() {
		spec.Flags |= tree.Extra
	}
	switch {
	case n.IsMissing():
		spec.Flags |= tree.Missing | tree.Error
		spec.Message = "missing " + n.Kind()
	case n.IsError():
		spec.Flags |= tree.Error
		spec.Message = "syntax error"
	}
	return b.Add(spec, children)
}
