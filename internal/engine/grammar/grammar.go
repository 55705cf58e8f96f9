package grammar

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"validatetest/internal/engine/lexer"
)

// ErrInvalidGrammar is returned by Compile for malformed definitions.
var ErrInvalidGrammar = errors.New("invalid grammar")

// Kinds produced by the parser itself rather than by a rule.
const (
	KindError      = "ERROR"
	KindComment    = "comment"
	KindWhitespace = "whitespace"
	KindNewline    = "newline"
)

type SymbolID int32

// SymbolDef is one authored grammar symbol.
//
// Symbols whose name starts with '_' are hidden: their children are inlined
// into the parent node. Alias renames the produced node and makes a hidden
// symbol visible. Sync lists the tokens at which error recovery inside
// this symbol stops.
type SymbolDef struct {
	Name  string
	Alias string
	Rule  *Rule
	Sync  []lexer.Kind
}

// Definition is the authored form of a grammar. The first symbol is the start symbol.
type Definition struct {
	Name    string
	Symbols []SymbolDef
}

// Symbol is a compiled symbol.
type Symbol struct {
	ID     SymbolID
	Name   string
	Kind   string
	Hidden bool
	Rule   *Rule
	Sync   TokenSet
}

// Grammar is an immutable compiled rule table.
type Grammar struct {
	name    string
	version string
	symbols []*Symbol
	byName  map[string]SymbolID
	kinds   map[string]bool
	fields  map[string]bool
}

func (g *Grammar) Name() string    { return g.name }
func (g *Grammar) Version() string { return g.version }
func (g *Grammar) Start() SymbolID { return 0 }

func (g *Grammar) Symbol(id SymbolID) *Symbol { return g.symbols[id] }

func (g *Grammar) Lookup(name string) (*Symbol, bool) {
	id, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.symbols[id], true
}

func (g *Grammar) SymbolCount() int { return len(g.symbols) }

// HasKind reports whether the grammar can produce nodes of the given kind,
// and whether such nodes are named.
func (g *Grammar) HasKind(kind string) (named bool, ok bool) {
	named, ok = g.kinds[kind]
	return named, ok
}

func (g *Grammar) HasField(name string) bool { return g.fields[name] }

// Kinds returns every node kind the grammar can produce, sorted.
func (g *Grammar) Kinds() []string {
	out := make([]string, 0, len(g.kinds))
	for k := range g.kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (g *Grammar) Fields() []string {
	out := make([]string, 0, len(g.fields))
	for f := range g.fields {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Dump renders the compiled rule table, one symbol per line.
func (g *Grammar) Dump() string {
	var b strings.Builder
	for _, s := range g.symbols {
		b.WriteString(s.Name)
		if s.Kind != s.Name {
			fmt.Fprintf(&b, " (%s)", s.Kind)
		}
		b.WriteString(" := ")
		b.WriteString(s.Rule.String())
		if s.Sync != 0 {
			fmt.Fprintf(&b, " sync %s", s.Sync)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Compile resolves symbol references, computes FIRST sets and nullability,
// rejects left recursion and computes the grammar version.
// The definition is not modified.
func Compile(def Definition) (*Grammar, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidGrammar)
	}
	if len(def.Symbols) == 0 {
		return nil, fmt.Errorf("%w: %s: no symbols", ErrInvalidGrammar, def.Name)
	}
	g := &Grammar{
		name:   def.Name,
		byName: make(map[string]SymbolID, len(def.Symbols)),
		kinds:  make(map[string]bool),
		fields: make(map[string]bool),
	}
	for i, sd := range def.Symbols {
		if sd.Name == "" || sd.Rule == nil {
			return nil, fmt.Errorf("%w: %s: symbol %d is incomplete", ErrInvalidGrammar, def.Name, i)
		}
		if _, dup := g.byName[sd.Name]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate symbol %q", ErrInvalidGrammar, def.Name, sd.Name)
		}
		kind := sd.Name
		if sd.Alias != "" {
			kind = sd.Alias
		}
		g.byName[sd.Name] = SymbolID(i)
		g.symbols = append(g.symbols, &Symbol{
			ID:     SymbolID(i),
			Name:   sd.Name,
			Kind:   kind,
			Hidden: strings.HasPrefix(sd.Name, "_") && sd.Alias == "",
			Rule:   clone(sd.Rule),
			Sync:   SetOf(sd.Sync...),
		})
	}
	if g.symbols[0].Hidden {
		return nil, fmt.Errorf("%w: %s: start symbol %q is hidden", ErrInvalidGrammar, def.Name, g.symbols[0].Name)
	}
	for _, s := range g.symbols {
		if err := g.resolve(s, s.Rule, false); err != nil {
			return nil, err
		}
	}
	g.analyze()
	for _, s := range g.symbols {
		if err := g.checkRepeats(s, s.Rule); err != nil {
			return nil, err
		}
	}
	if err := g.checkLeftRecursion(); err != nil {
		return nil, err
	}
	g.collectKinds()
	g.version = g.hash()
	return g, nil
}

// MustCompile is Compile for built-in grammars.
func MustCompile(def Definition) *Grammar {
	g, err := Compile(def)
	if err != nil {
		panic(err)
	}
	return g
}

func clone(r *Rule) *Rule {
	c := *r
	if len(r.Members) > 0 {
		c.Members = make([]*Rule, len(r.Members))
		for i, m := range r.Members {
			c.Members[i] = clone(m)
		}
	}
	return &c
}

func (g *Grammar) resolve(s *Symbol, r *Rule, inSeq bool) error {
	switch r.Kind {
	case RuleRef:
		id, ok := g.byName[r.Name]
		if !ok {
			return fmt.Errorf("%w: %s: symbol %q references unknown symbol %q", ErrInvalidGrammar, g.name, s.Name, r.Name)
		}
		r.Symbol = id
		return nil
	case RuleCut:
		if !inSeq {
			return fmt.Errorf("%w: %s: cut outside a sequence in %q", ErrInvalidGrammar, g.name, s.Name)
		}
		return nil
	case RuleToken:
		if r.Token == lexer.EOF || r.Token.IsTrivia() {
			return fmt.Errorf("%w: %s: symbol %q matches token %s", ErrInvalidGrammar, g.name, s.Name, r.Token)
		}
		return nil
	case RuleField:
		if r.Name == "" {
			return fmt.Errorf("%w: %s: unnamed field in %q", ErrInvalidGrammar, g.name, s.Name)
		}
	case RuleSeq, RuleChoice:
		if len(r.Members) == 0 {
			return fmt.Errorf("%w: %s: empty %s in %q", ErrInvalidGrammar, g.name, r.Kind, s.Name)
		}
	}
	if r.Kind != RuleSeq && r.Kind != RuleChoice && len(r.Members) != 1 {
		return fmt.Errorf("%w: %s: %s in %q needs exactly one member", ErrInvalidGrammar, g.name, r.Kind, s.Name)
	}
	for _, m := range r.Members {
		if err := g.resolve(s, m, r.Kind == RuleSeq); err != nil {
			return err
		}
	}
	return nil
}

// analyze computes FIRST sets and nullability to a fixed point.
func (g *Grammar) analyze() {
	for changed := true; changed; {
		changed = false
		for _, s := range g.symbols {
			if g.update(s.Rule) {
				changed = true
			}
		}
	}
}

func (g *Grammar) update(r *Rule) bool {
	changed := false
	for _, m := range r.Members {
		if g.update(m) {
			changed = true
		}
	}
	var first TokenSet
	var nullable bool
	switch r.Kind {
	case RuleToken:
		first = SetOf(r.Token)
	case RuleRef:
		target := g.symbols[r.Symbol].Rule
		first, nullable = target.first, target.nullable
	case RuleCut:
		nullable = true
	case RuleSeq:
		nullable = true
		for _, m := range r.Members {
			first |= m.first
			if !m.nullable {
				nullable = false
				break
			}
		}
	case RuleChoice:
		for _, m := range r.Members {
			first |= m.first
			nullable = nullable || m.nullable
		}
	case RuleRepeat, RuleOptional, RuleRecover:
		first, nullable = r.Members[0].first, true
	case RuleRepeat1, RuleField:
		first, nullable = r.Members[0].first, r.Members[0].nullable
	}
	if first != r.first || nullable != r.nullable {
		r.first, r.nullable = first, nullable
		changed = true
	}
	return changed
}

func (g *Grammar) checkRepeats(s *Symbol, r *Rule) error {
	switch r.Kind {
	case RuleRepeat, RuleRepeat1, RuleRecover:
		if r.Members[0].nullable {
			return fmt.Errorf("%w: %s: %s body in %q can match empty input", ErrInvalidGrammar, g.name, r.Kind, s.Name)
		}
	}
	for _, m := range r.Members {
		if err := g.checkRepeats(s, m); err != nil {
			return err
		}
	}
	return nil
}

// leftRefs collects the symbols r can enter before consuming a token.
func (g *Grammar) leftRefs(r *Rule, out map[SymbolID]bool) {
	switch r.Kind {
	case RuleRef:
		out[r.Symbol] = true
	case RuleSeq:
		for _, m := range r.Members {
			g.leftRefs(m, out)
			if !m.nullable {
				return
			}
		}
	default:
		for _, m := range r.Members {
			g.leftRefs(m, out)
		}
	}
}

func (g *Grammar) checkLeftRecursion() error {
	edges := make([][]SymbolID, len(g.symbols))
	for _, s := range g.symbols {
		refs := make(map[SymbolID]bool)
		g.leftRefs(s.Rule, refs)
		for id := range refs {
			edges[s.ID] = append(edges[s.ID], id)
		}
		slices.Sort(edges[s.ID])
	}
	const (
		unvisited = iota
		active
		done
	)
	state := make([]int, len(g.symbols))
	var path []SymbolID
	var visit func(id SymbolID) error
	visit = func(id SymbolID) error {
		state[id] = active
		path = append(path, id)
		for _, next := range edges[id] {
			switch state[next] {
			case active:
				names := make([]string, 0, len(path)+1)
				for i := slices.Index(path, next); i < len(path); i++ {
					names = append(names, g.symbols[path[i]].Name)
				}
				names = append(names, g.symbols[next].Name)
				return fmt.Errorf("%w: %s: left recursion %s", ErrInvalidGrammar, g.name, strings.Join(names, " -> "))
			case unvisited:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}
	for id := range g.symbols {
		if state[id] == unvisited {
			if err := visit(SymbolID(id)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Grammar) collectKinds() {
	for k := lexer.Whitespace; k <= lexer.Unknown; k++ {
		g.kinds[k.String()] = !k.IsPunct() && k != lexer.Whitespace && k != lexer.Newline
	}
	g.kinds[KindError] = true
	for _, s := range g.symbols {
		if !s.Hidden {
			g.kinds[s.Kind] = true
		}
		g.collectRule(s.Rule)
	}
}

func (g *Grammar) collectRule(r *Rule) {
	switch r.Kind {
	case RuleToken:
		kind, named := r.LeafKind(), r.LeafNamed()
		if prev, ok := g.kinds[kind]; !ok || named && !prev {
			g.kinds[kind] = named
		}
	case RuleField:
		g.fields[r.Name] = true
	}
	for _, m := range r.Members {
		g.collectRule(m)
	}
}

func (g *Grammar) hash() string {
	sum := sha256.Sum256([]byte(g.name + "\n" + g.Dump()))
	return hex.EncodeToString(sum[:8])
}
