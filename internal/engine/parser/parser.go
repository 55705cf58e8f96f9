// Package parser builds syntax trees from a compiled grammar.
//
// Parsing is recursive descent with backtracking over the grammar's rule
// table; the first alternative of a choice that matches wins. Parsing never
// fails: unexpected input ends up in ERROR nodes and expected-but-absent
// syntax in zero-width MISSING nodes. Whitespace, newlines and comments are
// kept as extra leaves so the leaves of a tree always reproduce its text.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"validatetest/internal/engine/grammar"
	"validatetest/internal/engine/lexer"
	"validatetest/internal/engine/tree"
)

const DefaultMaxInputSize = 16 << 20

// MaxInputSize is the size limit of parsers built by New. Larger inputs parse
// to a single error node.
var MaxInputSize = DefaultMaxInputSize

// maxDepth bounds the nesting of named nodes.
const maxDepth = 2048

var ErrGrammarMismatch = errors.New("tree was built by a different grammar")

// Stats counts the work done by one parse.
type Stats struct {
	Tokens int
	Nodes  int
	Reused int
}

// Parser parses text with one grammar. It holds no per-parse state and is
// safe for concurrent use.
type Parser struct {
	g        *grammar.Grammar
	maxInput int
}

func New(g *grammar.Grammar) *Parser {
	return &Parser{g: g, maxInput: MaxInputSize}
}

// WithMaxInputSize returns a copy of p with a different size limit.
func (p *Parser) WithMaxInputSize(n int) *Parser {
	c := *p
	c.maxInput = n
	return &c
}

func (p *Parser) Grammar() *grammar.Grammar { return p.g }

// Parse parses text from scratch.
func Parse(g *grammar.Grammar, text []byte) (*tree.Tree, []Diagnostic) {
	return New(g).Parse(text)
}

// Reparse applies edit to old's text and parses the result, reusing the
// subtrees of old that the edit cannot affect.
func Reparse(g *grammar.Grammar, old *tree.Tree, edit tree.Edit) (*tree.Tree, []Diagnostic, error) {
	return New(g).Reparse(old, edit)
}

func (p *Parser) Parse(text []byte) (*tree.Tree, []Diagnostic) {
	t, _ := p.ParseWithStats(text)
	return t, Diagnostics(t)
}

func (p *Parser) ParseWithStats(text []byte) (*tree.Tree, Stats) {
	s := p.newState(text, tree.NewBuilder())
	return s.run(), s.stats
}

func (p *Parser) Reparse(old *tree.Tree, edit tree.Edit) (*tree.Tree, []Diagnostic, error) {
	t, _, err := p.ReparseWithStats(old, edit)
	if err != nil {
		return nil, nil, err
	}
	return t, Diagnostics(t), nil
}

// ReparseWithStats is Reparse that also reports how many nodes were reused.
func (p *Parser) ReparseWithStats(old *tree.Tree, edit tree.Edit) (*tree.Tree, Stats, error) {
	if old.GrammarVersion() != p.g.Version() {
		return nil, Stats{}, fmt.Errorf("%w: %s %s, parser %s %s", ErrGrammarMismatch,
			old.Language(), old.GrammarVersion(), p.g.Name(), p.g.Version())
	}
	text, err := edit.Apply(old.Source())
	if err != nil {
		return nil, Stats{}, err
	}
	if old.Slabs() >= tree.MaxSlabs-1 || len(text) > p.maxInput {
		t, stats := p.ParseWithStats(text)
		return t, stats, nil
	}
	s := p.newState(text, tree.NewIncrementalBuilder(old, edit))
	s.old, s.edit = old, edit
	return s.run(), s.stats, nil
}

func (p *Parser) newState(text []byte, b *tree.Builder) *state {
	return &state{
		p:     p,
		g:     p.g,
		src:   text,
		lex:   lexer.New(text),
		toks:  make(map[int]lexer.Token, len(text)/4+1),
		b:     b,
		kids:  make([]tree.Child, 0, 64),
		stats: Stats{},
	}
}

// state is the mutable state of one parse.
type state struct {
	p    *Parser
	g    *grammar.Grammar
	src  []byte
	lex  *lexer.Lexer
	toks map[int]lexer.Token
	b    *tree.Builder

	// kids holds the children of every open node; each open node owns a suffix.
	kids []tree.Child
	// pos is the offset of the next unconsumed token, trivia included.
	pos int
	// lastEnd is the end of the last consumed significant token or node.
	lastEnd int
	// reach is the furthest byte examined since the innermost named node opened.
	reach int
	depth int

	old  *tree.Tree
	edit tree.Edit

	stats Stats
}

type snapshot struct {
	pos     int
	lastEnd int
	kids    int
	mark    tree.Mark
}

func (s *state) save() snapshot {
	return snapshot{pos: s.pos, lastEnd: s.lastEnd, kids: len(s.kids), mark: s.b.Mark()}
}

// restore rolls back everything except reach: bytes examined by a failed
// attempt still decided the outcome.
func (s *state) restore(sn snapshot) {
	s.pos, s.lastEnd = sn.pos, sn.lastEnd
	s.kids = s.kids[:sn.kids]
	s.b.Reset(sn.mark)
}

func (s *state) tok(off int) lexer.Token {
	t, ok := s.toks[off]
	if !ok {
		t = s.lex.TokenAt(off)
		s.toks[off] = t
		s.stats.Tokens++
	}
	if t.Reach > s.reach {
		s.reach = t.Reach
	}
	return t
}

func (s *state) text(t lexer.Token) string { return string(s.src[t.Start:t.End]) }

// peek returns the next significant token and whether a line break precedes it.
func (s *state) peek() (lexer.Token, bool) {
	nl := false
	for off := s.pos; ; {
		t := s.tok(off)
		if !t.Kind.IsTrivia() {
			return t, nl
		}
		if t.Kind == lexer.Newline {
			nl = true
		}
		off = t.End
	}
}

func (s *state) skipTrivia() {
	for {
		t := s.tok(s.pos)
		if !t.Kind.IsTrivia() {
			return
		}
		flags := tree.Extra
		kind := grammar.KindWhitespace
		switch t.Kind {
		case lexer.Comment:
			flags |= tree.Named
			kind = grammar.KindComment
		case lexer.Newline:
			kind = grammar.KindNewline
		}
		s.leaf(t, kind, flags)
		s.pos = t.End
	}
}

func (s *state) leaf(t lexer.Token, kind string, flags tree.Flags) {
	id := s.b.Add(tree.NodeSpec{
		Kind:    kind,
		Symbol:  tree.NoSymbol,
		Flags:   flags,
		Start:   t.Start,
		End:     t.End,
		LookEnd: t.Reach,
	}, nil)
	s.kids = append(s.kids, tree.Child{ID: id})
	s.stats.Nodes++
}

// consume appends the significant token t as a leaf.
func (s *state) consume(t lexer.Token, kind string, flags tree.Flags) {
	s.leaf(t, kind, flags)
	s.pos, s.lastEnd = t.End, t.End
}

func (s *state) run() *tree.Tree {
	root := s.g.Symbol(s.g.Start())
	end := len(s.src)
	if end > s.p.maxInput {
		id := s.b.Add(tree.NodeSpec{
			Kind:    grammar.KindError,
			Message: fmt.Sprintf("input of %d bytes exceeds the %d byte limit", end, s.p.maxInput),
			Symbol:  tree.NoSymbol,
			Flags:   tree.Named | tree.Error,
			End:     end,
			LookEnd: end + 1,
		}, nil)
		rootID := s.b.Add(tree.NodeSpec{Kind: root.Kind, Symbol: int32(root.ID), Flags: tree.Named, End: end, LookEnd: end + 1},
			[]tree.Child{{ID: id}})
		return s.b.Finish(rootID, s.g.Name(), s.g.Version(), s.src)
	}

	s.match(root.Rule, root)
	s.skipTrivia()
	if t := s.tok(s.pos); t.Kind != lexer.EOF {
		base := len(s.kids)
		start := s.pos
		for t.Kind != lexer.EOF {
			s.consumeError(t)
			if t, _ = s.peek(); t.Kind != lexer.EOF {
				s.skipTrivia()
			}
		}
		s.wrapError(start, base, s.unexpected(start))
		s.skipTrivia()
	}
	id := s.b.Add(tree.NodeSpec{
		Kind:    root.Kind,
		Symbol:  int32(root.ID),
		Flags:   tree.Named,
		Start:   0,
		End:     end,
		LookEnd: max(s.reach, end+1),
	}, s.kids)
	s.stats.Nodes++
	return s.b.Finish(id, s.g.Name(), s.g.Version(), s.src)
}

// match tries r at the current position. On failure the state is left as it
// was, apart from reach.
func (s *state) match(r *grammar.Rule, owner *grammar.Symbol) bool {
	sn := s.save()
	if s.matchRule(r, owner) {
		return true
	}
	s.restore(sn)
	return false
}

func (s *state) matchRule(r *grammar.Rule, owner *grammar.Symbol) bool {
	switch r.Kind {
	case grammar.RuleToken:
		return s.matchToken(r)
	case grammar.RuleRef:
		return s.matchSymbol(s.g.Symbol(r.Symbol))
	case grammar.RuleSeq:
		return s.matchSeq(r, owner)
	case grammar.RuleChoice:
		for _, m := range r.Members {
			if s.match(m, owner) {
				return true
			}
		}
		return false
	case grammar.RuleOptional:
		s.match(r.Members[0], owner)
		return true
	case grammar.RuleRepeat:
		s.repeat(r.Members[0], owner)
		return true
	case grammar.RuleRepeat1:
		if !s.match(r.Members[0], owner) {
			return false
		}
		s.repeat(r.Members[0], owner)
		return true
	case grammar.RuleField:
		before := len(s.kids)
		if !s.match(r.Members[0], owner) {
			return false
		}
		s.label(before, r.Name)
		return true
	case grammar.RuleRecover:
		s.recoverList(r, owner)
		return true
	case grammar.RuleCut:
		return true
	}
	panic("parser: unknown rule kind " + r.Kind.String())
}

func (s *state) repeat(body *grammar.Rule, owner *grammar.Symbol) {
	for {
		pos := s.pos
		if !s.match(body, owner) || s.pos == pos {
			return
		}
	}
}

// label sets the field of the significant children appended since before.
func (s *state) label(before int, field string) {
	for i := before; i < len(s.kids); i++ {
		if s.kids[i].Field == "" && s.b.Flags(s.kids[i].ID)&tree.Extra == 0 {
			s.kids[i].Field = field
		}
	}
}

func (s *state) matchToken(r *grammar.Rule) bool {
	t, _ := s.peek()
	if t.Kind != r.Token || (r.Text != "" && s.text(t) != r.Text) {
		return false
	}
	s.skipTrivia()
	flags := tree.Flags(0)
	if r.LeafNamed() {
		flags = tree.Named
	}
	s.consume(t, r.LeafKind(), flags)
	return true
}

func (s *state) matchSymbol(sym *grammar.Symbol) bool {
	if sym.Hidden {
		return s.matchRule(sym.Rule, sym)
	}
	if t, _ := s.peek(); !sym.Rule.Nullable() && !sym.Rule.First().Has(t.Kind) {
		return false
	}
	s.skipTrivia()
	if s.reuse(sym) {
		return true
	}
	if s.depth >= maxDepth {
		return false
	}

	start := s.pos
	base := len(s.kids)
	outer := s.reach
	s.reach = 0
	s.lastEnd = start
	s.depth++
	ok := s.matchRule(sym.Rule, sym)
	s.depth--
	inner := s.reach
	s.reach = max(outer, inner)
	if !ok {
		return false
	}
	end := s.lastEnd
	id := s.b.Add(tree.NodeSpec{
		Kind:    sym.Kind,
		Symbol:  int32(sym.ID),
		Flags:   tree.Named,
		Start:   start,
		End:     end,
		LookEnd: max(inner, end),
	}, s.kids[base:])
	s.kids = append(s.kids[:base], tree.Child{ID: id})
	s.stats.Nodes++
	return true
}

// reuse appends the old tree's node for sym at the current position when
// the edit cannot have changed it.
func (s *state) reuse(sym *grammar.Symbol) bool {
	if s.old == nil {
		return false
	}
	e := s.edit
	var oldPos int
	switch {
	case s.pos < e.Start:
		oldPos = s.pos
	case s.pos >= e.NewEnd:
		oldPos = s.pos - e.Delta()
	default:
		return false
	}
	n, ok := s.old.NodeForSymbol(int32(sym.ID), oldPos)
	if !ok {
		return false
	}
	if s.old.LookEnd(n) > e.Start && s.old.StartByte(n) < e.OldEnd {
		return false
	}
	_, end, look := s.b.Span(n)
	s.kids = append(s.kids, tree.Child{ID: n})
	s.pos, s.lastEnd = end, end
	if look > s.reach {
		s.reach = look
	}
	s.stats.Reused++
	return true
}

func (s *state) matchSeq(r *grammar.Rule, owner *grammar.Symbol) bool {
	committed := false
	for _, m := range r.Members {
		if m.Kind == grammar.RuleCut {
			committed = true
			continue
		}
		if s.match(m, owner) {
			continue
		}
		if !committed {
			return false
		}
		if !s.recoverMember(m, owner) {
			return true
		}
	}
	return true
}

// recoverMember handles a member that failed after a cut. Unexpected tokens
// up to the owner's sync set, a line break or EOF go into an ERROR node and
// the member is retried once. If nothing can be skipped the member is
// recorded as MISSING. It reports whether the sequence should go on.
func (s *state) recoverMember(m *grammar.Rule, owner *grammar.Symbol) bool {
	t, nl := s.peek()
	if t.Kind == lexer.EOF || nl || owner.Sync.Has(t.Kind) {
		s.missing(m)
		return false
	}
	s.skipTrivia()
	start := s.pos
	base := len(s.kids)
	first := m.First()
	for {
		s.consumeError(t)
		t, nl = s.peek()
		if t.Kind == lexer.EOF || nl || owner.Sync.Has(t.Kind) || first.Has(t.Kind) {
			break
		}
		s.skipTrivia()
	}
	s.wrapError(start, base, s.unexpected(start))
	if !nl && first.Has(t.Kind) {
		return s.match(m, owner)
	}
	return false
}

// recoverList matches a recovering repetition. Tokens that cannot start an
// item go into ERROR nodes; the list ends at EOF or at a token in Until or in
// the owner's sync set.
func (s *state) recoverList(r *grammar.Rule, owner *grammar.Symbol) {
	body := r.Members[0]
	stop := r.Until | owner.Sync
	first := body.First()
	for {
		t, _ := s.peek()
		if t.Kind == lexer.EOF || stop.Has(t.Kind) {
			return
		}
		if first.Has(t.Kind) {
			sn := s.save()
			if s.match(body, owner) && s.pos != sn.pos {
				continue
			}
			s.restore(sn)
		}
		s.skipTrivia()
		start := s.pos
		base := len(s.kids)
		for {
			s.consumeError(t)
			var nl bool
			t, nl = s.peek()
			if t.Kind == lexer.EOF || nl || stop.Has(t.Kind) || first.Has(t.Kind) {
				break
			}
			s.skipTrivia()
		}
		s.wrapError(start, base, s.unexpected(start))
	}
}

func (s *state) consumeError(t lexer.Token) {
	flags := tree.Flags(0)
	if !t.Kind.IsPunct() {
		flags = tree.Named
	}
	s.consume(t, t.Kind.String(), flags)
}

// wrapError turns the children appended since base into one ERROR node.
func (s *state) wrapError(start, base int, msg string) {
	id := s.b.Add(tree.NodeSpec{
		Kind:    grammar.KindError,
		Message: msg,
		Symbol:  tree.NoSymbol,
		Flags:   tree.Named | tree.Error,
		Start:   start,
		End:     s.lastEnd,
		LookEnd: s.reach,
	}, s.kids[base:])
	s.kids = append(s.kids[:base], tree.Child{ID: id})
	s.stats.Nodes++
}

// missing records m as absent with a zero-width node at the end of the last token.
func (s *state) missing(m *grammar.Rule) {
	kind, named, field := expected(s.g, m)
	flags := tree.Error | tree.Missing
	if named {
		flags |= tree.Named
	}
	id := s.b.Add(tree.NodeSpec{
		Kind:    kind,
		Message: "missing " + describe(s.g, m),
		Symbol:  tree.NoSymbol,
		Flags:   flags,
		Start:   s.pos,
		End:     s.pos,
		LookEnd: s.reach,
	}, nil)
	s.kids = append(s.kids, tree.Child{ID: id, Field: field})
	s.stats.Nodes++
}

func (s *state) unexpected(start int) string {
	t := s.tok(start)
	switch t.Kind {
	case lexer.Unterminated:
		if s.src[t.Start] == '`' {
			return "unterminated shell command"
		}
		return "unterminated string literal"
	case lexer.EOF:
		return "unexpected end of input"
	case lexer.Unknown:
		return "unexpected character " + strconv.Quote(s.text(t))
	}
	if t.Kind.IsPunct() {
		return strconv.Quote(s.text(t)) + " is not expected here"
	}
	return "unexpected " + t.Kind.String() + " " + strconv.Quote(s.text(t))
}

// expected is the kind and field of the node m would have produced first.
func expected(g *grammar.Grammar, m *grammar.Rule) (kind string, named bool, field string) {
	switch m.Kind {
	case grammar.RuleToken:
		return m.LeafKind(), m.LeafNamed(), ""
	case grammar.RuleRef:
		sym := g.Symbol(m.Symbol)
		if sym.Hidden {
			return expected(g, sym.Rule)
		}
		return sym.Kind, true, ""
	case grammar.RuleField:
		kind, named, _ = expected(g, m.Members[0])
		return kind, named, m.Name
	}
	if len(m.Members) > 0 {
		return expected(g, m.Members[0])
	}
	return grammar.KindError, true, ""
}

func describe(g *grammar.Grammar, m *grammar.Rule) string {
	switch m.Kind {
	case grammar.RuleToken:
		if m.Text != "" {
			return strconv.Quote(m.Text)
		}
		if m.Token.IsPunct() {
			return strconv.Quote(m.Token.String())
		}
		return m.LeafKind()
	case grammar.RuleRef:
		sym := g.Symbol(m.Symbol)
		if sym.Hidden {
			return describe(g, sym.Rule)
		}
		return sym.Kind
	case grammar.RuleField:
		return describe(g, m.Members[0])
	case grammar.RuleChoice:
		parts := make([]string, len(m.Members))
		for i, alt := range m.Members {
			parts[i] = describe(g, alt)
		}
		return strings.Join(parts, " or ")
	}
	if len(m.Members) > 0 {
		return describe(g, m.Members[0])
	}
	return m.Kind.String()
}
