package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"validatetest/internal/engine/lexer"
)

type stepKind uint8

const (
	stepNode          stepKind = iota // (kind ...)
	stepWildcardNamed                 // (_ ...)
	stepWildcard                      // _
	stepLiteral                       // "text"
	stepMissing                       // (MISSING) or (MISSING kind)
	stepAlt                           // [ ... ]
)

type quantifier uint8

const (
	quantOne quantifier = iota
	quantOptional
	quantStar
	quantPlus
)

type step struct {
	kind     stepKind
	nodeKind string
	field    string
	quant    quantifier
	captures []int
	negated  []string
	children []*step
	alts     []*step
	// predicates written inside the node, checked when it matches
	predicates []predicate
}

// namedOnly reports whether the step can only match named nodes.
func (s *step) namedOnly() bool {
	switch s.kind {
	case stepNode, stepWildcardNamed:
		return true
	case stepAlt:
		for _, a := range s.alts {
			if !a.namedOnly() {
				return false
			}
		}
		return true
	}
	return false
}

type offset struct{ start, end int }

type pattern struct {
	root       *step
	anchored   bool
	predicates []predicate
	props      map[string]string
	offsets    map[int]offset
	defined    map[int]bool
	refs       []captureRef
}

type captureRef struct {
	id  int
	off int
}

type compiler struct {
	src   string
	pos   int
	lang  KindSet
	lines *lexer.LineIndex
	q     *Query
	pat   *pattern
}

func newCompiler(lang KindSet, src string, q *Query) *compiler {
	return &compiler{src: src, lang: lang, lines: lexer.NewLineIndex([]byte(src)), q: q}
}

func (c *compiler) errorf(off int, format string, args ...any) error {
	p := c.lines.Position(off)
	return &CompileError{Offset: off, Line: p.Line, Col: p.Col, Message: fmt.Sprintf(format, args...)}
}

func (c *compiler) eof() bool { return c.pos >= len(c.src) }

func (c *compiler) peek() byte {
	if c.eof() {
		return 0
	}
	return c.src[c.pos]
}

// skip moves past whitespace and ; comments.
func (c *compiler) skip() {
	for !c.eof() {
		switch c.src[c.pos] {
		case ' ', '\t', '\r', '\n':
			c.pos++
		case ';':
			for !c.eof() && c.src[c.pos] != '\n' {
				c.pos++
			}
		default:
			return
		}
	}
}

func isIdentByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' ||
		b == '_' || b == '-' || b == '.' || b >= 0x80
}

func (c *compiler) ident() string {
	start := c.pos
	for !c.eof() && isIdentByte(c.src[c.pos]) {
		c.pos++
	}
	return c.src[start:c.pos]
}

// peekIdent returns the identifier at the current position without consuming it.
func (c *compiler) peekIdent() string {
	save := c.pos
	id := c.ident()
	c.pos = save
	return id
}

func (c *compiler) parse() error {
	for {
		c.skip()
		if c.eof() {
			return nil
		}
		start := c.pos
		c.pat = &pattern{defined: map[int]bool{}}
		if kw := c.peekIdent(); kw == "anchored" || kw == "floating" {
			c.pos += len(kw)
			c.pat.anchored = kw == "anchored"
			c.skip()
			if c.eof() {
				return c.errorf(start, "expected a pattern after %q", kw)
			}
		}
		root, err := c.top()
		if err != nil {
			return err
		}
		c.pat.root = root
		for _, r := range c.pat.refs {
			if !c.pat.defined[r.id] {
				return c.errorf(r.off, "capture @%s is not defined in this pattern", c.q.captures[r.id])
			}
		}
		c.q.patterns = append(c.q.patterns, c.pat)
	}
}

// isGroup reports whether the "(" at the current position opens a group of a
// pattern and its predicates rather than a node.
func (c *compiler) isGroup() bool {
	save := c.pos
	defer func() { c.pos = save }()
	c.pos++
	c.skip()
	switch c.peek() {
	case '(', '[', '"':
		return true
	}
	return false
}

func (c *compiler) top() (*step, error) {
	if c.peek() == '(' && c.isGroup() {
		return c.group()
	}
	st, err := c.single()
	if err != nil {
		return nil, err
	}
	if err := c.suffix(st, false); err != nil {
		return nil, err
	}
	return st, nil
}

// group parses "((pattern) @cap (#pred ...) ...)".
func (c *compiler) group() (*step, error) {
	open := c.pos
	c.pos++
	c.skip()
	st, err := c.single()
	if err != nil {
		return nil, err
	}
	if err := c.suffix(st, false); err != nil {
		return nil, err
	}
	for {
		c.skip()
		switch {
		case c.eof():
			return nil, c.errorf(open, "unclosed \"(\"")
		case c.peek() == ')':
			c.pos++
			if err := c.suffix(st, false); err != nil {
				return nil, err
			}
			return st, nil
		case c.isPredicate():
			if err := c.predicate(&c.pat.predicates); err != nil {
				return nil, err
			}
		default:
			return nil, c.errorf(c.pos, "a group may hold one pattern followed by predicates")
		}
	}
}

func (c *compiler) isPredicate() bool {
	if c.peek() != '(' {
		return false
	}
	save := c.pos
	c.pos++
	c.skip()
	ok := c.peek() == '#'
	c.pos = save
	return ok
}

// single parses one pattern without quantifier or captures.
func (c *compiler) single() (*step, error) {
	switch ch := c.peek(); {
	case ch == '(':
		return c.node()
	case ch == '[':
		return c.alternation()
	case ch == '"':
		return c.literal()
	case ch == '_' && c.peekIdent() == "_":
		c.pos++
		return &step{kind: stepWildcard}, nil
	case c.eof():
		return nil, c.errorf(c.pos, "unexpected end of query, expected a pattern")
	default:
		return nil, c.errorf(c.pos, "unexpected %q, expected a pattern", string(ch))
	}
}

var quantifiers = map[byte]quantifier{'?': quantOptional, '*': quantStar, '+': quantPlus}

// suffix parses an optional quantifier and any captures following a pattern.
func (c *compiler) suffix(st *step, allowQuant bool) error {
	c.skip()
	if q, ok := quantifiers[c.peek()]; ok {
		if !allowQuant {
			return c.errorf(c.pos, "quantifier %q is only allowed on child patterns", string(c.peek()))
		}
		st.quant = q
		c.pos++
	}
	for {
		c.skip()
		if c.peek() != '@' {
			return nil
		}
		at := c.pos
		c.pos++
		name := c.ident()
		if name == "" {
			return c.errorf(at, "expected a capture name after \"@\"")
		}
		id := c.capture(name)
		c.pat.defined[id] = true
		st.captures = append(st.captures, id)
	}
}

func (c *compiler) capture(name string) int {
	for i, n := range c.q.captures {
		if n == name {
			return i
		}
	}
	c.q.captures = append(c.q.captures, name)
	return len(c.q.captures) - 1
}

func (c *compiler) node() (*step, error) {
	open := c.pos
	c.pos++
	c.skip()
	at := c.pos
	name := c.ident()
	var st *step
	switch name {
	case "":
		return nil, c.errorf(at, "expected a node kind after \"(\"")
	case "_":
		st = &step{kind: stepWildcardNamed}
	case "MISSING":
		st = &step{kind: stepMissing}
		c.skip()
		switch {
		case c.peek() == '"':
			lit, err := c.literal()
			if err != nil {
				return nil, err
			}
			st.nodeKind = lit.nodeKind
		case isIdentByte(c.peek()):
			at := c.pos
			st.nodeKind = c.ident()
			if err := c.checkKind(at, st.nodeKind, true); err != nil {
				return nil, err
			}
		}
	default:
		if err := c.checkKind(at, name, true); err != nil {
			return nil, err
		}
		st = &step{kind: stepNode, nodeKind: name}
	}
	for {
		c.skip()
		switch {
		case c.eof():
			return nil, c.errorf(open, "unclosed \"(\"")
		case c.peek() == ')':
			c.pos++
			return st, nil
		case c.peek() == '!':
			c.pos++
			at := c.pos
			f := c.ident()
			if f == "" {
				return nil, c.errorf(at, "expected a field name after \"!\"")
			}
			if err := c.checkField(at, f); err != nil {
				return nil, err
			}
			st.negated = append(st.negated, f)
		case c.isPredicate():
			if err := c.predicate(&st.predicates); err != nil {
				return nil, err
			}
		default:
			child, err := c.child()
			if err != nil {
				return nil, err
			}
			st.children = append(st.children, child)
		}
	}
}

// child parses "[field:] pattern [quantifier] [@captures]".
func (c *compiler) child() (*step, error) {
	field := ""
	if id := c.peekIdent(); id != "" && id != "_" {
		at := c.pos
		c.pos += len(id)
		c.skip()
		if c.peek() != ':' {
			return nil, c.errorf(at, "unexpected %q, expected a pattern or field", id)
		}
		c.pos++
		if err := c.checkField(at, id); err != nil {
			return nil, err
		}
		field = id
		c.skip()
	}
	st, err := c.single()
	if err != nil {
		return nil, err
	}
	st.field = field
	if err := c.suffix(st, true); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *compiler) alternation() (*step, error) {
	open := c.pos
	c.pos++
	st := &step{kind: stepAlt}
	for {
		c.skip()
		switch {
		case c.eof():
			return nil, c.errorf(open, "unclosed \"[\"")
		case c.peek() == ']':
			c.pos++
			if len(st.alts) == 0 {
				return nil, c.errorf(open, "empty alternation")
			}
			return st, nil
		}
		alt, err := c.single()
		if err != nil {
			return nil, err
		}
		if err := c.suffix(alt, false); err != nil {
			return nil, err
		}
		st.alts = append(st.alts, alt)
	}
}

func (c *compiler) literal() (*step, error) {
	at := c.pos
	text, err := c.str()
	if err != nil {
		return nil, err
	}
	if err := c.checkKind(at, text, false); err != nil {
		return nil, err
	}
	return &step{kind: stepLiteral, nodeKind: text}, nil
}

func (c *compiler) str() (string, error) {
	open := c.pos
	c.pos++
	var b strings.Builder
	for !c.eof() {
		ch := c.src[c.pos]
		switch ch {
		case '"':
			c.pos++
			return b.String(), nil
		case '\n':
			return "", c.errorf(open, "unterminated string")
		case '\\':
			c.pos++
			if c.eof() {
				return "", c.errorf(open, "unterminated string")
			}
			switch e := c.src[c.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			default:
				b.WriteByte(e)
			}
			c.pos++
		default:
			b.WriteByte(ch)
			c.pos++
		}
	}
	return "", c.errorf(open, "unterminated string")
}

func (c *compiler) checkKind(at int, kind string, named bool) error {
	if c.lang == nil {
		return nil
	}
	isNamed, ok := c.lang.HasKind(kind)
	switch {
	case !ok:
		return c.errorf(at, "unknown node kind %q in %s", kind, c.lang.Name())
	case named && !isNamed:
		return c.errorf(at, "%q is an anonymous node; match it with \"%s\"", kind, kind)
	case !named && isNamed:
		return c.errorf(at, "%q is a named node; match it with (%s)", kind, kind)
	}
	return nil
}

func (c *compiler) checkField(at int, field string) error {
	if c.lang == nil || c.lang.HasField(field) {
		return nil
	}
	return c.errorf(at, "unknown field %q in %s", field, c.lang.Name())
}

type argKind uint8

const (
	argCapture argKind = iota
	argString
	argAtom
)

type arg struct {
	kind    argKind
	text    string
	capture int
	off     int
}

// predicate parses "(#name args...)". Tests are added to target, directives
// to the current pattern.
func (c *compiler) predicate(target *[]predicate) error {
	open := c.pos
	c.pos++
	c.skip()
	c.pos++ // '#'
	nameAt := c.pos
	start := c.pos
	for !c.eof() && (isIdentByte(c.src[c.pos]) || c.src[c.pos] == '?' || c.src[c.pos] == '!') {
		c.pos++
	}
	name := c.src[start:c.pos]
	var args []arg
	for {
		c.skip()
		if c.eof() {
			return c.errorf(open, "unclosed \"(\"")
		}
		if c.peek() == ')' {
			c.pos++
			break
		}
		at := c.pos
		switch ch := c.peek(); {
		case ch == '@':
			c.pos++
			id := c.ident()
			if id == "" {
				return c.errorf(at, "expected a capture name after \"@\"")
			}
			ref := c.capture(id)
			c.pat.refs = append(c.pat.refs, captureRef{id: ref, off: at})
			args = append(args, arg{kind: argCapture, capture: ref, off: at})
		case ch == '"':
			s, err := c.str()
			if err != nil {
				return err
			}
			args = append(args, arg{kind: argString, text: s, off: at})
		case isIdentByte(ch):
			args = append(args, arg{kind: argAtom, text: c.ident(), off: at})
		default:
			return c.errorf(at, "unexpected %q in predicate", string(ch))
		}
	}
	return c.addPredicate(target, nameAt, name, args)
}

func (c *compiler) addPredicate(target *[]predicate, at int, name string, args []arg) error {
	switch name {
	case "eq?", "not-eq?":
		if len(args) != 2 || args[0].kind != argCapture || args[1].kind == argAtom {
			return c.errorf(at, "#%s takes a capture and a capture or string", name)
		}
		p := predicate{op: opEq, negate: name == "not-eq?", capture: args[0].capture, other: -1}
		if args[1].kind == argCapture {
			p.other = args[1].capture
		} else {
			p.values = []string{args[1].text}
		}
		*target = append(*target, p)
	case "match?", "not-match?":
		if len(args) != 2 || args[0].kind != argCapture || args[1].kind != argString {
			return c.errorf(at, "#%s takes a capture and a regular expression string", name)
		}
		re, err := regexp.Compile(args[1].text)
		if err != nil {
			return c.errorf(args[1].off, "invalid regular expression: %v", err)
		}
		*target = append(*target, predicate{op: opMatch, negate: name == "not-match?", capture: args[0].capture, other: -1, re: re})
	case "any-of?", "not-any-of?":
		if len(args) < 2 || args[0].kind != argCapture {
			return c.errorf(at, "#%s takes a capture and one or more strings", name)
		}
		p := predicate{op: opAnyOf, negate: name == "not-any-of?", capture: args[0].capture, other: -1}
		for _, a := range args[1:] {
			if a.kind != argString {
				return c.errorf(a.off, "#%s takes strings after the capture", name)
			}
			p.values = append(p.values, a.text)
		}
		*target = append(*target, p)
	case "set!":
		if len(args) < 1 || len(args) > 2 || args[0].kind == argCapture || (len(args) == 2 && args[1].kind == argCapture) {
			return c.errorf(at, "#set! takes a key and an optional value")
		}
		if c.pat.props == nil {
			c.pat.props = map[string]string{}
		}
		value := ""
		if len(args) == 2 {
			value = args[1].text
		}
		c.pat.props[args[0].text] = value
	case "offset!":
		if (len(args) != 3 && len(args) != 5) || args[0].kind != argCapture {
			return c.errorf(at, "#offset! takes a capture and a start and end delta")
		}
		nums := make([]int, len(args)-1)
		for i, a := range args[1:] {
			n, err := strconv.Atoi(a.text)
			if a.kind != argAtom || err != nil {
				return c.errorf(a.off, "#offset! expects an integer, got %q", a.text)
			}
			nums[i] = n
		}
		off := offset{start: nums[0], end: nums[1]}
		if len(nums) == 4 {
			// Row and column form: only same-row offsets are meaningful in bytes.
			if nums[0] != 0 || nums[2] != 0 {
				return c.errorf(at, "#offset! row deltas other than 0 are not supported")
			}
			off = offset{start: nums[1], end: nums[3]}
		}
		if c.pat.offsets == nil {
			c.pat.offsets = map[int]offset{}
		}
		c.pat.offsets[args[0].capture] = off
	default:
		return c.errorf(at, "unknown predicate #%s", name)
	}
	return nil
}
