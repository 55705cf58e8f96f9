// Package lexer turns ValidateTest and GStreamer launch-line source into tokens.
//
// The lexer keeps no state except its offset. The token starting at a given
// offset depends only on the bytes from that offset on, so lexing can restart at
// any token boundary; this is what incremental reparsing relies on.
package lexer

import (
	"iter"
	"unicode"
	"unicode/utf8"
)

// Lexer is a pull-style tokenizer over an in-memory buffer.
type Lexer struct {
	src    []byte
	lines  *LineIndex
	offset int
}

func New(src []byte) *Lexer {
	return &Lexer{src: src, lines: NewLineIndex(src)}
}

// NewWithLines reuses a prebuilt line index for src.
func NewWithLines(src []byte, lines *LineIndex) *Lexer {
	return &Lexer{src: src, lines: lines}
}

func (l *Lexer) Source() []byte    { return l.src }
func (l *Lexer) Lines() *LineIndex { return l.lines }
func (l *Lexer) Offset() int       { return l.offset }

// Reset moves the lexer to offset, which must be a token boundary.
func (l *Lexer) Reset(offset int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(l.src) {
		offset = len(l.src)
	}
	l.offset = offset
}

// Next returns the token at the current offset and advances past it.
// At end of input it keeps returning EOF.
func (l *Lexer) Next() Token {
	tok := l.TokenAt(l.offset)
	l.offset = tok.End
	return tok
}

// TokenAt scans the single token starting at offset without moving the lexer.
func (l *Lexer) TokenAt(offset int) Token {
	s := scanner{src: l.src}
	kind, end := s.scan(offset)
	return Token{
		Kind:  kind,
		Start: offset,
		End:   end,
		Reach: max(s.reach, end),
		Pos:   l.lines.Position(offset),
	}
}

// Tokenize lazily yields the tokens of src from start, ending with EOF.
func Tokenize(src []byte, start int) iter.Seq[Token] {
	return New(src).From(start)
}

// From yields tokens from offset through EOF. Breaking out of the loop is safe.
func (l *Lexer) From(offset int) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		for off := offset; ; {
			tok := l.TokenAt(off)
			if !yield(tok) || tok.Kind == EOF {
				return
			}
			off = tok.End
		}
	}
}

// All collects every token of src, EOF included.
func All(src []byte) []Token {
	var out []Token
	for tok := range Tokenize(src, 0) {
		out = append(out, tok)
	}
	return out
}

type scanner struct {
	src   []byte
	reach int
}

func (s *scanner) byteAt(i int) (byte, bool) {
	if i >= len(s.src) {
		// Seeing end of input depends on nothing following it.
		s.touch(len(s.src) + 1)
		return 0, false
	}
	s.touch(i + 1)
	return s.src[i], true
}

func (s *scanner) runeAt(i int) (rune, int) {
	if i >= len(s.src) {
		s.touch(len(s.src) + 1)
		return utf8.RuneError, 0
	}
	r, size := utf8.DecodeRune(s.src[i:])
	if r == utf8.RuneError && size == 1 {
		// Rejecting a sequence may have looked at up to UTFMax bytes.
		s.touch(min(i+utf8.UTFMax, len(s.src)+1))
	}
	s.touch(i + size)
	return r, size
}

func (s *scanner) touch(n int) {
	if n > s.reach {
		s.reach = n
	}
}

var punct = [256]Kind{
	',': Comma, ';': Semicolon, '=': Equals, '{': LBrace, '}': RBrace,
	'[': LBracket, ']': RBracket, '<': LAngle, '>': RAngle, '(': LParen,
	')': RParen, '!': Bang,
}

func (s *scanner) scan(off int) (Kind, int) {
	c, ok := s.byteAt(off)
	if !ok {
		return EOF, off
	}
	switch {
	case c == '\n':
		return Newline, off + 1
	case c == ' ' || c == '\t' || c == '\r' || (c == '\\' && s.continuation(off) > 0):
		return Whitespace, s.whitespace(off)
	case c == '#':
		return Comment, s.lineEnd(off)
	case c == '"':
		return s.quoted(off)
	case c == '`':
		return s.backtick(off)
	case c == '$':
		if end, ok := s.variable(off); ok {
			return Variable, end
		}
		return s.word(off)
	case c == ':':
		if s.colons(off) > 0 {
			return s.word(off)
		}
		return Colon, off + 1
	case punct[c] != EOF:
		return punct[c], off + 1
	}
	if r, size := s.runeAt(off); isWordRune(r) {
		return s.word(off)
	} else if size == 0 {
		return Unknown, off + 1
	} else {
		return Unknown, off + size
	}
}

// continuation returns the length of a backslash line continuation at off, or 0.
func (s *scanner) continuation(off int) int {
	if c, _ := s.byteAt(off + 1); c == '\n' {
		return 2
	}
	if c, _ := s.byteAt(off + 1); c == '\r' {
		if c2, _ := s.byteAt(off + 2); c2 == '\n' {
			return 3
		}
	}
	return 0
}

func (s *scanner) whitespace(off int) int {
	i := off
	for {
		c, ok := s.byteAt(i)
		if !ok {
			return i
		}
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '\\':
			n := s.continuation(i)
			if n == 0 {
				return i
			}
			i += n
		default:
			return i
		}
	}
}

func (s *scanner) lineEnd(off int) int {
	i := off
	for {
		c, ok := s.byteAt(i)
		if !ok || c == '\n' {
			return i
		}
		i++
	}
}

func (s *scanner) quoted(off int) (Kind, int) {
	i := off + 1
	for {
		c, ok := s.byteAt(i)
		switch {
		case !ok:
			return Unterminated, i
		case c == '\\':
			if _, ok := s.byteAt(i + 1); !ok {
				return Unterminated, i + 1
			}
			i += 2
		case c == '\n':
			return Unterminated, i
		case c == '"':
			return String, i + 1
		default:
			i++
		}
	}
}

func (s *scanner) backtick(off int) (Kind, int) {
	i := off + 1
	for {
		c, ok := s.byteAt(i)
		switch {
		case !ok || c == '\n':
			return Unterminated, i
		case c == '`':
			return ShellCommand, i + 1
		default:
			i++
		}
	}
}

func (s *scanner) variable(off int) (int, bool) {
	if c, _ := s.byteAt(off + 1); c != '(' {
		return 0, false
	}
	i := off + 2
	for {
		r, size := s.runeAt(i)
		if size == 0 {
			return 0, false
		}
		if r == ')' {
			return i + 1, i > off+2
		}
		if !isNameRune(r) {
			return 0, false
		}
		i += size
	}
}

func (s *scanner) word(off int) (Kind, int) {
	i := off
	for {
		r, size := s.runeAt(i)
		if size == 0 {
			break
		}
		if r == ':' {
			n := s.colons(i)
			if n == 0 {
				break
			}
			i += n
			continue
		}
		if !isWordRune(r) {
			break
		}
		i += size
	}
	if IsNumber(s.src[off:i]) {
		return Number, i
	}
	return Word, i
}

// colons returns the length of the run of ':' at off when a word rune
// follows it, as in "a:b" or "element::property", or 0.
func (s *scanner) colons(off int) int {
	i := off
	for {
		c, ok := s.byteAt(i)
		if !ok || c != ':' {
			break
		}
		i++
	}
	if r, _ := s.runeAt(i); isWordRune(r) {
		return i - off
	}
	return 0
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

func isWordRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '_', '-', '.', '+', '/', '$', '*', '@', '%', '~', '^', '&', '|':
		return true
	}
	return false
}

// IsNumber reports whether b is an integer, float, hex or fraction literal.
func IsNumber(b []byte) bool {
	i := 0
	if i < len(b) && (b[i] == '+' || b[i] == '-') {
		i++
	}
	if i+1 < len(b) && b[i] == '0' && (b[i+1] == 'x' || b[i+1] == 'X') {
		j := i + 2
		for j < len(b) && isHex(b[j]) {
			j++
		}
		return j == len(b) && j > i+2
	}
	digits := func() int {
		n := 0
		for i < len(b) && b[i] >= '0' && b[i] <= '9' {
			i++
			n++
		}
		return n
	}
	intDigits := digits()
	if i < len(b) && b[i] == '/' {
		i++
		return intDigits > 0 && digits() > 0 && i == len(b)
	}
	fracDigits := 0
	if i < len(b) && b[i] == '.' {
		i++
		fracDigits = digits()
	}
	if intDigits+fracDigits == 0 {
		return false
	}
	if i < len(b) && (b[i] == 'e' || b[i] == 'E') {
		i++
		if i < len(b) && (b[i] == '+' || b[i] == '-') {
			i++
		}
		if digits() == 0 {
			return false
		}
	}
	return i == len(b)
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
