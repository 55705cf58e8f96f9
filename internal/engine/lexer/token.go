package lexer

import "fmt"

// Kind identifies the lexical class of a token.
type Kind uint8

const (
	EOF Kind = iota
	Whitespace
	Newline
	Comment
	Word
	Number
	String
	ShellCommand
	Variable
	Comma
	Semicolon
	Equals
	Colon
	LBrace
	RBrace
	LBracket
	RBracket
	LAngle
	RAngle
	LParen
	RParen
	Bang
	// Unterminated is a string or backtick literal missing its closing quote.
	Unterminated
	// Unknown covers any byte sequence no other rule accepts.
	Unknown
)

var kindNames = [...]string{
	EOF:          "EOF",
	Whitespace:   "whitespace",
	Newline:      "newline",
	Comment:      "comment",
	Word:         "word",
	Number:       "number",
	String:       "string",
	ShellCommand: "shell_command",
	Variable:     "variable",
	Comma:        ",",
	Semicolon:    ";",
	Equals:       "=",
	Colon:        ":",
	LBrace:       "{",
	RBrace:       "}",
	LBracket:     "[",
	RBracket:     "]",
	LAngle:       "<",
	RAngle:       ">",
	LParen:       "(",
	RParen:       ")",
	Bang:         "!",
	Unterminated: "unterminated",
	Unknown:      "unknown",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsTrivia reports whether tokens of this kind carry no syntax.
func (k Kind) IsTrivia() bool {
	return k == Whitespace || k == Newline || k == Comment
}

// IsPunct reports whether the kind is a fixed one-byte punctuation token.
func (k Kind) IsPunct() bool {
	return k >= Comma && k <= Bang
}

// Position is a 1-based line and 1-based byte column.
type Position struct {
	Line int
	Col  int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Token is an immutable lexical unit covering the half-open range [Start, End).
// Reach is the furthest byte offset (exclusive) the lexer examined to produce it.
type Token struct {
	Kind  Kind
	Start int
	End   int
	Reach int
	Pos   Position
}

func (t Token) Len() int { return t.End - t.Start }

// Text returns the bytes of t within src.
func (t Token) Text(src []byte) string {
	return string(src[t.Start:t.End])
}

func (t Token) String() string {
	return fmt.Sprintf("%s[%d,%d)@%s", t.Kind, t.Start, t.End, t.Pos)
}
