// Package grammar holds declarative grammar tables and compiles them for the parser.
//
// A grammar is a list of symbols, each with one rule tree. Rules are a closed set
// of variants (RuleKind); alternatives are ordered and the parser always prefers
// the first one that matches.
package grammar

import (
	"fmt"
	"strings"

	"validatetest/internal/engine/lexer"
)

type RuleKind uint8

const (
	// RuleToken matches one token of Token kind, and of Text when set.
	RuleToken RuleKind = iota
	// RuleRef matches a named symbol.
	RuleRef
	RuleSeq
	// RuleChoice tries Members in order; the first match wins.
	RuleChoice
	// RuleRepeat matches Members[0] zero or more times.
	RuleRepeat
	// RuleRepeat1 matches Members[0] one or more times.
	RuleRepeat1
	RuleOptional
	// RuleField labels the nodes produced by Members[0] with Name.
	RuleField
	// RuleCut commits the enclosing sequence. Later failures are recovered
	// instead of backtracked.
	RuleCut
	// RuleRecover is a repetition that wraps unexpected tokens in error nodes
	// until a token in Until (or EOF) ends the list.
	RuleRecover
)

var ruleKindNames = [...]string{
	RuleToken:    "token",
	RuleRef:      "ref",
	RuleSeq:      "seq",
	RuleChoice:   "choice",
	RuleRepeat:   "repeat",
	RuleRepeat1:  "repeat1",
	RuleOptional: "optional",
	RuleField:    "field",
	RuleCut:      "cut",
	RuleRecover:  "recover",
}

func (k RuleKind) String() string {
	if int(k) < len(ruleKindNames) {
		return ruleKindNames[k]
	}
	return fmt.Sprintf("RuleKind(%d)", k)
}

// Rule is one node of a symbol's rule tree.
type Rule struct {
	Kind    RuleKind
	Token   lexer.Kind
	Text    string
	Alias   string
	Name    string
	Symbol  SymbolID
	Until   TokenSet
	Members []*Rule

	first    TokenSet
	nullable bool
}

// First is the set of token kinds that can start a match of r.
func (r *Rule) First() TokenSet { return r.first }

// Nullable reports whether r can match without consuming a token.
func (r *Rule) Nullable() bool { return r.nullable }

// LeafKind is the node kind produced by a RuleToken: the alias, else the
// literal text, else the token kind name.
func (r *Rule) LeafKind() string {
	switch {
	case r.Alias != "":
		return r.Alias
	case r.Text != "":
		return r.Text
	}
	return r.Token.String()
}

// LeafNamed reports whether the leaf produced by a RuleToken is a named node.
// Punctuation and unaliased literals are anonymous.
func (r *Rule) LeafNamed() bool {
	if r.Alias != "" {
		return true
	}
	return r.Text == "" && !r.Token.IsPunct()
}

func (r *Rule) String() string {
	var b strings.Builder
	r.write(&b)
	return b.String()
}

func (r *Rule) write(b *strings.Builder) {
	switch r.Kind {
	case RuleToken:
		if r.Text != "" {
			fmt.Fprintf(b, "%q", r.Text)
		} else {
			b.WriteString(r.Token.String())
		}
		if r.Alias != "" {
			fmt.Fprintf(b, " as %s", r.Alias)
		}
	case RuleRef:
		b.WriteString(r.Name)
	case RuleCut:
		b.WriteString("^")
	case RuleField:
		b.WriteString(r.Name)
		b.WriteString(": ")
		r.Members[0].write(b)
	default:
		b.WriteString(r.Kind.String())
		b.WriteByte('(')
		for i, m := range r.Members {
			if i > 0 {
				b.WriteString(" ")
			}
			m.write(b)
		}
		if r.Kind == RuleRecover && r.Until != 0 {
			fmt.Fprintf(b, " until %s", r.Until)
		}
		b.WriteByte(')')
	}
}

// Tok matches one token of kind k.
func Tok(k lexer.Kind) *Rule { return &Rule{Kind: RuleToken, Token: k} }

// Lit matches one token of kind k whose text is exactly text.
func Lit(k lexer.Kind, text string) *Rule { return &Rule{Kind: RuleToken, Token: k, Text: text} }

// Leaf matches one token of kind k and names the resulting leaf node.
func Leaf(k lexer.Kind, alias string) *Rule { return &Rule{Kind: RuleToken, Token: k, Alias: alias} }

// LitLeaf is Lit with a leaf alias.
func LitLeaf(k lexer.Kind, text, alias string) *Rule {
	return &Rule{Kind: RuleToken, Token: k, Text: text, Alias: alias}
}

func Ref(name string) *Rule { return &Rule{Kind: RuleRef, Name: name} }

func Seq(members ...*Rule) *Rule { return &Rule{Kind: RuleSeq, Members: members} }

func Choice(members ...*Rule) *Rule { return &Rule{Kind: RuleChoice, Members: members} }

func Repeat(r *Rule) *Rule { return &Rule{Kind: RuleRepeat, Members: []*Rule{r}} }

func Repeat1(r *Rule) *Rule { return &Rule{Kind: RuleRepeat1, Members: []*Rule{r}} }

func Opt(r *Rule) *Rule { return &Rule{Kind: RuleOptional, Members: []*Rule{r}} }

func Field(name string, r *Rule) *Rule { return &Rule{Kind: RuleField, Name: name, Members: []*Rule{r}} }

func Cut() *Rule { return &Rule{Kind: RuleCut} }

// Recover repeats r, turning tokens that start no item into error nodes.
// The list ends at EOF or at any token kind in until.
func Recover(r *Rule, until ...lexer.Kind) *Rule {
	return &Rule{Kind: RuleRecover, Members: []*Rule{r}, Until: SetOf(until...)}
}

// TokenSet is a bit set of lexer kinds.
type TokenSet uint32

func SetOf(kinds ...lexer.Kind) TokenSet {
	var s TokenSet
	for _, k := range kinds {
		s |= 1 << k
	}
	return s
}

func (s TokenSet) Has(k lexer.Kind) bool { return s&(1<<k) != 0 }

func (s TokenSet) Union(o TokenSet) TokenSet { return s | o }

func (s TokenSet) Kinds() []lexer.Kind {
	var out []lexer.Kind
	for k := lexer.Kind(0); k <= lexer.Unknown; k++ {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s TokenSet) String() string {
	parts := make([]string, 0, 8)
	for _, k := range s.Kinds() {
		parts = append(parts, k.String())
	}
	return "{" + strings.Join(parts, " ") + "}"
}
