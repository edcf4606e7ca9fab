// Package token defines source locations, spans and the lexical token
// kinds shared by the lexer and parser stages.
package token

import "fmt"

// Location is a single point in a source file.
type Location struct {
	Filename string
	Line     int
	Column   int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.Filename, l.Line, l.Column)
}

// Span brackets a lexical or syntactic range.
type Span struct {
	Start Location
	End   Location
}

// Join returns the smallest span covering both a and b, assuming a
// precedes b in the same file.
func Join(a, b Span) Span {
	return Span{Start: a.Start, End: b.End}
}

// Kind enumerates token categories.
type Kind int

const (
	Invalid Kind = iota
	EOF

	Ident
	IntLit
	FloatLit
	CharLit
	StringLit
	FStringLit // backtick format string, raw text kept for the parser to split

	// Keywords
	KwAnd
	KwAs
	KwBool
	KwBreak
	KwChar
	KwContinue
	KwDef
	KwDefer
	KwElse
	KwEnum
	KwExtern
	KwExits
	KwFalse
	KwF32
	KwFor
	KwFn
	KwI32
	KwIf
	KwLet
	KwMatch
	KwNot
	KwNull
	KwOr
	KwReturn
	KwSizeof
	KwString
	KwStruct
	KwThen
	KwTrue
	KwU8
	KwUntypedPtr
	KwUnion
	KwUse
	KwVoid
	KwYield
	KwWhile

	// Punctuation & operators
	At       // @
	Amp      // &
	Caret    // ^
	LBrace   // {
	RBrace   // }
	LParen   // (
	RParen   // )
	LBracket // [
	RBracket // ]
	Colon    // :
	ColonColon
	Comma     // ,
	Dot       // .
	Assign    // =
	EqEq      // ==
	Bang      // !
	BangEq    // !=
	FatArrow  // =>
	Lt        // <
	Le        // <=
	Gt        // >
	Ge        // >=
	Minus     // -
	MinusEq   // -=
	Plus      // +
	PlusEq    // +=
	Question  // ?
	Semicolon // ;
	Slash     // /
	SlashEq   // /=
	Star      // *
	StarEq    // *=
	Percent   // %
	Pipe      // |
)

var keywords = map[string]Kind{
	"and": KwAnd, "as": KwAs, "bool": KwBool, "break": KwBreak,
	"char": KwChar, "continue": KwContinue, "def": KwDef, "defer": KwDefer,
	"else": KwElse, "enum": KwEnum, "extern": KwExtern, "exits": KwExits,
	"false": KwFalse, "f32": KwF32, "for": KwFor, "fn": KwFn, "i32": KwI32,
	"if": KwIf, "let": KwLet, "match": KwMatch, "not": KwNot, "null": KwNull,
	"or": KwOr, "return": KwReturn, "sizeof": KwSizeof, "string": KwString,
	"struct": KwStruct, "then": KwThen, "true": KwTrue, "u8": KwU8,
	"untyped_ptr": KwUntypedPtr, "union": KwUnion, "use": KwUse,
	"void": KwVoid, "yield": KwYield, "while": KwWhile,
}

// LookupKeyword returns the keyword Kind for an identifier text, and
// whether it is in fact a keyword.
func LookupKeyword(text string) (Kind, bool) {
	k, ok := keywords[text]
	return k, ok
}

// Token is one lexical unit: its kind, the span it covers, the
// original text, and whether whitespace before it contained a newline.
type Token struct {
	Kind        Kind
	Span        Span
	Text        string
	SeenNewline bool
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%s", t.Kind, t.Text, t.Span.Start)
}

//go:generate stringer -type=Kind
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}

var kindNames = map[Kind]string{
	Invalid: "Invalid", EOF: "EOF", Ident: "Ident", IntLit: "IntLit",
	FloatLit: "FloatLit", CharLit: "CharLit", StringLit: "StringLit",
	FStringLit: "FStringLit",
	KwAnd: "and", KwAs: "as", KwBool: "bool", KwBreak: "break",
	KwChar: "char", KwContinue: "continue", KwDef: "def", KwDefer: "defer",
	KwElse: "else", KwEnum: "enum", KwExtern: "extern", KwExits: "exits",
	KwFalse: "false", KwF32: "f32", KwFor: "for", KwFn: "fn", KwI32: "i32",
	KwIf: "if", KwLet: "let", KwMatch: "match", KwNot: "not", KwNull: "null",
	KwOr: "or", KwReturn: "return", KwSizeof: "sizeof", KwString: "string",
	KwStruct: "struct", KwThen: "then", KwTrue: "true", KwU8: "u8",
	KwUntypedPtr: "untyped_ptr", KwUnion: "union", KwUse: "use",
	KwVoid: "void", KwYield: "yield", KwWhile: "while",
	At:         "@", Amp: "&", Caret: "^", LBrace: "{", RBrace: "}",
	LParen: "(", RParen: ")", LBracket: "[", RBracket: "]", Colon: ":",
	ColonColon: "::", Comma: ",", Dot: ".", Assign: "=", EqEq: "==",
	Bang: "!", BangEq: "!=", FatArrow: "=>", Lt: "<", Le: "<=", Gt: ">",
	Ge: ">=", Minus: "-", MinusEq: "-=", Plus: "+", PlusEq: "+=",
	Question: "?", Semicolon: ";", Slash: "/", SlashEq: "/=", Star: "*",
	StarEq: "*=", Percent: "%", Pipe: "|",
}
