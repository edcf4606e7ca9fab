// Package ast holds the shared, mutable data model described in §3:
// locations/spans live in package token; Type, Variable, StructDef,
// FunctionDef, the tagged AST node and Program all live here so that
// the lexer, parser, checker and emitter can share one value graph
// without import cycles, the same way the teacher's lang/yparse
// package keeps ast.go, types.go and symtab.go together.
package ast

import "github.com/mustafaquraish/aecor/internal/token"

// Node is implemented by every AST value; kept minimal so that
// Type.ArraySize (an unresolved array-bound expression) can refer to
// it without depending on the rest of this file's concrete shape.
type Node interface {
	Loc() token.Span
}

// Kind tags the variant an *AST node carries. Named directly after
// what each node does, per the project's ENUM_AST_TYPES precedent in
// original_source/src/ast.hh.
type Kind int

const (
	KInvalid Kind = iota

	// Literals
	KIntLit
	KFloatLit
	KBoolLit
	KCharLit
	KStringLit
	KNullLit
	KFStringLit

	// Identifier / resolved references
	KIdent
	KEnumValue // post-lowering: A::B rewritten once B resolves to an enum field

	// Unary
	KAddress
	KDereference
	KNot
	KUnaryMinus
	KIsNotNull
	KSizeof
	KReturn
	KYield
	KDefer

	// Binary
	KAdd
	KSub
	KMul
	KDiv
	KMod
	KAnd // bitwise &
	KOr  // bitwise |
	KXor
	KLogicalAnd
	KLogicalOr
	KEq
	KNe
	KLt
	KLe
	KGt
	KGe
	KAssign
	KAddEq
	KSubEq
	KMulEq
	KDivEq
	KIndex

	KMember // a.b
	KScope  // a::b, pre-lowering
	KCast
	KCall

	KVarDecl
	KIf
	KWhile
	KFor
	KMatch
	KBlock

	KBreak
	KContinue
)

// Kind.String aids diagnostics and test failure messages.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Kind(?)"
}

var kindNames = map[Kind]string{
	KInvalid: "Invalid", KIntLit: "IntLit", KFloatLit: "FloatLit", KBoolLit: "BoolLit",
	KCharLit: "CharLit", KStringLit: "StringLit", KNullLit: "NullLit", KFStringLit: "FStringLit",
	KIdent: "Ident", KEnumValue: "EnumValue", KAddress: "Address", KDereference: "Dereference",
	KNot: "Not", KUnaryMinus: "UnaryMinus", KIsNotNull: "IsNotNull", KSizeof: "Sizeof",
	KReturn: "Return", KYield: "Yield", KDefer: "Defer", KAdd: "Add", KSub: "Sub", KMul: "Mul",
	KDiv: "Div", KMod: "Mod", KAnd: "And", KOr: "Or", KXor: "Xor", KLogicalAnd: "LogicalAnd",
	KLogicalOr: "LogicalOr", KEq: "Eq", KNe: "Ne", KLt: "Lt", KLe: "Le", KGt: "Gt", KGe: "Ge",
	KAssign: "Assign", KAddEq: "AddEq", KSubEq: "SubEq", KMulEq: "MulEq", KDivEq: "DivEq",
	KIndex: "Index", KMember: "Member", KScope: "Scope", KCast: "Cast", KCall: "Call",
	KVarDecl: "VarDecl", KIf: "If", KWhile: "While", KFor: "For", KMatch: "Match",
	KBlock: "Block", KBreak: "Break", KContinue: "Continue",
}

// Variable is a named, typed binding: a parameter, local, global or
// struct field.
type Variable struct {
	Name       string
	Type       *Type
	Span       token.Span
	IsExtern   bool
	ExternName string
}

// StructDef is a struct, union or enum declaration. Enums reuse this
// shape with IsEnum set and I32-typed fields acting as discriminants
// rather than payload-carrying members.
type StructDef struct {
	Name       string
	Type       *Type // back-reference, Kind == Structure
	Fields     []*Variable
	Span       token.Span
	IsExtern   bool
	ExternName string
	IsEnum     bool
	IsUnion    bool

	Methods map[string]*FunctionDef
}

func (s *StructDef) Loc() token.Span { return s.Span }

// FunctionDef is a free function or method declaration.
type FunctionDef struct {
	Name             string
	Params           []*Variable
	ReturnType       *Type
	Body             *AST // nil for extern
	Exits            bool // noreturn
	Type             *Type
	Span             token.Span
	IsExtern         bool
	ExternName       string
	IsMethod         bool
	IsStatic         bool
	MethodStructName string

	// ReceiverByPointer is true when the method's `this` parameter was
	// declared `&this` (by-pointer) rather than `this` (by-value).
	ReceiverByPointer bool
}

func (f *FunctionDef) Loc() token.Span { return f.Span }

// AST is the tagged-union expression/statement node. Each Kind uses a
// disjoint subset of the payload fields below; unused fields are left
// nil/zero. Every node carries Span, an optional yielded type (EType,
// only meaningful when the node is used in expression position) and
// Returns (true iff every path through this node returns).
type AST struct {
	Kind    Kind
	Span    token.Span
	EType   *Type
	Returns bool

	// literals
	IntVal    int64
	FloatVal  float64
	BoolVal   bool
	CharVal   byte
	StringVal string

	// KFStringLit: |Parts| = |Exprs| + 1 (§4.C.4 invariant)
	Parts []string
	Exprs []*AST

	// identifier / resolved reference
	Name     string
	Var      *Variable    // filled in by checker for KIdent naming a variable
	Func     *FunctionDef // filled in by checker for KIdent naming a function
	EnumDef  *StructDef   // KEnumValue: owning enum
	EnumName string       // KEnumValue: variant name (duplicates Name, kept for clarity at emit time)

	// unary / binary operands
	LHS  *AST
	RHS  *AST
	Expr *AST // single-operand forms (Address, Dereference, Not, UnaryMinus,
	// IsNotNull, Sizeof, Return, Yield, Defer)

	// member / scope access
	Member     string
	IsPointer  bool // member access is through a pointer (transparent `.`)
	ScopeOwner string

	// cast
	CastType *Type

	// call
	Callee           *AST
	Args             []*AST
	ReceiverInjected bool         // idempotence guard for method-call lowering
	ResolvedFunc     *FunctionDef // the concrete function/method this call invokes, nil for a call through a function-pointer value

	// sizeof
	SizeofType *Type

	// var decl
	DeclVar  *Variable
	DeclInit *AST

	// control constructs
	Cond *AST
	Then *AST
	Else *AST

	ForInit *AST
	ForCond *AST
	ForIncr *AST
	Body    *AST

	MatchArms []MatchArm
	MatchElse *AST

	Stmts []*AST // KBlock

	// PendingDefers is filled in by the checker for KReturn/KBreak/
	// KContinue: the deferred statements active across every enclosing
	// block boundary this jump unwinds through, most recently registered
	// first. The emitter runs them in list order before emitting the
	// jump itself.
	PendingDefers []*AST
}

func (n *AST) Loc() token.Span { return n.Span }

// MatchArm is one `pat [| pat]... => body` clause. Patterns are either
// identifiers (enum variant or, pre-resolution, bare constant names),
// `Enum::Variant` scope expressions, or literal ASTs (int/char/string).
type MatchArm struct {
	Patterns []*AST
	Body     *AST
}

// New creates a bare node of the given kind at span sp; callers fill
// in the payload fields that apply to that kind.
func New(kind Kind, sp token.Span) *AST {
	return &AST{Kind: kind, Span: sp}
}

// Program is the root value produced by the parser and mutated in
// place by the type checker (struct reordering, AST rewriting) before
// being handed, read-only, to the emitter.
type Program struct {
	Functions  []*FunctionDef
	Structures []*StructDef
	GlobalVars []*AST // KVarDecl nodes

	CFlags        []string
	CIncludes     []string
	CEmbedHeaders []string

	// IncludedFiles is keyed by canonicalized relative path (leading
	// "./" stripped), so that `use`-ing the same file twice is a
	// single contribution.
	IncludedFiles map[string]bool
}

func NewProgram() *Program {
	return &Program{IncludedFiles: make(map[string]bool)}
}

// AddIncludedFile records filename as included and reports whether it
// was already present (i.e. this use/include is a no-op).
func (p *Program) AddIncludedFile(filename string) (alreadyIncluded bool) {
	key := canonicalizeIncludePath(filename)
	if p.IncludedFiles[key] {
		return true
	}
	p.IncludedFiles[key] = true
	return false
}

func canonicalizeIncludePath(filename string) string {
	for len(filename) >= 2 && filename[0] == '.' && filename[1] == '/' {
		filename = filename[2:]
	}
	return filename
}

// LookupStruct returns the struct/enum/union definition named name,
// or nil.
func (p *Program) LookupStruct(name string) *StructDef {
	for _, s := range p.Structures {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// LookupFunction returns the free function named name, or nil. Method
// lookup goes through StructDef.Methods instead.
func (p *Program) LookupFunction(name string) *FunctionDef {
	for _, f := range p.Functions {
		if f.Name == name && !f.IsMethod {
			return f
		}
	}
	return nil
}
