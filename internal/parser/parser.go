// Package parser implements the recursive-descent parser of §4.C: one
// token of lookahead, a context stack for re-entering the lexer over
// format-string fragments and included files, left-to-right type
// syntax with a post-parse pointer-chain reversal, full expression
// precedence, and the declaration forms (def/struct/union/enum/let/
// use/@compiler).
//
// Grounded on the teacher's lang/yparse/{token,parser}.go recursive
// descent shape (TokenReader.Peek/Next/Expect), generalized to a
// hand-written precedence ladder and to the push/pop context stack
// this spec's format strings and module inclusion require.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mustafaquraish/aecor/internal/ast"
	"github.com/mustafaquraish/aecor/internal/diag"
	"github.com/mustafaquraish/aecor/internal/lexer"
	"github.com/mustafaquraish/aecor/internal/token"
	"github.com/mustafaquraish/aecor/lib"
)

// context is one entry of the parser's context stack: the token list
// and cursor position being consumed, plus the filename it came from
// (for diagnostics raised while parsing it).
type context struct {
	tokens   []token.Token
	curr     int
	filename string
}

type Parser struct {
	store *diag.Store
	prog  *ast.Program

	stack []context // top = current context

	// Include resolution (§6).
	entryDir    string
	includeDirs []string

	// Name tables, built incrementally as declarations are parsed, so
	// later declarations (and the type syntax) can reference earlier
	// structs by name before the checker ever runs.
	structsByName map[string]*ast.StructDef

	// matchArmDepth > 0 while parsing a match arm's body, so a trailing
	// comma (the arm separator) can terminate a statement there in
	// place of a semicolon or newline.
	matchArmDepth int
}

// New creates a parser for the entry file at entryPath with the given
// additional include directories (the `-l` flags). ParseProgram
// includes the prelude before it parses entryPath, per §4.C.6.
func New(store *diag.Store, entryPath string, includeDirs []string) *Parser {
	p := &Parser{
		store:         store,
		prog:          ast.NewProgram(),
		entryDir:      filepath.Dir(entryPath),
		includeDirs:   append([]string{"."}, includeDirs...),
		structsByName: make(map[string]*ast.StructDef),
	}
	return p
}

func (p *Parser) cur() *context { return &p.stack[len(p.stack)-1] }

func (p *Parser) push(tokens []token.Token, filename string) {
	p.stack = append(p.stack, context{tokens: tokens, curr: 0, filename: filename})
}

func (p *Parser) pop() {
	p.stack = p.stack[:len(p.stack)-1]
}

func (p *Parser) peek() token.Token {
	c := p.cur()
	return c.tokens[c.curr]
}

func (p *Parser) peekAt(n int) token.Token {
	c := p.cur()
	idx := c.curr + n
	if idx >= len(c.tokens) {
		return c.tokens[len(c.tokens)-1]
	}
	return c.tokens[idx]
}

func (p *Parser) next() token.Token {
	c := p.cur()
	tok := c.tokens[c.curr]
	if c.curr < len(c.tokens)-1 {
		c.curr++
	}
	return tok
}

func (p *Parser) at(kind token.Kind) bool { return p.peek().Kind == kind }

func (p *Parser) errorf(format string, args ...interface{}) {
	diag.ErrorSpan(p.store, p.peek().Span, fmt.Sprintf(format, args...))
}

func (p *Parser) expect(kind token.Kind) token.Token {
	if !p.at(kind) {
		p.errorf("expected %s, got %s %q", kind, p.peek().Kind, p.peek().Text)
	}
	return p.next()
}

func (p *Parser) accept(kind token.Kind) (token.Token, bool) {
	if p.at(kind) {
		return p.next(), true
	}
	return token.Token{}, false
}

// consumeNewlineOr accepts the explicit terminator kind, else requires
// that the *next* token was preceded by a newline (§4.C.1).
func (p *Parser) consumeNewlineOr(kind token.Kind) {
	if p.at(kind) {
		p.next()
		return
	}
	if p.matchArmDepth > 0 && p.at(token.Comma) {
		return
	}
	if p.peek().SeenNewline || p.at(token.EOF) || p.at(token.RBrace) {
		return
	}
	p.errorf("expected %s or a newline before %q", kind, p.peek().Text)
}

// ---------------------------------------------------------------
// Entry point
// ---------------------------------------------------------------

// ParseProgram loads and parses entryPath (after implicitly `use`ing
// lib/prelude.ae), returning the fully populated, not-yet-checked
// Program.
func (p *Parser) ParseProgram(entryPath string) *ast.Program {
	p.prog.CEmbedHeaders = append(p.prog.CEmbedHeaders, lib.PreludeHeader)

	p.includeSource("prelude.ae", lib.Prelude)
	p.parseTokensIntoProgram()

	p.includeFile(entryPath, entryPath)
	p.parseTokensIntoProgram()

	return p.prog
}

// includeSource lexes text under the given logical filename and
// pushes it as a new context, without consulting the includedFiles
// set (used only for the prelude, which is always included exactly
// once by construction).
func (p *Parser) includeSource(filename, text string) {
	src := diag.NewSource(filename, text)
	p.store.Add(src)
	toks := lexer.New(p.store, filename, text).Lex()
	p.push(toks, filename)
}

// includeFile resolves and loads a user source file, recording it in
// Program.IncludedFiles. Returns without pushing a context if the
// canonical path was already included.
func (p *Parser) includeFile(resolvedPath, displayName string) {
	if p.prog.AddIncludedFile(resolvedPath) {
		return
	}
	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		p.errorf("cannot read %q: %v", resolvedPath, err)
		return
	}
	p.includeSource(displayName, string(data))
}

// resolveUsePath implements §6's include resolution: `@/` against the
// entry file's directory, absolute paths verbatim, else each
// configured include directory in order.
func (p *Parser) resolveUsePath(path string) string {
	if strings.HasPrefix(path, "@/") {
		return filepath.Join(p.entryDir, path[2:])
	}
	if filepath.IsAbs(path) {
		return path
	}
	for _, dir := range p.includeDirs {
		candidate := filepath.Join(dir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	// Fall back to the first include dir so the error names a sensible path.
	return filepath.Join(p.includeDirs[0], path)
}

// parseTokensIntoProgram consumes every top-level declaration in the
// current context, popping back to the parent context at EOF. Nested
// `use` declarations push further contexts and recurse via the same
// loop (parseDecl itself calls parseTokensIntoProgram after pushing).
func (p *Parser) parseTokensIntoProgram() {
	for !p.at(token.EOF) {
		p.parseDecl()
	}
	p.pop()
}

// ---------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------

func (p *Parser) parseDecl() {
	switch {
	case p.at(token.KwUse):
		p.parseUse()
	case p.at(token.At):
		p.parseCompilerDirective()
	case p.at(token.KwStruct):
		p.parseStructOrUnion(false)
	case p.at(token.KwUnion):
		p.parseStructOrUnion(true)
	case p.at(token.KwEnum):
		p.parseEnum()
	case p.at(token.KwDef):
		p.parseFunction()
	case p.at(token.KwLet):
		p.parseGlobalLet()
	default:
		p.errorf("expected a declaration, got %s %q", p.peek().Kind, p.peek().Text)
		p.next()
	}
}

func (p *Parser) parseUse() {
	p.next() // use
	pathTok := p.expect(token.StringLit)
	p.consumeNewlineOr(token.Semicolon)

	resolved := p.resolveUsePath(pathTok.Text)
	depth := len(p.stack)
	p.includeFile(resolved, pathTok.Text)
	if len(p.stack) > depth {
		p.parseTokensIntoProgram()
	}
}

func (p *Parser) parseCompilerDirective() {
	p.next() // @
	name := p.expect(token.Ident).Text
	switch name {
	case "compiler":
		// `@compiler c_include "f"` / `c_flag "f"` / `c_embed_header "f"`
		sub := p.expect(token.Ident).Text
		value := p.expect(token.StringLit).Text
		switch sub {
		case "c_include":
			p.prog.CIncludes = append(p.prog.CIncludes, value)
		case "c_flag":
			p.prog.CFlags = append(p.prog.CFlags, value)
		case "c_embed_header":
			resolved := p.resolveUsePath(value)
			data, err := os.ReadFile(resolved)
			if err != nil {
				p.errorf("cannot read embedded header %q: %v", value, err)
			} else {
				p.prog.CEmbedHeaders = append(p.prog.CEmbedHeaders, string(data))
			}
		default:
			p.errorf("unknown @compiler directive %q", sub)
		}
	default:
		p.errorf("unknown directive @%s", name)
	}
	p.consumeNewlineOr(token.Semicolon)
}

func (p *Parser) parseExternClause() (isExtern bool, externName string) {
	if _, ok := p.accept(token.KwExtern); ok {
		isExtern = true
		if _, ok := p.accept(token.LParen); ok {
			externName = p.expect(token.StringLit).Text
			p.expect(token.RParen)
		}
	}
	return
}

func (p *Parser) parseStructOrUnion(isUnion bool) {
	start := p.peek().Span
	p.next() // struct | union
	name := p.expect(token.Ident).Text
	isExtern, externName := p.parseExternClause()

	def := &ast.StructDef{
		Name: name, Span: start, IsExtern: isExtern, ExternName: externName,
		IsUnion: isUnion, Methods: make(map[string]*ast.FunctionDef),
	}
	def.Type = &ast.Type{Kind: ast.Structure, StructName: name, Def: def}

	if existing, ok := p.structsByName[name]; ok {
		diag.ErrorSpanNoteSpan(p.store, start, fmt.Sprintf("redefinition of struct %q", name), existing.Span, "previously defined here")
	}
	p.structsByName[name] = def

	if isExtern {
		if !p.at(token.LBrace) {
			p.consumeNewlineOr(token.Semicolon)
			p.prog.Structures = append(p.prog.Structures, def)
			return
		}
	}

	p.expect(token.LBrace)
	for !p.at(token.RBrace) {
		fname := p.expect(token.Ident).Text
		p.expect(token.Colon)
		ftype := p.parseType()
		def.Fields = append(def.Fields, &ast.Variable{Name: fname, Type: ftype, Span: p.peek().Span})
		p.consumeNewlineOr(token.Comma)
	}
	p.expect(token.RBrace)
	p.prog.Structures = append(p.prog.Structures, def)
}

func (p *Parser) parseEnum() {
	start := p.peek().Span
	p.next() // enum
	name := p.expect(token.Ident).Text
	def := &ast.StructDef{Name: name, Span: start, IsEnum: true, Methods: make(map[string]*ast.FunctionDef)}
	def.Type = &ast.Type{Kind: ast.Structure, StructName: name, Def: def}
	p.structsByName[name] = def

	p.expect(token.LBrace)
	for !p.at(token.RBrace) {
		vname := p.expect(token.Ident).Text
		def.Fields = append(def.Fields, &ast.Variable{Name: vname, Type: ast.Scalar(ast.I32), Span: p.peek().Span})
		p.consumeNewlineOr(token.Comma)
	}
	p.expect(token.RBrace)
	p.prog.Structures = append(p.prog.Structures, def)
}

func (p *Parser) parseGlobalLet() {
	decl := p.parseLetStmt()
	p.prog.GlobalVars = append(p.prog.GlobalVars, decl)
}

// parseFunction parses `def [Struct::]name(params) [: T] [extern(...)]
// [exits] { body }` (§4.C.6).
func (p *Parser) parseFunction() {
	start := p.peek().Span
	p.next() // def

	firstName := p.expect(token.Ident).Text
	fn := &ast.FunctionDef{Span: start}

	if _, ok := p.accept(token.ColonColon); ok {
		fn.IsMethod = true
		fn.MethodStructName = firstName
		fn.Name = p.expect(token.Ident).Text
	} else {
		fn.Name = firstName
	}

	p.expect(token.LParen)
	fn.IsStatic = fn.IsMethod
	for !p.at(token.RParen) {
		byPointer := false
		if p.at(token.Amp) && p.peekAt(1).Kind == token.Ident && p.peekAt(1).Text == "this" {
			p.next() // & of `&this`
			byPointer = true
		}
		pname := p.expect(token.Ident).Text
		if pname == "this" {
			fn.IsStatic = false
			var pt *ast.Type
			if fn.MethodStructName != "" {
				pt = &ast.Type{Kind: ast.Structure, StructName: fn.MethodStructName}
				if byPointer {
					pt = ast.NewPointer(pt)
				}
			}
			fn.ReceiverByPointer = byPointer
			if _, ok := p.accept(token.Colon); ok {
				pt = p.parseType()
				fn.ReceiverByPointer = pt.Kind == ast.Pointer
			}
			fn.Params = append(fn.Params, &ast.Variable{Name: pname, Type: pt})
		} else {
			p.expect(token.Colon)
			ptype := p.parseType()
			fn.Params = append(fn.Params, &ast.Variable{Name: pname, Type: ptype})
		}
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	p.expect(token.RParen)

	if _, ok := p.accept(token.Colon); ok {
		fn.ReturnType = p.parseType()
	} else if fn.Name == "main" {
		fn.ReturnType = ast.Scalar(ast.I32)
	} else {
		fn.ReturnType = ast.Scalar(ast.Void)
	}

	isExtern, externName := p.parseExternClause()
	fn.IsExtern = isExtern
	fn.ExternName = externName

	if _, ok := p.accept(token.KwExits); ok {
		fn.Exits = true
	}

	if fn.IsExtern {
		p.consumeNewlineOr(token.Semicolon)
	} else {
		fn.Body = p.parseBlock()
	}

	p.prog.Functions = append(p.prog.Functions, fn)
}

// ---------------------------------------------------------------
// Types (§4.C.2)
// ---------------------------------------------------------------

func (p *Parser) parseType() *ast.Type {
	depth := 0
	for p.at(token.Amp) {
		p.next()
		depth++
	}

	base := p.parseBaseType()

	// Reverse the pointer chain so the head is the outermost
	// constructor (§4.C.2): "& & i32" means Pointer(Pointer(I32)),
	// which is already outermost-first as parsed here, so depth just
	// wraps base that many times.
	t := base
	for i := 0; i < depth; i++ {
		t = ast.NewPointer(t)
	}

	for p.at(token.LBracket) {
		p.next()
		sizeExpr := p.parseExpr()
		p.expect(token.RBracket)
		t = ast.NewArray(t, sizeExpr)
	}
	return t
}

func (p *Parser) parseBaseType() *ast.Type {
	tok := p.peek()
	switch tok.Kind {
	case token.KwChar:
		p.next()
		return ast.Scalar(ast.Char)
	case token.KwI32:
		p.next()
		return ast.Scalar(ast.I32)
	case token.KwF32:
		p.next()
		return ast.Scalar(ast.F32)
	case token.KwBool:
		p.next()
		return ast.Scalar(ast.Bool)
	case token.KwU8:
		p.next()
		return ast.Scalar(ast.U8)
	case token.KwVoid:
		p.next()
		return ast.Scalar(ast.Void)
	case token.KwString:
		p.next()
		return ast.StringAlias()
	case token.KwUntypedPtr:
		p.next()
		return ast.UntypedPtrAlias()
	case token.KwFn:
		p.next()
		p.expect(token.LParen)
		var params []*ast.Type
		for !p.at(token.RParen) {
			params = append(params, p.parseType())
			if _, ok := p.accept(token.Comma); !ok {
				break
			}
		}
		p.expect(token.RParen)
		ret := ast.Scalar(ast.Void)
		if _, ok := p.accept(token.Colon); ok {
			ret = p.parseType()
		}
		return ast.NewFunction(params, ret)
	case token.Ident:
		p.next()
		return ast.NewStruct(tok.Text)
	default:
		p.errorf("expected a type, got %s %q", tok.Kind, tok.Text)
		return ast.Scalar(ast.Void)
	}
}

// ---------------------------------------------------------------
// Statements (§4.C.5, §4.C.6 `let`)
// ---------------------------------------------------------------

func (p *Parser) parseBlock() *ast.AST {
	start := p.expect(token.LBrace).Span
	node := ast.New(ast.KBlock, start)
	for !p.at(token.RBrace) {
		node.Stmts = append(node.Stmts, p.parseStatement())
	}
	end := p.expect(token.RBrace).Span
	node.Span = token.Join(start, end)
	return node
}

func (p *Parser) parseStatement() *ast.AST {
	switch p.peek().Kind {
	case token.LBrace:
		return p.parseBlock()
	case token.KwLet:
		return p.parseLetStmt()
	case token.KwIf:
		return p.parseIf()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwFor:
		return p.parseFor()
	case token.KwMatch:
		return p.parseMatch()
	case token.KwDefer:
		return p.parseDefer()
	case token.KwReturn:
		return p.parseReturn()
	case token.KwYield:
		return p.parseYield()
	case token.KwBreak:
		n := ast.New(ast.KBreak, p.peek().Span)
		p.next()
		p.consumeNewlineOr(token.Semicolon)
		return n
	case token.KwContinue:
		n := ast.New(ast.KContinue, p.peek().Span)
		p.next()
		p.consumeNewlineOr(token.Semicolon)
		return n
	default:
		expr := p.parseExpr()
		p.consumeNewlineOr(token.Semicolon)
		return expr
	}
}

func (p *Parser) parseLetStmt() *ast.AST {
	start := p.peek().Span
	p.next() // let
	name := p.expect(token.Ident).Text
	variable := &ast.Variable{Name: name, Span: start}

	if _, ok := p.accept(token.Colon); ok {
		variable.Type = p.parseType()
	}
	if _, ok := p.accept(token.KwExtern); ok {
		variable.IsExtern = true
		if variable.Type == nil {
			p.errorf("extern declaration of %q requires an explicit type", name)
		}
		if _, ok := p.accept(token.LParen); ok {
			variable.ExternName = p.expect(token.StringLit).Text
			p.expect(token.RParen)
		}
	}

	node := ast.New(ast.KVarDecl, start)
	node.DeclVar = variable

	if _, ok := p.accept(token.Assign); ok {
		node.DeclInit = p.parseExpr()
	}
	p.consumeNewlineOr(token.Semicolon)
	node.Span = token.Join(start, p.peek().Span)
	return node
}

func (p *Parser) parseIf() *ast.AST {
	start := p.peek().Span
	p.next() // if
	node := ast.New(ast.KIf, start)
	node.Cond = p.parseExpr()
	p.accept(token.KwThen)
	node.Then = p.parseStatement()
	if _, ok := p.accept(token.KwElse); ok {
		node.Else = p.parseStatement()
	}
	return node
}

func (p *Parser) parseWhile() *ast.AST {
	start := p.peek().Span
	p.next() // while
	node := ast.New(ast.KWhile, start)
	node.Cond = p.parseExpr()
	node.Body = p.parseStatement()
	return node
}

func (p *Parser) parseFor() *ast.AST {
	start := p.peek().Span
	p.next() // for
	node := ast.New(ast.KFor, start)

	if !p.at(token.Semicolon) {
		if p.at(token.KwLet) {
			node.ForInit = p.parseLetStmtNoTerm()
		} else {
			node.ForInit = p.parseExpr()
		}
	}
	p.expect(token.Semicolon)
	if !p.at(token.Semicolon) {
		node.ForCond = p.parseExpr()
	}
	p.expect(token.Semicolon)
	if !p.at(token.LBrace) {
		node.ForIncr = p.parseExpr()
	}
	node.Body = p.parseStatement()
	return node
}

// parseLetStmtNoTerm parses a `let` binding without consuming a
// trailing terminator, for use as a `for` loop initializer where the
// terminator is the loop's own explicit `;`.
func (p *Parser) parseLetStmtNoTerm() *ast.AST {
	start := p.peek().Span
	p.next() // let
	name := p.expect(token.Ident).Text
	variable := &ast.Variable{Name: name, Span: start}
	if _, ok := p.accept(token.Colon); ok {
		variable.Type = p.parseType()
	}
	node := ast.New(ast.KVarDecl, start)
	node.DeclVar = variable
	if _, ok := p.accept(token.Assign); ok {
		node.DeclInit = p.parseExpr()
	}
	return node
}

func (p *Parser) parseMatch() *ast.AST {
	start := p.peek().Span
	p.next() // match
	node := ast.New(ast.KMatch, start)
	node.Cond = p.parseExpr()
	p.expect(token.LBrace)

	for !p.at(token.RBrace) {
		if _, ok := p.accept(token.KwElse); ok {
			p.expect(token.FatArrow)
			node.MatchElse = p.parseMatchBody()
		} else {
			var arm ast.MatchArm
			for {
				arm.Patterns = append(arm.Patterns, p.parseMatchPattern())
				if _, ok := p.accept(token.Pipe); !ok {
					break
				}
			}
			p.expect(token.FatArrow)
			arm.Body = p.parseMatchBody()
			node.MatchArms = append(node.MatchArms, arm)
		}
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	end := p.expect(token.RBrace).Span
	node.Span = token.Join(start, end)
	return node
}

// parseMatchBody parses one arm's body as a statement: a block, a
// `return`/`yield`/other statement, or a bare expression. The same
// grammar rule serves match used as a statement and match used as an
// expression (§4.C.5); the checker distinguishes the two by how it
// reaches the node.
func (p *Parser) parseMatchBody() *ast.AST {
	p.matchArmDepth++
	body := p.parseStatement()
	p.matchArmDepth--
	return body
}

func (p *Parser) parseMatchPattern() *ast.AST {
	tok := p.peek()
	switch tok.Kind {
	case token.Ident:
		p.next()
		n := ast.New(ast.KIdent, tok.Span)
		n.Name = tok.Text
		if _, ok := p.accept(token.ColonColon); ok {
			member := p.expect(token.Ident)
			scope := ast.New(ast.KScope, token.Join(tok.Span, member.Span))
			scope.LHS, scope.Member = n, member.Text
			return scope
		}
		return n
	case token.IntLit:
		return p.parsePrimaryLiteral()
	case token.CharLit:
		return p.parsePrimaryLiteral()
	case token.StringLit:
		return p.parsePrimaryLiteral()
	default:
		p.errorf("invalid match pattern: %s %q", tok.Kind, tok.Text)
		p.next()
		return ast.New(ast.KInvalid, tok.Span)
	}
}

func (p *Parser) parseDefer() *ast.AST {
	start := p.peek().Span
	p.next() // defer
	node := ast.New(ast.KDefer, start)
	node.Expr = p.parseStatement()
	node.Span = token.Join(start, node.Expr.Span)
	return node
}

func (p *Parser) parseReturn() *ast.AST {
	start := p.peek().Span
	p.next() // return
	node := ast.New(ast.KReturn, start)
	node.Returns = true
	if !p.at(token.Semicolon) && !p.peek().SeenNewline && !p.at(token.RBrace) {
		node.Expr = p.parseExpr()
	}
	p.consumeNewlineOr(token.Semicolon)
	return node
}

func (p *Parser) parseYield() *ast.AST {
	start := p.peek().Span
	p.next() // yield
	node := ast.New(ast.KYield, start)
	node.Expr = p.parseExpr()
	p.consumeNewlineOr(token.Semicolon)
	return node
}

// ---------------------------------------------------------------
// Expressions (§4.C.3)
// ---------------------------------------------------------------

func (p *Parser) parseExpr() *ast.AST { return p.parseAssignment() }

func (p *Parser) parseAssignment() *ast.AST {
	lhs := p.parseLogicalOr()
	var kind ast.Kind
	switch p.peek().Kind {
	case token.Assign:
		kind = ast.KAssign
	case token.PlusEq:
		kind = ast.KAddEq
	case token.MinusEq:
		kind = ast.KSubEq
	case token.StarEq:
		kind = ast.KMulEq
	case token.SlashEq:
		kind = ast.KDivEq
	default:
		return lhs
	}
	p.next() // the assignment operator itself
	rhs := p.parseAssignment() // right-associative
	n := ast.New(kind, token.Join(lhs.Span, rhs.Span))
	n.LHS, n.RHS = lhs, rhs
	return n
}

// binaryLevel is one entry in the precedence ladder below assignment.
type binaryLevel struct {
	next func() *ast.AST
	ops  map[token.Kind]ast.Kind
}

func (p *Parser) parseLeftAssoc(level binaryLevel) *ast.AST {
	lhs := level.next()
	for {
		kind, ok := level.ops[p.peek().Kind]
		if !ok {
			return lhs
		}
		p.next()
		rhs := level.next()
		n := ast.New(kind, token.Join(lhs.Span, rhs.Span))
		n.LHS, n.RHS = lhs, rhs
		lhs = n
	}
}

func (p *Parser) parseLogicalOr() *ast.AST {
	return p.parseLeftAssoc(binaryLevel{p.parseLogicalAnd_, map[token.Kind]ast.Kind{token.KwOr: ast.KLogicalOr}})
}
func (p *Parser) parseLogicalAnd_() *ast.AST {
	return p.parseLeftAssoc(binaryLevel{p.parseRelational_, map[token.Kind]ast.Kind{token.KwAnd: ast.KLogicalAnd}})
}
func (p *Parser) parseRelational_() *ast.AST {
	return p.parseLeftAssoc(binaryLevel{p.parseBitwiseOr_, map[token.Kind]ast.Kind{
		token.Lt: ast.KLt, token.Le: ast.KLe, token.Gt: ast.KGt, token.Ge: ast.KGe,
		token.EqEq: ast.KEq, token.BangEq: ast.KNe,
	}})
}
func (p *Parser) parseBitwiseOr_() *ast.AST {
	return p.parseLeftAssoc(binaryLevel{p.parseBitwiseXor_, map[token.Kind]ast.Kind{token.Pipe: ast.KOr}})
}
func (p *Parser) parseBitwiseXor_() *ast.AST {
	return p.parseLeftAssoc(binaryLevel{p.parseBitwiseAnd_, map[token.Kind]ast.Kind{token.Caret: ast.KXor}})
}
func (p *Parser) parseBitwiseAnd_() *ast.AST {
	return p.parseLeftAssoc(binaryLevel{p.parseAdditive_, map[token.Kind]ast.Kind{token.Amp: ast.KAnd}})
}
func (p *Parser) parseAdditive_() *ast.AST {
	return p.parseLeftAssoc(binaryLevel{p.parseMultiplicative_, map[token.Kind]ast.Kind{token.Plus: ast.KAdd, token.Minus: ast.KSub}})
}
func (p *Parser) parseMultiplicative_() *ast.AST {
	return p.parseLeftAssoc(binaryLevel{p.parseUnary, map[token.Kind]ast.Kind{
		token.Star: ast.KMul, token.Slash: ast.KDiv, token.Percent: ast.KMod,
	}})
}

func (p *Parser) parseUnary() *ast.AST {
	start := p.peek().Span
	switch p.peek().Kind {
	case token.Minus:
		p.next()
		n := ast.New(ast.KUnaryMinus, start)
		n.Expr = p.parseUnary()
		return n
	case token.Bang, token.KwNot:
		p.next()
		n := ast.New(ast.KNot, start)
		n.Expr = p.parseUnary()
		return n
	case token.Amp:
		p.next()
		n := ast.New(ast.KAddress, start)
		n.Expr = p.parseUnary()
		return n
	case token.Star:
		p.next()
		n := ast.New(ast.KDereference, start)
		n.Expr = p.parseUnary()
		return n
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() *ast.AST {
	node := p.parseFactor()
	for {
		switch p.peek().Kind {
		case token.LParen:
			node = p.parseCallTail(node)
		case token.LBracket:
			p.next()
			idx := p.parseExpr()
			end := p.expect(token.RBracket).Span
			n := ast.New(ast.KIndex, token.Join(node.Span, end))
			n.LHS, n.RHS = node, idx
			node = n
		case token.Dot:
			p.next()
			name := p.expect(token.Ident).Text
			n := ast.New(ast.KMember, token.Join(node.Span, p.peek().Span))
			n.LHS, n.Member = node, name
			node = n
		case token.ColonColon:
			p.next()
			name := p.expect(token.Ident).Text
			n := ast.New(ast.KScope, token.Join(node.Span, p.peek().Span))
			n.LHS, n.Member = node, name
			node = n
		case token.KwAs:
			p.next()
			t := p.parseType()
			n := ast.New(ast.KCast, node.Span)
			n.LHS, n.CastType = node, t
			node = n
		case token.Question:
			tok := p.next()
			n := ast.New(ast.KIsNotNull, token.Join(node.Span, tok.Span))
			n.Expr = node
			node = n
		default:
			return node
		}
	}
}

func (p *Parser) parseCallTail(callee *ast.AST) *ast.AST {
	p.next() // (
	n := ast.New(ast.KCall, callee.Span)
	n.Callee = callee
	for !p.at(token.RParen) {
		n.Args = append(n.Args, p.parseExpr())
		if _, ok := p.accept(token.Comma); !ok {
			break
		}
	}
	end := p.expect(token.RParen).Span
	n.Span = token.Join(callee.Span, end)
	return n
}

func (p *Parser) parsePrimaryLiteral() *ast.AST {
	tok := p.next()
	switch tok.Kind {
	case token.IntLit:
		n := ast.New(ast.KIntLit, tok.Span)
		v, _ := strconv.ParseInt(tok.Text, 10, 64)
		n.IntVal = v
		return n
	case token.FloatLit:
		n := ast.New(ast.KFloatLit, tok.Span)
		v, _ := strconv.ParseFloat(tok.Text, 64)
		n.FloatVal = v
		return n
	case token.CharLit:
		n := ast.New(ast.KCharLit, tok.Span)
		if len(tok.Text) > 0 {
			n.CharVal = tok.Text[0]
		}
		return n
	case token.StringLit:
		n := ast.New(ast.KStringLit, tok.Span)
		n.StringVal = tok.Text
		return n
	default:
		p.errorf("expected a literal, got %s %q", tok.Kind, tok.Text)
		return ast.New(ast.KInvalid, tok.Span)
	}
}

// parseFactor handles the highest-precedence leaves: literals, `if`/
// `match` as expressions, parens, sizeof, identifiers, the `.name`
// shorthand for `this.name`, and format strings (§4.C.3, §4.C.4).
func (p *Parser) parseFactor() *ast.AST {
	tok := p.peek()
	switch tok.Kind {
	case token.IntLit, token.FloatLit, token.CharLit, token.StringLit:
		return p.parsePrimaryLiteral()
	case token.KwTrue, token.KwFalse:
		p.next()
		n := ast.New(ast.KBoolLit, tok.Span)
		n.BoolVal = tok.Kind == token.KwTrue
		return n
	case token.KwNull:
		p.next()
		return ast.New(ast.KNullLit, tok.Span)
	case token.KwSizeof:
		p.next()
		p.expect(token.LParen)
		t := p.parseType()
		end := p.expect(token.RParen).Span
		n := ast.New(ast.KSizeof, token.Join(tok.Span, end))
		n.SizeofType = t
		return n
	case token.LParen:
		p.next()
		inner := p.parseExpr()
		p.expect(token.RParen)
		return inner
	case token.KwIf:
		return p.parseIf()
	case token.KwMatch:
		return p.parseMatch()
	case token.Dot:
		p.next()
		name := p.expect(token.Ident).Text
		this := ast.New(ast.KIdent, tok.Span)
		this.Name = "this"
		n := ast.New(ast.KMember, token.Join(tok.Span, p.peek().Span))
		n.LHS, n.Member = this, name
		return n
	case token.Ident:
		p.next()
		n := ast.New(ast.KIdent, tok.Span)
		n.Name = tok.Text
		return n
	case token.FStringLit:
		return p.parseFormatString(tok)
	default:
		p.errorf("unexpected token in expression: %s %q", tok.Kind, tok.Text)
		p.next()
		return ast.New(ast.KInvalid, tok.Span)
	}
}

// parseFormatString splits the raw backtick text at unescaped,
// nesting-balanced braces and re-lexes each bracketed expression by
// pushing a fresh sub-lexer's token list onto the context stack,
// positioned so diagnostics inside it still point into the outer
// source (§4.C.4). Invariant: len(Parts) == len(Exprs)+1.
func (p *Parser) parseFormatString(tok token.Token) *ast.AST {
	p.next()
	n := ast.New(ast.KFStringLit, tok.Span)

	raw := tok.Text
	var curPart strings.Builder
	i := 0
	startLine, startCol := tok.Span.Start.Line, tok.Span.Start.Column+1 // +1 for opening backtick
	line, col := startLine, startCol

	advance := func() byte {
		ch := raw[i]
		i++
		if ch == '\n' {
			line++
			col = 1
		} else {
			col++
		}
		return ch
	}

	for i < len(raw) {
		ch := raw[i]
		if ch == '\\' {
			curPart.WriteByte(advance())
			if i < len(raw) {
				curPart.WriteByte(advance())
			}
			continue
		}
		if ch == '{' {
			fragStart := token.Location{Filename: tok.Span.Start.Filename, Line: line, Column: col}
			advance() // {
			depth := 1
			var frag strings.Builder
			for i < len(raw) && depth > 0 {
				c := raw[i]
				if c == '{' {
					depth++
				} else if c == '}' {
					depth--
					if depth == 0 {
						advance()
						break
					}
				}
				frag.WriteByte(advance())
			}
			n.Parts = append(n.Parts, curPart.String())
			curPart.Reset()
			n.Exprs = append(n.Exprs, p.parseSubExpression(frag.String(), fragStart))
			continue
		}
		curPart.WriteByte(advance())
	}
	n.Parts = append(n.Parts, curPart.String())
	return n
}

// parseSubExpression lexes and parses fragment as a standalone
// expression, with the sub-lexer's starting location offset so
// diagnostics raised inside it report the correct outer-source
// position (the context-stack push/pop re-entry named in §4.C.4/§9).
func (p *Parser) parseSubExpression(fragment string, startLoc token.Location) *ast.AST {
	filename := startLoc.Filename
	sub := lexer.New(p.store, filename, fragment)
	toks := sub.Lex()
	for idx := range toks {
		toks[idx].Span.Start = offsetLocation(startLoc, toks[idx].Span.Start)
		toks[idx].Span.End = offsetLocation(startLoc, toks[idx].Span.End)
	}
	p.push(toks, filename)
	expr := p.parseExpr()
	p.pop()
	return expr
}

func offsetLocation(base, rel token.Location) token.Location {
	if rel.Line == 1 {
		return token.Location{Filename: base.Filename, Line: base.Line, Column: base.Column + rel.Column - 1}
	}
	return token.Location{Filename: base.Filename, Line: base.Line + rel.Line - 1, Column: rel.Column}
}
