// Package check implements semantic analysis: struct registration and
// topological ordering, function registration, name resolution, and
// the expression/statement type rules of §4.D. It mutates the Program
// it is given in place (enum lowering, receiver injection, array
// decay, struct reordering) rather than building a second tree,
// mirroring the teacher's lang/ysem/analyzer.go walk-and-annotate
// shape generalized from a symbol-table-per-pass design to this
// spec's single shared AST.
package check

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mustafaquraish/aecor/internal/ast"
	"github.com/mustafaquraish/aecor/internal/diag"
	"github.com/mustafaquraish/aecor/internal/token"
)

type Checker struct {
	store *diag.Store
	prog  *ast.Program

	funcs   map[string]*ast.FunctionDef
	structs map[string]*ast.StructDef
	methods map[string]map[string]*ast.FunctionDef

	scopes []map[string]*ast.Variable

	curFunc      *ast.FunctionDef
	loopDepth    int
	loopBase     []int // deferStack length at each enclosing loop's entry
	canYieldStk  []bool
	deferStack   [][]*ast.AST // one frame per open block
	funcDeferLen int          // deferStack length at current function's entry
}

func New(store *diag.Store, prog *ast.Program) *Checker {
	return &Checker{
		store:   store,
		prog:    prog,
		funcs:   make(map[string]*ast.FunctionDef),
		structs: make(map[string]*ast.StructDef),
		methods: make(map[string]map[string]*ast.FunctionDef),
	}
}

// Check runs every pass of §4.D over c.prog and returns it, fully
// annotated and mutated, ready for emission.
func (c *Checker) Check() *ast.Program {
	c.structPass()
	c.functionRegistrationPass()
	c.globalPass()
	c.functionBodyPass()
	return c.prog
}

func (c *Checker) errorf(sp token.Span, format string, args ...interface{}) {
	diag.ErrorSpan(c.store, sp, fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------
// §4.D.1 Struct pass
// ---------------------------------------------------------------

func (c *Checker) structPass() {
	for _, s := range c.prog.Structures {
		if existing, ok := c.structs[s.Name]; ok {
			diag.ErrorSpanNoteSpan(c.store, s.Span, fmt.Sprintf("redefinition of struct %q", s.Name), existing.Span, "previously defined here")
		}
		c.structs[s.Name] = s
		c.methods[s.Name] = make(map[string]*ast.FunctionDef)
	}

	for _, s := range c.prog.Structures {
		for _, f := range s.Fields {
			c.resolveType(f.Type, f.Span)
		}
	}

	c.prog.Structures = c.topoSortStructs(c.prog.Structures)
}

// topoSortStructs implements the post-order DFS of §4.D.1, extended
// with three-color marking so a cycle between non-extern structs is
// reported instead of looping forever (an Open Question resolved in
// favor of a diagnostic over silent non-termination).
func (c *Checker) topoSortStructs(structs []*ast.StructDef) []*ast.StructDef {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(structs))
	byName := make(map[string]*ast.StructDef, len(structs))
	for _, s := range structs {
		byName[s.Name] = s
	}

	var order []*ast.StructDef
	var visit func(s *ast.StructDef, path []string)
	visit = func(s *ast.StructDef, path []string) {
		switch color[s.Name] {
		case black:
			return
		case gray:
			cycle := strings.Join(append(path, s.Name), " -> ")
			c.errorf(s.Span, "cyclic struct dependency: %s", cycle)
			return
		}
		color[s.Name] = gray
		if !s.IsExtern {
			for _, f := range s.Fields {
				if dep := structFieldDependency(f.Type); dep != "" {
					if depDef, ok := byName[dep]; ok && !depDef.IsExtern {
						visit(depDef, append(path, s.Name))
					}
				}
			}
		}
		color[s.Name] = black
		order = append(order, s)
	}

	for _, s := range structs {
		if color[s.Name] == white {
			visit(s, nil)
		}
	}
	return order
}

// structFieldDependency returns the struct name a field's type
// directly depends on for layout purposes (i.e. embeds, not points
// to), or "" if none. Pointer fields do not extend the DFS: a pointer
// to an incomplete type is still a fixed-size field in C.
func structFieldDependency(t *ast.Type) string {
	if t == nil || t.Kind != ast.Structure {
		return ""
	}
	return t.StructName
}

// resolveType fills in Structure.Def (and recurses through Pointer/
// Array/Function/Method) now that every struct name is registered,
// failing fatally on an unknown type name.
func (c *Checker) resolveType(t *ast.Type, sp token.Span) {
	if t == nil {
		return
	}
	switch t.Kind {
	case ast.Pointer:
		c.resolveType(t.Elem, sp)
	case ast.Array:
		c.resolveType(t.ArrayElem, sp)
	case ast.Structure:
		if t.Def == nil {
			def, ok := c.structs[t.StructName]
			if !ok {
				c.errorf(sp, "unknown type %q", t.StructName)
				return
			}
			t.Def = def
		}
	case ast.Function, ast.Method:
		for _, p := range t.Params {
			c.resolveType(p, sp)
		}
		c.resolveType(t.Return, sp)
	}
}

// ---------------------------------------------------------------
// §4.D.3 Function registration
// ---------------------------------------------------------------

func (c *Checker) functionRegistrationPass() {
	for _, fn := range c.prog.Functions {
		for _, param := range fn.Params {
			if param.Type != nil {
				c.resolveType(param.Type, fn.Span)
			}
		}
		c.resolveType(fn.ReturnType, fn.Span)

		paramTypes := make([]*ast.Type, 0, len(fn.Params))
		for _, p := range fn.Params {
			if fn.IsMethod && p.Name == "this" {
				continue
			}
			paramTypes = append(paramTypes, p.Type)
		}

		if fn.IsMethod {
			owner, ok := c.structs[fn.MethodStructName]
			if !ok {
				c.errorf(fn.Span, "method of unknown struct %q", fn.MethodStructName)
				continue
			}
			for _, field := range owner.Fields {
				if field.Name == fn.Name {
					c.errorf(fn.Span, "method %q collides with field %q of struct %q", fn.Name, fn.Name, owner.Name)
				}
			}
			if existing, ok := c.methods[owner.Name][fn.Name]; ok {
				diag.ErrorSpanNoteSpan(c.store, fn.Span, fmt.Sprintf("redefinition of method %s::%s", owner.Name, fn.Name), existing.Span, "previously defined here")
			}
			fn.Type = ast.NewMethod(owner.Name, paramTypes, fn.ReturnType)
			c.methods[owner.Name][fn.Name] = fn
			owner.Methods[fn.Name] = fn
		} else {
			if existing, ok := c.funcs[fn.Name]; ok {
				diag.ErrorSpanNoteSpan(c.store, fn.Span, fmt.Sprintf("redefinition of function %q", fn.Name), existing.Span, "previously defined here")
			}
			fn.Type = ast.NewFunction(paramTypes, fn.ReturnType)
			c.funcs[fn.Name] = fn
		}
	}
}

// ---------------------------------------------------------------
// §4.D.2 Global pass
// ---------------------------------------------------------------

func (c *Checker) globalPass() {
	c.pushScope()
	for _, g := range c.prog.GlobalVars {
		c.checkStmt(g)
	}
	c.popScope()
}

// ---------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------

func (c *Checker) pushScope() { c.scopes = append(c.scopes, make(map[string]*ast.Variable)) }
func (c *Checker) popScope()  { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *Checker) declare(v *ast.Variable) {
	c.scopes[len(c.scopes)-1][v.Name] = v
}

func (c *Checker) lookup(name string) *ast.Variable {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v
		}
	}
	return nil
}

// allScopeNames is used for the identifier-suggestion Levenshtein
// search (§4.D.6).
func (c *Checker) allScopeNames() []string {
	var names []string
	for _, scope := range c.scopes {
		for name := range scope {
			names = append(names, name)
		}
	}
	for name := range c.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------
// §4.D.4 Function body pass
// ---------------------------------------------------------------

func (c *Checker) functionBodyPass() {
	for _, fn := range c.prog.Functions {
		if fn.IsExtern || fn.Body == nil {
			continue
		}
		c.curFunc = fn
		c.funcDeferLen = len(c.deferStack)

		c.pushScope()
		for _, p := range fn.Params {
			c.declare(p)
		}
		c.checkBlock(fn.Body)
		c.popScope()

		if fn.ReturnType.Kind != ast.Void && !fn.Body.Returns && fn.Name != "main" {
			c.errorf(fn.Span, "function %q does not return on all paths", fn.Name)
		}
		c.curFunc = nil
	}
}

// ---------------------------------------------------------------
// Statements (§4.D.5)
// ---------------------------------------------------------------

func (c *Checker) checkBlock(n *ast.AST) {
	c.deferStack = append(c.deferStack, nil)
	for _, stmt := range n.Stmts {
		c.checkStmt(stmt)
		if stmt.Returns {
			n.Returns = true
		}
	}
	if len(n.Stmts) > 0 {
		// A block used in expression position (an if/match arm body)
		// yields whatever its last statement yielded; ignored when the
		// block is used in plain statement position.
		n.EType = n.Stmts[len(n.Stmts)-1].EType
	}
	c.deferStack = c.deferStack[:len(c.deferStack)-1]
}

func (c *Checker) canYield() bool {
	return len(c.canYieldStk) > 0 && c.canYieldStk[len(c.canYieldStk)-1]
}

func (c *Checker) checkStmt(n *ast.AST) {
	switch n.Kind {
	case ast.KBlock:
		c.pushScope()
		c.checkBlock(n)
		c.popScope()

	case ast.KVarDecl:
		c.checkVarDecl(n)

	case ast.KIf:
		c.checkExprExpectBool(n.Cond)
		c.checkStmt(n.Then)
		if n.Else != nil {
			c.checkStmt(n.Else)
			n.Returns = n.Then.Returns && n.Else.Returns
		}

	case ast.KWhile:
		c.checkExprExpectBool(n.Cond)
		c.enterLoop()
		c.checkStmt(n.Body)
		c.exitLoop()

	case ast.KFor:
		c.pushScope()
		if n.ForInit != nil {
			c.checkStmt(n.ForInit)
		}
		if n.ForCond != nil {
			c.checkExprExpectBool(n.ForCond)
		}
		if n.ForIncr != nil {
			c.checkExpr(n.ForIncr)
		}
		c.enterLoop()
		c.checkStmt(n.Body)
		c.exitLoop()
		c.popScope()

	case ast.KMatch:
		c.checkMatch(n, false)

	case ast.KBreak:
		if c.loopDepth == 0 {
			c.errorf(n.Span, "break outside of a loop")
		}
		n.PendingDefers = c.pendingDefersSince(c.currentLoopBase())
		n.Returns = true

	case ast.KContinue:
		if c.loopDepth == 0 {
			c.errorf(n.Span, "continue outside of a loop")
		}
		n.PendingDefers = c.pendingDefersSince(c.currentLoopBase())
		n.Returns = true

	case ast.KReturn:
		if c.curFunc == nil {
			c.errorf(n.Span, "return outside of a function")
		}
		if n.Expr == nil {
			if c.curFunc != nil && c.curFunc.ReturnType.Kind != ast.Void {
				c.errorf(n.Span, "missing return value in function returning %s", c.curFunc.ReturnType)
			}
		} else {
			t := c.checkExpr(n.Expr)
			if c.curFunc != nil && !t.Equal(c.curFunc.ReturnType) {
				c.errorf(n.Span, "return type mismatch: expected %s, got %s", c.curFunc.ReturnType, t)
			}
		}
		n.PendingDefers = c.pendingDefersSince(c.funcDeferLen)
		n.Returns = true

	case ast.KDefer:
		c.checkStmt(n.Expr)
		c.deferStack[len(c.deferStack)-1] = append(c.deferStack[len(c.deferStack)-1], n.Expr)

	case ast.KYield:
		if !c.canYield() {
			c.errorf(n.Span, "yield outside of an if/match used as an expression")
		}
		n.EType = c.checkExpr(n.Expr)

	default:
		// A bare expression used as a statement.
		c.checkExpr(n)
	}
}

func (c *Checker) enterLoop() {
	c.loopDepth++
	c.loopBase = append(c.loopBase, len(c.deferStack))
}

func (c *Checker) exitLoop() {
	c.loopDepth--
	c.loopBase = c.loopBase[:len(c.loopBase)-1]
}

func (c *Checker) currentLoopBase() int {
	if len(c.loopBase) == 0 {
		return len(c.deferStack)
	}
	return c.loopBase[len(c.loopBase)-1]
}

// pendingDefersSince flattens every open block's deferred statements
// from frame index `since` to the top of deferStack, then reverses
// the whole run so the most recently registered defer anywhere in
// that range fires first — true LIFO unwind across block boundaries,
// the REDESIGN behavior of §9 (the reference implementation only runs
// defers at normal block exit).
func (c *Checker) pendingDefersSince(since int) []*ast.AST {
	var flat []*ast.AST
	for i := since; i < len(c.deferStack); i++ {
		flat = append(flat, c.deferStack[i]...)
	}
	for i, j := 0, len(flat)-1; i < j; i, j = i+1, j-1 {
		flat[i], flat[j] = flat[j], flat[i]
	}
	return flat
}

func (c *Checker) checkVarDecl(n *ast.AST) {
	v := n.DeclVar
	if v.Type == nil && n.DeclInit == nil {
		c.errorf(n.Span, "let %q needs a type, an initializer, or both", v.Name)
		v.Type = ast.Scalar(ast.Invalid)
	} else if v.Type == nil {
		v.Type = c.checkExpr(n.DeclInit)
	} else {
		c.resolveType(v.Type, n.Span)
		if n.DeclInit != nil {
			initType := c.checkExpr(n.DeclInit)
			if !initType.Equal(v.Type) {
				c.errorf(n.Span, "cannot initialize %q of type %s with value of type %s", v.Name, v.Type, initType)
			}
		}
	}
	c.declare(v)
}

func (c *Checker) checkExprExpectBool(n *ast.AST) {
	t := c.checkExpr(n)
	if t.Kind != ast.Bool {
		c.errorf(n.Span, "expected a bool condition, got %s", t)
	}
}

// checkMatch implements the shared match-as-statement / match-as-
// expression logic; asExpr controls whether can_yield is pushed for
// the arm bodies and whether a joined type is computed.
func (c *Checker) checkMatch(n *ast.AST, asExpr bool) *ast.Type {
	subject := c.checkExpr(n.Cond)

	var joined *ast.Type
	// Without an else, only an enum match is known to take some arm on
	// every path: checkMatchEnumExhaustiveness rejects a missing variant.
	isEnum := subject.IsStruct() && subject.Def != nil && subject.Def.IsEnum
	allReturn := n.MatchElse != nil || (isEnum && len(n.MatchArms) > 0)

	checkArm := func(body *ast.AST) *ast.Type {
		if asExpr {
			c.canYieldStk = append(c.canYieldStk, true)
		}
		c.checkStmt(body)
		if asExpr {
			c.canYieldStk = c.canYieldStk[:len(c.canYieldStk)-1]
		}
		return body.EType
	}

	for i := range n.MatchArms {
		arm := &n.MatchArms[i]
		for _, pat := range arm.Patterns {
			if pat.Kind == ast.KIdent {
				c.resolveMatchIdentPattern(pat, subject)
			} else {
				c.checkExpr(pat)
			}
		}
		t := checkArm(arm.Body)
		if asExpr && !arm.Body.Returns {
			if joined == nil {
				joined = t
			} else if !joined.Equal(t) {
				c.errorf(arm.Body.Span, "match arms yield incompatible types: %s vs %s", joined, t)
			}
		}
		allReturn = allReturn && arm.Body.Returns
	}
	if n.MatchElse != nil {
		t := checkArm(n.MatchElse)
		if asExpr && !n.MatchElse.Returns {
			if joined == nil {
				joined = t
			} else if !joined.Equal(t) {
				c.errorf(n.MatchElse.Span, "match arms yield incompatible types: %s vs %s", joined, t)
			}
		}
		allReturn = allReturn && n.MatchElse.Returns
	} else if asExpr {
		c.errorf(n.Span, "match used as an expression needs an else arm")
	}

	c.checkMatchEnumExhaustiveness(n, subject)

	n.Returns = allReturn
	if asExpr {
		if joined == nil {
			joined = ast.Scalar(ast.Void)
		}
		n.EType = joined.Decay()
	}
	return n.EType
}

// checkMatchEnumExhaustiveness implements spec.md's enum-match
// exhaustiveness invariant: a match over an enum subject must cover
// every variant through its arms or an else, never both (an else when
// the arms already name every variant is redundant) and never neither
// (a missing variant with no else is non-exhaustive). A variant named
// in more than one arm is not diagnosed.
func (c *Checker) checkMatchEnumExhaustiveness(n *ast.AST, subject *ast.Type) {
	if !subject.IsStruct() || subject.Def == nil || !subject.Def.IsEnum {
		return
	}
	covered := map[string]bool{}
	for i := range n.MatchArms {
		for _, pat := range n.MatchArms[i].Patterns {
			if pat.Kind == ast.KEnumValue && pat.EnumDef == subject.Def {
				covered[pat.EnumName] = true
			}
		}
	}
	var missing []string
	for _, f := range subject.Def.Fields {
		if !covered[f.Name] {
			missing = append(missing, f.Name)
		}
	}
	switch {
	case n.MatchElse == nil && len(missing) > 0:
		c.errorf(n.Span, "match over enum %s is not exhaustive, missing variant(s): %s", subject.Def.Name, strings.Join(missing, ", "))
	case n.MatchElse != nil && len(missing) == 0:
		c.errorf(n.MatchElse.Span, "redundant else: match over enum %s already covers every variant", subject.Def.Name)
	}
}

// resolveMatchIdentPattern treats a bare identifier pattern as an enum
// variant name of the match subject's enum type when possible,
// otherwise as an ordinary (already-declared) constant reference.
func (c *Checker) resolveMatchIdentPattern(pat *ast.AST, subject *ast.Type) {
	if subject.IsStruct() && subject.Def != nil && subject.Def.IsEnum {
		for _, f := range subject.Def.Fields {
			if f.Name == pat.Name {
				pat.Kind = ast.KEnumValue
				pat.EnumDef = subject.Def
				pat.EnumName = pat.Name
				pat.EType = subject
				return
			}
		}
	}
	c.checkExpr(pat)
}

// ---------------------------------------------------------------
// Expressions (§4.D.6)
// ---------------------------------------------------------------

// checkExpr type-checks n, decaying Array results to Pointer per the
// trailing rule of §4.D.6, and returns the (possibly decayed) type.
func (c *Checker) checkExpr(n *ast.AST) *ast.Type {
	t := c.checkExprRaw(n)
	t = t.Decay()
	n.EType = t
	return t
}

func (c *Checker) checkExprRaw(n *ast.AST) *ast.Type {
	switch n.Kind {
	case ast.KIntLit:
		return ast.Scalar(ast.I32)
	case ast.KFloatLit:
		return ast.Scalar(ast.F32)
	case ast.KBoolLit:
		return ast.Scalar(ast.Bool)
	case ast.KCharLit:
		return ast.Scalar(ast.Char)
	case ast.KStringLit:
		return ast.StringAlias()
	case ast.KNullLit:
		return ast.UntypedPtrAlias()
	case ast.KFStringLit:
		return c.checkFormatString(n)

	case ast.KIdent:
		return c.checkIdent(n)

	case ast.KAddress:
		inner := c.checkExpr(n.Expr)
		return ast.NewPointer(inner)
	case ast.KDereference:
		inner := c.checkExpr(n.Expr)
		if !inner.IsPointer() {
			c.errorf(n.Span, "cannot dereference non-pointer type %s", inner)
			return ast.Scalar(ast.Invalid)
		}
		return inner.Elem
	case ast.KNot:
		inner := c.checkExpr(n.Expr)
		if inner.Kind != ast.Bool {
			c.errorf(n.Span, "unary ! requires bool, got %s", inner)
		}
		return ast.Scalar(ast.Bool)
	case ast.KUnaryMinus:
		inner := c.checkExpr(n.Expr)
		if !inner.IsNumeric() {
			c.errorf(n.Span, "unary - requires a numeric type, got %s", inner)
		}
		return inner
	case ast.KIsNotNull:
		inner := c.checkExpr(n.Expr)
		if !inner.IsPointer() {
			c.errorf(n.Span, "? requires a pointer type, got %s", inner)
		}
		return ast.Scalar(ast.Bool)
	case ast.KSizeof:
		c.resolveType(n.SizeofType, n.Span)
		return ast.Scalar(ast.I32)

	case ast.KAdd, ast.KSub, ast.KMul, ast.KDiv:
		return c.checkArithmetic(n)
	case ast.KMod:
		return c.checkBitwiseOrMod(n)
	case ast.KLt, ast.KLe, ast.KGt, ast.KGe:
		return c.checkComparison(n)
	case ast.KEq, ast.KNe:
		return c.checkEquality(n)
	case ast.KLogicalAnd, ast.KLogicalOr:
		return c.checkLogical(n)
	case ast.KAnd, ast.KOr, ast.KXor:
		return c.checkBitwiseOrMod(n)

	case ast.KAssign:
		lhs := c.checkExpr(n.LHS)
		rhs := c.checkExpr(n.RHS)
		if !lhs.Equal(rhs) {
			c.errorf(n.Span, "cannot assign %s to %s", rhs, lhs)
		}
		return lhs
	case ast.KAddEq, ast.KSubEq, ast.KMulEq, ast.KDivEq:
		lhs := c.checkExpr(n.LHS)
		c.checkExpr(n.RHS)
		return lhs

	case ast.KIndex:
		return c.checkIndex(n)
	case ast.KMember:
		return c.checkMember(n)
	case ast.KScope:
		return c.checkScope(n)
	case ast.KCast:
		c.checkExpr(n.LHS)
		c.resolveType(n.CastType, n.Span)
		return n.CastType
	case ast.KCall:
		return c.checkCall(n)

	case ast.KIf:
		return c.checkIfExpr(n)
	case ast.KMatch:
		return c.checkMatch(n, true)

	case ast.KEnumValue:
		return n.EType

	default:
		c.errorf(n.Span, "internal error: unhandled expression kind %s", n.Kind)
		return ast.Scalar(ast.Invalid)
	}
}

func (c *Checker) checkArithmetic(n *ast.AST) *ast.Type {
	lhs := c.checkExpr(n.LHS)
	rhs := c.checkExpr(n.RHS)
	switch {
	case lhs.IsPointer() && rhs.Kind == ast.I32:
		return lhs
	case lhs.Kind == ast.I32 && rhs.IsPointer():
		return rhs
	case lhs.IsPointer() && rhs.IsPointer() && n.Kind == ast.KSub:
		return ast.Scalar(ast.I32)
	case lhs.IsNumeric() && rhs.IsNumeric() && lhs.Equal(rhs):
		return lhs
	default:
		c.errorf(n.Span, "invalid operand types for arithmetic: %s and %s", lhs, rhs)
		return ast.Scalar(ast.Invalid)
	}
}

func (c *Checker) checkBitwiseOrMod(n *ast.AST) *ast.Type {
	lhs := c.checkExpr(n.LHS)
	rhs := c.checkExpr(n.RHS)
	if lhs.Kind != ast.I32 || rhs.Kind != ast.I32 {
		c.errorf(n.Span, "bitwise/mod operators require i32 operands, got %s and %s", lhs, rhs)
	}
	return ast.Scalar(ast.I32)
}

func (c *Checker) checkComparison(n *ast.AST) *ast.Type {
	lhs := c.checkExpr(n.LHS)
	rhs := c.checkExpr(n.RHS)
	if !lhs.IsNumeric() || !rhs.IsNumeric() {
		c.errorf(n.Span, "comparisons require numeric operands, got %s and %s", lhs, rhs)
	}
	return ast.Scalar(ast.Bool)
}

func (c *Checker) checkEquality(n *ast.AST) *ast.Type {
	lhs := c.checkExpr(n.LHS)
	rhs := c.checkExpr(n.RHS)
	if !lhs.Equal(rhs) {
		c.errorf(n.Span, "cannot compare %s with %s", lhs, rhs)
	} else if lhs.IsStruct() && lhs.Def != nil && !lhs.Def.IsEnum {
		c.errorf(n.Span, "structs cannot be compared directly (struct %s)", lhs.StructName)
	}
	return ast.Scalar(ast.Bool)
}

func (c *Checker) checkLogical(n *ast.AST) *ast.Type {
	lhs := c.checkExpr(n.LHS)
	rhs := c.checkExpr(n.RHS)
	if lhs.Kind != ast.Bool || rhs.Kind != ast.Bool {
		c.errorf(n.Span, "logical operators require bool operands, got %s and %s", lhs, rhs)
	}
	return ast.Scalar(ast.Bool)
}

func (c *Checker) checkIndex(n *ast.AST) *ast.Type {
	base := c.checkExpr(n.LHS)
	idx := c.checkExpr(n.RHS)
	if !base.IsPointer() {
		c.errorf(n.Span, "cannot index non-pointer type %s", base)
		return ast.Scalar(ast.Invalid)
	}
	if idx.Kind != ast.I32 {
		c.errorf(n.Span, "index must be i32, got %s", idx)
	}
	return base.Elem
}

func (c *Checker) checkIdent(n *ast.AST) *ast.Type {
	if v := c.lookup(n.Name); v != nil {
		n.Var = v
		return v.Type
	}
	if fn, ok := c.funcs[n.Name]; ok {
		n.Func = fn
		return fn.Type
	}
	suggestion := suggest(n.Name, c.allScopeNames())
	if suggestion != "" {
		c.errorf(n.Span, "unknown identifier %q (did you mean %q?)", n.Name, suggestion)
	} else {
		c.errorf(n.Span, "unknown identifier %q", n.Name)
	}
	return ast.Scalar(ast.Invalid)
}

// checkMember implements `a.b`: a must be a struct, pointer-to-struct
// or string; `.` on a pointer is transparent.
func (c *Checker) checkMember(n *ast.AST) *ast.Type {
	base := c.checkExpr(n.LHS)
	owner := base
	n.IsPointer = false
	if base.IsPointer() {
		n.IsPointer = true
		owner = base.Elem
	}
	if !owner.IsStruct() || owner.Def == nil {
		c.errorf(n.Span, "cannot access member %q of non-struct type %s", n.Member, base)
		return ast.Scalar(ast.Invalid)
	}
	for _, f := range owner.Def.Fields {
		if f.Name == n.Member {
			return f.Type
		}
	}
	if method, ok := c.methods[owner.StructName][n.Member]; ok {
		if method.IsStatic {
			c.errorf(n.Span, "cannot call static method %s::%s through an instance", owner.StructName, n.Member)
		}
		return method.Type
	}
	c.errorf(n.Span, "struct %q has no field or method %q", owner.StructName, n.Member)
	return ast.Scalar(ast.Invalid)
}

// checkScope implements `A::B`: rewrites to KEnumValue when A is an
// enum and B one of its variants, else resolves a static method.
func (c *Checker) checkScope(n *ast.AST) *ast.Type {
	if n.LHS.Kind != ast.KIdent {
		c.errorf(n.Span, "left of :: must be a struct name")
		return ast.Scalar(ast.Invalid)
	}
	owner, ok := c.structs[n.LHS.Name]
	if !ok {
		c.errorf(n.Span, "unknown struct %q", n.LHS.Name)
		return ast.Scalar(ast.Invalid)
	}
	if owner.IsEnum {
		for _, f := range owner.Fields {
			if f.Name == n.Member {
				n.Kind = ast.KEnumValue
				n.EnumDef = owner
				n.EnumName = n.Member
				return owner.Type
			}
		}
	}
	if method, ok := c.methods[owner.Name][n.Member]; ok {
		// Reuse EnumDef as a general "resolved owner" slot so the
		// emitter can mangle A::f without re-deriving owner from LHS.
		n.EnumDef = owner
		return method.Type
	}
	c.errorf(n.Span, "%q is neither an enum variant nor a method of %q", n.Member, owner.Name)
	return ast.Scalar(ast.Invalid)
}

// checkCall implements §4.D.6's Call row, including the print/println
// stub-typechecking carve-out and idempotent receiver injection.
func (c *Checker) checkCall(n *ast.AST) *ast.Type {
	if n.Callee.Kind == ast.KIdent && (n.Callee.Name == "print" || n.Callee.Name == "println") {
		for _, arg := range n.Args {
			c.checkExpr(arg)
		}
		return ast.Scalar(ast.Void)
	}

	calleeType := c.checkExpr(n.Callee)
	n.ResolvedFunc = c.resolveCallee(n)

	if calleeType.Kind == ast.Method && !n.ReceiverInjected {
		receiver := c.buildReceiverArg(n)
		if receiver != nil {
			n.Args = append([]*ast.AST{receiver}, n.Args...)
		}
		n.ReceiverInjected = true
	}

	if calleeType.Kind != ast.Function && calleeType.Kind != ast.Method {
		c.errorf(n.Span, "cannot call a value of type %s", calleeType)
		return ast.Scalar(ast.Invalid)
	}
	args := n.Args
	if calleeType.Kind == ast.Method && n.Callee.Kind == ast.KMember && len(args) > 0 {
		// Args[0] is the injected receiver; Method types leave `this`
		// out of Params.
		args = args[1:]
	}
	if len(args) != len(calleeType.Params) {
		c.errorf(n.Span, "expected %d arguments, got %d", len(calleeType.Params), len(args))
		return calleeType.Return
	}
	for i, arg := range args {
		argType := c.checkExpr(arg)
		if !argType.Equal(calleeType.Params[i]) {
			c.errorf(arg.Span, "argument %d: expected %s, got %s", i+1, calleeType.Params[i], argType)
		}
	}
	return calleeType.Return
}

// resolveCallee identifies the concrete FunctionDef a call targets, so
// the emitter can mangle and print its name directly instead of
// re-deriving it from the (by then receiver-rewritten) callee
// expression. Returns nil for a call through an ordinary
// function-pointer value, which the emitter instead prints by
// lowering the callee expression itself.
func (c *Checker) resolveCallee(call *ast.AST) *ast.FunctionDef {
	switch call.Callee.Kind {
	case ast.KIdent:
		return call.Callee.Func
	case ast.KMember:
		owner := call.Callee.LHS.EType
		if owner.IsPointer() {
			owner = owner.Elem
		}
		if owner.IsStruct() {
			return c.methods[owner.StructName][call.Callee.Member]
		}
	case ast.KScope:
		if call.Callee.LHS.Kind == ast.KIdent {
			return c.methods[call.Callee.LHS.Name][call.Callee.Member]
		}
	}
	return nil
}

// buildReceiverArg extracts the implicit receiver expression (the
// struct value a method call was reached through, e.g. the `a` in
// `a.m()`) and wraps it in & or * as needed to match the method's
// declared receiver-by-pointer-or-value shape. Returns nil when the
// callee wasn't a `.`/`::` access (an already-bound Method value),
// which this implementation does not support reassigning receivers
// for.
func (c *Checker) buildReceiverArg(call *ast.AST) *ast.AST {
	if call.Callee.Kind != ast.KMember {
		return nil
	}
	recv := call.Callee.LHS
	owner := recv.EType
	var fn *ast.FunctionDef
	if owner.IsPointer() {
		fn = c.methods[owner.Elem.StructName][call.Callee.Member]
	} else {
		fn = c.methods[owner.StructName][call.Callee.Member]
	}
	if fn == nil {
		return nil
	}
	wantPointer := fn.ReceiverByPointer
	havePointer := owner.IsPointer()
	switch {
	case wantPointer && !havePointer:
		addr := ast.New(ast.KAddress, recv.Span)
		addr.Expr = recv
		addr.EType = ast.NewPointer(owner)
		return addr
	case !wantPointer && havePointer:
		deref := ast.New(ast.KDereference, recv.Span)
		deref.Expr = recv
		deref.EType = owner.Elem
		return deref
	default:
		return recv
	}
}

// checkFormatString assigns a printf conversion specifier per
// interpolated expression's type (§4.D.6's Format string row). Per
// §9, bool deliberately reuses %s (a known undefined-behavior trap
// inherited unfixed from the reference implementation, which passes a
// _Bool through a %s vararg slot) rather than being special-cased to
// print "true"/"false" safely.
func (c *Checker) checkFormatString(n *ast.AST) *ast.Type {
	for _, expr := range n.Exprs {
		t := c.checkExpr(expr)
		if formatSpecifier(t) == "" {
			c.errorf(expr.Span, "cannot interpolate value of type %s into a format string", t)
		}
	}
	return ast.StringAlias()
}

// formatSpecifier returns the printf conversion for t, or "" if t
// cannot be interpolated.
func formatSpecifier(t *ast.Type) string {
	switch t.Kind {
	case ast.I32, ast.U8:
		return "%d"
	case ast.F32:
		return "%f"
	case ast.Char:
		return "%c"
	case ast.Bool:
		return "%s" // known UB trap, kept intentionally; see doc comment above
	case ast.Pointer:
		if t.IsVoidPointer() || (t.Elem != nil && t.Elem.Kind != ast.Char) {
			return "%p"
		}
		return "%s"
	default:
		return ""
	}
}

// FormatSpecifier exposes formatSpecifier to the emitter, which needs
// the same mapping to generate the C format string literal.
func FormatSpecifier(t *ast.Type) string { return formatSpecifier(t) }

func (c *Checker) checkIfExpr(n *ast.AST) *ast.Type {
	c.checkExprExpectBool(n.Cond)
	if n.Else == nil {
		c.errorf(n.Span, "if used as an expression needs an else branch")
	}

	c.canYieldStk = append(c.canYieldStk, true)
	c.checkStmt(n.Then)
	var elseType *ast.Type
	if n.Else != nil {
		c.checkStmt(n.Else)
		elseType = n.Else.EType
	}
	c.canYieldStk = c.canYieldStk[:len(c.canYieldStk)-1]

	thenType := n.Then.EType
	switch {
	case n.Then.Returns && n.Else != nil && !n.Else.Returns:
		n.Returns = false
		return elseType.Decay()
	case n.Else != nil && n.Else.Returns && !n.Then.Returns:
		n.Returns = false
		return thenType.Decay()
	case n.Then.Returns && n.Else != nil && n.Else.Returns:
		n.Returns = true
		return ast.Scalar(ast.Void)
	default:
		n.Returns = false
		if n.Else != nil && thenType != nil && elseType != nil && !thenType.Equal(elseType) {
			c.errorf(n.Span, "if/else branches yield incompatible types: %s vs %s", thenType, elseType)
		}
		return thenType.Decay()
	}
}

// ---------------------------------------------------------------
// Identifier suggestions
// ---------------------------------------------------------------

// suggest returns the candidate within Levenshtein distance 5 of name
// with the smallest distance, or "" if none qualifies (§4.D.6).
func suggest(name string, candidates []string) string {
	best := ""
	bestDist := 6
	for _, cand := range candidates {
		d := levenshtein(name, cand)
		if d < bestDist {
			bestDist = d
			best = cand
		}
	}
	if bestDist > 5 {
		return ""
	}
	return best
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
