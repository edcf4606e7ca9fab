package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mustafaquraish/aecor/internal/ast"
	"github.com/mustafaquraish/aecor/internal/diag"
)

// writeTemp writes src to a fresh temp file with the given basename
// and returns its path.
func writeTemp(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func parseOK(t *testing.T, src string) *ast.Program {
	t.Helper()
	dir := t.TempDir()
	entry := writeTemp(t, dir, "main.ae", src)
	store := diag.NewStore()
	p := New(store, entry, nil)
	return p.ParseProgram(entry)
}

func TestParsesSimpleFunction(t *testing.T) {
	prog := parseOK(t, `
def main(): i32 {
	let x = 1 + 2 * 3
	return x
}
`)
	fn := prog.LookupFunction("main")
	require.NotNil(t, fn)
	require.Equal(t, ast.I32, fn.ReturnType.Kind)
	require.NotNil(t, fn.Body)
	require.Len(t, fn.Body.Stmts, 2)
}

func TestStructFieldsAndMethod(t *testing.T) {
	prog := parseOK(t, `
struct Point {
	x: i32,
	y: i32,
}

def Point::sum(this): i32 {
	return this.x + this.y
}
`)
	def := prog.LookupStruct("Point")
	require.NotNil(t, def)
	require.Len(t, def.Fields, 2)

	var method *ast.FunctionDef
	for _, fn := range prog.Functions {
		if fn.IsMethod && fn.MethodStructName == "Point" && fn.Name == "sum" {
			method = fn
		}
	}
	require.NotNil(t, method)
	require.False(t, method.IsStatic)
}

func TestPointerTypeChain(t *testing.T) {
	prog := parseOK(t, `
def id(p: &&i32): &&i32 {
	return p
}
`)
	fn := prog.LookupFunction("id")
	require.NotNil(t, fn)
	require.True(t, fn.Params[0].Type.IsPointer())
	require.True(t, fn.Params[0].Type.Elem.IsPointer())
}

func TestArrayTypeKeepsSizeExprUnevaluated(t *testing.T) {
	prog := parseOK(t, `
def f() {
	let xs: i32[10]
}
`)
	fn := prog.LookupFunction("f")
	require.NotNil(t, fn)
	decl := fn.Body.Stmts[0]
	require.Equal(t, ast.KVarDecl, decl.Kind)
	require.True(t, decl.DeclVar.Type.IsArray())
	require.NotNil(t, decl.DeclVar.Type.ArraySize)
}

func TestFormatStringSplitsIntoPartsAndExprs(t *testing.T) {
	prog := parseOK(t, `
def f() {
	let name = "world"
	let greeting = ` + "`" + `hello {name}, {1 + 2}!` + "`" + `
}
`)
	fn := prog.LookupFunction("f")
	require.NotNil(t, fn)
	decl := fn.Body.Stmts[1]
	fstr := decl.DeclInit
	require.Equal(t, ast.KFStringLit, fstr.Kind)
	require.Len(t, fstr.Exprs, 2)
	require.Len(t, fstr.Parts, 3)
	require.Equal(t, "hello ", fstr.Parts[0])
	require.Equal(t, ast.KIdent, fstr.Exprs[0].Kind)
	require.Equal(t, ast.KAdd, fstr.Exprs[1].Kind)
}

func TestUseIncludesFileOnce(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "helper.ae", `
def helper(): i32 {
	return 42
}
`)
	entry := writeTemp(t, dir, "main.ae", `
use "helper.ae"
use "helper.ae"

def main(): i32 {
	return helper()
}
`)
	store := diag.NewStore()
	p := New(store, entry, []string{dir})
	prog := p.ParseProgram(entry)

	count := 0
	for _, fn := range prog.Functions {
		if fn.Name == "helper" {
			count++
		}
	}
	require.Equal(t, 1, count, "including the same file twice must not duplicate its declarations")
}

func TestDeferAndControlFlowParse(t *testing.T) {
	prog := parseOK(t, `
def main(): i32 {
	defer println("A")
	defer println("B")
	for let i = 0; i < 10; i += 1 {
		if i == 5 {
			break
		} else {
			continue
		}
	}
	match i {
		1 | 2 => println("low"),
		else => println("other"),
	}
	return 0
}
`)
	fn := prog.LookupFunction("main")
	require.NotNil(t, fn)
	require.Equal(t, ast.KDefer, fn.Body.Stmts[0].Kind)
	require.Equal(t, ast.KDefer, fn.Body.Stmts[1].Kind)
	require.Equal(t, ast.KFor, fn.Body.Stmts[2].Kind)
	require.Equal(t, ast.KMatch, fn.Body.Stmts[3].Kind)
}

// Parser idempotence on includes (§8 property): the implicitly-included
// prelude contributes its declarations once, and the entry file shows
// up once in IncludedFiles (the prelude-sized counterpart of
// TestUseIncludesFileOnce).
func TestPreludeIsOnlyIncludedOnce(t *testing.T) {
	prog := parseOK(t, `def main(): i32 { return 0 }`)
	require.True(t, len(prog.IncludedFiles) >= 1)
	// The prelude is pushed via includeSource (no AddIncludedFile call),
	// so only the entry file itself shows up in IncludedFiles.
	count := 0
	for k := range prog.IncludedFiles {
		if filepath.Base(k) == "main.ae" {
			count++
		}
	}
	require.Equal(t, 1, count)
	malloc := 0
	for _, fn := range prog.Functions {
		if fn.Name == "malloc" {
			malloc++
		}
	}
	require.Equal(t, 1, malloc, "the prelude's declarations must be parsed exactly once")
}
