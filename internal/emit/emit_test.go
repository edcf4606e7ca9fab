package emit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mustafaquraish/aecor/internal/check"
	"github.com/mustafaquraish/aecor/internal/diag"
	"github.com/mustafaquraish/aecor/internal/parser"
	"github.com/stretchr/testify/require"
)

func emitSource(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.ae")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	store := diag.NewStore()
	prog := parser.New(store, path, nil).ParseProgram(path)
	prog = check.New(store, prog).Check()
	return New(prog, Options{}).Emit()
}

func TestDeferRunsInReverseAtBlockExit(t *testing.T) {
	c := emitSource(t, `
def main(): i32 {
    defer print("A")
    defer print("B")
    return 0
}`)
	bIdx := indexOf(t, c, `printf("B")`)
	aIdx := indexOf(t, c, `printf("A")`)
	require.Less(t, bIdx, aIdx, "deferred statements must print in reverse registration order")
}

func TestEarlyReturnRunsPendingDefersBeforeJump(t *testing.T) {
	c := emitSource(t, `
def main(): i32 {
    defer print("cleanup")
    if true {
        return 1
    }
    return 0
}`)
	cleanupIdx := indexOf(t, c, `printf("cleanup")`)
	returnIdx := indexOf(t, c, "return 1;")
	require.Less(t, cleanupIdx, returnIdx, "the pending defer must run before the early return it unwinds through")
}

func TestSimpleIfExpressionLowersToTernary(t *testing.T) {
	c := emitSource(t, `
def main(): i32 {
    let x: i32 = if true { 1 } else { 2 }
    return x
}`)
	require.Contains(t, c, "? 1 : 2")
}

func TestIfExpressionWithStatementsLowersToStatementExpression(t *testing.T) {
	c := emitSource(t, `
def main(): i32 {
    let x: i32 = if true {
        print("side effect")
        yield 1
    } else {
        yield 2
    }
    return x
}`)
	require.Contains(t, c, "({")
	require.Contains(t, c, "__yield_1")
}

func TestMatchOverIntSubjectLowersToSwitch(t *testing.T) {
	c := emitSource(t, `
def classify(n: i32): i32 {
    match n {
        1 | 2 => return 10,
        3 => return 20,
        else => return 0,
    }
}`)
	require.Contains(t, c, "switch (n)")
	require.Contains(t, c, "case 1:")
	require.Contains(t, c, "case 2:")
	require.Contains(t, c, "default:")
}

func TestMatchOverStringSubjectLowersToStrcmpChain(t *testing.T) {
	c := emitSource(t, `
def classify(s: string): i32 {
    match s {
        "a" => return 1,
        else => return 0,
    }
}`)
	require.Contains(t, c, "strcmp(")
}

func TestMethodCallMangledAndReceiverInjected(t *testing.T) {
	c := emitSource(t, `
struct Counter {
    value: i32
}

def Counter::bump(this) {
    this.value = this.value + 1
}

def main(): i32 {
    let c: Counter
    c.value = 0
    c.bump()
    return 0
}`)
	require.Contains(t, c, "Counter__bump")
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	idx := -1
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			idx = i
			break
		}
	}
	require.GreaterOrEqual(t, idx, 0, "expected to find %q in generated output", needle)
	return idx
}
