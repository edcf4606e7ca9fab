package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mustafaquraish/aecor/internal/check"
	"github.com/mustafaquraish/aecor/internal/diag"
	"github.com/mustafaquraish/aecor/internal/emit"
	"github.com/mustafaquraish/aecor/internal/parser"
	"github.com/stretchr/testify/require"
)

// compileCase exercises the whole pipeline exactly as run() wires it,
// without shelling out to a C compiler, the same way ypeep_test.go and
// assembler_test.go drive their pass under test directly rather than
// through the process entry point.
type compileCase struct {
	name string
	src  string
	want []string
}

var compileCases = []compileCase{
	{
		name: "hello_world",
		src: `
def main(): i32 {
    println("hello, world")
    return 0
}`,
		want: []string{"int main(", `printf("hello, world \n")`, "return 0;"},
	},
	{
		name: "struct_and_method",
		src: `
struct Point {
    x: i32
    y: i32
}

def Point::sum(this): i32 {
    return this.x + this.y
}

def main(): i32 {
    let p: Point
    p.x = 3
    p.y = 4
    return p.sum()
}`,
		want: []string{"struct Point", "Point__sum", "(this.x) + (this.y)", "((p.x) = 3);"},
	},
	{
		name: "enum_match",
		src: `
enum Color {
    Red
    Green
    Blue
}

def name(c: Color): string {
    match c {
        Color::Red => return "red",
        else => return "unknown",
    }
}

def main(): i32 {
    return 0
}`,
		want: []string{"switch (c)", "case Color__Red:", "default:"},
	},
	{
		name: "defer_chain",
		src: `
def main(): i32 {
    defer println("first")
    defer println("second")
    if true {
        return 1
    }
    return 0
}`,
		want: []string{"/* defers */", "return 1;"},
	},
	{
		name: "if_expression",
		src: `
def main(): i32 {
    let x: i32 = if true { 1 } else { 2 }
    return x
}`,
		want: []string{"? 1 : 2"},
	},
}

func TestEndToEndCompilation(t *testing.T) {
	for _, tc := range compileCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "main.ae")
			require.NoError(t, os.WriteFile(path, []byte(tc.src), 0o644))

			store := diag.NewStore()
			prog := parser.New(store, path, nil).ParseProgram(path)
			prog = check.New(store, prog).Check()
			generated := emit.New(prog, emit.Options{}).Emit()

			for _, want := range tc.want {
				require.Contains(t, generated, want, "generated C for %s must contain %q", tc.name, want)
			}
		})
	}
}
