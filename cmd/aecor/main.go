// Command aecor compiles a single-entry-point source tree to a C99
// translation unit and, unless -n is given, shells out to a C compiler
// to produce an executable. Orchestration only: the lexer, parser,
// checker and emitter packages do the real work and terminate the
// process themselves on a fatal diagnostic (internal/diag); this layer
// only wraps its own collaborator-level failures (missing file, gcc
// spawn failure) in ordinary errors, grounded on the teacher's
// lang/ya/main.go top-level pipeline-orchestrating main.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mustafaquraish/aecor/internal/check"
	"github.com/mustafaquraish/aecor/internal/diag"
	"github.com/mustafaquraish/aecor/internal/emit"
	"github.com/mustafaquraish/aecor/internal/parser"
)

func main() {
	app := &cli.App{
		Name:      "aecor",
		Usage:     "compile an aecor source file to C and, by default, a native executable",
		ArgsUsage: "<file.ae>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "o", Usage: "output executable path", Value: "./out"},
			&cli.StringFlag{Name: "c", Usage: "output C path (default {out}.c)"},
			&cli.BoolFlag{Name: "s", Usage: "silent: suppress the driver's own status banner"},
			&cli.BoolFlag{Name: "n", Usage: "do not invoke the C compiler"},
			&cli.BoolFlag{Name: "d", Usage: "emit #line debug directives"},
			&cli.StringSliceFlag{Name: "l", Usage: "add an include root"},
		},
		HideHelpCommand: true,
		Action:          run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "aecor: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowAppHelp(c)
		return cli.Exit("", 1)
	}
	entry := c.Args().Get(0)
	if _, err := os.Stat(entry); err != nil {
		return fmt.Errorf("cannot access %s: %w", entry, err)
	}

	outPath := c.String("o")
	cPath := c.String("c")
	if cPath == "" {
		cPath = outPath + ".c"
	}
	silent := c.Bool("s")
	skipCC := c.Bool("n")
	debugLines := c.Bool("d")
	includeDirs := append([]string{"."}, c.StringSlice("l")...)

	if !silent {
		fmt.Fprintf(os.Stderr, "aecor: compiling %s\n", entry)
	}

	store := diag.NewStore()
	prog := parser.New(store, entry, includeDirs).ParseProgram(entry)
	prog = check.New(store, prog).Check()
	generated := emit.New(prog, emit.Options{DebugLines: debugLines}).Emit()

	if err := os.WriteFile(cPath, []byte(generated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cPath, err)
	}
	if !silent {
		fmt.Fprintf(os.Stderr, "aecor: wrote %s\n", cPath)
	}

	if skipCC {
		return nil
	}
	return invokeCCompiler(cPath, outPath, silent)
}

// invokeCCompiler shells out to a system C compiler, forwarding its
// exit code unchanged (spec §6's "whatever the spawned C compiler
// returned on compile failure"), grounded on the teacher's
// runAssembler/runStage pattern of capturing stderr while still
// surfacing it to the user.
func invokeCCompiler(cPath, outPath string, silent bool) error {
	ccBin := ccCompiler()
	args := []string{cPath, "-o", outPath}
	if dir := filepath.Dir(cPath); dir != "" && dir != "." {
		args = append(args, "-I", dir)
	}

	if !silent {
		fmt.Fprintf(os.Stderr, "aecor: running %s\n", strings.Join(append([]string{ccBin}, args...), " "))
	}

	cmd := exec.Command(ccBin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return cli.Exit(fmt.Sprintf("%s failed", ccBin), exitErr.ExitCode())
		}
		return fmt.Errorf("running %s: %w", ccBin, err)
	}
	return nil
}

func ccCompiler() string {
	if cc := os.Getenv("CC"); cc != "" {
		return cc
	}
	return "gcc"
}
