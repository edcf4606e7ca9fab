// Package diag renders fatal compiler diagnostics anchored to source
// spans: a banner, a file:line:col header, a line of source context,
// and a colored caret line. All entry points terminate the process,
// matching the reference compiler's no-recovery error policy.
package diag

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/mustafaquraish/aecor/internal/token"
)

// Source holds one loaded file's text, split into lines for context
// rendering.
type Source struct {
	Filename string
	Text     string
	lines    []string
}

// NewSource splits text into lines eagerly; diagnostics are rare
// enough that this isn't worth deferring.
func NewSource(filename, text string) *Source {
	return &Source{Filename: filename, Text: text, lines: strings.Split(text, "\n")}
}

// Store maps filenames to their loaded Source, so diagnostics anchored
// to an included file can render that file's own context line.
type Store struct {
	sources map[string]*Source
}

func NewStore() *Store {
	return &Store{sources: make(map[string]*Source)}
}

func (s *Store) Add(src *Source) {
	s.sources[src.Filename] = src
}

func (s *Store) Get(filename string) *Source {
	return s.sources[filename]
}

var (
	bannerColor = color.New(color.FgRed, color.Bold)
	levelColor  = color.New(color.FgRed, color.Bold)
	noteColor   = color.New(color.FgCyan, color.Bold)
	caretColor  = color.New(color.FgRed, color.Bold)
	hiColor     = color.New(color.FgYellow)
)

func (s *Store) line(loc token.Location) string {
	src := s.sources[loc.Filename]
	if src == nil || loc.Line < 1 || loc.Line > len(src.lines) {
		return ""
	}
	return src.lines[loc.Line-1]
}

func (s *Store) render(level string, levelCol *color.Color, sp token.Span, message string) {
	bannerColor.Fprintln(os.Stderr, "-------------------------------------------------------------------------------")
	fmt.Fprintf(os.Stderr, "%s: ", sp.Start)
	levelCol.Fprintf(os.Stderr, "%s: ", level)
	fmt.Fprintln(os.Stderr, message)

	text := s.line(sp.Start)
	if text == "" {
		return
	}
	fmt.Fprintln(os.Stderr, text)

	col := sp.Start.Column - 1
	if col < 0 {
		col = 0
	}
	width := sp.End.Column - sp.Start.Column
	if sp.End.Line != sp.Start.Line || width < 1 {
		width = 1
	}
	if col > len(text) {
		col = len(text)
	}
	pad := strings.Repeat(" ", col)
	caret := "^" + strings.Repeat("~", width-1)
	fmt.Fprint(os.Stderr, pad)
	caretColor.Fprintln(os.Stderr, caret)
}

// ErrorLoc reports a fatal error anchored to a single location.
func ErrorLoc(store *Store, loc token.Location, message string) {
	ErrorSpan(store, token.Span{Start: loc, End: loc}, message)
}

// ErrorSpan reports a fatal error anchored to a span.
func ErrorSpan(store *Store, sp token.Span, message string) {
	store.render("error", levelColor, sp, message)
	os.Exit(1)
}

// ErrorSpanNote reports a fatal error with a secondary note at the
// same span (e.g. a hint appended after the caret).
func ErrorSpanNote(store *Store, sp token.Span, message, note string) {
	store.render("error", levelColor, sp, message)
	if note != "" {
		hiColor.Fprintf(os.Stderr, "note: %s\n", note)
	}
	os.Exit(1)
}

// ErrorSpanNoteSpan reports a fatal error plus a second span (e.g.
// "previously defined here"), used for duplicate-definition
// diagnostics that want to point at both sites.
func ErrorSpanNoteSpan(store *Store, sp token.Span, message string, noteSp token.Span, note string) {
	store.render("error", levelColor, sp, message)
	noteColor.Fprintf(os.Stderr, "%s: note: ", noteSp.Start)
	fmt.Fprintln(os.Stderr, note)
	text := store.line(noteSp.Start)
	if text != "" {
		fmt.Fprintln(os.Stderr, text)
	}
	os.Exit(1)
}
