// Package compiler turns learner source into a runnable program.
//
// Compile is a plain function: source in, Result out. It holds no state,
// so compiling in a loop or from several goroutines is fine. Mistakes in
// the learner's code are never Go errors. They come back as Diagnostics
// in a Result whose Success is false. The Go error is kept for problems
// with the host itself (for example, being called without the set of
// names the learner library provides).
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ErrNoReferences means Compile was called without the predeclared-name
// set, so name resolution cannot be checked.
var ErrNoReferences = errors.New("compiler: no predeclared names supplied")

// DefaultFilename labels positions when Options.Filename is empty.
const DefaultFilename = "main.star"

// Diagnostic is one compiler message.
type Diagnostic struct {
	Filename string `json:"filename"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	Message  string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Line == 0 {
		return fmt.Sprintf("%s: %s", d.Filename, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", d.Filename, d.Line, d.Col, d.Message)
}

// Result is the outcome of one compile. Program is set only on success.
type Result struct {
	Success     bool
	Program     *starlark.Program
	Diagnostics []Diagnostic
}

// Options configure a compile.
type Options struct {
	Filename string
	// Predeclared reports whether a name is provided by the host library.
	Predeclared func(name string) bool
	// FileOptions selects the dialect; nil means LearnerDialect.
	FileOptions *syntax.FileOptions
}

// LearnerDialect enables the constructs beginners reach for first:
// while loops, top-level if/for/while, reassigning globals, set() and
// recursion.
func LearnerDialect() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}
}

// Compile parses, resolves and compiles src.
func Compile(src string, opts Options) (*Result, error) {
	if opts.Predeclared == nil {
		return nil, ErrNoReferences
	}
	filename := opts.Filename
	if filename == "" {
		filename = DefaultFilename
	}
	fileOpts := opts.FileOptions
	if fileOpts == nil {
		fileOpts = LearnerDialect()
	}

	_, prog, err := starlark.SourceProgramOptions(fileOpts, filename, src, opts.Predeclared)
	if err != nil {
		diags, ok := toDiagnostics(filename, err)
		if !ok {
			return nil, fmt.Errorf("compiler: compiling %s: %w", filename, err)
		}
		return &Result{Diagnostics: diags}, nil
	}

	// There is no module loader, so load() can never succeed. Reporting it
	// here beats a confusing runtime fault.
	if n := prog.NumLoads(); n > 0 {
		diags := make([]Diagnostic, 0, n)
		for i := range n {
			module, pos := prog.Load(i)
			diags = append(diags, fromPosition(filename, pos,
				fmt.Sprintf("load(%q) is not supported; everything is predeclared", module)))
		}
		return &Result{Diagnostics: diags}, nil
	}

	return &Result{Success: true, Program: prog}, nil
}

// toDiagnostics converts the toolchain's error types. ok is false for
// anything it does not recognise.
func toDiagnostics(filename string, err error) (diags []Diagnostic, ok bool) {
	var list resolve.ErrorList
	if errors.As(err, &list) {
		for _, e := range list {
			diags = append(diags, fromPosition(filename, e.Pos, e.Msg))
		}
		return diags, true
	}

	var rerr resolve.Error
	if errors.As(err, &rerr) {
		return []Diagnostic{fromPosition(filename, rerr.Pos, rerr.Msg)}, true
	}

	var serr syntax.Error
	if errors.As(err, &serr) {
		return []Diagnostic{fromPosition(filename, serr.Pos, serr.Msg)}, true
	}

	return nil, false
}

func fromPosition(filename string, pos syntax.Position, msg string) Diagnostic {
	d := Diagnostic{Filename: filename, Message: msg}
	if pos.IsValid() {
		d.Line, d.Col = int(pos.Line), int(pos.Col)
		if f := pos.Filename(); f != "" {
			d.Filename = f
		}
	}
	return d
}

// Format joins diagnostics one per line, for terminals and logs.
func Format(diags []Diagnostic) string {
	lines := make([]string, len(diags))
	for i, d := range diags {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}
