// Package passes implements the Pass Manager and its semantic passes: the
// ordered pipeline spec §4.5 describes, built on the shape of the teacher's
// hand-sequenced soy.Bundle.Compile (parse, then parsepasses.CheckDataRefs)
// and autoescape.Simple/Strict, generalized into a fixed, explicit sequence.
package passes

import (
	"fmt"
	"sort"

	"github.com/robfig/soy/ast"
	"github.com/robfig/soy/errortypes"
	"github.com/robfig/soy/template"
)

// Diagnostic is one reported problem, carrying enough file position to sort
// and print like the teacher's panic/recover errors did, but without
// unwinding the pass that found it. It implements errortypes.ErrFilePos.
type Diagnostic struct {
	file    string
	line    int
	col     int
	message string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", d.file, d.line, d.col, d.message)
}

func (d Diagnostic) File() string { return d.file }
func (d Diagnostic) Line() int    { return d.line }
func (d Diagnostic) Col() int     { return d.col }

var _ errortypes.ErrFilePos = Diagnostic{}

// Reporter collects diagnostics from every pass that runs instead of
// panicking per-error, per spec §7 ("do not throw, report and continue").
// A check adapted from older code may still panic internally and recover
// at its own boundary (parsepasses.CheckDataRefs does), with the recovered
// error then recorded here as a Diagnostic; Manager.Run itself does not
// recover panics.
type Reporter struct {
	diagnostics []Diagnostic
}

// NewReporter returns an empty Reporter.
func NewReporter() *Reporter { return &Reporter{} }

// Errorf records a diagnostic positioned at node within templateName.
func (r *Reporter) Errorf(reg *template.Registry, templateName string, node ast.Node, format string, args ...interface{}) {
	r.diagnostics = append(r.diagnostics, Diagnostic{
		file:    reg.Filename(templateName),
		line:    reg.LineNumber(templateName, node),
		col:     reg.ColNumber(templateName, node),
		message: fmt.Sprintf(format, args...),
	})
}

// Report records a pre-built diagnostic (e.g. one recovered from a panic
// raised by an adapted teacher check).
func (r *Reporter) Report(d Diagnostic) {
	r.diagnostics = append(r.diagnostics, d)
}

// HasErrors reports whether any diagnostic has been recorded.
func (r *Reporter) HasErrors() bool { return len(r.diagnostics) > 0 }

// Diagnostics returns every recorded diagnostic, sorted ascending by source
// location (file, then line, then column) per spec §9.
func (r *Reporter) Diagnostics() []Diagnostic {
	var sorted = append([]Diagnostic(nil), r.diagnostics...)
	sort.Slice(sorted, func(i, j int) bool {
		var a, b = sorted[i], sorted[j]
		if a.file != b.file {
			return a.file < b.file
		}
		if a.line != b.line {
			return a.line < b.line
		}
		return a.col < b.col
	})
	return sorted
}

// Err returns nil if no diagnostics were recorded, or an error summarizing
// all of them (one per line) otherwise.
func (r *Reporter) Err() error {
	if !r.HasErrors() {
		return nil
	}
	var msg string
	for i, d := range r.Diagnostics() {
		if i > 0 {
			msg += "\n"
		}
		msg += d.Error()
	}
	return fmt.Errorf("%s", msg)
}
