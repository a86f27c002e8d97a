package autoescape

import "github.com/robfig/soy/data"

// HTML marks a string as safe, well-formed HTML that should be emitted
// verbatim rather than escaped, the way stdlib html/template's HTML type
// lets a caller vouch for a value it already sanitized itself. It satisfies
// data.Value directly so it survives data.New's existing-Value short
// circuit unchanged.
type HTML string

func (h HTML) Truthy() bool { return h != "" }
func (h HTML) String() string { return string(h) }

func (h HTML) Equals(other data.Value) bool {
	o, ok := other.(HTML)
	return ok && o == h
}
