// Package eval implements Soy expression evaluation: the arithmetic,
// comparison, boolean, and data-reference semantics of spec §4.7, extracted
// out of the inline evaluator in soyhtml/exec.go (and its stale duplicate in
// the now-removed tofu package) so that both the runtime renderer and the
// optimiser's constant folder can share one definition of what an
// expression means.
package eval

import (
	"github.com/robfig/soy/data"
	"github.com/robfig/soy/types"
)

// Env holds everything Eval needs to resolve a leaf of a data reference:
// parameter/let bindings (as a stack of scopes, deepest wins), injected
// data, and the renaming maps a handful of builtin functions consult.
//
// Env is deliberately narrower than a full render state: it has no template
// registry and no function dispatch table, because those depend on context
// (which templates are in scope, which functions a caller wants to allow)
// that differs between the runtime renderer and the optimiser's restricted
// pre-evaluation pass (spec §4.8: "no $ij, no bidi, no externs").
type Env struct {
	frames []frame
	Ij     data.Map

	// CSS/xid renaming maps, consulted by the css()/xid() builtin functions.
	// Nil maps mean "rename to self", matching the teacher's behavior when
	// no renaming map was configured.
	CSSRenaming map[string]string
	XidRenaming map[string]string

	// BidiGlobalDir is -1, 0 (unknown), or 1, consulted by bidi-aware
	// functions and message placeholder direction. 0 lets callers that don't
	// care about i18n omit it.
	BidiGlobalDir int

	// Protos holds proto descriptors for the environment's caller; the
	// evaluator in this package does not read it.
	Protos *types.ProtoRegistry
}

type frame struct {
	vars    data.Map
	entered bool
}

// NewEnv returns an Env with its outermost scope bound to params.
func NewEnv(params data.Map) *Env {
	if params == nil {
		params = make(data.Map)
	}
	return &Env{frames: []frame{{vars: params}}}
}

// Push opens a new, empty inner scope (e.g. entering a {for} loop body).
func (e *Env) Push() {
	e.frames = append(e.frames, frame{vars: make(data.Map)})
}

// Pop discards the innermost scope.
func (e *Env) Pop() {
	e.frames = e.frames[:len(e.frames)-1]
}

// Set binds k to v in the innermost scope.
func (e *Env) Set(k string, v data.Value) {
	e.frames[len(e.frames)-1].vars[k] = v
}

// Lookup resolves k from the innermost scope outward, returning
// data.Undefined{} if no scope binds it.
func (e *Env) Lookup(k string) data.Value {
	for i := len(e.frames) - 1; i >= 0; i-- {
		if v, ok := e.frames[i].vars[k]; ok {
			return v
		}
	}
	return data.Undefined{}
}

// Enter marks the current frame as a template-entry boundary: AllData below
// only unwinds back to the most recent Enter, matching a {call data="all"}
// passing only the caller's own params, not its caller's.
func (e *Env) Enter() {
	e.frames[len(e.frames)-1].entered = true
	e.Push()
}

// AllData returns the Env's bindings visible at the most recent Enter, for
// passing to a {call data="all"}.
func (e *Env) AllData() data.Map {
	var merged = make(data.Map)
	for i := len(e.frames) - 1; i >= 0; i-- {
		for k, v := range e.frames[i].vars {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
		if e.frames[i].entered {
			break
		}
	}
	return merged
}
