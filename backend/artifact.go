// Package backend defines the read-only view of a compiled template set
// that a code emitter (a "backend" in spec terms: soyjs's JS generator,
// soyhtml's runtime renderer, or a bytecode emitter) consumes. Before this
// package existed, soyjs.Generator and soyhtml.Tofu each took a bare
// *template.Registry directly; Artifact formalizes the boundary spec §4.10
// describes so a new backend can be written against one stable interface
// instead of reaching into template.Registry's full read/write surface.
package backend

import (
	"github.com/robfig/soy/ast"
	"github.com/robfig/soy/template"
	"github.com/robfig/soy/types"
)

// Artifact is the completed result of a passes.Manager run: a template
// registry that has already been through semantic checking, constant
// folding, and autoescaping, plus the type information gathered along the
// way. It is read-only by design -- a backend emits from it, it does not
// mutate it.
type Artifact interface {
	// Registry returns the compiled template set.
	Registry() *template.Registry

	// Types returns the type registry used while checking this artifact's
	// templates. Never nil; a build that never saw a {@param ...: Type}
	// declaration still returns a Registry pre-populated with primitives.
	Types() *types.Registry

	// EscapingDirectives returns the print directive names that autoescaping
	// attached to a *ast.PrintNode, in application order. Returns nil for
	// any other node kind, or a node the autoescaper never visited.
	EscapingDirectives(node ast.Node) []string

	// EndContext returns the name of the HTML context strict autoescaping
	// determined tmpl's body ends in (e.g. "html", "js", "uri"), and
	// whether that's known. It is false for a non-contextual template, or
	// before autoescaping has run.
	EndContext(tmpl *ast.TemplateNode) (state string, ok bool)
}

// artifact is the concrete Artifact built directly from a registry, used by
// every in-tree backend (soyjs, soyhtml) until a caller has a real reason
// to supply its own (e.g. one that also tracks end-context, once that's
// threaded out of autoescape.Strict -- see DESIGN.md).
type artifact struct {
	registry *template.Registry
	types    *types.Registry
}

// New builds an Artifact directly from a compiled registry. typeRegistry
// may be nil, in which case an empty (primitives-only) one is used.
func New(registry *template.Registry, typeRegistry *types.Registry) Artifact {
	if typeRegistry == nil {
		typeRegistry = types.NewRegistry()
	}
	return &artifact{registry: registry, types: typeRegistry}
}

func (a *artifact) Registry() *template.Registry { return a.registry }
func (a *artifact) Types() *types.Registry        { return a.types }

func (a *artifact) EscapingDirectives(node ast.Node) []string {
	p, ok := node.(*ast.PrintNode)
	if !ok {
		return nil
	}
	var names []string
	for _, d := range p.Directives {
		names = append(names, d.Name)
	}
	return names
}

// EndContext is not yet derivable from the public surface autoescape.Strict
// exposes (it returns only an error, not its internal convergence result);
// see DESIGN.md for why this stays a documented gap rather than a silent
// guess.
func (a *artifact) EndContext(tmpl *ast.TemplateNode) (string, bool) {
	return "", false
}
