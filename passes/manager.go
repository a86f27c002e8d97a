package passes

import (
	"github.com/robfig/soy/template"
)

// Phase distinguishes a pass that only needs one file at a time (e.g. a
// purely syntactic check) from one that needs the whole registry (anything
// resolving a {call} target, a delegate set, or doing cross-template
// analysis). Every pass in this package happens to be WholeSet today -- the
// distinction is kept because spec §4.5 names it, and a future per-file
// pass (e.g. a lint rule with no cross-file dependency) can run before the
// registry is fully assembled.
type Phase int

const (
	WholeSet Phase = iota
	PerFile
)

// Pass is one stage of the compiler pipeline. Run may record diagnostics on
// r (for user-triggerable problems) and/or return a non-nil error (for a
// structural failure that should stop compilation outright, e.g. a registry
// that failed to build at all).
type Pass struct {
	Name  string
	Phase Phase
	Run   func(reg *template.Registry, r *Reporter) error
}

// Manager holds an ordered, fixed list of passes, grounded on the shape of
// soy.Bundle.Compile's hand-sequenced call to parsepasses.CheckDataRefs and
// autoescape.Simple/Strict, generalized into a named pipeline a caller can
// introspect (Manager.Passes) instead of a hard-coded call sequence.
type Manager struct {
	Passes []Pass
}

// NewManager returns the default pipeline: semantic checks, then constant
// folding, then autoescaping. Both semantic checks always run; folding and
// autoescaping run only if the semantic checks reported no diagnostics.
func NewManager() *Manager {
	return &Manager{Passes: []Pass{
		{Name: "check-template-params", Phase: WholeSet, Run: runCheckTemplateParams},
		{Name: "conformance", Phase: WholeSet, Run: runConformance},
		{Name: "optimize", Phase: WholeSet, Run: runOptimize},
		{Name: "autoescape", Phase: WholeSet, Run: runAutoescape},
	}}
}

// Run executes every pass in order against reg, stopping early if a pass
// returns a structural error, or if the semantic-check phase (every pass
// before "optimize") leaves the Reporter holding diagnostics. Cancellation
// is left to the caller: select on ctx.Done() between Manager.Run calls
// for per-file batches, since a single pass here never blocks.
func (m *Manager) Run(reg *template.Registry) (*Reporter, error) {
	var r = NewReporter()
	for _, pass := range m.Passes {
		if pass.Name == "optimize" && r.HasErrors() {
			break
		}
		if err := pass.Run(reg, r); err != nil {
			return r, err
		}
	}
	return r, nil
}
