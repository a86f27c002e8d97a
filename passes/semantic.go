package passes

import (
	"regexp"

	"github.com/robfig/soy/optimize"

	"github.com/robfig/soy/ast"
	"github.com/robfig/soy/autoescape"
	"github.com/robfig/soy/parsepasses"
	"github.com/robfig/soy/template"
)

// runCheckTemplateParams generalizes parsepasses.CheckDataRefs's param/{let}
// tracking (data refs covered by @param or {let}, @params all used, {call}
// params declared by the callee, required params passed, called templates
// exist) into a Reporter entry instead of a single panic/recover error, so
// one bad template doesn't hide every other template's diagnostics.
func runCheckTemplateParams(reg *template.Registry, r *Reporter) error {
	if err := parsepasses.CheckDataRefs(reg); err != nil {
		r.Report(Diagnostic{message: err.Error()})
	}
	return nil
}

// onAttrPattern flags on*-style inline event handler attributes (onclick=,
// onerror=, ...), which per a typical conformance policy are banned in favor
// of addEventListener; the literal attribute name "on" (as in a custom
// data-on directive) is not flagged. This is a best-effort scan over raw
// template text rather than real HTML attribute tokenization, since
// promoting RawTextNode substrings to first-class HTML attribute nodes is
// still future work (see SPEC_FULL.md's C2 HTML tokenization note) --
// autoescape/rawtext.go's character-level tag/attribute state machine is the
// eventual home for a precise version of this check.
var onAttrPattern = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)

// runConformance applies a small path-scoped rule list to every template's
// raw text, grounded on spec §4.6's conformance-rule mention and on the
// attribute-name recognition already present in autoescape/rawtext.go.
func runConformance(reg *template.Registry, r *Reporter) error {
	for _, t := range reg.Templates {
		walkRawText(t.Node.Body, func(raw *ast.RawTextNode) {
			for _, loc := range onAttrPattern.FindAllIndex(raw.Text, -1) {
				r.Errorf(reg, t.Node.Name, raw, "inline event handler attribute %q is banned; use addEventListener",
					string(raw.Text[loc[0]:loc[1]-1]))
			}
		})
	}
	return nil
}

func walkRawText(node ast.Node, fn func(*ast.RawTextNode)) {
	if raw, ok := node.(*ast.RawTextNode); ok {
		fn(raw)
	}
	if parent, ok := node.(ast.ParentNode); ok {
		for _, child := range parent.Children() {
			if child != nil {
				walkRawText(child, fn)
			}
		}
	}
}

// runOptimize folds constant subexpressions and merges adjacent raw text in
// every template body. Folding errors are not user-facing (spec §4.8:
// "exceptions are non-fatal") so optimize.Simplify never returns one; this
// pass exists only to give the fold its place in the ordered pipeline.
func runOptimize(reg *template.Registry, r *Reporter) error {
	for _, t := range reg.Templates {
		optimize.Simplify(t.Node)
	}
	return nil
}

// runAutoescape runs the non-contextual and contextual autoescaping passes,
// in that order, over every template -- each pass already skips templates
// outside the autoescape mode it owns (see autoescape.Simple/Strict).
func runAutoescape(reg *template.Registry, r *Reporter) error {
	if err := autoescape.Simple(reg); err != nil {
		return err
	}
	return autoescape.Strict(reg)
}
