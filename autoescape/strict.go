// Package autoescape provides template rewriters that apply escaping rules.
package autoescape

import (
	"fmt"

	"github.com/robfig/soy/ast"
	"github.com/robfig/soy/data"
	"github.com/robfig/soy/soyhtml"
	"github.com/robfig/soy/template"
)

// Strict rewrites all templates in the given registry to add
// contextually-appropriate escaping directives to all print commands.
//
// Instead of specifying an escaping routine to use for a dynamic value, specify
// the "kind" of the data (text, html, css, uri, js, attributes) and the correct
// escaping routines will be used for the kind of data and the context in which
// it's used.
//
// It implements Strict Autoescaping as documented on the official
// site. It escapes only the templates whose effective autoescape mode (the
// template's own, or else its namespace's) is "contextual"; every other
// template is skipped without an error and left to Simple.
//
// A template reached from more than one starting context is cloned once per
// distinct context, so each copy can carry its own print directives; see
// clone.go. A call is accepted only from a context in which the callee's kind
// may start (plain HTML text for a template with no kind), so a kind-less
// template called from inside a <script> block is reported as an
// ErrOutputContext error, not cloned.
//
// NOTE: There are some differences in the escaping behavior from the official
// implementation. Roughly, this implementation is a little more conservative.
// Here is a partial list
//
//  +----------------+------+-----------+---------+
//  | Context        | From | To (Java) | To (Go) |
//  +----------------+------+-----------+---------+
//  | Attributes     | '    | '         | &#39;   |
//  | JS             | <    | &lt;      | U+003C  |
//  | JS             | >    | &gt;      | U+003E  |
//  | JS String      | /    | /         | \/      |
//  | JS String      | '    | \'        | \x27    |
//  | JS String      | "    | \"        | \x22    |
//  +----------------+------+-----------+---------+
//
// (U+003C and U+003E stand for json.Marshal's six-character unicode escape
// of the character.)
//
func Strict(reg *template.Registry) (err error) {
	var currentTemplate string
	defer func() {
		if err2 := recover(); err2 != nil {
			err = fmt.Errorf("template %v: %v", currentTemplate, err2)
		}
	}()

	e := newEscaper(reg)

	var callGraph = newCallGraph(reg)
	for _, root := range callGraph.roots() {
		var mode = root.Node.Autoescape
		if mode == ast.AutoescapeUnspecified {
			mode = root.Namespace.Autoescape
		}
		if mode != ast.AutoescapeContextual {
			// Simple owns non-contextual templates.
			continue
		}
		currentTemplate = root.Node.Name
		c := e.escape(context{state: startStateForKind(root.Node.Kind)}, root.Node)
		if c.err != nil {
			c.err.Name = root.Node.Name
			return c.err
		}
	}

	rewrite(e.inf, reg)
	return nil
}

func startStateForKind(kind string) state {
	switch kind {
	case "css":
		return stateCSS
	case "", "html":
		return stateText
	case "attributes":
		return stateTag
	case "js":
		return stateJS
	case "uri", "trusted_resource_uri":
		return stateURL
	case "text":
		// Soy's "text" kind disables HTML escaping entirely in the
		// reference implementation; we instead fall through to HTML
		// escaping as a fail-safe default rather than emitting raw
		// dynamic values unescaped.
		return stateText
	default:
		panic("unknown kind: " + kind)
	}
}

// funcMap maps command names to functions that render their inputs safe.
// missing: filterHtmlAttributes
var funcMap = map[string]func(value data.Value, args []data.Value) data.Value{
	"escapeHtmlAttribute":        attrEscaper,
	"escapeCssString":            cssEscaper,
	"filterCssValue":             cssValueFilter,
	"filterHtmlElementName":      htmlNameFilter,
	"escapeHtml":                 htmlEscaper,
	"escapeJsRegex":              jsRegexpEscaper,
	"escapeJsString":             jsStrEscaper,
	"escapeJsValue":              jsValEscaper,
	"escapeHtmlAttributeNospace": htmlNospaceEscaper,
	"escapeHtmlRcdata":           rcdataEscaper,
	"escapeUri":                  urlEscaper,
	"filterNormalizeUri":         urlFilter,
	"normalizeUri":               urlNormalizer,
}

func init() {
	for k, v := range funcMap {
		soyhtml.PrintDirectives[k] = soyhtml.PrintDirective{v, []int{0}, true}
	}
}

// escaper collects type inferences about templates and changes needed to make
// templates injection safe.
type escaper struct {
	reg *template.Registry
	inf *inferences
	gen *ast.IDGen

	// variants maps an original template name to the concrete (possibly
	// cloned) template name serving each distinct starting context it's
	// reached from.
	variants map[string]map[context]string
	cloneSeq map[string]int

	currentTemplateName string

	// visiting guards against infinite recursion through {call} cycles;
	// a template found to be visiting itself is assumed to already be at
	// a steady-state context (see escapeCall).
	visiting map[string]bool
}

// newEscaper creates a blank escaper for the given set.
func newEscaper(reg *template.Registry) *escaper {
	return &escaper{
		reg:      reg,
		inf:      newInferences(reg),
		gen:      ast.NewIDGen(),
		variants: make(map[string]map[context]string),
		cloneSeq: make(map[string]int),
		visiting: make(map[string]bool),
	}
}

// filterFailsafe is an innocuous word that is emitted in place of unsafe values
// by sanitizer functions. It is not a keyword in any programming language,
// contains no special characters, is not empty, and when it appears in output
// it is distinct enough that a developer can find the source of the problem
// via a search engine.
const filterFailsafe = data.String("zSoyz")

// lineOf looks up the source line of node within the template currently
// being escaped, for use in error messages.
func (e *escaper) lineOf(node ast.Node) int {
	if e.currentTemplateName == "" {
		return 0
	}
	return e.reg.LineNumber(e.currentTemplateName, node)
}

// escape escapes a template node.
func (e *escaper) escape(c context, n ast.Node) context {
	switch n := n.(type) {
	case *ast.TemplateNode:
		var prevTemplate = e.currentTemplateName
		e.currentTemplateName = n.Name
		defer func() { e.currentTemplateName = prevTemplate }()

		if !isValidStartContextForKind(kind(n.Kind), c) {
			return context{state: stateError, err: errorf(ErrOutputContext, e.lineOf(n),
				"template %s of kind %q is not reachable from %v", n.Name, n.Kind, c.state)}
		}
		end := e.escape(c, n.Body)
		if end.err == nil && !isValidEndContextForKind(kind(n.Kind), end) {
			return context{state: stateError, err: errorf(ErrEndContext, e.lineOf(n),
				"template %s of kind %q ends in %v: %s", n.Name, n.Kind, end.state,
				likelyEndContextMismatchCause(kind(n.Kind), end))}
		}
		e.inf.recordTemplateEndContext(n, end)
		return end
	case *ast.ListNode:
		return e.escapeList(c, n.Nodes)
	case *ast.RawTextNode:
		return escapeText(c, n)
	case *ast.PrintNode:
		return e.escapePrint(c, n)
	case *ast.CallNode:
		return e.escapeCall(c, n)
	case *ast.IfNode:
		return e.escapeIf(c, n)
	case *ast.SwitchNode:
		return e.escapeSwitch(c, n)
	case *ast.ForNode:
		return e.escapeFor(c, n)
	case *ast.LetValueNode:
		// Assigns an expression; nothing is emitted at this point.
		return c
	case *ast.LetContentNode:
		if end := e.escapeContentBlock(n.Kind, n.Body); end.err != nil {
			return end
		}
		return c
	case *ast.MsgNode:
		return e.escapeList(c, n.Body)
	case *ast.MsgFallbackGroupNode:
		var ends = make([]context, len(n.Msgs))
		for i, m := range n.Msgs {
			ends[i] = e.escape(c, m)
		}
		return convergeContexts(ends)
	case *ast.VeLogNode:
		return e.escape(c, n.Body)
	case *ast.LogNode:
		return e.escape(c, n.Body)
	case *ast.DebuggerNode:
		return c
	case *ast.CssNode, *ast.XidNode:
		// {css} and {xid} always emit an identifier-safe token; no
		// escaping is applicable.
		return c
	case *ast.LiteralNode:
		// {literal} content is emitted verbatim by design, so it cannot
		// be analyzed as HTML; it is passed over and leaves the context
		// unchanged.
		return c
	}
	panic("escaping " + n.String() + " is unimplemented")
}

// escapeList escapes a list of nodes that provide sequential content.
func (e *escaper) escapeList(c context, nodes []ast.Node) context {
	for _, m := range nodes {
		c = e.escape(c, m)
	}
	return c
}

// escapeContentBlock escapes a self-contained block of markup of a declared
// kind ({let ... kind="..."} or {param ... kind="..."}), starting a fresh
// context rather than inheriting the surrounding one. Its end context is
// validated but, per Soy's typed-content model, does not propagate back to
// the caller: the block's value is consumed as a single already-sanitized
// unit of the declared kind.
func (e *escaper) escapeContentBlock(k string, body ast.Node) context {
	var start = context{state: startStateForKind(k)}
	var end = e.escape(start, body)
	if end.err != nil {
		return end
	}
	if !isValidEndContextForKind(kind(k), end) {
		return context{state: stateError, err: errorf(ErrEndContext, e.lineOf(body),
			"kind=%q block ends in %v: %s", k, end.state, likelyEndContextMismatchCause(kind(k), end))}
	}
	return context{}
}

// escapeCall escapes a {call}. The callee is escaped starting from the
// calling context; if a callee is reached from more than one incompatible
// starting context across the whole call graph, it is cloned so each
// calling context gets its own, independently-escaped copy (see clone.go).
func (e *escaper) escapeCall(c context, n *ast.CallNode) context {
	for _, p := range n.Params {
		if cp, ok := p.(*ast.CallParamContentNode); ok {
			if end := e.escapeContentBlock(cp.Kind, cp.Content); end.err != nil {
				return end
			}
		}
	}

	if n.IsDelegate {
		return e.escapeDelCall(c, n)
	}

	tmpl, ok := e.reg.Template(n.Name)
	if !ok {
		return context{state: stateError, err: errorf(ErrNoSuchTemplate, 0, "no such template: %s", n.Name)}
	}
	if !isValidStartContextForKind(kind(tmpl.Node.Kind), c) {
		return context{state: stateError, err: errorf(ErrOutputContext, e.lineOf(n),
			"{call %s} of kind %q not allowed from %v", n.Name, tmpl.Node.Kind, c.state)}
	}

	concreteName := e.variantFor(n.Name, tmpl, c)
	if concreteName != n.Name {
		e.inf.setCallRewrite(n, concreteName)
	}
	if e.visiting[concreteName] {
		// A {call} cycle; assume the recursive leg leaves the context
		// unchanged rather than attempting a fixed-point search across
		// the whole cycle.
		return c
	}

	concreteTmpl, _ := e.reg.Template(concreteName)
	e.visiting[concreteName] = true
	end := e.escape(c, concreteTmpl.Node)
	delete(e.visiting, concreteName)
	return end
}

// escapeDelCall escapes a {delcall}, which can resolve to any of the
// registered deltemplate implementations for its name at render time. Every
// implementation is escaped from the calling context and all of them must
// converge to the same end context, since the escaper can't know statically
// which package/variant will actually be chosen.
func (e *escaper) escapeDelCall(c context, n *ast.CallNode) context {
	var impls = e.reg.DelTemplates(n.Name)
	if len(impls) == 0 {
		return context{state: stateError, err: errorf(ErrNoSuchTemplate, e.lineOf(n),
			"no deltemplate registered for %s", n.Name)}
	}

	var ends = make([]context, 0, len(impls))
	for _, impl := range impls {
		if !isValidStartContextForKind(kind(impl.Node.Kind), c) {
			return context{state: stateError, err: errorf(ErrOutputContext, e.lineOf(n),
				"{delcall %s} of kind %q not allowed from %v", n.Name, impl.Node.Kind, c.state)}
		}
		var key = impl.Node.Name + "\x00" + impl.Node.DelPackage + "\x00" + impl.Node.DelVariant
		if e.visiting[key] {
			ends = append(ends, c)
			continue
		}
		e.visiting[key] = true
		ends = append(ends, e.escape(c, impl.Node))
		delete(e.visiting, key)
	}
	return convergeContexts(ends)
}

// variantFor returns the name of the template that should serve calls to
// name starting in context c, cloning tmpl the first time c conflicts with
// an already-assigned context.
func (e *escaper) variantFor(name string, tmpl template.Template, c context) string {
	var byContext = e.variants[name]
	if byContext == nil {
		byContext = make(map[context]string)
		e.variants[name] = byContext
	}
	if existing, ok := byContext[c]; ok {
		return existing
	}
	if len(byContext) == 0 {
		byContext[c] = name
		return name
	}
	e.cloneSeq[name]++
	var newName = fmt.Sprintf("%s$autoescape%d", name, e.cloneSeq[name])
	var clonedNode = cloneTemplate(tmpl.Node, newName, e.gen)
	e.reg.AddTemplate(template.Template{tmpl.SoyDocNode, clonedNode, tmpl.Namespace}, name)
	byContext[c] = newName
	return newName
}

// escapeIf escapes every {if}/{elseif}/{else} branch from the same starting
// context and requires they converge to the same ending context; an
// absent {else} implicitly contributes the unescaped starting context,
// since that is what a falsy condition leaves behind.
func (e *escaper) escapeIf(c context, n *ast.IfNode) context {
	var ends = make([]context, 0, len(n.Conds)+1)
	var hasElse bool
	for _, cond := range n.Conds {
		ends = append(ends, e.escape(c, cond.Body))
		if cond.Cond == nil {
			hasElse = true
		}
	}
	if !hasElse {
		ends = append(ends, c)
	}
	return convergeContexts(ends)
}

// escapeSwitch is escapeIf's counterpart for {switch}/{case}/{default}.
func (e *escaper) escapeSwitch(c context, n *ast.SwitchNode) context {
	var ends = make([]context, 0, len(n.Cases)+1)
	var hasDefault bool
	for _, cs := range n.Cases {
		ends = append(ends, e.escape(c, cs.Body))
		if len(cs.Values) == 0 {
			hasDefault = true
		}
	}
	if !hasDefault {
		ends = append(ends, c)
	}
	return convergeContexts(ends)
}

// escapeFor escapes a {for} loop body looking for a context that is stable
// across iterations: the body is escaped once from c, and if that doesn't
// reproduce c, once more from its own result, accepting the second pass
// only if it reaches a fixed point. The overall end context converges the
// steady-state loop context with whichever branch covers zero iterations
// ({ifempty}, or the loop falling through having never run).
func (e *escaper) escapeFor(c context, n *ast.ForNode) context {
	var bodyEnd = e.escape(c, n.Body)
	if bodyEnd.err != nil {
		return bodyEnd
	}
	if !bodyEnd.eq(c) {
		var second = e.escape(bodyEnd, n.Body)
		if second.err != nil {
			return second
		}
		if !second.eq(bodyEnd) {
			return context{state: stateError, err: errorf(ErrRangeLoopReentry, 0,
				"{for} loop body does not converge to a consistent context across iterations")}
		}
		bodyEnd = second
	}

	var zeroIterations = c
	if n.IfEmpty != nil {
		zeroIterations = e.escape(c, n.IfEmpty)
	}
	return convergeContexts([]context{bodyEnd, zeroIterations})
}

// convergeContexts requires that every context in ends is equal, returning
// that common context, or an ErrBranchEnd error if they disagree.
func convergeContexts(ends []context) context {
	var result = ends[0]
	for _, c := range ends[1:] {
		if c.err != nil {
			return c
		}
		if !c.eq(result) {
			return context{state: stateError, err: errorf(ErrBranchEnd, 0,
				"branches end in different contexts: %v and %v", result, c)}
		}
	}
	return result
}

func (e *escaper) escapePrint(c context, n *ast.PrintNode) context {
	c = nudge(c)
	s := make([]string, 0, 3)
	switch c.state {
	case stateError:
		return c
	case stateURL, stateCSSDqStr, stateCSSSqStr, stateCSSDqURL, stateCSSSqURL, stateCSSURL:
		switch c.urlPart {
		case urlPartNone:
			s = append(s, "filterNormalizeUri")
			fallthrough
		case urlPartPreQuery:
			switch c.state {
			case stateCSSDqStr, stateCSSSqStr:
				s = append(s, "escapeCssString")
			default:
				s = append(s, "normalizeUri")
			}
		case urlPartQueryOrFrag:
			s = append(s, "escapeUri")
		case urlPartUnknown:
			return context{
				state: stateError,
				err:   errorf(ErrAmbigContext, e.lineOf(n), "%s appears in an ambiguous URL context", n),
			}
		default:
			panic(c.urlPart.String())
		}
	case stateJS:
		s = append(s, "escapeJsValue")
		// A slash after a value starts a div operator.
		c.jsCtx = jsCtxDivOp
	case stateJSDqStr, stateJSSqStr:
		s = append(s, "escapeJsString")
	case stateJSRegexp:
		s = append(s, "escapeJsRegex")
	case stateCSS:
		s = append(s, "filterCssValue")
	case stateText:
		s = append(s, "escapeHtml")
	case stateRCDATA:
		s = append(s, "escapeHtmlRcdata")
	case stateAttr:
		// Handled below in delim check.
	case stateAttrName, stateTag:
		c.state = stateAttrName
		s = append(s, "filterHtmlElementName")
	default:
		if isComment(c.state) {
			panic("may not {print} within a comment")
		} else {
			panic("unexpected state " + c.state.String())
		}
	}
	switch c.delim {
	case delimNone:
		// No extra-escaping needed for raw text content.
	case delimSpaceOrTagEnd:
		s = append(s, "escapeHtmlAttributeNospace")
	default:
		s = append(s, "escapeHtmlAttribute")
	}
	e.recordDirectives(n, c, s)
	return c
}

// recordDirectives stashes the directive chain computed for n into the
// inference table; rewrite() applies it once escaping the whole call graph
// has finished, so a node visited from two compatible contexts never gets
// edited twice.
func (e *escaper) recordDirectives(n *ast.PrintNode, c context, directiveNames []string) {
	var modes = make([]escapingMode, len(directiveNames))
	for i, name := range directiveNames {
		modes[i] = escapingMode{name}
	}
	e.inf.setEscapingDirectives(n, c, modes)
}
