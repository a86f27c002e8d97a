package autoescape

import "github.com/robfig/soy/ast"

// clone makes a structural copy of a template body so it can be escaped a
// second time under a different starting context without the print
// directives recorded for one copy bleeding into the other. Only the
// statement-shaped nodes that a {call} can transitively reach are copied;
// expression subtrees (arguments, conditions, data refs) are immutable
// during escaping and so are shared with the original by reference.
func clone(node ast.Node, gen *ast.IDGen) ast.Node {
	switch n := node.(type) {
	case *ast.ListNode:
		var nodes = make([]ast.Node, len(n.Nodes))
		for i, c := range n.Nodes {
			nodes[i] = clone(c, gen)
		}
		return &ast.ListNode{Meta: ast.M(gen, n.Position()), Nodes: nodes}

	case *ast.RawTextNode:
		return &ast.RawTextNode{Meta: ast.M(gen, n.Position()), Text: n.Text}

	case *ast.PrintNode:
		var dirs = make([]*ast.PrintDirectiveNode, len(n.Directives))
		for i, d := range n.Directives {
			dirs[i] = &ast.PrintDirectiveNode{Meta: ast.M(gen, d.Position()), Name: d.Name, Args: d.Args}
		}
		return &ast.PrintNode{Meta: ast.M(gen, n.Position()), Arg: n.Arg, Directives: dirs}

	case *ast.LiteralNode:
		return &ast.LiteralNode{Meta: ast.M(gen, n.Position()), Body: n.Body}

	case *ast.CssNode:
		return &ast.CssNode{Meta: ast.M(gen, n.Position()), Expr: n.Expr, Suffix: n.Suffix}

	case *ast.XidNode:
		return &ast.XidNode{Meta: ast.M(gen, n.Position()), Suffix: n.Suffix}

	case *ast.LogNode:
		return &ast.LogNode{Meta: ast.M(gen, n.Position()), Body: clone(n.Body, gen)}

	case *ast.DebuggerNode:
		return &ast.DebuggerNode{Meta: ast.M(gen, n.Position())}

	case *ast.LetValueNode:
		return &ast.LetValueNode{Meta: ast.M(gen, n.Position()), Name: n.Name, Expr: n.Expr}

	case *ast.LetContentNode:
		return &ast.LetContentNode{Meta: ast.M(gen, n.Position()), Name: n.Name, Kind: n.Kind, Body: clone(n.Body, gen)}

	case *ast.MsgNode:
		var body = make([]ast.Node, len(n.Body))
		for i, c := range n.Body {
			body[i] = clone(c, gen)
		}
		return &ast.MsgNode{Meta: ast.M(gen, n.Position()), ID: n.ID, Meaning: n.Meaning, Desc: n.Desc, Body: body}

	case *ast.MsgFallbackGroupNode:
		var msgs = make([]*ast.MsgNode, len(n.Msgs))
		for i, m := range n.Msgs {
			msgs[i] = clone(m, gen).(*ast.MsgNode)
		}
		return &ast.MsgFallbackGroupNode{Meta: ast.M(gen, n.Position()), Msgs: msgs}

	case *ast.VeLogNode:
		return &ast.VeLogNode{Meta: ast.M(gen, n.Position()), VeName: n.VeName, Data: n.Data, Body: clone(n.Body, gen)}

	case *ast.CallNode:
		var params = make([]ast.Node, len(n.Params))
		for i, p := range n.Params {
			params[i] = clone(p, gen)
		}
		return &ast.CallNode{
			Meta: ast.M(gen, n.Position()), Name: n.Name, AllData: n.AllData,
			Data: n.Data, Params: params, IsDelegate: n.IsDelegate, Variant: n.Variant,
		}

	case *ast.CallParamValueNode:
		return &ast.CallParamValueNode{Meta: ast.M(gen, n.Position()), Key: n.Key, Value: n.Value}

	case *ast.CallParamContentNode:
		return &ast.CallParamContentNode{Meta: ast.M(gen, n.Position()), Key: n.Key, Kind: n.Kind, Content: clone(n.Content, gen)}

	case *ast.IfNode:
		var conds = make([]*ast.IfCondNode, len(n.Conds))
		for i, cond := range n.Conds {
			conds[i] = clone(cond, gen).(*ast.IfCondNode)
		}
		return &ast.IfNode{Meta: ast.M(gen, n.Position()), Conds: conds}

	case *ast.IfCondNode:
		return &ast.IfCondNode{Meta: ast.M(gen, n.Position()), Cond: n.Cond, Body: clone(n.Body, gen)}

	case *ast.SwitchNode:
		var cases = make([]*ast.SwitchCaseNode, len(n.Cases))
		for i, c := range n.Cases {
			cases[i] = clone(c, gen).(*ast.SwitchCaseNode)
		}
		return &ast.SwitchNode{Meta: ast.M(gen, n.Position()), Value: n.Value, Cases: cases}

	case *ast.SwitchCaseNode:
		return &ast.SwitchCaseNode{Meta: ast.M(gen, n.Position()), Values: n.Values, Body: clone(n.Body, gen)}

	case *ast.ForNode:
		var ifEmpty ast.Node
		if n.IfEmpty != nil {
			ifEmpty = clone(n.IfEmpty, gen)
		}
		return &ast.ForNode{Meta: ast.M(gen, n.Position()), Var: n.Var, List: n.List, Body: clone(n.Body, gen), IfEmpty: ifEmpty}

	default:
		// Expression nodes and anything else reached only as a child of one
		// of the above (e.g. a PrintNode's Arg) are never themselves the
		// target of an escaping edit, so sharing the original is safe.
		return node
	}
}

// cloneTemplate copies a template's body and header under a new name so it
// can be escaped independently for a second call-site context.
func cloneTemplate(t *ast.TemplateNode, newName string, gen *ast.IDGen) *ast.TemplateNode {
	var clonedBody = clone(t.Body, gen).(*ast.ListNode)
	var c = *t
	c.Meta = ast.M(gen, t.Position())
	c.Name = newName
	c.Body = clonedBody
	return &c
}
