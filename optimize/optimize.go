// Package optimize implements the constant folder named by spec §4.8: a
// single post-order rewrite over a parsed template that replaces any
// expression subtree whose value doesn't depend on render-time data with
// the literal it evaluates to, and merges adjacent raw text. It is grounded
// on the ast.ParentNode visitor idiom already used throughout this module
// (see autoescape/rewriter.go's walk+rewrite shape) and on eval.Eval, which
// supplies the restricted evaluation semantics ("pre-evaluation": no $ij,
// no bidi, no externs -- an evaluation error just leaves the subtree alone,
// per spec §4.8's "exceptions are non-fatal").
package optimize

import (
	"github.com/robfig/soy/ast"
	"github.com/robfig/soy/data"
	"github.com/robfig/soy/eval"
)

// Simplify rewrites node in place and returns it, folding constant
// subexpressions and merging adjacent raw text runs. An expression root
// that folds entirely is returned as its literal replacement.
func Simplify(node ast.Node) ast.Node {
	var s = simplifier{env: eval.NewEnv(nil)}
	if folded := s.foldExpr(node); folded != node {
		return folded
	}
	s.walk(node)
	return node
}

type simplifier struct {
	env *eval.Env
}

// foldExpr attempts to replace expr with the literal it folds to. It always
// recurses into expr's own children first (so `(1+1) + $x` still folds its
// left side even though the whole expression isn't constant), then tries a
// whole-subtree evaluation; a failure (a data ref, a function call, a
// dereference error) just leaves expr as returned by the recursive pass.
func (s *simplifier) foldExpr(expr ast.Node) ast.Node {
	if expr == nil {
		return nil
	}
	switch n := expr.(type) {
	case *ast.NullNode, *ast.BoolNode, *ast.IntNode, *ast.FloatNode, *ast.StringNode, *ast.GlobalNode:
		return expr // already a literal
	case *ast.NegateNode:
		n.Arg = s.foldExpr(n.Arg)
	case *ast.NotNode:
		n.Arg = s.foldExpr(n.Arg)
	case *ast.NonNullAssertNode:
		n.Arg = s.foldExpr(n.Arg)
	case *ast.MulNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.DivNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.ModNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.AddNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.SubNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.EqNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.NotEqNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.GtNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.GteNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.LtNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.LteNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.AndNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.OrNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.ElvisNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.NullCoalesceNode:
		n.Arg1, n.Arg2 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2)
	case *ast.TernNode:
		n.Arg1, n.Arg2, n.Arg3 = s.foldExpr(n.Arg1), s.foldExpr(n.Arg2), s.foldExpr(n.Arg3)
	case *ast.ListLiteralNode:
		for i, item := range n.Items {
			n.Items[i] = s.foldExpr(item)
		}
	case *ast.MapLiteralNode:
		for k, v := range n.Items {
			n.Items[k] = s.foldExpr(v)
		}
	default:
		// Data refs, function calls, method calls, proto inits, etc: no
		// constant folding, and no foldable children to recurse into ahead
		// of a whole-subtree attempt (a DataRefNode's Access nodes can only
		// be resolved once the base is, which needs render-time data).
		return expr
	}

	v, err := eval.Eval(s.env, nil, nil, expr)
	if err != nil {
		return expr
	}
	return literalFor(expr, v)
}

// literalFor wraps a folded value as a GlobalNode, which already exists in
// the AST precisely to carry a precomputed data.Value alongside source text
// (it's how {namespace}-level global constants are represented); reusing it
// here avoids inventing a second "constant expression" node kind.
func literalFor(original ast.Node, v data.Value) ast.Node {
	return &ast.GlobalNode{Meta: metaOf(original), Name: original.String(), Value: v}
}

func metaOf(n ast.Node) ast.Meta {
	return ast.Meta{Pos: n.Position()}
}

func (s *simplifier) walk(node ast.Node) {
	switch n := node.(type) {
	case *ast.PrintNode:
		n.Arg = s.foldExpr(n.Arg)
		for _, d := range n.Directives {
			for i, arg := range d.Args {
				d.Args[i] = s.foldExpr(arg)
			}
		}
	case *ast.CssNode:
		if n.Expr != nil {
			n.Expr = s.foldExpr(n.Expr)
		}
	case *ast.IfCondNode:
		if n.Cond != nil {
			n.Cond = s.foldExpr(n.Cond)
		}
	case *ast.SwitchNode:
		n.Value = s.foldExpr(n.Value)
		for _, c := range n.Cases {
			for i, v := range c.Values {
				c.Values[i] = s.foldExpr(v)
			}
		}
	case *ast.ForNode:
		n.List = s.foldExpr(n.List)
	case *ast.LetValueNode:
		n.Expr = s.foldExpr(n.Expr)
	case *ast.CallNode:
		if n.Data != nil {
			n.Data = s.foldExpr(n.Data)
		}
		if n.Variant != nil {
			n.Variant = s.foldExpr(n.Variant)
		}
	case *ast.CallParamValueNode:
		n.Value = s.foldExpr(n.Value)
	case *ast.ListNode:
		n.Nodes = mergeRawText(n.Nodes)
	}

	if parent, ok := node.(ast.ParentNode); ok {
		for _, child := range parent.Children() {
			if child != nil {
				s.walk(child)
			}
		}
	}
}

// mergeRawText concatenates consecutive RawTextNode siblings, grounded on
// spec §4.2's note that raw text adjacency merging happens at optimisation
// time rather than during parsing.
func mergeRawText(nodes []ast.Node) []ast.Node {
	var merged []ast.Node
	for _, n := range nodes {
		if raw, ok := n.(*ast.RawTextNode); ok {
			if len(merged) > 0 {
				if prev, ok := merged[len(merged)-1].(*ast.RawTextNode); ok {
					prev.Text = append(prev.Text, raw.Text...)
					continue
				}
			}
			merged = append(merged, &ast.RawTextNode{Meta: raw.Meta, Text: append([]byte(nil), raw.Text...)})
			continue
		}
		merged = append(merged, n)
	}
	return merged
}
