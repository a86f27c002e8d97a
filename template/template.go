package template

import "github.com/robfig/soy/ast"

// Template is a Soy template's parse tree, including its preceeding soydoc.
type Template struct {
	*ast.SoyDocNode // this template's SoyDoc
	Node            *ast.TemplateNode
	Namespace       *ast.NamespaceNode // this template's namespace
}
