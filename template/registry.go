// Package template provides convenient access to groups of parsed Soy files.
package template

import (
	"fmt"
	"log"
	"strings"

	"github.com/robfig/soy/ast"
)

// Registry provides convenient access to a collection of parsed Soy templates.
type Registry struct {
	SoyFiles  []*ast.SoyFileNode
	Templates []Template

	// sourceByTemplateName maps FQ template name to the input source it came from.
	sourceByTemplateName map[string]string
	fileByTemplateName   map[string]string

	// delPackageByFile records the {delpackage} declared in a given Soy
	// file, if any, so a deltemplate's package membership survives even
	// though DelPackageNode itself isn't a Template.
	delPackageByFile map[string]string

	// importAliases maps (file name, local alias) to the fully-qualified
	// symbol name an {import ... as alias} clause binds it to.
	importAliases map[string]map[string]string

	// templateIndex tracks which (name, delPackage, delVariant) triples
	// have already been registered, to reject duplicate definitions.
	templateIndex map[[3]string]bool
}

// Add the given Soy file node (and all contained templates) to this registry.
func (r *Registry) Add(soyfile *ast.SoyFileNode) error {
	if r.sourceByTemplateName == nil {
		r.sourceByTemplateName = make(map[string]string)
	}
	if r.fileByTemplateName == nil {
		r.fileByTemplateName = make(map[string]string)
	}
	if r.delPackageByFile == nil {
		r.delPackageByFile = make(map[string]string)
	}
	if r.importAliases == nil {
		r.importAliases = make(map[string]map[string]string)
	}
	if r.templateIndex == nil {
		r.templateIndex = make(map[[3]string]bool)
	}

	var ns *ast.NamespaceNode
	for _, node := range soyfile.Body {
		switch node := node.(type) {
		case *ast.SoyDocNode:
			continue
		case *ast.NamespaceNode:
			ns = node
		default:
			return fmt.Errorf("expected namespace, found %v", node)
		}
		break
	}
	if ns == nil {
		return fmt.Errorf("namespace required")
	}

	for _, node := range soyfile.Body {
		switch node := node.(type) {
		case *ast.DelPackageNode:
			r.delPackageByFile[soyfile.Name] = node.Name
		case *ast.ImportNode:
			var aliases = r.importAliases[soyfile.Name]
			if aliases == nil {
				aliases = make(map[string]string)
				r.importAliases[soyfile.Name] = aliases
			}
			for _, sym := range node.Names {
				aliases[sym.Alias] = sym.Name
			}
		}
	}

	r.SoyFiles = append(r.SoyFiles, soyfile)
	for i := 0; i < len(soyfile.Body); i++ {
		var tn, ok = soyfile.Body[i].(*ast.TemplateNode)
		if !ok {
			continue
		}

		var key = [3]string{tn.Name, tn.DelPackage, tn.DelVariant}
		if r.templateIndex[key] {
			if tn.IsDelegate {
				return fmt.Errorf("duplicate deltemplate %s (package %q, variant %q)",
					tn.Name, tn.DelPackage, tn.DelVariant)
			}
			return fmt.Errorf("duplicate template: %s", tn.Name)
		}
		r.templateIndex[key] = true

		// Technically every template requires soydoc, but having to add empty
		// soydoc just to get a template to compile is just stupid.  (There is a
		// separate data ref check to ensure any variables used are declared as
		// params, anyway).
		sdn, ok := soyfile.Body[i-1].(*ast.SoyDocNode)
		if !ok {
			sdn = &ast.SoyDocNode{Meta: ast.Meta{Pos: tn.Position()}}
		}
		r.Templates = append(r.Templates, Template{sdn, tn, ns})
		r.sourceByTemplateName[tn.Name] = soyfile.Text
		r.fileByTemplateName[tn.Name] = soyfile.Name
	}
	return nil
}

// DelTemplates returns every deltemplate implementation registered under
// the given delegate name, across every delegate package and variant. A
// {delcall} of this name resolves, at render time, to exactly one of
// these depending on which packages the caller has active.
func (r *Registry) DelTemplates(name string) []Template {
	var result []Template
	for _, t := range r.Templates {
		if t.Node.IsDelegate && t.Node.Name == name {
			result = append(result, t)
		}
	}
	return result
}

// ResolveImport looks up the fully-qualified symbol name that alias is
// bound to by an {import} declaration in the given file, if any.
func (r *Registry) ResolveImport(fileName, alias string) (string, bool) {
	aliases, ok := r.importAliases[fileName]
	if !ok {
		return "", false
	}
	name, ok := aliases[alias]
	return name, ok
}

// DelPackage returns the {delpackage} declared in the given file, or "" if
// the file declares none.
func (r *Registry) DelPackage(fileName string) string {
	return r.delPackageByFile[fileName]
}

// AddTemplate registers a single already-constructed template under its own
// name, inheriting the source/file bookkeeping of an existing template. This
// is used to register context-specific clones produced during autoescaping,
// where a whole new Soy file was never parsed.
func (r *Registry) AddTemplate(t Template, clonedFromName string) {
	r.Templates = append(r.Templates, t)
	if r.sourceByTemplateName == nil {
		r.sourceByTemplateName = make(map[string]string)
	}
	if r.fileByTemplateName == nil {
		r.fileByTemplateName = make(map[string]string)
	}
	r.sourceByTemplateName[t.Node.Name] = r.sourceByTemplateName[clonedFromName]
	r.fileByTemplateName[t.Node.Name] = r.fileByTemplateName[clonedFromName]
	if r.templateIndex == nil {
		r.templateIndex = make(map[[3]string]bool)
	}
	r.templateIndex[[3]string{t.Node.Name, t.Node.DelPackage, t.Node.DelVariant}] = true
}

// Template allows lookup by (fully-qualified) template name.
// The resulting template is returned and a boolean indicating if it was found.
func (r *Registry) Template(name string) (Template, bool) {
	for _, t := range r.Templates {
		if t.Node.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

// LineNumber computes the line number in the input source for the given node
// within the given template.
func (r *Registry) LineNumber(templateName string, node ast.Node) int {
	var src, ok = r.sourceByTemplateName[templateName]
	if !ok {
		log.Println("template not found:", templateName)
		return 0
	}
	return 1 + strings.Count(src[:node.Position()], "\n")
}

// ColNumber computes the column number in the relevant line of input source for the given node
// within the given template.
func (r *Registry) ColNumber(templateName string, node ast.Node) int {
	var src, ok = r.sourceByTemplateName[templateName]
	if !ok {
		log.Println("template not found:", templateName)
		return 0
	}
	return 1 + int(node.Position()) - strings.LastIndex(src[:node.Position()], "\n")
}

// Filename identifies the filename containing the specified template
func (r *Registry) Filename(templateName string) string {
	var f, ok = r.fileByTemplateName[templateName]
	if !ok {
		log.Println("template not found:", templateName)
		return ""
	}
	return f
}
