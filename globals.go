package soy

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/robfig/soy/ast"
	"github.com/robfig/soy/data"
	"github.com/robfig/soy/parse"
)

// ParseGlobals parses the given input, expecting the form:
//  <global_name> = <primitive_data>
//
// Furthermore:
//  - Empty lines and lines beginning with '//' are ignored.
//  - <primitive_data> must be a valid template expression literal for a
//    primitive type (null, boolean, integer, float, or string)
func ParseGlobals(input io.Reader) (data.Map, error) {
	var globals = make(data.Map)
	var scanner = bufio.NewScanner(input)
	for scanner.Scan() {
		var line = scanner.Text()
		if len(line) == 0 || strings.HasPrefix(line, "//") {
			continue
		}
		var eq = strings.Index(line, "=")
		if eq == -1 {
			return nil, fmt.Errorf("no equals on line: %q", line)
		}
		var (
			name = strings.TrimSpace(line[:eq])
			expr = strings.TrimSpace(line[eq+1:])
		)
		var node, err = parse.Expr(expr)
		if err != nil {
			return nil, err
		}
		exprValue, err := evalPrimitive(node)
		if err != nil {
			return nil, err
		}
		globals[name] = exprValue
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return globals, nil
}

// evalPrimitive evaluates the literal expression nodes a globals file may
// contain: null, boolean, integer, float, string, and negation of a numeric
// literal. Anything else (data refs, function calls, operators besides
// negation) is rejected, since a global's value must be a constant.
func evalPrimitive(node ast.Node) (data.Value, error) {
	switch node := node.(type) {
	case *ast.NullNode:
		return data.Null{}, nil
	case *ast.BoolNode:
		return data.Bool(node.True), nil
	case *ast.IntNode:
		return data.Int(node.Value), nil
	case *ast.FloatNode:
		return data.Float(node.Value), nil
	case *ast.StringNode:
		return data.String(node.Value), nil
	case *ast.NegateNode:
		switch arg := node.Arg.(type) {
		case *ast.IntNode:
			return data.Int(-arg.Value), nil
		case *ast.FloatNode:
			return data.Float(-arg.Value), nil
		}
	}
	return nil, fmt.Errorf("not a primitive literal: %v", node)
}
