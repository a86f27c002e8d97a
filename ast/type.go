package ast

import "strings"

// TypeNode is the surface syntax of a type annotation written in a
// {@param}/{@state}/{let} declaration, e.g. `list<int>` or `string|null`.
// It is resolved against a types.Registry by the name-resolution pass; this
// package only records what was written, not what it resolves to.
type TypeNode interface {
	String() string
}

// NamedTypeNode is a primitive or proto/ve reference by name, e.g. `int` or
// `my.pkg.Message`.
type NamedTypeNode struct {
	Name string
}

func (t *NamedTypeNode) String() string { return t.Name }

// GenericTypeNode is a parameterized type, e.g. `list<int>` or
// `map<string,int>`.
type GenericTypeNode struct {
	Name string // "list", "map", "legacy_object_map"
	Args []TypeNode
}

func (t *GenericTypeNode) String() string {
	var parts []string
	for _, a := range t.Args {
		parts = append(parts, a.String())
	}
	return t.Name + "<" + strings.Join(parts, ",") + ">"
}

// RecordTypeNode is an inline record shape, e.g. `[a: int, b: string]`.
type RecordTypeNode struct {
	Fields []RecordFieldNode
}

// RecordFieldNode is one named, typed member of a RecordTypeNode.
type RecordFieldNode struct {
	Name string
	Type TypeNode
}

func (t *RecordTypeNode) String() string {
	var parts []string
	for _, f := range t.Fields {
		parts = append(parts, f.Name+":"+f.Type.String())
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// UnionTypeNode is `a|b|c`.
type UnionTypeNode struct {
	Members []TypeNode
}

func (t *UnionTypeNode) String() string {
	var parts []string
	for _, m := range t.Members {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, "|")
}
