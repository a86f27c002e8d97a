// Package types implements the Soy type system: a closed set of primitive
// and composite types, interned so that structurally equal types compare
// equal by identity.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies which of the closed set of type shapes a Type has.
type Kind int

const (
	KindAny Kind = iota
	KindUnknown
	KindNull
	KindBool
	KindInt
	KindFloat
	KindNumber // int ∪ float
	KindString
	KindHTML
	KindAttributes
	KindCSS
	KindURI
	KindTrustedResourceURI
	KindJS
	KindList
	KindMap
	KindLegacyObjectMap
	KindRecord
	KindUnion
	KindProto
	KindProtoEnum
	KindTemplate
	KindVe
)

// Type is an interned Soy type. Two Types are == iff they are the same
// interned value; use the Registry's constructor functions (ByName, ListOf,
// MapOf, UnionOf, ...) to obtain one, never construct a Type literal directly
// outside this package.
type Type struct {
	kind Kind

	// Composite payloads; only the fields relevant to kind are populated.
	elem     *Type            // list<elem>
	key      *Type            // map<key,value>, legacy_object_map<key,value>
	value    *Type            // map<key,value>, legacy_object_map<key,value>
	fields   []RecordField    // record<{...}>
	members  []*Type          // union<...> (flattened, deduped, sorted by identity address string)
	fqn      string           // proto<fqn>, proto_enum<fqn>
	params   []TemplateParam  // template(params)->kind
	retKind  Kind             // template(params)->kind
	veFqn    string           // ve<fqn>
}

// RecordField is one named, typed member of a record type.
type RecordField struct {
	Name string
	Type *Type
}

// TemplateParam is one parameter in a template()->kind type signature.
type TemplateParam struct {
	Name string
	Type *Type
}

func (t *Type) Kind() Kind { return t.kind }

func (t *Type) String() string {
	switch t.kind {
	case KindAny:
		return "any"
	case KindUnknown:
		return "unknown"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindHTML:
		return "html"
	case KindAttributes:
		return "attributes"
	case KindCSS:
		return "css"
	case KindURI:
		return "uri"
	case KindTrustedResourceURI:
		return "trusted_resource_uri"
	case KindJS:
		return "js"
	case KindList:
		return "list<" + t.elem.String() + ">"
	case KindMap:
		return "map<" + t.key.String() + "," + t.value.String() + ">"
	case KindLegacyObjectMap:
		return "legacy_object_map<" + t.key.String() + "," + t.value.String() + ">"
	case KindRecord:
		var parts []string
		for _, f := range t.fields {
			parts = append(parts, f.Name+":"+f.Type.String())
		}
		return "record<{" + strings.Join(parts, ",") + "}>"
	case KindUnion:
		var parts []string
		for _, m := range t.members {
			parts = append(parts, m.String())
		}
		return "union<" + strings.Join(parts, "|") + ">"
	case KindProto:
		return "proto<" + t.fqn + ">"
	case KindProtoEnum:
		return "proto_enum<" + t.fqn + ">"
	case KindTemplate:
		var parts []string
		for _, p := range t.params {
			parts = append(parts, p.Name+":"+p.Type.String())
		}
		return fmt.Sprintf("template(%s)->%v", strings.Join(parts, ","), t.retKind)
	case KindVe:
		return "ve<" + t.veFqn + ">"
	}
	panic("unreachable kind")
}

// Registry interns primitive, aggregate, union, proto, template-function
// types and resolves them by name.
type Registry struct {
	byName  map[string]*Type
	unions  map[string]*Type
	lists   map[*Type]*Type
	maps    map[string]*Type // key identity + value identity -> type
	lomaps  map[string]*Type
	records map[string]*Type
	protos  map[string]*Type
	enums   map[string]*Type
	ves     map[string]*Type
	tmpls   map[string]*Type

	// Protos is the injected descriptor service, assigned directly by the
	// caller (nil by default). ProtoOf and ProtoEnumOf do not consult it:
	// they intern any fqn, whether or not a descriptor is registered for it.
	Protos *ProtoRegistry
}

var primitives = map[string]Kind{
	"any": KindAny, "unknown": KindUnknown, "null": KindNull,
	"bool": KindBool, "int": KindInt, "float": KindFloat, "number": KindNumber,
	"string": KindString, "html": KindHTML, "attributes": KindAttributes,
	"css": KindCSS, "uri": KindURI, "trusted_resource_uri": KindTrustedResourceURI,
	"js": KindJS,
}

// NewRegistry returns a registry with all primitives pre-populated.
func NewRegistry() *Registry {
	r := &Registry{
		byName:  make(map[string]*Type),
		unions:  make(map[string]*Type),
		lists:   make(map[*Type]*Type),
		maps:    make(map[string]*Type),
		lomaps:  make(map[string]*Type),
		records: make(map[string]*Type),
		protos:  make(map[string]*Type),
		enums:   make(map[string]*Type),
		ves:     make(map[string]*Type),
		tmpls:   make(map[string]*Type),
	}
	for name, kind := range primitives {
		r.byName[name] = &Type{kind: kind}
	}
	return r
}

// ByName resolves a primitive type by its surface name. Proto, proto enum and
// ve types interned by ProtoOf, ProtoEnumOf and VeOf are not found here.
// Returns (nil, false) for UnknownType.
func (r *Registry) ByName(name string) (*Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) ListOf(elem *Type) *Type {
	if t, ok := r.lists[elem]; ok {
		return t
	}
	t := &Type{kind: KindList, elem: elem}
	r.lists[elem] = t
	return t
}

func (r *Registry) MapOf(key, value *Type) *Type {
	k := fmt.Sprintf("%p,%p", key, value)
	if t, ok := r.maps[k]; ok {
		return t
	}
	t := &Type{kind: KindMap, key: key, value: value}
	r.maps[k] = t
	return t
}

func (r *Registry) LegacyObjectMapOf(key, value *Type) *Type {
	k := fmt.Sprintf("%p,%p", key, value)
	if t, ok := r.lomaps[k]; ok {
		return t
	}
	t := &Type{kind: KindLegacyObjectMap, key: key, value: value}
	r.lomaps[k] = t
	return t
}

func (r *Registry) RecordOf(fields []RecordField) *Type {
	sorted := append([]RecordField(nil), fields...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	var key strings.Builder
	for _, f := range sorted {
		fmt.Fprintf(&key, "%s:%p;", f.Name, f.Type)
	}
	if t, ok := r.records[key.String()]; ok {
		return t
	}
	t := &Type{kind: KindRecord, fields: sorted}
	r.records[key.String()] = t
	return t
}

// UnionOf flattens nested unions, drops duplicates (by identity), removes
// redundant null entries down to one, and returns the sole member if only
// one remains. Returns an error if the result would have zero members.
func (r *Registry) UnionOf(members []*Type) (*Type, error) {
	var flat []*Type
	seen := make(map[*Type]bool)
	var add func(*Type)
	add = func(t *Type) {
		if t.kind == KindUnion {
			for _, m := range t.members {
				add(m)
			}
			return
		}
		if !seen[t] {
			seen[t] = true
			flat = append(flat, t)
		}
	}
	for _, m := range members {
		add(m)
	}
	if len(flat) == 0 {
		return nil, fmt.Errorf("types: union of zero members")
	}
	if len(flat) == 1 {
		return flat[0], nil
	}
	sort.Slice(flat, func(i, j int) bool { return fmt.Sprintf("%p", flat[i]) < fmt.Sprintf("%p", flat[j]) })
	var key strings.Builder
	for _, m := range flat {
		fmt.Fprintf(&key, "%p;", m)
	}
	if t, ok := r.unions[key.String()]; ok {
		return t, nil
	}
	t := &Type{kind: KindUnion, members: flat}
	r.unions[key.String()] = t
	return t, nil
}

// RemoveNull returns T \ {null}: for a union containing null, the union of
// the remaining members; for the bare null type, KindNone is meaningless so
// it returns nil; otherwise T unchanged.
func (r *Registry) RemoveNull(t *Type) *Type {
	if t.kind == KindNull {
		return nil
	}
	if t.kind != KindUnion {
		return t
	}
	var rest []*Type
	for _, m := range t.members {
		if m.kind != KindNull {
			rest = append(rest, m)
		}
	}
	result, err := r.UnionOf(rest)
	if err != nil {
		return nil
	}
	return result
}

// IsAssignable reports whether a value satisfying `from` is guaranteed to
// satisfy `to` (`to` ← `from`).
func (r *Registry) IsAssignable(to, from *Type) bool {
	if to == from {
		return true
	}
	if to.kind == KindAny || to.kind == KindUnknown || from.kind == KindUnknown {
		return true
	}
	if to.kind == KindNumber && (from.kind == KindInt || from.kind == KindFloat) {
		return true
	}
	if from.kind == KindUnion {
		for _, m := range from.members {
			if !r.IsAssignable(to, m) {
				return false
			}
		}
		return true
	}
	if to.kind == KindUnion {
		for _, m := range to.members {
			if r.IsAssignable(m, from) {
				return true
			}
		}
		return false
	}
	switch to.kind {
	case KindList:
		return from.kind == KindList && r.IsAssignable(to.elem, from.elem)
	case KindMap:
		return from.kind == KindMap && r.IsAssignable(to.key, from.key) && r.IsAssignable(to.value, from.value)
	case KindRecord:
		if from.kind != KindRecord || len(from.fields) != len(to.fields) {
			return false
		}
		for i := range to.fields {
			if to.fields[i].Name != from.fields[i].Name || !r.IsAssignable(to.fields[i].Type, from.fields[i].Type) {
				return false
			}
		}
		return true
	case KindProto:
		return from.kind == KindProto && from.fqn == to.fqn
	case KindProtoEnum:
		return from.kind == KindProtoEnum && from.fqn == to.fqn
	}
	return to.kind == from.kind
}

// ProtoOf interns a proto message type by fully-qualified name. It never
// fails; a descriptor registered under fqn from two different source paths is
// reported as ProtoCollision by ProtoRegistry.AddMessage instead.
func (r *Registry) ProtoOf(fqn string) *Type {
	if t, ok := r.protos[fqn]; ok {
		return t
	}
	t := &Type{kind: KindProto, fqn: fqn}
	r.protos[fqn] = t
	return t
}

func (r *Registry) ProtoEnumOf(fqn string) *Type {
	if t, ok := r.enums[fqn]; ok {
		return t
	}
	t := &Type{kind: KindProtoEnum, fqn: fqn}
	r.enums[fqn] = t
	return t
}

func (r *Registry) VeOf(fqn string) *Type {
	if t, ok := r.ves[fqn]; ok {
		return t
	}
	t := &Type{kind: KindVe, veFqn: fqn}
	r.ves[fqn] = t
	return t
}

func (r *Registry) TemplateOf(params []TemplateParam, ret Kind) *Type {
	var key strings.Builder
	for _, p := range params {
		fmt.Fprintf(&key, "%s:%p;", p.Name, p.Type)
	}
	fmt.Fprintf(&key, "->%v", ret)
	if t, ok := r.tmpls[key.String()]; ok {
		return t
	}
	t := &Type{kind: KindTemplate, params: params, retKind: ret}
	r.tmpls[key.String()] = t
	return t
}

// UnknownType is the error returned when a type name cannot be resolved.
type UnknownType struct{ Name string }

func (e *UnknownType) Error() string { return fmt.Sprintf("unknown type: %s", e.Name) }

// ProtoCollision is the error returned when two distinct descriptors share a
// full name.
type ProtoCollision struct {
	FQN, PathA, PathB string
}

func (e *ProtoCollision) Error() string {
	return fmt.Sprintf("proto %q defined in both %q and %q", e.FQN, e.PathA, e.PathB)
}
