package types

import "testing"

func TestInterningIdentity(t *testing.T) {
	r := NewRegistry()
	str, _ := r.ByName("string")
	intT, _ := r.ByName("int")

	l1 := r.ListOf(str)
	l2 := r.ListOf(str)
	if l1 != l2 {
		t.Errorf("ListOf(string) not interned: %p != %p", l1, l2)
	}

	m1 := r.MapOf(str, intT)
	m2 := r.MapOf(str, intT)
	if m1 != m2 {
		t.Errorf("MapOf(string,int) not interned")
	}
}

func TestUnionOfFlattensAndDedupes(t *testing.T) {
	r := NewRegistry()
	str, _ := r.ByName("string")
	intT, _ := r.ByName("int")
	null, _ := r.ByName("null")

	inner, err := r.UnionOf([]*Type{str, intT})
	if err != nil {
		t.Fatal(err)
	}
	outer, err := r.UnionOf([]*Type{inner, null, str})
	if err != nil {
		t.Fatal(err)
	}
	if outer.Kind() != KindUnion || len(outer.members) != 3 {
		t.Fatalf("expected a 3-member flattened union, got %v", outer)
	}
}

func TestUnionOfSingleMemberCollapses(t *testing.T) {
	r := NewRegistry()
	str, _ := r.ByName("string")
	u, err := r.UnionOf([]*Type{str, str})
	if err != nil {
		t.Fatal(err)
	}
	if u != str {
		t.Errorf("union of one distinct member should collapse to that member")
	}
}

func TestUnionOfZeroMembersErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.UnionOf(nil); err == nil {
		t.Error("expected error for union of zero members")
	}
}

func TestRemoveNull(t *testing.T) {
	r := NewRegistry()
	str, _ := r.ByName("string")
	null, _ := r.ByName("null")
	nullable, _ := r.UnionOf([]*Type{str, null})

	got := r.RemoveNull(nullable)
	if got != str {
		t.Errorf("RemoveNull(string|null) = %v, want string", got)
	}
}

func TestIsAssignableNumber(t *testing.T) {
	r := NewRegistry()
	number, _ := r.ByName("number")
	intT, _ := r.ByName("int")
	floatT, _ := r.ByName("float")
	str, _ := r.ByName("string")

	if !r.IsAssignable(number, intT) {
		t.Error("number should accept int")
	}
	if !r.IsAssignable(number, floatT) {
		t.Error("number should accept float")
	}
	if r.IsAssignable(number, str) {
		t.Error("number should not accept string")
	}
}

func TestIsAssignableUnknownBothWays(t *testing.T) {
	r := NewRegistry()
	unknown, _ := r.ByName("unknown")
	str, _ := r.ByName("string")
	if !r.IsAssignable(unknown, str) || !r.IsAssignable(str, unknown) {
		t.Error("unknown must be assignable both ways")
	}
}

func TestProtoCollision(t *testing.T) {
	pr := NewProtoRegistry()
	d := &MessageDescriptor{FQN: "a.B"}
	if err := pr.AddMessage("a.proto", d); err != nil {
		t.Fatal(err)
	}
	err := pr.AddMessage("b.proto", d)
	if err == nil {
		t.Fatal("expected ProtoCollision")
	}
	if _, ok := err.(*ProtoCollision); !ok {
		t.Errorf("expected *ProtoCollision, got %T", err)
	}
}
