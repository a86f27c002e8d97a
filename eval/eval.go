package eval

import (
	"github.com/robfig/soy/ast"
	"github.com/robfig/soy/data"
	"github.com/robfig/soy/types"
)

// Func is one function callable from a Soy expression. It mirrors the shape
// soyhtml.Func already uses at the call site (ValidArgLengths + Apply), kept
// identical so a caller can share one function table between the runtime
// renderer and the optimiser's restricted pre-evaluation.
type Func struct {
	ValidArgLengths []int
	Apply           func(args []data.Value) data.Value
}

// FuncRegistry resolves a Soy function name to its implementation. A nil
// registry makes every FunctionNode fail with UnsupportedNode, which is
// exactly what the optimiser's pre-evaluation wants (spec §4.8: constant
// folding never invokes externs).
type FuncRegistry map[string]Func

// Eval evaluates a single Soy expression node against env, using funcs (may
// be nil) to resolve function calls. protos (may be nil) is stored on the
// evaluator but not consulted: method calls are resolved against data.Map
// values only.
//
// Unlike soyhtml's inline walker, Eval has no side effects: it never writes
// output, never executes a {call}, and never renders a {msg} -- it only
// computes a value from an expression tree and an environment. That is what
// makes it safe for optimize.Simplify to invoke speculatively while folding
// constant subtrees.
func Eval(env *Env, funcs FuncRegistry, protos *types.ProtoRegistry, node ast.Node) (data.Value, error) {
	var ev = &evaluator{env: env, funcs: funcs, protos: protos}
	v, err := ev.eval(node)
	return v, err
}

type evaluator struct {
	env    *Env
	funcs  FuncRegistry
	protos *types.ProtoRegistry
}

func (ev *evaluator) eval(node ast.Node) (val data.Value, err error) {
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
	case *ast.GlobalNode:
		return node.Value, nil

	case *ast.ListLiteralNode:
		var items = make(data.List, len(node.Items))
		for i, item := range node.Items {
			if items[i], err = ev.eval(item); err != nil {
				return nil, err
			}
		}
		return items, nil

	case *ast.MapLiteralNode:
		var items = make(data.Map, len(node.Items))
		for k, v := range node.Items {
			if items[k], err = ev.eval(v); err != nil {
				return nil, err
			}
		}
		return items, nil

	case *ast.DataRefNode:
		return ev.evalDataRef(node)

	case *ast.NegateNode:
		arg, err := ev.evalDef(node.Arg)
		if err != nil {
			return nil, err
		}
		switch arg := arg.(type) {
		case data.Int:
			return data.Int(-arg), nil
		case data.Float:
			return data.Float(-arg), nil
		default:
			return nil, &NotANumber{arg.String()}
		}

	case *ast.NotNode:
		arg, err := ev.eval(node.Arg)
		if err != nil {
			return nil, err
		}
		return data.Bool(!arg.Truthy()), nil

	case *ast.NonNullAssertNode:
		arg, err := ev.eval(node.Arg)
		if err != nil {
			return nil, err
		}
		if isNullish(arg) {
			return nil, &NullDereference{node.Arg.String()}
		}
		return arg, nil

	case *ast.AddNode:
		arg1, arg2, err := ev.evalDef2(node.Arg1, node.Arg2)
		if err != nil {
			return nil, err
		}
		switch {
		case isInt(arg1) && isInt(arg2):
			return data.Int(arg1.(data.Int) + arg2.(data.Int)), nil
		case isString(arg1) || isString(arg2):
			return data.String(arg1.String() + arg2.String()), nil
		default:
			f1, f2, err := toFloats(arg1, arg2)
			if err != nil {
				return nil, err
			}
			return data.Float(f1 + f2), nil
		}
	case *ast.SubNode:
		arg1, arg2, err := ev.evalDef2(node.Arg1, node.Arg2)
		if err != nil {
			return nil, err
		}
		if isInt(arg1) && isInt(arg2) {
			return data.Int(arg1.(data.Int) - arg2.(data.Int)), nil
		}
		f1, f2, err := toFloats(arg1, arg2)
		if err != nil {
			return nil, err
		}
		return data.Float(f1 - f2), nil
	case *ast.MulNode:
		arg1, arg2, err := ev.evalDef2(node.Arg1, node.Arg2)
		if err != nil {
			return nil, err
		}
		if isInt(arg1) && isInt(arg2) {
			return data.Int(arg1.(data.Int) * arg2.(data.Int)), nil
		}
		f1, f2, err := toFloats(arg1, arg2)
		if err != nil {
			return nil, err
		}
		return data.Float(f1 * f2), nil
	case *ast.DivNode:
		arg1, arg2, err := ev.evalDef2(node.Arg1, node.Arg2)
		if err != nil {
			return nil, err
		}
		f1, f2, err := toFloats(arg1, arg2)
		if err != nil {
			return nil, err
		}
		return data.Float(f1 / f2), nil
	case *ast.ModNode:
		arg1, arg2, err := ev.evalDef2(node.Arg1, node.Arg2)
		if err != nil {
			return nil, err
		}
		i1, ok1 := arg1.(data.Int)
		i2, ok2 := arg2.(data.Int)
		if !ok1 || !ok2 {
			return nil, &NotANumber{node.String()}
		}
		return data.Int(i1 % i2), nil

	case *ast.EqNode:
		a1, err := ev.eval(node.Arg1)
		if err != nil {
			return nil, err
		}
		a2, err := ev.eval(node.Arg2)
		if err != nil {
			return nil, err
		}
		return data.Bool(a1.Equals(a2)), nil
	case *ast.NotEqNode:
		a1, err := ev.eval(node.Arg1)
		if err != nil {
			return nil, err
		}
		a2, err := ev.eval(node.Arg2)
		if err != nil {
			return nil, err
		}
		return data.Bool(!a1.Equals(a2)), nil
	case *ast.LtNode:
		return ev.evalCompare(node.Arg1, node.Arg2, func(a, b float64) bool { return a < b })
	case *ast.LteNode:
		return ev.evalCompare(node.Arg1, node.Arg2, func(a, b float64) bool { return a <= b })
	case *ast.GtNode:
		return ev.evalCompare(node.Arg1, node.Arg2, func(a, b float64) bool { return a > b })
	case *ast.GteNode:
		return ev.evalCompare(node.Arg1, node.Arg2, func(a, b float64) bool { return a >= b })

	case *ast.AndNode:
		a1, err := ev.eval(node.Arg1)
		if err != nil {
			return nil, err
		}
		if !a1.Truthy() {
			return data.Bool(false), nil
		}
		a2, err := ev.eval(node.Arg2)
		if err != nil {
			return nil, err
		}
		return data.Bool(a2.Truthy()), nil
	case *ast.OrNode:
		a1, err := ev.eval(node.Arg1)
		if err != nil {
			return nil, err
		}
		if a1.Truthy() {
			return data.Bool(true), nil
		}
		a2, err := ev.eval(node.Arg2)
		if err != nil {
			return nil, err
		}
		return data.Bool(a2.Truthy()), nil
	case *ast.ElvisNode:
		a1, err := ev.eval(node.Arg1)
		if err != nil {
			return nil, err
		}
		if !isNullish(a1) {
			return a1, nil
		}
		return ev.eval(node.Arg2)
	case *ast.NullCoalesceNode:
		// As with Elvis, only null/undefined substitutes -- a falsy-but-present
		// value (0, "", false) on the left is returned as-is.
		a1, err := ev.eval(node.Arg1)
		if err != nil {
			return nil, err
		}
		if !isNullish(a1) {
			return a1, nil
		}
		return ev.eval(node.Arg2)
	case *ast.TernNode:
		a1, err := ev.eval(node.Arg1)
		if err != nil {
			return nil, err
		}
		if a1.Truthy() {
			return ev.eval(node.Arg2)
		}
		return ev.eval(node.Arg3)

	case *ast.FunctionNode:
		return ev.evalFunc(node)

	case *ast.MethodCallNode:
		return ev.evalMethodCall(node)
	}
	return nil, &UnsupportedNode{node}
}

func (ev *evaluator) evalFunc(node *ast.FunctionNode) (data.Value, error) {
	fn, ok := ev.funcs[node.Name]
	if !ok {
		return nil, &UnsupportedNode{node}
	}
	var ok2 bool
	for _, n := range fn.ValidArgLengths {
		if n == len(node.Args) {
			ok2 = true
		}
	}
	if !ok2 {
		return nil, &UnsupportedNode{node}
	}
	var args = make([]data.Value, len(node.Args))
	for i, arg := range node.Args {
		v, err := ev.eval(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	if r := fn.Apply(args); r != nil {
		return r, nil
	}
	return data.Null{}, nil
}

// evalMethodCall handles `base.getExtension(Foo.bar)`-style proto field
// access: the base must evaluate to a data.Map standing in for a proto
// message (the module has no first-class proto value type -- per spec §1
// proto descriptor *loading* is out of scope, so this only specifies the
// access shape the descriptor registry would back), and the method name
// (after stripping a conventional "get" prefix) is used as the field key.
func (ev *evaluator) evalMethodCall(node *ast.MethodCallNode) (data.Value, error) {
	base, err := ev.eval(node.Base)
	if err != nil {
		return nil, err
	}
	if isNullish(base) {
		if node.NullSafe {
			return data.Null{}, nil
		}
		return nil, &NullDereference{node.Base.String()}
	}
	m, ok := base.(data.Map)
	if !ok {
		return nil, &UnsupportedNode{node}
	}
	var field = node.Method
	if len(field) > 3 && field[:3] == "get" {
		field = string(field[3]-'A'+'a') + field[4:]
	}
	if v, ok := m[field]; ok {
		return v, nil
	}
	return data.Null{}, nil
}

func (ev *evaluator) evalCompare(n1, n2 ast.Node, cmp func(a, b float64) bool) (data.Value, error) {
	a1, a2, err := ev.evalDef2(n1, n2)
	if err != nil {
		return nil, err
	}
	f1, f2, err := toFloats(a1, a2)
	if err != nil {
		return nil, err
	}
	return data.Bool(cmp(f1, f2)), nil
}

func (ev *evaluator) evalDef(n ast.Node) (data.Value, error) {
	v, err := ev.eval(n)
	if err != nil {
		return nil, err
	}
	if _, ok := v.(data.Undefined); ok {
		return nil, &NullDereference{n.String()}
	}
	return v, nil
}

func (ev *evaluator) evalDef2(n1, n2 ast.Node) (data.Value, data.Value, error) {
	a1, err := ev.evalDef(n1)
	if err != nil {
		return nil, nil, err
	}
	a2, err := ev.evalDef(n2)
	if err != nil {
		return nil, nil, err
	}
	return a1, a2, nil
}

func (ev *evaluator) evalDataRef(node *ast.DataRefNode) (data.Value, error) {
	var ref data.Value
	if node.Key == "ij" {
		if ev.env.Ij == nil {
			return nil, &NullDereference{node.String()}
		}
		ref = ev.env.Ij
	} else {
		ref = ev.env.Lookup(node.Key)
	}
	for i, accessNode := range node.Access {
		var (
			index = -1
			key   string
		)
		switch a := accessNode.(type) {
		case *ast.DataRefIndexNode:
			index = a.Index
		case *ast.DataRefKeyNode:
			key = a.Key
		case *ast.DataRefExprNode:
			keyVal, err := ev.eval(a.Arg)
			if err != nil {
				return nil, err
			}
			if iv, ok := keyVal.(data.Int); ok {
				index = int(iv)
			} else {
				key = keyVal.String()
			}
		}

		switch obj := ref.(type) {
		case data.Undefined, data.Null:
			if isNullSafeAccess(accessNode) {
				return data.Null{}, nil
			}
			return nil, &NullDereference{(&ast.DataRefNode{Meta: node.Meta, Key: node.Key, Access: node.Access[:i]}).String()}
		case data.List:
			if index == -1 {
				return nil, &UnsupportedNode{node}
			}
			ref = obj.Index(index)
		case data.Map:
			if key == "" {
				return nil, &UnsupportedNode{node}
			}
			ref = obj.Key(key)
		default:
			return nil, &UnsupportedNode{node}
		}
	}
	return ref, nil
}

func isNullSafeAccess(n ast.Node) bool {
	switch node := n.(type) {
	case *ast.DataRefIndexNode:
		return node.NullSafe
	case *ast.DataRefKeyNode:
		return node.NullSafe
	case *ast.DataRefExprNode:
		return node.NullSafe
	}
	return false
}

func isNullish(v data.Value) bool {
	switch v.(type) {
	case data.Null, data.Undefined:
		return true
	}
	return false
}

func isInt(v data.Value) bool {
	_, ok := v.(data.Int)
	return ok
}

func isString(v data.Value) bool {
	_, ok := v.(data.String)
	return ok
}

func toFloats(a, b data.Value) (float64, float64, error) {
	f1, err := toFloat(a)
	if err != nil {
		return 0, 0, err
	}
	f2, err := toFloat(b)
	if err != nil {
		return 0, 0, err
	}
	return f1, f2, nil
}

func toFloat(v data.Value) (float64, error) {
	switch v := v.(type) {
	case data.Int:
		return float64(v), nil
	case data.Float:
		return float64(v), nil
	default:
		return 0, &NotANumber{v.String()}
	}
}
