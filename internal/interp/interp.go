// Package interp implements the JEXL tree-walking interpreter: a stateless
// dispatcher over internal/ast nodes, bound per call to an Activation
// carrying the uberspect, the arithmetic engine, the variable context, an
// optional register array, and the inherited silent/strict flags.
//
// The interpreter recovers from errors internally in two places only: a
// Method call whose lookup fails with NoSuchMethod yields null in silent
// mode, and size() of a value with no resolvable size method is 0. All
// other errors propagate; the engine facade's silent-mode shim lives in
// pkg/jexl.
package interp

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/cwbudde/go-jexl/internal/arith"
	"github.com/cwbudde/go-jexl/internal/ast"
	"github.com/cwbudde/go-jexl/internal/context"
	"github.com/cwbudde/go-jexl/internal/jexlerr"
	"github.com/cwbudde/go-jexl/internal/uberspect"
	"github.com/cwbudde/go-jexl/internal/value"
)

// Activation binds one evaluation of an AST to its collaborators. The same
// AST may be evaluated concurrently from independent Activations bound to
// distinct Contexts.
type Activation struct {
	Context   context.Context
	Registers *context.Registers
	Uberspect uberspect.Uberspect
	Arith     *arith.Arith
	Silent    bool
	// Functions maps a namespace prefix to the host object that resolves
	// "ns:func(args)" calls registered via the engine's SetFunctions.
	Functions map[string]value.Value
}

// Interpreter evaluates AST nodes. It holds no mutable state of its own.
type Interpreter struct{}

// New creates an Interpreter.
func New() *Interpreter { return &Interpreter{} }

// Eval evaluates root under act and returns its Value.
func (ip *Interpreter) Eval(root ast.Node, act *Activation) (value.Value, error) {
	return ip.eval(root, act, nil)
}

// eval is the dispatch core. data, when non-nil, is the "current" value a
// Reference chain is threading through its segments; a nil data means
// "look the node up fresh" (context lookup for identifiers, normal
// recursive evaluation for everything else).
func (ip *Interpreter) eval(n ast.Node, act *Activation, data value.Value) (value.Value, error) {
	switch n.Kind() {
	case ast.KindScript, ast.KindBlock:
		return ip.evalBlock(n, act)
	case ast.KindInt:
		return evalIntLiteral(n.Image()), nil
	case ast.KindFloat:
		f, err := strconv.ParseFloat(n.Image(), 64)
		if err != nil {
			return nil, jexlerr.Wrap(jexlerr.KindTypeCoercion, n, "malformed float literal %q", n.Image())
		}
		return value.Float64(f), nil
	case ast.KindStr:
		return value.Str(n.Image()), nil
	case ast.KindTrue:
		return value.Bool(true), nil
	case ast.KindFalse:
		return value.Bool(false), nil
	case ast.KindNull:
		return value.NullValue, nil
	case ast.KindIdentifier:
		return ip.evalIdentifier(n, act, data)
	case ast.KindReference:
		return ip.evalReference(n, act)
	case ast.KindMethod:
		return ip.evalMethod(n, act, data)
	case ast.KindArrayAccess:
		return ip.evalArrayAccessSegment(n, act, data)
	case ast.KindMapLit:
		return ip.evalMapLit(n, act)
	case ast.KindArrayLit:
		return ip.evalArrayLit(n, act)
	case ast.KindAssignment:
		return ip.evalAssignment(n, act)
	case ast.KindIf:
		return ip.evalIf(n, act)
	case ast.KindWhile:
		return ip.evalWhile(n, act)
	case ast.KindForEach:
		return ip.evalForEach(n, act)
	case ast.KindAnd:
		return ip.evalAnd(n, act)
	case ast.KindOr:
		return ip.evalOr(n, act)
	case ast.KindNot:
		v, err := ip.eval1(n, act)
		if err != nil {
			return nil, err
		}
		out, err := act.Arith.Not(v)
		return ip.wrap(n, out, err)
	case ast.KindUMinus:
		v, err := ip.eval1(n, act)
		if err != nil {
			return nil, err
		}
		out, err := act.Arith.Neg(v)
		return ip.wrap(n, out, err)
	case ast.KindBitNot:
		v, err := ip.eval1(n, act)
		if err != nil {
			return nil, err
		}
		out, err := act.Arith.BitNot(v)
		return ip.wrap(n, out, err)
	case ast.KindSizeFn, ast.KindSizeMethod:
		return ip.evalSize(n, act)
	case ast.KindEmptyFn:
		return ip.evalEmpty(n, act)
	default:
		return ip.evalBinary(n, act)
	}
}

func (ip *Interpreter) wrap(n ast.Node, v value.Value, err error) (value.Value, error) {
	if err == nil {
		return v, nil
	}
	if ae, ok := err.(*arith.Error); ok {
		return nil, jexlerr.Wrap(jexlerrKindFromArith(ae.Kind), n, "%s", ae.Msg)
	}
	return nil, err
}

func jexlerrKindFromArith(k arith.Kind) jexlerr.Kind {
	switch k {
	case arith.KindNullOperand:
		return jexlerr.KindNullOperand
	case arith.KindDivideByZero:
		return jexlerr.KindDivideByZero
	case arith.KindInvalidComparison:
		return jexlerr.KindInvalidComparison
	case arith.KindNumberFormat:
		return jexlerr.KindTypeCoercion
	default:
		return jexlerr.KindTypeCoercion
	}
}

func evalIntLiteral(image string) value.Value {
	if i, err := strconv.ParseInt(image, 10, 64); err == nil {
		if i >= int64(int32(-1<<31)) && i <= int64(int32(1<<31-1)) {
			return value.Int32(int32(i))
		}
		return value.Int64(i)
	}
	bi, ok := new(big.Int).SetString(image, 10)
	if !ok {
		return value.Int64(0)
	}
	return value.NewBigInt(bi)
}

func (ip *Interpreter) eval1(n ast.Node, act *Activation) (value.Value, error) {
	return ip.eval(n.Children()[0], act, nil)
}

func (ip *Interpreter) evalBlock(n ast.Node, act *Activation) (value.Value, error) {
	var last value.Value = value.NullValue
	for _, c := range n.Children() {
		v, err := ip.eval(c, act, nil)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

// evalBinary handles the arithmetic/bitwise/comparison binary operators,
// every Kind not given bespoke control-flow or short-circuit handling
// above.
func (ip *Interpreter) evalBinary(n ast.Node, act *Activation) (value.Value, error) {
	ch := n.Children()
	left, err := ip.eval(ch[0], act, nil)
	if err != nil {
		return nil, err
	}
	right, err := ip.eval(ch[1], act, nil)
	if err != nil {
		return nil, err
	}

	switch n.Kind() {
	case ast.KindAdd:
		out, err := act.Arith.Add(left, right)
		return ip.wrap(n, out, err)
	case ast.KindSub:
		out, err := act.Arith.Sub(left, right)
		return ip.wrap(n, out, err)
	case ast.KindMul:
		out, err := act.Arith.Mul(left, right)
		return ip.wrap(n, out, err)
	case ast.KindDiv:
		out, err := act.Arith.Div(left, right)
		return ip.wrap(n, out, err)
	case ast.KindMod:
		out, err := act.Arith.Mod(left, right)
		return ip.wrap(n, out, err)
	case ast.KindBitAnd:
		out, err := act.Arith.BitAnd(left, right)
		return ip.wrap(n, out, err)
	case ast.KindBitOr:
		out, err := act.Arith.BitOr(left, right)
		return ip.wrap(n, out, err)
	case ast.KindBitXor:
		out, err := act.Arith.BitXor(left, right)
		return ip.wrap(n, out, err)
	case ast.KindEq:
		b, err := act.Arith.Eq(left, right)
		return ip.wrapBool(n, b, err)
	case ast.KindNe:
		b, err := act.Arith.Ne(left, right)
		return ip.wrapBool(n, b, err)
	case ast.KindLt:
		b, err := act.Arith.Lt(left, right)
		return ip.wrapBool(n, b, err)
	case ast.KindLe:
		b, err := act.Arith.Le(left, right)
		return ip.wrapBool(n, b, err)
	case ast.KindGt:
		b, err := act.Arith.Gt(left, right)
		return ip.wrapBool(n, b, err)
	case ast.KindGe:
		b, err := act.Arith.Ge(left, right)
		return ip.wrapBool(n, b, err)
	default:
		return nil, jexlerr.Wrap(jexlerr.KindTypeCoercion, n, "unhandled node kind %s", n.Kind())
	}
}

func (ip *Interpreter) wrapBool(n ast.Node, b bool, err error) (value.Value, error) {
	if err != nil {
		if ae, ok := err.(*arith.Error); ok {
			return nil, jexlerr.Wrap(jexlerrKindFromArith(ae.Kind), n, "%s", ae.Msg)
		}
		return nil, err
	}
	return value.Bool(b), nil
}

func (ip *Interpreter) evalAnd(n ast.Node, act *Activation) (value.Value, error) {
	ch := n.Children()
	left, err := ip.eval(ch[0], act, nil)
	if err != nil {
		return nil, err
	}
	lb, err := act.Arith.ToBool(left)
	if err != nil {
		return ip.wrap(n, nil, err)
	}
	if !lb {
		return value.Bool(false), nil
	}
	right, err := ip.eval(ch[1], act, nil)
	if err != nil {
		return nil, err
	}
	rb, err := act.Arith.ToBool(right)
	if err != nil {
		return ip.wrap(n, nil, err)
	}
	return value.Bool(rb), nil
}

func (ip *Interpreter) evalOr(n ast.Node, act *Activation) (value.Value, error) {
	ch := n.Children()
	left, err := ip.eval(ch[0], act, nil)
	if err != nil {
		return nil, err
	}
	lb, err := act.Arith.ToBool(left)
	if err != nil {
		return ip.wrap(n, nil, err)
	}
	if lb {
		return value.Bool(true), nil
	}
	right, err := ip.eval(ch[1], act, nil)
	if err != nil {
		return nil, err
	}
	rb, err := act.Arith.ToBool(right)
	if err != nil {
		return ip.wrap(n, nil, err)
	}
	return value.Bool(rb), nil
}

func (ip *Interpreter) evalIf(n ast.Node, act *Activation) (value.Value, error) {
	ch := n.Children()
	cond, err := ip.eval(ch[0], act, nil)
	if err != nil {
		return nil, err
	}
	b, err := act.Arith.ToBool(cond)
	if err != nil {
		return ip.wrap(n, nil, err)
	}
	if b {
		return ip.eval(ch[1], act, nil)
	}
	if len(ch) == 3 {
		return ip.eval(ch[2], act, nil)
	}
	return value.NullValue, nil
}

func (ip *Interpreter) evalWhile(n ast.Node, act *Activation) (value.Value, error) {
	ch := n.Children()
	var last value.Value = value.NullValue
	for {
		cond, err := ip.eval(ch[0], act, nil)
		if err != nil {
			return nil, err
		}
		b, err := act.Arith.ToBool(cond)
		if err != nil {
			return ip.wrap(n, nil, err)
		}
		if !b {
			return last, nil
		}
		v, err := ip.eval(ch[1], act, nil)
		if err != nil {
			return nil, err
		}
		last = v
	}
}

func (ip *Interpreter) evalForEach(n ast.Node, act *Activation) (value.Value, error) {
	ch := n.Children()
	loopVar := ch[0].Image()
	iterableVal, err := ip.eval(ch[1], act, nil)
	if err != nil {
		return nil, err
	}
	it, err := act.Uberspect.GetIterator(iterableVal, uberspect.Info{Node: n})
	if err != nil {
		return nil, err
	}
	var last value.Value = value.NullValue
	if it == nil {
		return last, nil
	}
	for {
		elem, ok := it.Next()
		if !ok {
			break
		}
		act.Context.Set(loopVar, elem)
		v, err := ip.eval(ch[2], act, nil)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

func (ip *Interpreter) evalAssignment(n ast.Node, act *Activation) (value.Value, error) {
	ch := n.Children()
	target := ch[0]
	v, err := ip.eval(ch[1], act, nil)
	if err != nil {
		return nil, err
	}
	if err := ip.assign(target, v, act); err != nil {
		return nil, err
	}
	return v, nil
}

// assign binds an assignment target: a bare identifier binds a context
// variable directly; a longer Reference chain threads through every
// segment but the last (exactly as evalReference does for reads) and
// applies the final segment as a property or index set on the accumulated
// value. This is what lets the engine's SetProperty register-synthesis
// trick assign into "$0.name" through the ordinary evaluation path instead
// of a bean-specific one. Any other target shape - a literal, a bare
// method call, an empty chain - is BadAssignment.
func (ip *Interpreter) assign(target ast.Node, v value.Value, act *Activation) error {
	if target.Kind() != ast.KindReference {
		return jexlerr.Wrap(jexlerr.KindBadAssignment, target, "assignment target must be a reference")
	}
	ch := target.Children()
	if len(ch) == 0 {
		return jexlerr.Wrap(jexlerr.KindBadAssignment, target, "assignment target must be a reference")
	}
	if len(ch) == 1 && ch[0].Kind() == ast.KindIdentifier {
		act.Context.Set(ch[0].Image(), v)
		return nil
	}

	var data value.Value
	for _, seg := range ch[:len(ch)-1] {
		dv, err := ip.eval(seg, act, data)
		if err != nil {
			return err
		}
		data = dv
	}

	last := ch[len(ch)-1]
	switch last.Kind() {
	case ast.KindIdentifier:
		return ip.setAttribute(data, value.Str(last.Image()), v, last, act)
	case ast.KindArrayAccess:
		idx, err := ip.eval(last.Children()[0], act, nil)
		if err != nil {
			return err
		}
		return ip.setAttribute(data, idx, v, last, act)
	default:
		return jexlerr.Wrap(jexlerr.KindBadAssignment, target, "assignment target must be a reference")
	}
}

// setAttribute mirrors attributeAccess for writes: map assignment, in-range
// sequence index assignment, else a property setter via the uberspect.
func (ip *Interpreter) setAttribute(obj, attr, v value.Value, n ast.Node, act *Activation) error {
	if value.IsNull(obj) {
		return jexlerr.Wrap(jexlerr.KindBadAssignment, n, "cannot assign into a null reference")
	}
	switch o := obj.(type) {
	case *value.Map:
		o.Set(attr, v)
		return nil
	case *value.Seq:
		idx, err := act.Arith.ToI32(attr)
		if err != nil {
			return err
		}
		if idx < 0 || int(idx) >= len(o.Items) {
			return jexlerr.Wrap(jexlerr.KindBadAssignment, n, "array index %d out of range", idx)
		}
		o.Items[idx] = v
		return nil
	}
	name, err := act.Arith.ToStr(attr)
	if err != nil {
		return err
	}
	return act.Uberspect.SetProperty(obj, name, v, uberspect.Info{Node: n})
}

// evalReference walks a flat Reference chain left to right, threading the
// accumulated value as "data" into each subsequent segment. When the
// accumulated value is null and every segment visited so far is a plain
// Identifier, it rebuilds the dotted name and attempts a flat lookup in
// the context, the legacy "ant variable" behavior.
func (ip *Interpreter) evalReference(n ast.Node, act *Activation) (value.Value, error) {
	ch := n.Children()
	var data value.Value
	allIdentifiers := true
	var dotted []string

	for i, seg := range ch {
		if seg.Kind() == ast.KindIdentifier {
			dotted = append(dotted, seg.Image())
		} else {
			allIdentifiers = false
		}

		v, err := ip.eval(seg, act, data)
		if err != nil {
			return nil, err
		}

		if value.IsNull(v) && allIdentifiers && i > 0 {
			if flat, ok := act.Context.Get(strings.Join(dotted, ".")); ok {
				return flat, nil
			}
		}
		data = v
	}
	return data, nil
}

// evalIdentifier resolves a bare identifier: if data is nil, read from
// context (UnknownVariable only matters in strict mode; lenient mode
// treats an absent name as Null); else it is a property access on data.
func (ip *Interpreter) evalIdentifier(n ast.Node, act *Activation, data value.Value) (value.Value, error) {
	name := n.Image()
	if len(name) > 0 && name[0] == '$' {
		if reg, err := strconv.Atoi(name[1:]); err == nil {
			if v, ok := act.Registers.Get(reg); ok {
				return v, nil
			}
		}
	}
	if data == nil {
		v, ok := act.Context.Get(name)
		if !ok {
			if act.Arith.Strict {
				return nil, jexlerr.Wrap(jexlerr.KindUnknownVariable, n, "unknown variable %q", name)
			}
			return value.NullValue, nil
		}
		return v, nil
	}
	return ip.attributeAccess(data, value.Str(name), n, act)
}

// attributeAccess resolves (object, attribute): null-short-circuits, map
// lookups, sequence/array integer indexing with out-of-range returning
// null, else a property getter via the uberspect.
func (ip *Interpreter) attributeAccess(obj, attr value.Value, n ast.Node, act *Activation) (value.Value, error) {
	if value.IsNull(obj) || value.IsNull(attr) {
		return value.NullValue, nil
	}
	switch o := obj.(type) {
	case *value.Map:
		if v, ok := o.Get(attr); ok {
			return v, nil
		}
		return value.NullValue, nil
	case *value.Seq:
		idx, err := act.Arith.ToI32(attr)
		if err != nil {
			return nil, err
		}
		if idx < 0 || int(idx) >= len(o.Items) {
			return value.NullValue, nil
		}
		return o.Items[idx], nil
	}
	name, err := act.Arith.ToStr(attr)
	if err != nil {
		return nil, err
	}
	return act.Uberspect.GetProperty(obj, name, uberspect.Info{Node: n})
}

// evalArrayAccessSegment handles an ArrayAccess Reference segment: a single
// index expression applied to data, the value accumulated from the
// preceding segment. parsePostfix never emits an ArrayAccess node outside
// a Reference chain, so data is always the base to index.
func (ip *Interpreter) evalArrayAccessSegment(n ast.Node, act *Activation, data value.Value) (value.Value, error) {
	idx, err := ip.eval(n.Children()[0], act, nil)
	if err != nil {
		return nil, err
	}
	return ip.attributeAccess(data, idx, n, act)
}

// evalMethod resolves and invokes a Method segment. data, when non-nil, is
// the receiver threaded in from an enclosing Reference chain; a nil data
// with a namespaced name ("ns:func") resolves against act.Functions.
func (ip *Interpreter) evalMethod(n ast.Node, act *Activation, data value.Value) (value.Value, error) {
	ch := n.Children()
	name := ch[0].Image()
	args := make([]value.Value, len(ch)-1)
	for i, a := range ch[1:] {
		v, err := ip.eval(a, act, nil)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	host := data
	lookupName := name
	if host == nil {
		if ns, fn, ok := strings.Cut(name, ":"); ok {
			nsHost, known := act.Functions[ns]
			if !known {
				return nil, jexlerr.Wrap(jexlerr.KindNoSuchMethod, n, "unknown function namespace %q", ns)
			}
			host = nsHost
			lookupName = fn
		} else {
			return nil, jexlerr.Wrap(jexlerr.KindNoSuchMethod, n, "no receiver for method %q", name)
		}
	}

	handle, err := act.Uberspect.FindMethod(host, lookupName, args, uberspect.Info{Node: n})
	if err != nil {
		if je, ok := err.(*jexlerr.Error); ok && je.Kind == jexlerr.KindNoSuchMethod && act.Silent {
			return value.NullValue, nil
		}
		return nil, err
	}
	return act.Uberspect.Invoke(handle, host, args)
}

func (ip *Interpreter) evalMapLit(n ast.Node, act *Activation) (value.Value, error) {
	m := value.NewMap()
	for _, entry := range n.Children() {
		ch := entry.Children()
		k, err := ip.eval(ch[0], act, nil)
		if err != nil {
			return nil, err
		}
		v, err := ip.eval(ch[1], act, nil)
		if err != nil {
			return nil, err
		}
		m.Set(k, v)
	}
	return m, nil
}

func (ip *Interpreter) evalArrayLit(n ast.Node, act *Activation) (value.Value, error) {
	items := make([]value.Value, len(n.Children()))
	for i, c := range n.Children() {
		v, err := ip.eval(c, act, nil)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return value.NewSeq(items...), nil
}

// evalSize implements size() over strings, sequences, maps, and host
// objects exposing a size()-returning-int method.
func (ip *Interpreter) evalSize(n ast.Node, act *Activation) (value.Value, error) {
	ch := n.Children()
	v, err := ip.eval(ch[0], act, nil)
	if err != nil {
		return nil, err
	}
	sz, err := ip.sizeOf(v, n, act)
	if err != nil {
		return nil, err
	}
	return value.Int32(int32(sz)), nil
}

func (ip *Interpreter) sizeOf(v value.Value, n ast.Node, act *Activation) (int, error) {
	switch t := v.(type) {
	case value.Null:
		return 0, nil
	case value.Str:
		return len([]rune(string(t))), nil
	case *value.Seq:
		return len(t.Items), nil
	case *value.Map:
		return t.Len(), nil
	default:
		handle, err := act.Uberspect.FindMethod(v, "size", nil, uberspect.Info{Node: n})
		if err != nil {
			return 0, nil
		}
		out, err := act.Uberspect.Invoke(handle, v, nil)
		if err != nil {
			return 0, err
		}
		i, err := act.Arith.ToI32(out)
		if err != nil {
			return 0, err
		}
		return int(i), nil
	}
}

// evalEmpty implements empty(): null, empty string, empty sequence, empty
// map, or zero size.
func (ip *Interpreter) evalEmpty(n ast.Node, act *Activation) (value.Value, error) {
	ch := n.Children()
	v, err := ip.eval(ch[0], act, nil)
	if err != nil {
		return nil, err
	}
	if value.IsNull(v) {
		return value.Bool(true), nil
	}
	if s, ok := v.(value.Str); ok {
		return value.Bool(len(s) == 0), nil
	}
	sz, err := ip.sizeOf(v, n, act)
	if err != nil {
		return nil, err
	}
	return value.Bool(sz == 0), nil
}
