// Package uberspect implements JEXL's host-introspection interface:
// property get/set, iteration, and method resolution over arbitrary Go
// host values reached from script code. Property lookup is duck-typed with
// an ordered fallback (getter method -> is-accessor -> map lookup ->
// indexed lookup -> generic Get(key)); method resolution prefers an exact
// arity match and retries once with narrowed numeric arguments.
package uberspect

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/cwbudde/go-jexl/internal/arith"
	"github.com/cwbudde/go-jexl/internal/ast"
	"github.com/cwbudde/go-jexl/internal/jexlerr"
	"github.com/cwbudde/go-jexl/internal/value"
)

// Info is the source-span diagnostic context every Uberspect operation
// takes, used only for error reporting.
type Info struct {
	Node ast.Node
}

// MethodHandle is an opaque resolved method, returned by FindMethod and
// consumed by Invoke. builtin is non-empty for the handful of method-style
// calls JEXL exposes directly on its native Seq/Map/Str values (size,
// isEmpty, get) without going through reflection.
type MethodHandle struct {
	name    string
	method  reflect.Value
	narrow  bool
	builtin string
}

// Uberspect is the host-introspection interface the interpreter consults
// for every property access, iteration, and method call against a host
// (non-JEXL-native) value.
type Uberspect interface {
	GetProperty(host value.Value, name string, info Info) (value.Value, error)
	SetProperty(host value.Value, name string, v value.Value, info Info) error
	GetIterator(host value.Value, info Info) (*value.Iter, error)
	FindMethod(host value.Value, name string, args []value.Value, info Info) (*MethodHandle, error)
	Invoke(handle *MethodHandle, host value.Value, args []value.Value) (value.Value, error)
}

// Reflect is the default Uberspect, resolving properties and methods on
// Host values via Go's reflect package and on Seq/Map values structurally.
type Reflect struct {
	Arith *arith.Arith
}

// New creates a reflection-based Uberspect using a for the coercions
// needed during narrow-and-retry method resolution.
func New(a *arith.Arith) *Reflect {
	return &Reflect{Arith: a}
}

func unwrapHost(v value.Value) (any, bool) {
	h, ok := v.(*value.Host)
	if !ok {
		return nil, false
	}
	return h.V, true
}

// GetProperty resolves name in order: get-style accessor, is-style
// accessor, map lookup, indexed lookup, generic Get(key).
func (r *Reflect) GetProperty(host value.Value, name string, info Info) (value.Value, error) {
	switch h := host.(type) {
	case *value.Map:
		if v, ok := h.Get(value.Str(name)); ok {
			return v, nil
		}
		return value.NullValue, nil
	case *value.Seq:
		if idx, ok := parseIndex(name); ok {
			if idx >= 0 && idx < len(h.Items) {
				return h.Items[idx], nil
			}
			return value.NullValue, nil
		}
	}

	goVal, ok := unwrapHost(host)
	if !ok {
		return nil, jexlerr.Wrap(jexlerr.KindNoSuchMethod, info.Node, "cannot read property %q of %s", name, host.Kind())
	}

	rv := reflect.ValueOf(goVal)
	title := strings.ToUpper(name[:1]) + name[1:]

	if v, ok := callNoArgMethod(rv, "Get"+title); ok {
		return ToValue(v), nil
	}
	if v, ok := callNoArgMethod(rv, "Is"+title); ok {
		return ToValue(v), nil
	}
	if rv.Kind() == reflect.Map {
		mv := rv.MapIndex(reflect.ValueOf(name))
		if mv.IsValid() {
			return ToValue(mv), nil
		}
		return value.NullValue, nil
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if idx, ok := parseIndex(name); ok {
			if idx < rv.Len() {
				return ToValue(rv.Index(idx)), nil
			}
			return value.NullValue, nil
		}
	}
	if rv.Kind() == reflect.Struct {
		if fv := rv.FieldByName(title); fv.IsValid() {
			return ToValue(fv), nil
		}
	}
	if v, ok := callArgMethod(rv, "Get", reflect.ValueOf(name)); ok {
		return ToValue(v), nil
	}

	return nil, jexlerr.Wrap(jexlerr.KindNoSuchMethod, info.Node, "no such property %q on %T", name, goVal)
}

// SetProperty writes a native Map key or an in-range native Seq index;
// for a Host it tries a Set-prefixed setter method, then an exported field
// of a pointed-to struct. Go maps, slices and arrays inside a Host, and
// hosts reachable only through a generic Get(key), are not written.
func (r *Reflect) SetProperty(host value.Value, name string, v value.Value, info Info) error {
	switch h := host.(type) {
	case *value.Map:
		h.Set(value.Str(name), v)
		return nil
	case *value.Seq:
		if idx, ok := parseIndex(name); ok && idx >= 0 && idx < len(h.Items) {
			h.Items[idx] = v
			return nil
		}
	}

	goVal, ok := unwrapHost(host)
	if !ok {
		return jexlerr.Wrap(jexlerr.KindNoSuchMethod, info.Node, "cannot set property %q of %s", name, host.Kind())
	}

	rv := reflect.ValueOf(goVal)
	title := strings.ToUpper(name[:1]) + name[1:]
	arg := FromValue(v)

	if ok := callSetterMethod(rv, "Set"+title, arg); ok {
		return nil
	}
	if rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Struct {
		fv := rv.Elem().FieldByName(title)
		if fv.IsValid() && fv.CanSet() {
			fv.Set(reflect.ValueOf(arg))
			return nil
		}
	}
	return jexlerr.Wrap(jexlerr.KindNoSuchMethod, info.Node, "no such settable property %q on %T", name, goVal)
}

// GetIterator returns an iterator over host, or nil if host is not
// iterable; ForEach treats a nil iterator as zero iterations.
func (r *Reflect) GetIterator(host value.Value, info Info) (*value.Iter, error) {
	switch h := host.(type) {
	case *value.Seq:
		return value.NewSliceIter(h.Items), nil
	case *value.Map:
		keys := h.Keys()
		items := make([]value.Value, len(keys))
		for i, k := range keys {
			v, _ := h.Get(k)
			items[i] = v
		}
		return value.NewSliceIter(items), nil
	case *value.Iter:
		return h, nil
	}
	if value.IsNull(host) {
		return nil, nil
	}
	goVal, ok := unwrapHost(host)
	if !ok {
		return nil, nil
	}
	rv := reflect.ValueOf(goVal)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		items := make([]value.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = ToValue(rv.Index(i))
		}
		return value.NewSliceIter(items), nil
	}
	return nil, nil
}

// FindMethod resolves name against host's exported methods, preferring an
// exact arity/type match and retrying with each numeric argument narrowed
// once if none is found.
func (r *Reflect) FindMethod(host value.Value, name string, args []value.Value, info Info) (*MethodHandle, error) {
	if handle, ok := builtinMethod(host, name, len(args)); ok {
		return handle, nil
	}

	goVal, ok := unwrapHost(host)
	if !ok {
		return nil, jexlerr.Wrap(jexlerr.KindNoSuchMethod, info.Node, "cannot invoke %q on %s", name, host.Kind())
	}
	rv := reflect.ValueOf(goVal)
	title := strings.ToUpper(name[:1]) + name[1:]

	candidates := findCandidates(rv, title)
	if len(candidates) == 0 {
		return nil, jexlerr.Wrap(jexlerr.KindNoSuchMethod, info.Node, "no such method %q on %T", name, goVal)
	}

	exact := matchArity(candidates, len(args))
	if len(exact) == 1 {
		return &MethodHandle{name: name, method: exact[0]}, nil
	}
	if len(exact) > 1 {
		return nil, jexlerr.Wrap(jexlerr.KindAmbiguousMethod, info.Node, "ambiguous method %q: %d equally specific overloads", name, len(exact))
	}

	// Narrow-and-retry: re-check arity only, since our Go host methods are
	// not individually overloaded by numeric width the way the interface
	// allows for in principle.
	if len(candidates) == 1 {
		return &MethodHandle{name: name, method: candidates[0], narrow: true}, nil
	}
	return nil, jexlerr.Wrap(jexlerr.KindNoSuchMethod, info.Node, "no matching overload for %q with %d argument(s)", name, len(args))
}

// builtinMethod resolves the method-call-style form of size()/isEmpty()/
// get() directly against JEXL's native Str/Seq/Map values, mirroring the
// function-call forms the interpreter's size()/empty() builtins provide.
func builtinMethod(host value.Value, name string, argc int) (*MethodHandle, bool) {
	switch host.(type) {
	case value.Str, *value.Seq, *value.Map:
		switch name {
		case "size":
			if argc == 0 {
				return &MethodHandle{name: name, builtin: "size"}, true
			}
		case "isEmpty":
			if argc == 0 {
				return &MethodHandle{name: name, builtin: "isEmpty"}, true
			}
		case "get":
			if argc == 1 {
				return &MethodHandle{name: name, builtin: "get"}, true
			}
		}
	}
	return nil, false
}

func builtinSize(host value.Value) int {
	switch h := host.(type) {
	case value.Str:
		return len([]rune(string(h)))
	case *value.Seq:
		return len(h.Items)
	case *value.Map:
		return h.Len()
	default:
		return 0
	}
}

func builtinGet(host value.Value, arg value.Value, a *arith.Arith) (value.Value, error) {
	switch h := host.(type) {
	case *value.Map:
		if v, ok := h.Get(arg); ok {
			return v, nil
		}
		return value.NullValue, nil
	case *value.Seq:
		idx, err := a.ToI32(arg)
		if err != nil {
			return nil, err
		}
		if idx < 0 || int(idx) >= len(h.Items) {
			return value.NullValue, nil
		}
		return h.Items[idx], nil
	default:
		return value.NullValue, nil
	}
}

func findCandidates(rv reflect.Value, title string) []reflect.Value {
	var out []reflect.Value
	if m := rv.MethodByName(title); m.IsValid() {
		out = append(out, m)
	}
	return out
}

func matchArity(candidates []reflect.Value, n int) []reflect.Value {
	var out []reflect.Value
	for _, c := range candidates {
		if c.Type().NumIn() == n {
			out = append(out, c)
		}
	}
	return out
}

// Invoke calls handle with args marshaled to the target Go types.
func (r *Reflect) Invoke(handle *MethodHandle, host value.Value, args []value.Value) (value.Value, error) {
	switch handle.builtin {
	case "size":
		return value.Int32(int32(builtinSize(host))), nil
	case "isEmpty":
		return value.Bool(builtinSize(host) == 0), nil
	case "get":
		return builtinGet(host, args[0], r.Arith)
	}

	t := handle.method.Type()
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if handle.narrow {
			a = arith.Narrow(a)
		}
		if i >= t.NumIn() {
			in[i] = reflect.ValueOf(FromValue(a))
			continue
		}
		in[i] = reflect.ValueOf(FromValue(a)).Convert(t.In(i))
	}
	out := handle.method.Call(in)
	if len(out) == 0 {
		return value.NullValue, nil
	}
	return ToValue(out[0]), nil
}

func callNoArgMethod(rv reflect.Value, name string) (reflect.Value, bool) {
	m := rv.MethodByName(name)
	if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() == 0 {
		return reflect.Value{}, false
	}
	out := m.Call(nil)
	return out[0], true
}

func callArgMethod(rv reflect.Value, name string, arg reflect.Value) (reflect.Value, bool) {
	m := rv.MethodByName(name)
	if !m.IsValid() || m.Type().NumIn() != 1 || m.Type().NumOut() == 0 {
		return reflect.Value{}, false
	}
	out := m.Call([]reflect.Value{arg})
	return out[0], true
}

func callSetterMethod(rv reflect.Value, name string, arg any) bool {
	m := rv.MethodByName(name)
	if !m.IsValid() || m.Type().NumIn() != 1 {
		return false
	}
	m.Call([]reflect.Value{reflect.ValueOf(arg).Convert(m.Type().In(0))})
	return true
}

func parseIndex(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	n := 0
	for _, r := range name {
		if !unicode.IsDigit(r) {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// ToValue converts a reflect.Value produced by a host call back into a
// JEXL Value.
func ToValue(rv reflect.Value) value.Value {
	switch rv.Kind() {
	case reflect.Bool:
		return value.Bool(rv.Bool())
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return value.Int32(int32(rv.Int()))
	case reflect.Int, reflect.Int64:
		i := rv.Int()
		if i >= -(1<<31) && i <= (1<<31)-1 {
			return value.Int32(int32(i))
		}
		return value.Int64(i)
	case reflect.Float32, reflect.Float64:
		return value.Float64(rv.Float())
	case reflect.String:
		return value.Str(rv.String())
	case reflect.Invalid:
		return value.NullValue
	case reflect.Slice, reflect.Array:
		items := make([]value.Value, rv.Len())
		for i := range items {
			items[i] = ToValue(rv.Index(i))
		}
		return value.NewSeq(items...)
	default:
		if !rv.IsValid() {
			return value.NullValue
		}
		return value.NewHost(rv.Interface())
	}
}

// FromValue converts a JEXL Value into the nearest Go native type, used
// when marshaling arguments into a host method call.
func FromValue(v value.Value) any {
	switch t := v.(type) {
	case value.Null:
		return nil
	case value.Bool:
		return bool(t)
	case value.Int32:
		return int32(t)
	case value.Int64:
		return int64(t)
	case value.BigInt:
		return t.V
	case value.Float64:
		return float64(t)
	case value.BigDec:
		return t.V
	case value.Char:
		return rune(t)
	case value.Str:
		return string(t)
	case *value.Host:
		return t.V
	default:
		return fmt.Sprintf("%v", v)
	}
}
