// Package value implements the JEXL runtime value model: a tagged union
// of dynamically-typed values plus the identity/structural-equality
// predicate. The language-level value-equals operator (==) applies
// promotion rules on top of this and lives in internal/arith.
package value

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Kind tags the concrete variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindBigInt
	KindFloat64
	KindBigDec
	KindChar
	KindStr
	KindSeq
	KindMap
	KindIter
	KindHost
)

var kindNames = [...]string{
	"Null", "Bool", "Int32", "Int64", "BigInt", "Float64", "BigDec",
	"Char", "Str", "Seq", "Map", "Iter", "Host",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Value is the tagged union every JEXL runtime value implements.
type Value interface {
	Kind() Kind
	String() string
}

// Null is the single JEXL null value.
type Null struct{}

func (Null) Kind() Kind     { return KindNull }
func (Null) String() string { return "null" }

// NullValue is the shared Null instance; Null carries no state so a single
// instance suffices.
var NullValue Value = Null{}

// Bool wraps a boolean.
type Bool bool

func (b Bool) Kind() Kind { return KindBool }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Int32 wraps a 32-bit integer.
type Int32 int32

func (i Int32) Kind() Kind     { return KindInt32 }
func (i Int32) String() string { return strconv.FormatInt(int64(i), 10) }

// Int64 wraps a 64-bit integer.
type Int64 int64

func (i Int64) Kind() Kind     { return KindInt64 }
func (i Int64) String() string { return strconv.FormatInt(int64(i), 10) }

// BigInt wraps an arbitrary-precision integer.
type BigInt struct{ V *big.Int }

func NewBigInt(v *big.Int) BigInt { return BigInt{V: v} }

func (b BigInt) Kind() Kind     { return KindBigInt }
func (b BigInt) String() string { return b.V.String() }

// Float64 wraps a double-precision float.
type Float64 float64

func (f Float64) Kind() Kind { return KindFloat64 }
func (f Float64) String() string {
	return strconv.FormatFloat(float64(f), 'g', -1, 64)
}

// BigDec wraps an arbitrary-precision decimal.
type BigDec struct{ V *apd.Decimal }

func NewBigDec(v *apd.Decimal) BigDec { return BigDec{V: v} }

func (d BigDec) Kind() Kind     { return KindBigDec }
func (d BigDec) String() string { return d.V.String() }

// Char wraps a single Unicode code point.
type Char rune

func (c Char) Kind() Kind     { return KindChar }
func (c Char) String() string { return string(rune(c)) }

// Str wraps a string.
type Str string

func (s Str) Kind() Kind     { return KindStr }
func (s Str) String() string { return string(s) }

// Seq is an ordered, externally mutable sequence of values.
type Seq struct {
	Items []Value
}

func NewSeq(items ...Value) *Seq { return &Seq{Items: items} }

func (s *Seq) Kind() Kind { return KindSeq }
func (s *Seq) String() string {
	parts := make([]string, len(s.Items))
	for i, v := range s.Items {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Map is an externally mutable Value->Value mapping. Iteration order
// follows insertion order for fairness only; it is not part of the
// observable language semantics.
type Map struct {
	keys    []string
	entries map[string]mapEntry
}

type mapEntry struct {
	key Value
	val Value
}

// NewMap creates an empty Map.
func NewMap() *Map {
	return &Map{entries: make(map[string]mapEntry)}
}

func (m *Map) Kind() Kind { return KindMap }

func (m *Map) String() string {
	parts := make([]string, 0, len(m.keys))
	for _, k := range m.keys {
		e := m.entries[k]
		parts = append(parts, e.key.String()+": "+e.val.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// canonicalKey produces a stable string key for a Value so two structurally
// equal keys (e.g. Int32(1) and Int64(1)) address the same map slot.
func canonicalKey(v Value) string {
	switch v.Kind() {
	case KindStr, KindChar, KindBool, KindNull:
		return v.Kind().String() + ":" + v.String()
	case KindInt32, KindInt64, KindBigInt:
		return "num:" + v.String()
	case KindFloat64, KindBigDec:
		return "num:" + v.String()
	default:
		return v.Kind().String() + ":" + fmt.Sprintf("%p", v)
	}
}

// Get looks up key, returning (value, true) if present.
func (m *Map) Get(key Value) (Value, bool) {
	e, ok := m.entries[canonicalKey(key)]
	if !ok {
		return nil, false
	}
	return e.val, true
}

// Set inserts or updates key -> val, preserving first-insertion order.
func (m *Map) Set(key, val Value) {
	ck := canonicalKey(key)
	if _, exists := m.entries[ck]; !exists {
		m.keys = append(m.keys, ck)
	}
	m.entries[ck] = mapEntry{key: key, val: val}
}

// Keys returns the map's keys in insertion order.
func (m *Map) Keys() []Value {
	out := make([]Value, len(m.keys))
	for i, k := range m.keys {
		out[i] = m.entries[k].key
	}
	return out
}

// Len returns the number of entries in the map.
func (m *Map) Len() int { return len(m.keys) }

// SortedKeys returns Keys() sorted by their string image, useful for
// deterministic iteration in tests and the debugger.
func (m *Map) SortedKeys() []Value {
	ks := m.Keys()
	sort.Slice(ks, func(i, j int) bool { return ks[i].String() < ks[j].String() })
	return ks
}

// Iter is a lazily-pulled sequence of values.
type Iter struct {
	next func() (Value, bool)
}

// NewIter wraps a pull function as an Iter value.
func NewIter(next func() (Value, bool)) *Iter { return &Iter{next: next} }

// NewSliceIter returns an Iter walking items in order.
func NewSliceIter(items []Value) *Iter {
	i := 0
	return NewIter(func() (Value, bool) {
		if i >= len(items) {
			return nil, false
		}
		v := items[i]
		i++
		return v, true
	})
}

func (it *Iter) Kind() Kind     { return KindIter }
func (it *Iter) String() string { return "<iterator>" }

// Next pulls the next element, or (nil, false) when exhausted.
func (it *Iter) Next() (Value, bool) { return it.next() }

// Host wraps an opaque host reference. Equal, when non-nil, overrides the
// default identity/equality fallback with a host-supplied predicate. The
// caller that builds the Host sets it; NewHost leaves it nil.
type Host struct {
	V     any
	Equal func(other any) bool
}

func NewHost(v any) *Host { return &Host{V: v} }

func (h *Host) Kind() Kind     { return KindHost }
func (h *Host) String() string { return fmt.Sprintf("%v", h.V) }

// Identity reports whether a and b are the same concrete variant with
// structurally equal payloads. This is distinct from the `==` operator's
// value-equals, which lives in internal/arith and applies numeric/string
// promotion rules Identity does not.
func Identity(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Int32:
		return av == b.(Int32)
	case Int64:
		return av == b.(Int64)
	case BigInt:
		return av.V.Cmp(b.(BigInt).V) == 0
	case Float64:
		return av == b.(Float64)
	case BigDec:
		return av.V.Cmp(b.(BigDec).V) == 0
	case Char:
		return av == b.(Char)
	case Str:
		return av == b.(Str)
	case *Seq:
		bv := b.(*Seq)
		if len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !Identity(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv := b.(*Map)
		if av.Len() != bv.Len() {
			return false
		}
		for _, k := range av.Keys() {
			bval, ok := bv.Get(k)
			if !ok {
				return false
			}
			aval, _ := av.Get(k)
			if !Identity(aval, bval) {
				return false
			}
		}
		return true
	case *Iter:
		return av == b.(*Iter)
	case *Host:
		bv := b.(*Host)
		if av.Equal != nil {
			return av.Equal(bv.V)
		}
		if bv.Equal != nil {
			return bv.Equal(av.V)
		}
		return av == bv || safeEqual(av.V, bv.V)
	}
	return false
}

// IsNull reports whether v is the Null variant.
func IsNull(v Value) bool {
	return v == nil || v.Kind() == KindNull
}

// safeEqual compares two host payloads with ==, tolerating uncomparable
// dynamic types (slices, maps, funcs) by falling back to false instead of
// panicking.
func safeEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
