package value

import (
	"math/big"
	"testing"

	"github.com/cockroachdb/apd/v3"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindNull, "Null"},
		{KindBool, "Bool"},
		{KindInt32, "Int32"},
		{KindBigDec, "BigDec"},
		{KindHost, "Host"},
		{Kind(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.expected {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.expected)
		}
	}
}

func TestIdentityScalars(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Value
		expected bool
	}{
		{"equal int32", Int32(5), Int32(5), true},
		{"unequal int32", Int32(5), Int32(6), false},
		{"different kinds never identical", Int32(5), Int64(5), false},
		{"equal strings", Str("abc"), Str("abc"), true},
		{"unequal strings", Str("abc"), Str("abd"), false},
		{"null equals null", NullValue, NullValue, true},
		{"equal bigint", NewBigInt(big.NewInt(42)), NewBigInt(big.NewInt(42)), true},
		{"unequal bigint", NewBigInt(big.NewInt(42)), NewBigInt(big.NewInt(43)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Identity(tt.a, tt.b); got != tt.expected {
				t.Errorf("Identity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestIdentityBigDec(t *testing.T) {
	a, _, _ := apd.NewFromString("1.50")
	b, _, _ := apd.NewFromString("1.500")

	if !Identity(NewBigDec(a), NewBigDec(b)) {
		t.Errorf("expected 1.50 and 1.500 to be identical BigDec values (Cmp-based)")
	}
}

func TestIdentitySeq(t *testing.T) {
	a := NewSeq(Int32(1), Str("x"))
	b := NewSeq(Int32(1), Str("x"))
	c := NewSeq(Int32(1), Str("y"))

	if !Identity(a, b) {
		t.Errorf("expected structurally equal sequences to be identical")
	}
	if Identity(a, c) {
		t.Errorf("expected structurally different sequences to not be identical")
	}
}

func TestIdentityMap(t *testing.T) {
	a := NewMap()
	a.Set(Str("k"), Int32(1))
	b := NewMap()
	b.Set(Str("k"), Int32(1))
	c := NewMap()
	c.Set(Str("k"), Int32(2))

	if !Identity(a, b) {
		t.Errorf("expected maps with the same entries to be identical")
	}
	if Identity(a, c) {
		t.Errorf("expected maps with different entries to not be identical")
	}
}

func TestMapPreservesInsertionOrder(t *testing.T) {
	m := NewMap()
	m.Set(Str("z"), Int32(1))
	m.Set(Str("a"), Int32(2))
	m.Set(Str("m"), Int32(3))

	keys := m.Keys()
	if len(keys) != 3 || keys[0].String() != "z" || keys[1].String() != "a" || keys[2].String() != "m" {
		t.Errorf("expected insertion order [z a m], got %v", keys)
	}
}

func TestMapCanonicalKeyUnifiesNumericKinds(t *testing.T) {
	m := NewMap()
	m.Set(Int32(1), Str("first"))
	m.Set(Int64(1), Str("second"))

	if m.Len() != 1 {
		t.Fatalf("expected Int32(1) and Int64(1) to canonicalize to the same slot, got %d entries", m.Len())
	}
	v, ok := m.Get(Int32(1))
	if !ok || v.String() != "second" {
		t.Errorf("expected overwritten value %q, got %v (ok=%v)", "second", v, ok)
	}
}

func TestSliceIterExhausts(t *testing.T) {
	it := NewSliceIter([]Value{Int32(1), Int32(2)})

	v, ok := it.Next()
	if !ok || v.String() != "1" {
		t.Fatalf("expected first value 1, got %v (ok=%v)", v, ok)
	}
	v, ok = it.Next()
	if !ok || v.String() != "2" {
		t.Fatalf("expected second value 2, got %v (ok=%v)", v, ok)
	}
	if _, ok := it.Next(); ok {
		t.Errorf("expected iterator to be exhausted after two pulls")
	}
}

func TestHostIdentityUsesEqualHook(t *testing.T) {
	h1 := &Host{V: "payload", Equal: func(other any) bool { return other == "payload" }}
	h2 := &Host{V: "payload"}

	if !Identity(h1, h2) {
		t.Errorf("expected Host.Equal hook to drive identity")
	}
}

func TestIsNull(t *testing.T) {
	if !IsNull(NullValue) {
		t.Errorf("expected NullValue to be null")
	}
	if IsNull(Int32(0)) {
		t.Errorf("expected Int32(0) to not be null")
	}
	if !IsNull(nil) {
		t.Errorf("expected nil Value to be treated as null")
	}
}
