package interp

import (
	"testing"

	"github.com/cwbudde/go-jexl/internal/arith"
	"github.com/cwbudde/go-jexl/internal/context"
	"github.com/cwbudde/go-jexl/internal/parser"
	"github.com/cwbudde/go-jexl/internal/uberspect"
	"github.com/cwbudde/go-jexl/internal/value"
)

func newActivation(strict bool, vars map[string]value.Value) *Activation {
	ar := arith.New(strict)
	ctx := context.NewMapContextFrom(vars)
	return &Activation{
		Context:   ctx,
		Registers: context.NewRegisters(),
		Uberspect: uberspect.New(ar),
		Arith:     ar,
		Functions: map[string]value.Value{},
	}
}

func evalStr(t *testing.T, src string, act *Activation) value.Value {
	t.Helper()
	root, errs := parser.ParseExpression(src)
	if len(errs) != 0 {
		t.Fatalf("parsing %q: unexpected errors: %v", src, errs)
	}
	v, err := New().Eval(root, act)
	if err != nil {
		t.Fatalf("evaluating %q: unexpected error: %v", src, err)
	}
	return v
}

func TestEvalArithmeticAndPrecedence(t *testing.T) {
	act := newActivation(false, nil)
	v := evalStr(t, "1 + 2 * 3", act)
	if v.String() != "7" {
		t.Errorf("expected 7, got %v", v)
	}
}

func TestEvalAddWithNullOperandIsLenientZero(t *testing.T) {
	act := newActivation(false, map[string]value.Value{"x": value.NullValue})
	v := evalStr(t, "x + 1", act)
	if v.String() != "1" {
		t.Errorf("expected null + 1 == 1 in lenient mode, got %v", v)
	}
}

func TestEvalAndShortCircuits(t *testing.T) {
	act := newActivation(true, map[string]value.Value{"x": value.Bool(false)})
	// If short-circuit evaluation didn't happen, the unknown "y" reference
	// would raise KindUnknownVariable in strict mode.
	v := evalStr(t, "x && y", act)
	if v.String() != "false" {
		t.Errorf("expected false from short-circuited &&, got %v", v)
	}
}

func TestEvalOrShortCircuits(t *testing.T) {
	act := newActivation(true, map[string]value.Value{"x": value.Bool(true)})
	v := evalStr(t, "x || y", act)
	if v.String() != "true" {
		t.Errorf("expected true from short-circuited ||, got %v", v)
	}
}

func TestEvalNot(t *testing.T) {
	act := newActivation(false, nil)
	v := evalStr(t, "!true", act)
	if v.String() != "false" {
		t.Errorf("expected !true == false, got %v", v)
	}
}

func TestEvalTernary(t *testing.T) {
	act := newActivation(false, map[string]value.Value{"x": value.Bool(true)})
	v := evalStr(t, "x ? 1 : 2", act)
	if v.String() != "1" {
		t.Errorf("expected 1, got %v", v)
	}
}

func TestEvalElvisFallsBackWhenFalsy(t *testing.T) {
	act := newActivation(false, map[string]value.Value{"x": value.NullValue})
	v := evalStr(t, "x ?: 2", act)
	if v.String() != "2" {
		t.Errorf("expected elvis fallback 2, got %v", v)
	}
}

func TestEvalAssignmentToSimpleIdentifier(t *testing.T) {
	act := newActivation(false, nil)
	v := evalStr(t, "x = 5", act)
	if v.String() != "5" {
		t.Errorf("expected assignment to return the assigned value, got %v", v)
	}
	got, ok := act.Context.Get("x")
	if !ok || got.String() != "5" {
		t.Errorf("expected x to be bound to 5 in the context, got %v (ok=%v)", got, ok)
	}
}

func TestEvalAssignmentToIndexSetsSequenceElement(t *testing.T) {
	seq := value.NewSeq(value.Int32(1), value.Int32(2))
	act := newActivation(false, map[string]value.Value{"a": seq})
	v := evalStr(t, "a[0] = 9", act)
	if v.String() != "9" {
		t.Errorf("expected the assignment to return the assigned value 9, got %v", v)
	}
	got, _ := act.Context.Get("a")
	s := got.(*value.Seq)
	if s.Items[0].String() != "9" {
		t.Errorf("expected a[0] to be updated to 9, got %v", s.Items[0])
	}
}

func TestEvalAssignmentToMapKeySetsEntry(t *testing.T) {
	m := value.NewMap()
	act := newActivation(false, map[string]value.Value{"m": m})
	evalStr(t, "m.x = 3", act)
	v, ok := m.Get(value.Str("x"))
	if !ok || v.String() != "3" {
		t.Errorf("expected m.x to be set to 3, got %v (ok=%v)", v, ok)
	}
}

func TestEvalAssignmentToLiteralIsBadAssignment(t *testing.T) {
	act := newActivation(false, nil)
	root, errs := parser.ParseExpression("1 = 5")
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	_, err := New().Eval(root, act)
	if err == nil {
		t.Fatalf("expected an error assigning to a non-reference target")
	}
}

func TestEvalReferenceChainThreadsData(t *testing.T) {
	inner := value.NewMap()
	inner.Set(value.Str("b"), value.Int32(42))
	act := newActivation(false, map[string]value.Value{"a": inner})
	v := evalStr(t, "a.b", act)
	if v.String() != "42" {
		t.Errorf("expected a.b == 42, got %v", v)
	}
}

func TestEvalReferenceArrayAccessSegment(t *testing.T) {
	seq := value.NewSeq(value.Int32(10), value.Int32(20), value.Int32(30))
	act := newActivation(false, map[string]value.Value{"xs": seq})
	v := evalStr(t, "xs[1]", act)
	if v.String() != "20" {
		t.Errorf("expected xs[1] == 20, got %v", v)
	}
}

func TestEvalReferenceMixedChain(t *testing.T) {
	row := value.NewMap()
	row.Set(value.Str("name"), value.Str("bob"))
	seq := value.NewSeq(row)
	outer := value.NewMap()
	outer.Set(value.Str("rows"), seq)
	act := newActivation(false, map[string]value.Value{"data": outer})
	v := evalStr(t, "data.rows[0].name", act)
	if v.String() != "bob" {
		t.Errorf("expected data.rows[0].name == \"bob\", got %v", v)
	}
}

func TestEvalReferenceArrayAccessOutOfRangeIsNull(t *testing.T) {
	seq := value.NewSeq(value.Int32(1))
	act := newActivation(false, map[string]value.Value{"xs": seq})
	v := evalStr(t, "xs[5]", act)
	if !value.IsNull(v) {
		t.Errorf("expected out-of-range index to yield null, got %v", v)
	}
}

func TestEvalLegacyDottedAntVariableFallback(t *testing.T) {
	act := newActivation(false, map[string]value.Value{"a.b": value.Int32(99)})
	v := evalStr(t, "a.b", act)
	if v.String() != "99" {
		t.Errorf("expected dotted flat-name fallback to resolve a.b to 99, got %v", v)
	}
}

func TestEvalUnknownVariableStrictErrors(t *testing.T) {
	act := newActivation(true, nil)
	root, errs := parser.ParseExpression("nope")
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	_, err := New().Eval(root, act)
	if err == nil {
		t.Fatalf("expected an error for an unknown variable in strict mode")
	}
}

func TestEvalUnknownVariableLenientIsNull(t *testing.T) {
	act := newActivation(false, nil)
	v := evalStr(t, "nope", act)
	if !value.IsNull(v) {
		t.Errorf("expected unknown variable to be null in lenient mode, got %v", v)
	}
}

func TestEvalIfWithoutElseIsNullWhenFalse(t *testing.T) {
	act := newActivation(false, map[string]value.Value{"x": value.Bool(false)})
	root, errs := parser.ParseScript("if (x) { 1 }")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	v, err := New().Eval(root, act)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !value.IsNull(v) {
		t.Errorf("expected null result for a falsy if with no else, got %v", v)
	}
}

func TestEvalWhileAccumulates(t *testing.T) {
	act := newActivation(false, map[string]value.Value{"n": value.Int32(3), "acc": value.Int32(0)})
	root, errs := parser.ParseScript("while (n > 0) { acc = acc + n; n = n - 1 }")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	_, err := New().Eval(root, act)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acc, _ := act.Context.Get("acc")
	if acc.String() != "6" {
		t.Errorf("expected acc == 6 (3+2+1), got %v", acc)
	}
}

func TestEvalForEachBindsLoopVariable(t *testing.T) {
	seq := value.NewSeq(value.Int32(1), value.Int32(2), value.Int32(3))
	act := newActivation(false, map[string]value.Value{"xs": seq, "total": value.Int32(0)})
	root, errs := parser.ParseScript("foreach (v in xs) { total = total + v }")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	_, err := New().Eval(root, act)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total, _ := act.Context.Get("total")
	if total.String() != "6" {
		t.Errorf("expected total == 6, got %v", total)
	}
}

func TestEvalForEachOverNullIsNoOp(t *testing.T) {
	act := newActivation(false, map[string]value.Value{"xs": value.NullValue})
	root, errs := parser.ParseScript("foreach (v in xs) { v }")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	v, err := New().Eval(root, act)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !value.IsNull(v) {
		t.Errorf("expected null result looping over a null iterable, got %v", v)
	}
}

func TestEvalSizeOverSeqMapStr(t *testing.T) {
	act := newActivation(false, map[string]value.Value{
		"xs": value.NewSeq(value.Int32(1), value.Int32(2)),
	})
	if v := evalStr(t, "size(xs)", act); v.String() != "2" {
		t.Errorf("expected size(xs) == 2, got %v", v)
	}
	if v := evalStr(t, `size('abc')`, act); v.String() != "3" {
		t.Errorf("expected size('abc') == 3, got %v", v)
	}
}

func TestEvalEmptyOverNullStringSeq(t *testing.T) {
	act := newActivation(false, map[string]value.Value{
		"n":  value.NullValue,
		"xs": value.NewSeq(),
	})
	if v := evalStr(t, "empty(n)", act); v.String() != "true" {
		t.Errorf("expected empty(null) == true, got %v", v)
	}
	if v := evalStr(t, "empty(xs)", act); v.String() != "true" {
		t.Errorf("expected empty([]) == true, got %v", v)
	}
	if v := evalStr(t, `empty('x')`, act); v.String() != "false" {
		t.Errorf("expected empty('x') == false, got %v", v)
	}
}

func TestEvalMapLiteral(t *testing.T) {
	act := newActivation(false, nil)
	v := evalStr(t, `{'a': 1, 'b': 2}`, act)
	m, ok := v.(*value.Map)
	if !ok {
		t.Fatalf("expected a *value.Map, got %T", v)
	}
	got, ok := m.Get(value.Str("b"))
	if !ok || got.String() != "2" {
		t.Errorf("expected map[\"b\"]==2, got %v (ok=%v)", got, ok)
	}
}

func TestEvalArrayLiteral(t *testing.T) {
	act := newActivation(false, nil)
	v := evalStr(t, "[1, 2, 3]", act)
	seq, ok := v.(*value.Seq)
	if !ok || len(seq.Items) != 3 {
		t.Fatalf("expected a 3-element *value.Seq, got %v", v)
	}
}

func TestEvalNamespaceFunctionCall(t *testing.T) {
	ar := arith.New(false)
	ctx := context.NewMapContext()
	u := uberspect.New(ar)
	strHost := value.Str("hello")
	act := &Activation{
		Context:   ctx,
		Registers: context.NewRegisters(),
		Uberspect: u,
		Arith:     ar,
		Functions: map[string]value.Value{"str": strHost},
	}
	root, errs := parser.ParseExpression("str:size()")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	v, err := New().Eval(root, act)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "5" {
		t.Errorf("expected str:size() == 5, got %v", v)
	}
}

func TestEvalNamespaceFunctionUnknownNamespaceErrors(t *testing.T) {
	act := newActivation(false, nil)
	root, errs := parser.ParseExpression("bogus:fn()")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	_, err := New().Eval(root, act)
	if err == nil {
		t.Fatalf("expected an error for an unregistered function namespace")
	}
}

func TestEvalBlockReturnsLastStatement(t *testing.T) {
	act := newActivation(false, nil)
	root, errs := parser.ParseScript("1; 2; 3")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	v, err := New().Eval(root, act)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "3" {
		t.Errorf("expected the block to evaluate to its last statement, got %v", v)
	}
}

func TestEvalRegisterIdentifier(t *testing.T) {
	act := newActivation(false, nil)
	act.Registers.Set(0, value.Int32(77))
	v := evalStr(t, "$0", act)
	if v.String() != "77" {
		t.Errorf("expected $0 == 77, got %v", v)
	}
}

func TestEvalDivideByZeroIntAlwaysErrors(t *testing.T) {
	act := newActivation(false, nil)
	root, errs := parser.ParseExpression("1 / 0")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	_, err := New().Eval(root, act)
	if err == nil {
		t.Fatalf("expected a divide-by-zero error even in lenient mode for integer division")
	}
}

func TestEvalComparisonOperators(t *testing.T) {
	act := newActivation(false, nil)
	if v := evalStr(t, "2 > 1", act); v.String() != "true" {
		t.Errorf("expected 2 > 1 == true, got %v", v)
	}
	if v := evalStr(t, "2 == 2", act); v.String() != "true" {
		t.Errorf("expected 2 == 2 == true, got %v", v)
	}
	if v := evalStr(t, "2 != 2", act); v.String() != "false" {
		t.Errorf("expected 2 != 2 == false, got %v", v)
	}
}
