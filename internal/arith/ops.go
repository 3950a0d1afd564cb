package arith

import (
	"math/big"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/cwbudde/go-jexl/internal/value"
)

// mode is the resolution a binary arithmetic operation proceeds under,
// picked by walking the numeric ladder over the operand kinds.
type mode int

const (
	modeFloat mode = iota
	modeBigIntBoth
	modeBigDec
	modeBigIntNarrow
	modeStringConcat
)

// resolve classifies (left, right) without yet attempting any coercion.
// The both-null case is handled by the caller.
func resolve(left, right value.Value) mode {
	if isFloatLike(left) || isFloatLike(right) {
		return modeFloat
	}
	if isBigInt(left) && isBigInt(right) {
		return modeBigIntBoth
	}
	if isBigDec(left) || isBigDec(right) {
		return modeBigDec
	}
	return modeBigIntNarrow
}

// Add implements the `+` operator, including the string-concatenation
// fallback when a numeric coercion fails.
func (a *Arith) Add(left, right value.Value) (value.Value, error) {
	if value.IsNull(left) && value.IsNull(right) {
		return a.bothNull()
	}
	switch resolve(left, right) {
	case modeFloat:
		lf, err1 := a.ToF64(left)
		rf, err2 := a.ToF64(right)
		if isNumberFormat(err1) || isNumberFormat(err2) {
			return a.concat(left, right)
		}
		if err1 != nil {
			return nil, err1
		}
		if err2 != nil {
			return nil, err2
		}
		return value.Float64(lf + rf), nil
	case modeBigIntBoth:
		lb, _ := a.ToBigInt(left)
		rb, _ := a.ToBigInt(right)
		return value.NewBigInt(new(big.Int).Add(lb, rb)), nil
	case modeBigDec:
		ld, err1 := a.ToBigDec(left)
		rd, err2 := a.ToBigDec(right)
		if isNumberFormat(err1) || isNumberFormat(err2) {
			return a.concat(left, right)
		}
		res := new(apd.Decimal)
		if _, err := decCtx.Add(res, ld, rd); err != nil {
			return nil, newErr(KindTypeCoercion, "%v", err)
		}
		return value.NewBigDec(res), nil
	default: // modeBigIntNarrow
		lb, err1 := a.ToBigInt(left)
		rb, err2 := a.ToBigInt(right)
		if isNumberFormat(err1) || isNumberFormat(err2) {
			return a.concat(left, right)
		}
		if err1 != nil {
			return nil, err1
		}
		if err2 != nil {
			return nil, err2
		}
		sum := new(big.Int).Add(lb, rb)
		return narrowResult(sum), nil
	}
}

// narrowResult shrinks a BigInt arithmetic result to Int64 when it fits;
// unlike Narrow it never goes below Int64, so small results stay Int64.
func narrowResult(bi *big.Int) value.Value {
	if bi.IsInt64() {
		return value.Int64(bi.Int64())
	}
	return value.NewBigInt(bi)
}

func isNumberFormat(err error) bool {
	ae, ok := err.(*Error)
	return ok && ae.Kind == KindNumberFormat
}

func (a *Arith) concat(left, right value.Value) (value.Value, error) {
	ls, err := a.ToStr(left)
	if err != nil {
		return nil, err
	}
	rs, err := a.ToStr(right)
	if err != nil {
		return nil, err
	}
	return value.Str(ls + rs), nil
}

// arithOp implements the shared ladder for Sub/Mul (operators with no
// string-concatenation fallback).
func (a *Arith) arithOp(
	left, right value.Value,
	floatOp func(l, r float64) float64,
	bigIntOp func(l, r *big.Int) *big.Int,
	bigDecOp func(ctx *apd.Context, res, l, r *apd.Decimal) error,
) (value.Value, error) {
	if value.IsNull(left) && value.IsNull(right) {
		return a.bothNull()
	}
	switch resolve(left, right) {
	case modeFloat:
		lf, err := a.ToF64(left)
		if err != nil {
			return nil, err
		}
		rf, err := a.ToF64(right)
		if err != nil {
			return nil, err
		}
		return value.Float64(floatOp(lf, rf)), nil
	case modeBigIntBoth:
		lb, err := a.ToBigInt(left)
		if err != nil {
			return nil, err
		}
		rb, err := a.ToBigInt(right)
		if err != nil {
			return nil, err
		}
		return value.NewBigInt(bigIntOp(lb, rb)), nil
	case modeBigDec:
		ld, err := a.ToBigDec(left)
		if err != nil {
			return nil, err
		}
		rd, err := a.ToBigDec(right)
		if err != nil {
			return nil, err
		}
		res := new(apd.Decimal)
		if err := bigDecOp(decCtx, res, ld, rd); err != nil {
			return nil, newErr(KindTypeCoercion, "%v", err)
		}
		return value.NewBigDec(res), nil
	default:
		lb, err := a.ToBigInt(left)
		if err != nil {
			return nil, err
		}
		rb, err := a.ToBigInt(right)
		if err != nil {
			return nil, err
		}
		return narrowResult(bigIntOp(lb, rb)), nil
	}
}

// Sub implements the `-` operator.
func (a *Arith) Sub(left, right value.Value) (value.Value, error) {
	return a.arithOp(left, right,
		func(l, r float64) float64 { return l - r },
		func(l, r *big.Int) *big.Int { return new(big.Int).Sub(l, r) },
		func(ctx *apd.Context, res, l, r *apd.Decimal) error {
			_, err := ctx.Sub(res, l, r)
			return err
		})
}

// Mul implements the `*` operator.
func (a *Arith) Mul(left, right value.Value) (value.Value, error) {
	return a.arithOp(left, right,
		func(l, r float64) float64 { return l * r },
		func(l, r *big.Int) *big.Int { return new(big.Int).Mul(l, r) },
		func(ctx *apd.Context, res, l, r *apd.Decimal) error {
			_, err := ctx.Mul(res, l, r)
			return err
		})
}

// Div implements the `/` operator. Division by zero on floats returns a
// signed zero in lenient mode and DivideByZero in strict mode; integer/
// BigInt/BigDec division by zero always raises DivideByZero.
func (a *Arith) Div(left, right value.Value) (value.Value, error) {
	if value.IsNull(left) && value.IsNull(right) {
		return a.bothNull()
	}
	switch resolve(left, right) {
	case modeFloat:
		lf, err := a.ToF64(left)
		if err != nil {
			return nil, err
		}
		rf, err := a.ToF64(right)
		if err != nil {
			return nil, err
		}
		if rf == 0 {
			if a.Strict {
				return nil, newErr(KindDivideByZero, "division by zero")
			}
			return value.Float64(rf), nil
		}
		return value.Float64(lf / rf), nil
	case modeBigIntBoth:
		lb, err := a.ToBigInt(left)
		if err != nil {
			return nil, err
		}
		rb, err := a.ToBigInt(right)
		if err != nil {
			return nil, err
		}
		if rb.Sign() == 0 {
			return nil, newErr(KindDivideByZero, "division by zero")
		}
		q, _ := new(big.Int).QuoRem(lb, rb, new(big.Int))
		return value.NewBigInt(q), nil
	case modeBigDec:
		ld, err := a.ToBigDec(left)
		if err != nil {
			return nil, err
		}
		rd, err := a.ToBigDec(right)
		if err != nil {
			return nil, err
		}
		if rd.Sign() == 0 {
			return nil, newErr(KindDivideByZero, "division by zero")
		}
		ctx := *decCtx
		ctx.Rounding = apd.RoundHalfUp
		res := new(apd.Decimal)
		if _, err := ctx.Quo(res, ld, rd); err != nil {
			return nil, newErr(KindTypeCoercion, "%v", err)
		}
		return value.NewBigDec(res), nil
	default:
		lb, err := a.ToBigInt(left)
		if err != nil {
			return nil, err
		}
		rb, err := a.ToBigInt(right)
		if err != nil {
			return nil, err
		}
		if rb.Sign() == 0 {
			return nil, newErr(KindDivideByZero, "division by zero")
		}
		q := new(big.Int).Quo(lb, rb)
		return narrowResult(q), nil
	}
}

// Mod implements the `%` operator using the quotient-truncation convention
// (Quo/Rem semantics, not a floored modulus).
func (a *Arith) Mod(left, right value.Value) (value.Value, error) {
	if value.IsNull(left) && value.IsNull(right) {
		return a.bothNull()
	}
	switch resolve(left, right) {
	case modeFloat:
		lf, err := a.ToF64(left)
		if err != nil {
			return nil, err
		}
		rf, err := a.ToF64(right)
		if err != nil {
			return nil, err
		}
		if rf == 0 {
			if a.Strict {
				return nil, newErr(KindDivideByZero, "modulo by zero")
			}
			return value.Float64(rf), nil
		}
		return value.Float64(modFloat(lf, rf)), nil
	case modeBigDec:
		ld, err := a.ToBigDec(left)
		if err != nil {
			return nil, err
		}
		rd, err := a.ToBigDec(right)
		if err != nil {
			return nil, err
		}
		if rd.Sign() == 0 {
			return nil, newErr(KindDivideByZero, "modulo by zero")
		}
		res := new(apd.Decimal)
		if _, err := decCtx.Rem(res, ld, rd); err != nil {
			return nil, newErr(KindTypeCoercion, "%v", err)
		}
		return value.NewBigDec(res), nil
	default:
		lb, err := a.ToBigInt(left)
		if err != nil {
			return nil, err
		}
		rb, err := a.ToBigInt(right)
		if err != nil {
			return nil, err
		}
		if rb.Sign() == 0 {
			return nil, newErr(KindDivideByZero, "modulo by zero")
		}
		r := new(big.Int).Rem(lb, rb)
		if resolve(left, right) == modeBigIntBoth {
			return value.NewBigInt(r), nil
		}
		return narrowResult(r), nil
	}
}

func modFloat(l, r float64) float64 {
	q := float64(int64(l / r))
	return l - q*r
}

// Neg implements unary minus: same concrete type, negated payload. Char
// proceeds by coercing to the smallest integer class.
func (a *Arith) Neg(v value.Value) (value.Value, error) {
	if value.IsNull(v) {
		if a.Strict {
			return nil, newErr(KindNullOperand, "null operand not allowed in strict mode")
		}
		return value.Int64(0), nil
	}
	switch t := v.(type) {
	case value.Int32:
		return value.Int32(-t), nil
	case value.Int64:
		return value.Int64(-t), nil
	case value.BigInt:
		return value.NewBigInt(new(big.Int).Neg(t.V)), nil
	case value.Float64:
		return value.Float64(-t), nil
	case value.BigDec:
		res := new(apd.Decimal).Neg(t.V)
		return value.NewBigDec(res), nil
	case value.Char:
		return Narrow(value.NewBigInt(big.NewInt(-int64(t)))), nil
	default:
		return nil, newErr(KindTypeCoercion, "cannot negate %s", v.Kind())
	}
}

// Not implements the logical complement; the operand must be non-null.
func (a *Arith) Not(v value.Value) (value.Value, error) {
	if value.IsNull(v) {
		return nil, newErr(KindNullOperand, "Not requires a non-null operand")
	}
	b, err := a.ToBool(v)
	if err != nil {
		return nil, err
	}
	return value.Bool(!b), nil
}

// And/Or implement the eager (non-short-circuiting) logical combinators;
// the interpreter implements short-circuit evaluation itself and calls
// these only on already-evaluated operands.
func (a *Arith) And(left, right value.Value) (value.Value, error) {
	lb, err := a.ToBool(left)
	if err != nil {
		return nil, err
	}
	rb, err := a.ToBool(right)
	if err != nil {
		return nil, err
	}
	return value.Bool(lb && rb), nil
}

func (a *Arith) Or(left, right value.Value) (value.Value, error) {
	lb, err := a.ToBool(left)
	if err != nil {
		return nil, err
	}
	rb, err := a.ToBool(right)
	if err != nil {
		return nil, err
	}
	return value.Bool(lb || rb), nil
}

// ---- bitwise ------------------------------------------------------------

func (a *Arith) bitOp(left, right value.Value, op func(l, r int64) int64) (value.Value, error) {
	if value.IsNull(left) && value.IsNull(right) {
		return a.bothNull()
	}
	lb, err := a.ToI64(left)
	if err != nil {
		return nil, err
	}
	rb, err := a.ToI64(right)
	if err != nil {
		return nil, err
	}
	return value.Int64(op(lb, rb)), nil
}

func (a *Arith) BitAnd(left, right value.Value) (value.Value, error) {
	return a.bitOp(left, right, func(l, r int64) int64 { return l & r })
}

func (a *Arith) BitOr(left, right value.Value) (value.Value, error) {
	return a.bitOp(left, right, func(l, r int64) int64 { return l | r })
}

func (a *Arith) BitXor(left, right value.Value) (value.Value, error) {
	return a.bitOp(left, right, func(l, r int64) int64 { return l ^ r })
}

func (a *Arith) BitNot(v value.Value) (value.Value, error) {
	i, err := a.ToI64(v)
	if err != nil {
		return nil, err
	}
	return value.Int64(^i), nil
}

// ---- comparisons ----------------------------------------------------------

// Eq implements the `==` operator's comparison ladder.
func (a *Arith) Eq(left, right value.Value) (bool, error) {
	ln, rn := value.IsNull(left), value.IsNull(right)
	if ln && rn {
		return true, nil
	}
	if ln != rn {
		return false, nil
	}
	switch {
	case left.Kind() == right.Kind():
		return value.Identity(left, right), nil
	case isBigDec(left) || isBigDec(right):
		ld, err := a.ToBigDec(left)
		if err != nil {
			return false, err
		}
		rd, err := a.ToBigDec(right)
		if err != nil {
			return false, err
		}
		return ld.Cmp(rd) == 0, nil
	case isFloatLike(left) || isFloatLike(right):
		lf, err := a.ToF64(left)
		if err != nil {
			return false, err
		}
		rf, err := a.ToF64(right)
		if err != nil {
			return false, err
		}
		return lf == rf, nil
	case isNumber(left) || isNumber(right) || isChar(left) || isChar(right):
		li, err := a.ToI64(left)
		if err != nil {
			return false, err
		}
		ri, err := a.ToI64(right)
		if err != nil {
			return false, err
		}
		return li == ri, nil
	case isBool(left) || isBool(right):
		lb, err := a.ToBool(left)
		if err != nil {
			return false, err
		}
		rb, err := a.ToBool(right)
		if err != nil {
			return false, err
		}
		return lb == rb, nil
	case isStr(left) || isStr(right):
		ls, err := a.ToStr(left)
		if err != nil {
			return false, err
		}
		rs, err := a.ToStr(right)
		if err != nil {
			return false, err
		}
		return ls == rs, nil
	default:
		return value.Identity(left, right), nil
	}
}

// Lt implements `<`.
func (a *Arith) Lt(left, right value.Value) (bool, error) {
	ln, rn := value.IsNull(left), value.IsNull(right)
	if ln || rn {
		if a.Strict {
			return false, newErr(KindNullOperand, "cannot compare null in strict mode")
		}
		return false, nil
	}
	switch {
	case isBigDec(left) || isBigDec(right):
		ld, err := a.ToBigDec(left)
		if err != nil {
			return false, err
		}
		rd, err := a.ToBigDec(right)
		if err != nil {
			return false, err
		}
		return ld.Cmp(rd) < 0, nil
	case isFloatLike(left) || isFloatLike(right):
		lf, err := a.ToF64(left)
		if err != nil {
			return false, err
		}
		rf, err := a.ToF64(right)
		if err != nil {
			return false, err
		}
		return lf < rf, nil
	case isBigInt(left) || isBigInt(right):
		lb, err := a.ToBigInt(left)
		if err != nil {
			return false, err
		}
		rb, err := a.ToBigInt(right)
		if err != nil {
			return false, err
		}
		return lb.Cmp(rb) < 0, nil
	case isNumber(left) || isNumber(right) || isChar(left) || isChar(right):
		li, err := a.ToI64(left)
		if err != nil {
			return false, err
		}
		ri, err := a.ToI64(right)
		if err != nil {
			return false, err
		}
		return li < ri, nil
	case isStr(left) && isStr(right):
		return strings.Compare(string(left.(value.Str)), string(right.(value.Str))) < 0, nil
	default:
		return false, newErr(KindInvalidComparison, "cannot compare %s and %s", left.Kind(), right.Kind())
	}
}

func (a *Arith) Gt(left, right value.Value) (bool, error) {
	eq, err := a.Eq(left, right)
	if err != nil {
		return false, err
	}
	lt, err := a.Lt(left, right)
	if err != nil {
		return false, err
	}
	return !eq && !lt, nil
}

func (a *Arith) Le(left, right value.Value) (bool, error) {
	eq, err := a.Eq(left, right)
	if err != nil {
		return false, err
	}
	if eq {
		return true, nil
	}
	return a.Lt(left, right)
}

func (a *Arith) Ge(left, right value.Value) (bool, error) {
	eq, err := a.Eq(left, right)
	if err != nil {
		return false, err
	}
	if eq {
		return true, nil
	}
	return a.Gt(left, right)
}

func (a *Arith) Ne(left, right value.Value) (bool, error) {
	eq, err := a.Eq(left, right)
	if err != nil {
		return false, err
	}
	return !eq, nil
}

func isNumber(v value.Value) bool {
	switch v.Kind() {
	case value.KindInt32, value.KindInt64, value.KindBigInt, value.KindFloat64, value.KindBigDec:
		return true
	}
	return false
}

func isChar(v value.Value) bool { return v.Kind() == value.KindChar }
func isBool(v value.Value) bool { return v.Kind() == value.KindBool }
func isStr(v value.Value) bool  { return v.Kind() == value.KindStr }

// Narrow returns the smallest numeric variant whose range contains v's
// payload. Used to shrink actual arguments during method overload
// resolution (internal/uberspect); arithmetic results instead use
// narrowResult, which never goes below Int64.
func Narrow(v value.Value) value.Value {
	switch t := v.(type) {
	case value.BigInt:
		if t.V.IsInt64() {
			return Narrow(value.Int64(t.V.Int64()))
		}
		return t
	case value.Int64:
		if int64(t) >= -(1<<31) && int64(t) <= (1<<31)-1 {
			return value.Int32(int32(t))
		}
		return t
	default:
		return v
	}
}
