// Package arith implements the JEXL arithmetic & coercion engine: operator
// dispatch across mixed dynamically-typed values, the null-handling policy,
// the floating/BigInt/BigDec numeric ladder, narrowing, and the comparison
// family. BigDec arithmetic is backed by github.com/cockroachdb/apd/v3,
// BigInt by math/big.
package arith

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/cwbudde/go-jexl/internal/value"
)

// Kind identifies the reason an arithmetic operation failed. Package
// jexlerr turns these into the public *Error type; arith returns plain Go
// errors wrapping a Kind so it has no dependency on the higher-level
// error-formatting package.
type Kind int

const (
	KindNullOperand Kind = iota
	KindDivideByZero
	KindInvalidComparison
	KindTypeCoercion
	KindNumberFormat
)

// Error is the error type returned by every function in this package.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newErr(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Arith holds the strict/lenient mode flag and exposes the operator family.
type Arith struct {
	Strict bool
}

// New creates an Arith in the given null-handling mode.
func New(strict bool) *Arith {
	return &Arith{Strict: strict}
}

// ---- null policy -----------------------------------------------------

func (a *Arith) nullOperand() (value.Value, error) {
	if a.Strict {
		return nil, newErr(KindNullOperand, "null operand not allowed in strict mode")
	}
	return nil, nil
}

// bothNull resolves binary arithmetic with two null operands: lenient
// Int64(0), strict NullOperand.
func (a *Arith) bothNull() (value.Value, error) {
	if a.Strict {
		return nil, newErr(KindNullOperand, "null operand not allowed in strict mode")
	}
	return value.Int64(0), nil
}

// ---- coercions ---------------------------------------------------------

// ToBool coerces v to a boolean. Null coerces to false in lenient mode and
// fails in strict mode.
func (a *Arith) ToBool(v value.Value) (bool, error) {
	if value.IsNull(v) {
		if a.Strict {
			return false, newErr(KindNullOperand, "cannot coerce null to bool in strict mode")
		}
		return false, nil
	}
	switch t := v.(type) {
	case value.Bool:
		return bool(t), nil
	case value.Int32:
		return t != 0, nil
	case value.Int64:
		return t != 0, nil
	case value.BigInt:
		return t.V.Sign() != 0, nil
	case value.Float64:
		return t != 0, nil
	case value.BigDec:
		return t.V.Sign() != 0, nil
	case value.Char:
		return t != 0, nil
	case value.Str:
		s := strings.ToLower(strings.TrimSpace(string(t)))
		return s == "true", nil
	case *value.Seq:
		return len(t.Items) > 0, nil
	case *value.Map:
		return t.Len() > 0, nil
	default:
		return true, nil
	}
}

// ToI64 coerces v to int64 following the null policy and the numeric
// ladder. Strings are parsed as integers (truncating floats).
func (a *Arith) ToI64(v value.Value) (int64, error) {
	if value.IsNull(v) {
		if a.Strict {
			return 0, newErr(KindNullOperand, "cannot coerce null to number in strict mode")
		}
		return 0, nil
	}
	switch t := v.(type) {
	case value.Bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case value.Int32:
		return int64(t), nil
	case value.Int64:
		return int64(t), nil
	case value.BigInt:
		return t.V.Int64(), nil
	case value.Float64:
		return int64(t), nil
	case value.BigDec:
		i, err := t.V.Int64()
		if err != nil {
			f, _ := t.V.Float64()
			return int64(f), nil
		}
		return i, nil
	case value.Char:
		return int64(t), nil
	case value.Str:
		s := strings.TrimSpace(string(t))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), nil
		}
		return 0, newErr(KindNumberFormat, "cannot parse %q as a number", s)
	default:
		return 0, newErr(KindTypeCoercion, "cannot coerce %s to int64", v.Kind())
	}
}

// ToI32 coerces v to int32 via ToI64 and truncation.
func (a *Arith) ToI32(v value.Value) (int32, error) {
	i, err := a.ToI64(v)
	if err != nil {
		return 0, err
	}
	return int32(i), nil
}

// ToF64 coerces v to float64.
func (a *Arith) ToF64(v value.Value) (float64, error) {
	if value.IsNull(v) {
		if a.Strict {
			return 0, newErr(KindNullOperand, "cannot coerce null to number in strict mode")
		}
		return 0, nil
	}
	switch t := v.(type) {
	case value.Bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case value.Int32:
		return float64(t), nil
	case value.Int64:
		return float64(t), nil
	case value.BigInt:
		f := new(big.Float).SetInt(t.V)
		out, _ := f.Float64()
		return out, nil
	case value.Float64:
		return float64(t), nil
	case value.BigDec:
		f, err := t.V.Float64()
		if err != nil {
			return 0, newErr(KindNumberFormat, "%v", err)
		}
		return f, nil
	case value.Char:
		return float64(t), nil
	case value.Str:
		s := strings.TrimSpace(string(t))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, newErr(KindNumberFormat, "cannot parse %q as a number", s)
		}
		return f, nil
	default:
		return 0, newErr(KindTypeCoercion, "cannot coerce %s to float64", v.Kind())
	}
}

// ToBigInt coerces v to an arbitrary-precision integer.
func (a *Arith) ToBigInt(v value.Value) (*big.Int, error) {
	if value.IsNull(v) {
		if a.Strict {
			return nil, newErr(KindNullOperand, "cannot coerce null to number in strict mode")
		}
		return big.NewInt(0), nil
	}
	switch t := v.(type) {
	case value.Bool:
		if t {
			return big.NewInt(1), nil
		}
		return big.NewInt(0), nil
	case value.Int32:
		return big.NewInt(int64(t)), nil
	case value.Int64:
		return big.NewInt(int64(t)), nil
	case value.BigInt:
		return t.V, nil
	case value.Float64:
		bi, _ := big.NewFloat(float64(t)).Int(nil)
		return bi, nil
	case value.BigDec:
		i, err := t.V.Int64()
		if err == nil {
			return big.NewInt(i), nil
		}
		bf, _, perr := big.ParseFloat(t.V.String(), 10, 200, big.ToNearestEven)
		if perr != nil {
			return nil, newErr(KindNumberFormat, "cannot parse %q as an integer", t.V.String())
		}
		bi, _ := bf.Int(nil)
		return bi, nil
	case value.Char:
		return big.NewInt(int64(t)), nil
	case value.Str:
		s := strings.TrimSpace(string(t))
		bi, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, newErr(KindNumberFormat, "cannot parse %q as an integer", s)
		}
		return bi, nil
	default:
		return nil, newErr(KindTypeCoercion, "cannot coerce %s to BigInt", v.Kind())
	}
}

var decCtx = apd.BaseContext.WithPrecision(50)

// ToBigDec coerces v to an arbitrary-precision decimal.
func (a *Arith) ToBigDec(v value.Value) (*apd.Decimal, error) {
	if value.IsNull(v) {
		if a.Strict {
			return nil, newErr(KindNullOperand, "cannot coerce null to number in strict mode")
		}
		return apd.New(0, 0), nil
	}
	switch t := v.(type) {
	case value.Bool:
		if t {
			return apd.New(1, 0), nil
		}
		return apd.New(0, 0), nil
	case value.Int32:
		return apd.New(int64(t), 0), nil
	case value.Int64:
		return apd.New(int64(t), 0), nil
	case value.BigInt:
		d, _, err := apd.NewFromString(t.V.String())
		if err != nil {
			return nil, newErr(KindNumberFormat, "%v", err)
		}
		return d, nil
	case value.Float64:
		d, _, err := apd.NewFromString(strconv.FormatFloat(float64(t), 'g', -1, 64))
		if err != nil {
			return nil, newErr(KindNumberFormat, "%v", err)
		}
		return d, nil
	case value.BigDec:
		return t.V, nil
	case value.Char:
		return apd.New(int64(t), 0), nil
	case value.Str:
		s := strings.TrimSpace(string(t))
		d, _, err := apd.NewFromString(s)
		if err != nil {
			return nil, newErr(KindNumberFormat, "cannot parse %q as a decimal", s)
		}
		return d, nil
	default:
		return nil, newErr(KindTypeCoercion, "cannot coerce %s to BigDec", v.Kind())
	}
}

// ToStr coerces v to its string image. Null coerces to "" in lenient mode
// and fails in strict mode.
func (a *Arith) ToStr(v value.Value) (string, error) {
	if value.IsNull(v) {
		if a.Strict {
			return "", newErr(KindNullOperand, "cannot coerce null to string in strict mode")
		}
		return "", nil
	}
	return v.String(), nil
}

// ---- classification -----------------------------------------------------

// isFloatLike classifies an operand as floating-point-like: Float64 or a
// Str whose lexeme contains '.', 'e' or 'E'. BigDec is not float-like; it
// takes the BigDec step of the ladder in resolve.
func isFloatLike(v value.Value) bool {
	switch t := v.(type) {
	case value.Float64:
		return true
	case value.Str:
		s := string(t)
		return strings.ContainsAny(s, ".eE")
	}
	return false
}

func isBigInt(v value.Value) bool {
	_, ok := v.(value.BigInt)
	return ok
}

func isBigDec(v value.Value) bool {
	_, ok := v.(value.BigDec)
	return ok
}
