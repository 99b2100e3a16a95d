package code

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// bitWidth returns the width in bits of a sized integer Kind, used to mask
// results back into range after wraparound arithmetic.
func bitWidth(k Kind) int {
	switch k {
	case KindI8, KindU8:
		return 8
	case KindI16, KindU16:
		return 16
	case KindI32, KindU32:
		return 32
	case KindI64, KindU64, KindISize, KindUSize:
		return 64
	}
	return 64
}

func maskSigned(k Kind, v int64) int64 {
	w := bitWidth(k)
	if w >= 64 {
		return v
	}
	shift := uint(64 - w)
	return (v << shift) >> shift
}

func maskUnsigned(k Kind, v uint64) uint64 {
	w := bitWidth(k)
	if w >= 64 {
		return v
	}
	return v & ((uint64(1) << uint(w)) - 1)
}

// Add implements the `+` arithmetic instruction. Same-variant numerics add
// normally; strings concatenate.
func (v Value) Add(rhs Value) (Value, error) {
	if v.kind == KindString && rhs.kind == KindString {
		return String(v.str + rhs.str), nil
	}
	return v.numericOp(rhs, "add",
		func(k Kind, a, b int64) int64 { return maskSigned(k, a+b) },
		func(k Kind, a, b uint64) uint64 { return maskUnsigned(k, a+b) },
		func(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) },
		func(a, b float64) float64 { return a + b },
	)
}

// Sub implements the `-` arithmetic instruction.
func (v Value) Sub(rhs Value) (Value, error) {
	return v.numericOp(rhs, "subtract",
		func(k Kind, a, b int64) int64 { return maskSigned(k, a-b) },
		func(k Kind, a, b uint64) uint64 { return maskUnsigned(k, a-b) },
		func(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) },
		func(a, b float64) float64 { return a - b },
	)
}

// Mul implements the `*` arithmetic instruction. String * signed integer
// (i8, i16, i32, i64 or isize) is repetition; a string times an unsigned or
// 128-bit integer is rejected as a type mismatch.
func (v Value) Mul(rhs Value) (Value, error) {
	if v.kind == KindString && rhs.kind.isSignedInt() {
		if rhs.i < 0 {
			return Value{}, errors.New("cannot repeat a string a negative number of times")
		}
		return String(strings.Repeat(v.str, int(rhs.i))), nil
	}
	return v.numericOp(rhs, "multiply",
		func(k Kind, a, b int64) int64 { return maskSigned(k, a*b) },
		func(k Kind, a, b uint64) uint64 { return maskUnsigned(k, a*b) },
		func(a, b *big.Int) *big.Int { return new(big.Int).Mul(a, b) },
		func(a, b float64) float64 { return a * b },
	)
}

// Div implements the `/` arithmetic instruction.
func (v Value) Div(rhs Value) (Value, error) {
	return v.numericOp(rhs, "divide",
		func(k Kind, a, b int64) int64 {
			if b == 0 {
				panic(errors.New("division by zero"))
			}
			return maskSigned(k, a/b)
		},
		func(k Kind, a, b uint64) uint64 {
			if b == 0 {
				panic(errors.New("division by zero"))
			}
			return maskUnsigned(k, a/b)
		},
		func(a, b *big.Int) *big.Int {
			if b.Sign() == 0 {
				panic(errors.New("division by zero"))
			}
			return new(big.Int).Quo(a, b)
		},
		func(a, b float64) float64 { return a / b },
	)
}

// Mod implements the `%` arithmetic instruction.
func (v Value) Mod(rhs Value) (Value, error) {
	return v.numericOp(rhs, "modulo",
		func(k Kind, a, b int64) int64 {
			if b == 0 {
				panic(errors.New("modulo by zero"))
			}
			return maskSigned(k, a%b)
		},
		func(k Kind, a, b uint64) uint64 {
			if b == 0 {
				panic(errors.New("modulo by zero"))
			}
			return maskUnsigned(k, a%b)
		},
		func(a, b *big.Int) *big.Int {
			if b.Sign() == 0 {
				panic(errors.New("modulo by zero"))
			}
			return new(big.Int).Rem(a, b)
		},
		nil,
	)
}

// Shl implements the `<<` arithmetic instruction.
func (v Value) Shl(rhs Value) (Value, error) {
	return v.shiftOp(rhs, "shift left",
		func(k Kind, a int64, n uint) int64 { return maskSigned(k, a<<n) },
		func(k Kind, a uint64, n uint) uint64 { return maskUnsigned(k, a<<n) },
	)
}

// Shr implements the `>>` arithmetic instruction.
func (v Value) Shr(rhs Value) (Value, error) {
	return v.shiftOp(rhs, "shift right",
		func(k Kind, a int64, n uint) int64 { return maskSigned(k, a>>n) },
		func(k Kind, a uint64, n uint) uint64 { return maskUnsigned(k, a>>n) },
	)
}

// Neg implements the unary `neg` instruction; defined for signed integers
// and floats only.
func (v Value) Neg() (Value, error) {
	switch {
	case v.kind.isSignedInt():
		return Value{kind: v.kind, i: maskSigned(v.kind, -v.i)}, nil
	case v.kind == KindI128:
		return I128(new(big.Int).Neg(v.big)), nil
	case v.kind.isFloat():
		return Value{kind: v.kind, f: -v.f}, nil
	}
	return Value{}, errors.Errorf("cannot negate a value of kind %s", v.kind)
}

// Not implements the unary `not` instruction: logical on Bool, bitwise on
// any integer variant.
func (v Value) Not() (Value, error) {
	switch {
	case v.kind == KindBool:
		return Bool(!v.b), nil
	case v.kind.isSignedInt():
		return Value{kind: v.kind, i: maskSigned(v.kind, ^v.i)}, nil
	case v.kind.isUnsignedInt():
		return Value{kind: v.kind, i: int64(maskUnsigned(v.kind, ^uint64(v.i)))}, nil
	case v.kind == KindI128 || v.kind == KindU128:
		return Value{kind: v.kind, big: new(big.Int).Not(v.big)}, nil
	}
	return Value{}, errors.Errorf("cannot apply logical/bitwise not to a value of kind %s", v.kind)
}

func (v Value) numericOp(
	rhs Value, verb string,
	signedOp func(Kind, int64, int64) int64,
	unsignedOp func(Kind, uint64, uint64) uint64,
	bigOp func(*big.Int, *big.Int) *big.Int,
	floatOp func(float64, float64) float64,
) (result Value, err error) {
	if v.kind != rhs.kind {
		return Value{}, errors.Errorf("cannot %s values of different types: %s and %s", verb, v.kind, rhs.kind)
	}
	defer func() {
		if e := recover(); e != nil {
			err = errors.Errorf("%v", e)
		}
	}()
	switch {
	case v.kind.isSignedInt():
		return Value{kind: v.kind, i: signedOp(v.kind, v.i, rhs.i)}, nil
	case v.kind.isUnsignedInt():
		return Value{kind: v.kind, i: int64(unsignedOp(v.kind, uint64(v.i), uint64(rhs.i)))}, nil
	case v.kind == KindI128 || v.kind == KindU128:
		return Value{kind: v.kind, big: bigOp(v.big, rhs.big)}, nil
	case v.kind.isFloat():
		if floatOp == nil {
			return Value{}, errors.Errorf("cannot %s floating point values", verb)
		}
		return Value{kind: v.kind, f: floatOp(v.f, rhs.f)}, nil
	}
	return Value{}, errors.Errorf("cannot %s values of kind %s", verb, v.kind)
}

func (v Value) shiftOp(
	rhs Value, verb string,
	signedOp func(Kind, int64, uint) int64,
	unsignedOp func(Kind, uint64, uint) uint64,
) (result Value, err error) {
	if v.kind != rhs.kind {
		return Value{}, errors.Errorf("cannot %s values of different types: %s and %s", verb, v.kind, rhs.kind)
	}
	shift := uint(rhs.i)
	switch {
	case v.kind.isSignedInt():
		return Value{kind: v.kind, i: signedOp(v.kind, v.i, shift)}, nil
	case v.kind.isUnsignedInt():
		return Value{kind: v.kind, i: int64(unsignedOp(v.kind, uint64(v.i), shift))}, nil
	}
	return Value{}, errors.Errorf("cannot %s values of kind %s", verb, v.kind)
}
