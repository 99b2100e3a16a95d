package code

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind tags the variant held by a Value.
type Kind uint8

// Value variants.
const (
	KindI8 Kind = iota
	KindI16
	KindI32
	KindI64
	KindI128
	KindISize
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindUSize
	KindF32
	KindF64
	KindChar
	KindBool
	KindHash
	KindString
	KindContainer
)

var kindNames = [...]string{
	KindI8:        "i8",
	KindI16:       "i16",
	KindI32:       "i32",
	KindI64:       "i64",
	KindI128:      "i128",
	KindISize:     "isize",
	KindU8:        "u8",
	KindU16:       "u16",
	KindU32:       "u32",
	KindU64:       "u64",
	KindU128:      "u128",
	KindUSize:     "usize",
	KindF32:       "f32",
	KindF64:       "f64",
	KindChar:      "char",
	KindBool:      "bool",
	KindHash:      "hash",
	KindString:    "string",
	KindContainer: "container",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

func (k Kind) isSignedInt() bool {
	switch k {
	case KindI8, KindI16, KindI32, KindI64, KindISize:
		return true
	}
	return false
}

func (k Kind) isUnsignedInt() bool {
	switch k {
	case KindU8, KindU16, KindU32, KindU64, KindUSize:
		return true
	}
	return false
}

func (k Kind) isFloat() bool {
	return k == KindF32 || k == KindF64
}

func (k Kind) isNumeric() bool {
	return k.isSignedInt() || k.isUnsignedInt() || k.isFloat() || k == KindI128 || k == KindU128
}

// Value is the tagged runtime value carried on operand stacks, in locals,
// and in literal pools.
type Value struct {
	kind      Kind
	i         int64
	big       *big.Int
	f         float64
	ch        rune
	b         bool
	hash      Hash
	str       string
	container []Value
}

// Constructors.

func I8(v int8) Value     { return Value{kind: KindI8, i: int64(v)} }
func I16(v int16) Value   { return Value{kind: KindI16, i: int64(v)} }
func I32(v int32) Value   { return Value{kind: KindI32, i: int64(v)} }
func I64(v int64) Value   { return Value{kind: KindI64, i: v} }
func ISize(v int) Value   { return Value{kind: KindISize, i: int64(v)} }
func I128(v *big.Int) Value {
	return Value{kind: KindI128, big: new(big.Int).Set(v)}
}
func U8(v uint8) Value   { return Value{kind: KindU8, i: int64(v)} }
func U16(v uint16) Value { return Value{kind: KindU16, i: int64(v)} }
func U32(v uint32) Value { return Value{kind: KindU32, i: int64(v)} }
func U64(v uint64) Value { return Value{kind: KindU64, i: int64(v)} }
func USize(v uint) Value { return Value{kind: KindUSize, i: int64(v)} }
func U128(v *big.Int) Value {
	return Value{kind: KindU128, big: new(big.Int).Set(v)}
}
func F32(v float32) Value    { return Value{kind: KindF32, f: float64(v)} }
func F64(v float64) Value    { return Value{kind: KindF64, f: v} }
func Char(r rune) Value      { return Value{kind: KindChar, ch: r} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func HashValue(h Hash) Value { return Value{kind: KindHash, hash: h} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func Container(elems []Value) Value {
	return Value{kind: KindContainer, container: elems}
}

// Kind returns the value's variant tag.
func (v Value) Kind() Kind { return v.kind }

// AsI32 returns the value as an int32, assuming v.Kind() == KindI32.
func (v Value) AsI32() int32 { return int32(v.i) }

// AsHash returns the value as a Hash, assuming v.Kind() == KindHash.
func (v Value) AsHash() Hash { return v.hash }

// AsString returns the value as a string, assuming v.Kind() == KindString.
func (v Value) AsString() string { return v.str }

// AsBool returns the value as a bool, assuming v.Kind() == KindBool.
func (v Value) AsBool() bool { return v.b }

// IsTruthy implements the truthiness rule: numeric zero, false, NUL
// character, empty string, empty hash, and empty container are false;
// everything else is true.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindI8, KindI16, KindI32, KindI64, KindISize,
		KindU8, KindU16, KindU32, KindU64, KindUSize:
		return v.i != 0
	case KindI128, KindU128:
		return v.big.Sign() != 0
	case KindF32, KindF64:
		return v.f != 0
	case KindChar:
		return v.ch != 0
	case KindBool:
		return v.b
	case KindHash:
		return v.hash != Hash{}
	case KindString:
		return len(v.str) != 0
	case KindContainer:
		return len(v.container) != 0
	}
	return false
}

// And implements the VM's And instruction: returns the right operand if
// both are truthy, else the first falsy operand.
func (v Value) And(rhs Value) Value {
	if !v.IsTruthy() {
		return v
	}
	return rhs
}

// Or implements the VM's Or instruction: returns the first truthy operand,
// else the right operand.
func (v Value) Or(rhs Value) Value {
	if v.IsTruthy() {
		return v
	}
	return rhs
}

// Equal implements structural equality.
func (v Value) Equal(rhs Value) bool {
	if v.kind != rhs.kind {
		return false
	}
	switch v.kind {
	case KindI8, KindI16, KindI32, KindI64, KindISize,
		KindU8, KindU16, KindU32, KindU64, KindUSize:
		return v.i == rhs.i
	case KindI128, KindU128:
		return v.big.Cmp(rhs.big) == 0
	case KindF32, KindF64:
		return v.f == rhs.f
	case KindChar:
		return v.ch == rhs.ch
	case KindBool:
		return v.b == rhs.b
	case KindHash:
		return v.hash == rhs.hash
	case KindString:
		return v.str == rhs.str
	case KindContainer:
		if len(v.container) != len(rhs.container) {
			return false
		}
		for i := range v.container {
			if !v.container[i].Equal(rhs.container[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare returns -1, 0, or 1 per usual ordering semantics. It is defined
// for same-variant numerics, char, bool, hash, and string; any other
// combination is a fatal error.
func (v Value) Compare(rhs Value) (int, error) {
	if v.kind != rhs.kind {
		return 0, errors.Errorf("cannot compare %s with %s", v.kind, rhs.kind)
	}
	switch v.kind {
	case KindI8, KindI16, KindI32, KindI64, KindISize:
		return cmpInt64(v.i, rhs.i), nil
	case KindU8, KindU16, KindU32, KindU64, KindUSize:
		return cmpUint64(uint64(v.i), uint64(rhs.i)), nil
	case KindI128, KindU128:
		return v.big.Cmp(rhs.big), nil
	case KindF32, KindF64:
		return cmpFloat64(v.f, rhs.f), nil
	case KindChar:
		return cmpInt64(int64(v.ch), int64(rhs.ch)), nil
	case KindBool:
		return cmpBool(v.b, rhs.b), nil
	case KindHash:
		for i := range v.hash {
			if v.hash[i] != rhs.hash[i] {
				if v.hash[i] < rhs.hash[i] {
					return -1, nil
				}
				return 1, nil
			}
		}
		return 0, nil
	case KindString:
		return strings.Compare(v.str, rhs.str), nil
	}
	return 0, errors.Errorf("values of kind %s are not ordered", v.kind)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

// String renders the value the way the assembler/disassembler and the Dbg
// instruction do: quoted strings, 0x-prefixed hashes, textual primitives.
func (v Value) String() string {
	switch v.kind {
	case KindI8, KindI16, KindI32, KindI64, KindISize:
		return strconv.FormatInt(v.i, 10)
	case KindU8, KindU16, KindU32, KindU64, KindUSize:
		return strconv.FormatUint(uint64(v.i), 10)
	case KindI128, KindU128:
		return v.big.String()
	case KindF32, KindF64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindChar:
		return strconv.QuoteRune(v.ch)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindHash:
		return v.hash.String()
	case KindString:
		return strconv.Quote(v.str)
	case KindContainer:
		parts := make([]string, len(v.container))
		for i, e := range v.container {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	return "<invalid>"
}
