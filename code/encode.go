package code

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/big"

	"github.com/pkg/errors"
)

var errUnexpectedEOF = errors.New("code: unexpected end of encoded code object")

// Encode produces the fixed, deterministic binary serialization of obj used
// both for content hashing and for the blob column of the store. The
// encoding is intentionally simple and fixed-width-prefixed (in the spirit
// of this codebase's own little-endian cell encoding elsewhere) rather than
// a general-purpose structured format: what matters for content-addressing
// is that the same logical CodeObject always produces the same bytes, and
// that the encoding never changes once programs depend on its hashes.
func Encode(obj *CodeObject) []byte {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(obj.Argcount))

	writeUint32(&buf, uint32(len(obj.LocalNames)))
	for _, n := range obj.LocalNames {
		writeString(&buf, n)
	}

	writeUint32(&buf, uint32(len(obj.Litpool)))
	for _, v := range obj.Litpool {
		encodeValue(&buf, v)
	}

	writeUint32(&buf, uint32(len(obj.Labels)))
	for _, l := range obj.Labels {
		writeUint32(&buf, uint32(l))
	}

	writeUint32(&buf, uint32(len(obj.Code)))
	for _, in := range obj.Code {
		buf.WriteByte(byte(in.Op))
		switch {
		case in.Op == OpLoadFunc:
			buf.Write(in.Hash[:])
		case in.Op == OpLoadDyn:
			writeString(&buf, in.Name)
		case in.Op.HasIndexArg():
			writeUint32(&buf, uint32(int32(in.Arg)))
		}
	}

	return buf.Bytes()
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func encodeValue(buf *bytes.Buffer, v Value) {
	buf.WriteByte(byte(v.kind))
	switch v.kind {
	case KindI8, KindI16, KindI32, KindI64, KindISize,
		KindU8, KindU16, KindU32, KindU64, KindUSize:
		writeUint64(buf, uint64(v.i))
	case KindI128, KindU128:
		b := v.big.Bytes()
		if v.big.Sign() < 0 {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		writeUint32(buf, uint32(len(b)))
		buf.Write(b)
	case KindF32, KindF64:
		writeUint64(buf, math.Float64bits(v.f))
	case KindChar:
		writeUint32(buf, uint32(v.ch))
	case KindBool:
		if v.b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindHash:
		buf.Write(v.hash[:])
	case KindString:
		writeString(buf, v.str)
	case KindContainer:
		writeUint32(buf, uint32(len(v.container)))
		for _, e := range v.container {
			encodeValue(buf, e)
		}
	}
}

// Decode parses the bytes produced by Encode back into a CodeObject. It is
// the store's deserialization counterpart, used when reading a blob column
// back out for execution or disassembly.
func Decode(b []byte) (*CodeObject, error) {
	d := &decoder{b: b}
	obj := &CodeObject{}
	obj.Argcount = int(d.uint32())

	n := int(d.uint32())
	obj.LocalNames = make([]string, n)
	for i := range obj.LocalNames {
		obj.LocalNames[i] = d.string()
	}

	n = int(d.uint32())
	obj.Litpool = make([]Value, n)
	for i := range obj.Litpool {
		obj.Litpool[i] = d.value()
	}

	n = int(d.uint32())
	obj.Labels = make([]int, n)
	for i := range obj.Labels {
		obj.Labels[i] = int(d.uint32())
	}

	n = int(d.uint32())
	obj.Code = make([]Instr, n)
	for i := range obj.Code {
		op := Op(d.byte())
		in := Instr{Op: op}
		switch {
		case op == OpLoadFunc:
			copy(in.Hash[:], d.bytes(HashSize))
		case op == OpLoadDyn:
			in.Name = d.string()
		case op.HasIndexArg():
			in.Arg = int(int32(d.uint32()))
		}
		obj.Code[i] = in
	}

	return obj, d.err
}

type decoder struct {
	b   []byte
	pos int
	err error
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil || d.pos+n > len(d.b) {
		if d.err == nil {
			d.err = errUnexpectedEOF
		}
		return make([]byte, n)
	}
	out := d.b[d.pos : d.pos+n]
	d.pos += n
	return out
}

func (d *decoder) byte() byte {
	bs := d.bytes(1)
	return bs[0]
}

func (d *decoder) uint32() uint32 {
	return binary.LittleEndian.Uint32(d.bytes(4))
}

func (d *decoder) uint64() uint64 {
	return binary.LittleEndian.Uint64(d.bytes(8))
}

func (d *decoder) string() string {
	n := int(d.uint32())
	return string(d.bytes(n))
}

func (d *decoder) value() Value {
	k := Kind(d.byte())
	switch k {
	case KindI8, KindI16, KindI32, KindI64, KindISize,
		KindU8, KindU16, KindU32, KindU64, KindUSize:
		return Value{kind: k, i: int64(d.uint64())}
	case KindI128, KindU128:
		neg := d.byte() == 1
		n := int(d.uint32())
		mag := new(big.Int).SetBytes(d.bytes(n))
		if neg {
			mag.Neg(mag)
		}
		return Value{kind: k, big: mag}
	case KindF32, KindF64:
		return Value{kind: k, f: math.Float64frombits(d.uint64())}
	case KindChar:
		return Value{kind: k, ch: rune(d.uint32())}
	case KindBool:
		return Value{kind: k, b: d.byte() == 1}
	case KindHash:
		var h Hash
		copy(h[:], d.bytes(HashSize))
		return Value{kind: k, hash: h}
	case KindString:
		return Value{kind: k, str: d.string()}
	case KindContainer:
		n := int(d.uint32())
		elems := make([]Value, n)
		for i := range elems {
			elems[i] = d.value()
		}
		return Value{kind: k, container: elems}
	}
	if d.err == nil {
		d.err = errUnexpectedEOF
	}
	return Value{}
}
