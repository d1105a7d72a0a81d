package schema

import (
	"fmt"
	"math"
)

// Kind 字段的内存类型或者网络类型
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindClass
	KindBlob
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindInt8:    "int8",
	KindUint8:   "uint8",
	KindInt16:   "int16",
	KindUint16:  "uint16",
	KindInt32:   "int32",
	KindUint32:  "uint32",
	KindInt64:   "int64",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindString:  "string",
	KindClass:   "class",
	KindBlob:    "blob",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Size fixed byte size on the wire, 0 for variable sized kinds
func (k Kind) Size() int {
	switch k {
	case KindBool, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	}
	return 0
}

func (k Kind) IsInteger() bool {
	return k >= KindInt8 && k <= KindUint64
}

func (k Kind) IsSigned() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

// maxInteger largest value an integer kind holds
func (k Kind) maxInteger() float64 {
	bits := k.Size() * 8
	if k.IsSigned() {
		bits--
	}
	return math.Exp2(float64(bits)) - 1
}

func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

func (k Kind) isNumeric() bool {
	return k == KindBool || k.IsInteger() || k.IsFloat()
}

// supported reports whether a value of kind src may be written as wire.
func supported(src, wire Kind) bool {
	switch {
	case src == KindBool && wire.IsFloat(), src.IsFloat() && wire == KindBool:
		return false
	case src.isNumeric() && wire.isNumeric():
		return true
	case src == wire && (src == KindString || src == KindBlob || src == KindClass):
		return true
	}
	return false
}
