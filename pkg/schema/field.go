package schema

import (
	"fmt"
	"math"
)

const (
	// MaxIndirectSize scratch bytes reserved for one indirect field
	MaxIndirectSize = 256
	// DefaultMaxLen default byte limit of string / blob fields
	DefaultMaxLen = 64
	// lengthPrefix string / blob length prefix bytes
	lengthPrefix = 2
)

// Field describes one networked member of a class.
type Field struct {
	Name    string
	Source  Kind     // in memory kind, inferred from Access when left invalid
	Wire    Kind     // kind written on the wire, defaults to Source
	Count   int      // array count, defaults to 1
	Divisor float64  // fixed point divisor for float -> integer wire
	Modulo  float64  // wrap-around range for angles and the like
	MaxLen  int      // byte limit of string / blob values
	Class   *Class   // nested class for KindClass
	Access  Accessor // direct or indirect accessor

	stride int
}

// Stride bytes reserved per element
func (f *Field) Stride() int {
	return f.stride
}

// Size upper bound of the encoded field, 0 for nested classes
func (f *Field) Size() int {
	return f.stride * f.Count
}

func (f *Field) String() string {
	return fmt.Sprintf("%s(%s->%s x%d)", f.Name, f.Source, f.Wire, f.Count)
}

// validate fills defaults and panics on schema misconfiguration.
func (f *Field) validate(owner string) {
	where := owner + "." + f.Name
	if f.Name == "" {
		panic(fmt.Sprintf("schema: class %s has a field without name", owner))
	}
	if f.Access == nil {
		panic(fmt.Sprintf("schema: field %s has no accessor", where))
	}

	if f.Source == KindInvalid {
		f.Source = f.Access.Kind()
	} else if f.Source != f.Access.Kind() {
		panic(fmt.Sprintf("schema: field %s declared %s but accessor holds %s", where, f.Source, f.Access.Kind()))
	}
	if f.Wire == KindInvalid {
		f.Wire = f.Source
	}
	if !supported(f.Source, f.Wire) {
		panic(fmt.Sprintf("schema: field %s unsupported %s -> %s", where, f.Source, f.Wire))
	}
	if f.Count <= 0 {
		f.Count = 1
	}
	if f.Divisor < 0 || f.Modulo < 0 {
		panic(fmt.Sprintf("schema: field %s negative divisor or modulo", where))
	}
	if (f.Divisor != 0 || f.Modulo != 0) && !(f.Source.IsFloat() && f.Wire.IsInteger()) {
		panic(fmt.Sprintf("schema: field %s fixed point needs float -> integer, got %s -> %s", where, f.Source, f.Wire))
	}
	// a wrapped value lies in [0, Modulo) and must scale into the wire integer
	if f.Modulo > 0 {
		if top := math.Round(f.Modulo*f.scale()) - 1; top > f.Wire.maxInteger() {
			panic(fmt.Sprintf("schema: field %s modulo %g x divisor %g overflows %s", where, f.Modulo, f.scale(), f.Wire))
		}
	}

	switch f.Wire {
	case KindClass:
		if f.Class == nil {
			panic(fmt.Sprintf("schema: field %s nested class missing", where))
		}
		f.stride = 0
	case KindString, KindBlob:
		if f.MaxLen <= 0 {
			f.MaxLen = DefaultMaxLen
		}
		f.stride = lengthPrefix + f.MaxLen
	default:
		f.stride = f.Wire.Size()
	}

	if f.Access.Mode() == AccessIndirect && f.stride*f.Count > MaxIndirectSize {
		panic(fmt.Sprintf("schema: indirect field %s needs %d bytes, scratch is %d", where, f.stride*f.Count, MaxIndirectSize))
	}
}

func (f *Field) scale() float64 {
	if f.Divisor == 0 {
		return 1
	}
	return f.Divisor
}
