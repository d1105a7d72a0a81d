package schema

import (
	"math"

	"github.com/pkg/errors"
)

var (
	ErrUnsupportedPair = errors.New("schema: unsupported source/wire pair")
	ErrTooLong         = errors.New("schema: value exceeds field max length")
)

// FieldSpan where one field's bytes live inside a packed buffer
type FieldSpan struct {
	Offset int
	Length int
}

// Serialize encodes every inherited field of obj in wire order and records
// the byte span of each field.
func Serialize(c *Class, obj any) ([]byte, []FieldSpan, error) {
	fields := c.Fields()
	spans := make([]FieldSpan, len(fields))
	w := NewWriter(make([]byte, 0, 64))
	for i, f := range fields {
		start := w.Len()
		if err := EncodeField(w, f, obj); nil != err {
			return nil, nil, errors.Wrapf(err, "serialize %s.%s", c.Name, f.Name)
		}
		spans[i] = FieldSpan{Offset: start, Length: w.Len() - start}
	}
	return w.Bytes(), spans, nil
}

// Deserialize decodes a buffer produced by Serialize into obj.
func Deserialize(c *Class, data []byte, obj any) error {
	r := NewReader(data)
	for _, f := range c.Fields() {
		if err := DecodeField(r, f, obj); nil != err {
			return errors.Wrapf(err, "deserialize %s.%s", c.Name, f.Name)
		}
	}
	return nil
}

// EncodeField appends every element of f read from obj.
func EncodeField(w *Writer, f *Field, obj any) error {
	for i := 0; i < f.Count; i++ {
		v := f.Access.Get(obj, i)
		if f.Wire == KindClass {
			if err := encodeNested(w, f.Class, v); nil != err {
				return err
			}
			continue
		}
		if err := encodeValue(w, f, v); nil != err {
			return err
		}
	}
	return nil
}

// DecodeField reads every element of f and stores it into obj.
func DecodeField(r *Reader, f *Field, obj any) error {
	for i := 0; i < f.Count; i++ {
		if f.Wire == KindClass {
			if err := decodeNested(r, f.Class, f.Access.Get(obj, i)); nil != err {
				return err
			}
			continue
		}
		v, err := decodeValue(r, f)
		if nil != err {
			return err
		}
		f.Access.Set(obj, i, v)
	}
	return nil
}

// SkipField consumes the bytes of f without touching any object.
func SkipField(r *Reader, f *Field) error {
	for i := 0; i < f.Count; i++ {
		switch f.Wire {
		case KindClass:
			for _, nf := range f.Class.Fields() {
				if err := SkipField(r, nf); nil != err {
					return err
				}
			}
		case KindString, KindBlob:
			r.Bytes()
		default:
			r.take(f.Wire.Size())
		}
		if nil != r.Err() {
			return r.Err()
		}
	}
	return nil
}

func encodeNested(w *Writer, c *Class, nested any) error {
	for _, nf := range c.Fields() {
		if err := EncodeField(w, nf, nested); nil != err {
			return errors.Wrapf(err, "nested %s.%s", c.Name, nf.Name)
		}
	}
	return nil
}

func decodeNested(r *Reader, c *Class, nested any) error {
	for _, nf := range c.Fields() {
		if err := DecodeField(r, nf, nested); nil != err {
			return errors.Wrapf(err, "nested %s.%s", c.Name, nf.Name)
		}
	}
	return nil
}

func encodeValue(w *Writer, f *Field, v any) error {
	switch f.Wire {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return errors.Wrapf(ErrUnsupportedPair, "%s holds %T", f.Name, v)
		}
		if len(s) > f.MaxLen {
			return errors.Wrapf(ErrTooLong, "%s %d > %d", f.Name, len(s), f.MaxLen)
		}
		w.PutBytes([]byte(s))
		return nil
	case KindBlob:
		b, ok := v.([]byte)
		if !ok {
			return errors.Wrapf(ErrUnsupportedPair, "%s holds %T", f.Name, v)
		}
		if len(b) > f.MaxLen {
			return errors.Wrapf(ErrTooLong, "%s %d > %d", f.Name, len(b), f.MaxLen)
		}
		w.PutBytes(b)
		return nil
	}

	n, ok := toNumber(v)
	if !ok {
		return errors.Wrapf(ErrUnsupportedPair, "%s holds %T", f.Name, v)
	}

	switch {
	case f.Wire == KindFloat32:
		w.PutUint32(math.Float32bits(float32(n.float())))
	case f.Wire == KindFloat64:
		w.PutUint64(math.Float64bits(n.float()))
	case f.Wire == KindBool:
		w.PutBool(n.bits != 0)
	case f.Source.IsFloat():
		x := n.f
		if f.Modulo > 0 {
			x = wrap(x, f.Modulo)
		}
		putInteger(w, f.Wire, uint64(int64(math.Round(x*f.scale()))))
	default:
		putInteger(w, f.Wire, n.bits)
	}
	return nil
}

func decodeValue(r *Reader, f *Field) (any, error) {
	var n number
	switch f.Wire {
	case KindString:
		b := r.Bytes()
		if nil != r.Err() {
			return nil, r.Err()
		}
		return string(b), nil
	case KindBlob:
		b := r.Bytes()
		if nil != r.Err() {
			return nil, r.Err()
		}
		return append([]byte(nil), b...), nil
	case KindFloat32:
		n = floatNumber(float64(math.Float32frombits(r.Uint32())))
	case KindFloat64:
		n = floatNumber(math.Float64frombits(r.Uint64()))
	case KindBool:
		n = intNumber(0)
		if r.Uint8() != 0 {
			n = intNumber(1)
		}
	default:
		bits := getInteger(r, f.Wire)
		switch {
		case !f.Source.IsFloat():
			n = intNumber(bits)
		case f.Wire.IsSigned():
			n = floatNumber(float64(int64(bits)) / f.scale())
		default:
			n = floatNumber(float64(bits) / f.scale())
		}
	}
	if nil != r.Err() {
		return nil, r.Err()
	}
	return n.as(f.Source), nil
}

// wrap maps x into [0, m)
func wrap(x, m float64) float64 {
	x = math.Mod(x, m)
	if x < 0 {
		x += m
	}
	return x
}

// putInteger writes the low bytes of bits; wider values are truncated.
func putInteger(w *Writer, k Kind, bits uint64) {
	switch k.Size() {
	case 1:
		w.PutUint8(uint8(bits))
	case 2:
		w.PutUint16(uint16(bits))
	case 4:
		w.PutUint32(uint32(bits))
	case 8:
		w.PutUint64(bits)
	}
}

// getInteger reads k and sign or zero extends it to 64 bits.
func getInteger(r *Reader, k Kind) uint64 {
	switch k {
	case KindInt8:
		return uint64(int64(int8(r.Uint8())))
	case KindUint8:
		return uint64(r.Uint8())
	case KindInt16:
		return uint64(int64(int16(r.Uint16())))
	case KindUint16:
		return uint64(r.Uint16())
	case KindInt32:
		return uint64(int64(int32(r.Uint32())))
	case KindUint32:
		return uint64(r.Uint32())
	}
	return r.Uint64()
}

// number canonical numeric value: integers keep their 64 bit pattern
// (sign extended), floats keep the float64 value.
type number struct {
	isFloat bool
	bits    uint64
	f       float64
	signed  bool
}

func intNumber(bits uint64) number { return number{bits: bits, signed: true} }
func floatNumber(f float64) number { return number{isFloat: true, f: f} }

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	if n.signed {
		return float64(int64(n.bits))
	}
	return float64(n.bits)
}

func (n number) integer() uint64 {
	if n.isFloat {
		return uint64(int64(n.f))
	}
	return n.bits
}

func toNumber(v any) (number, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return intNumber(1), true
		}
		return intNumber(0), true
	case int8:
		return intNumber(uint64(int64(x))), true
	case uint8:
		return number{bits: uint64(x)}, true
	case int16:
		return intNumber(uint64(int64(x))), true
	case uint16:
		return number{bits: uint64(x)}, true
	case int32:
		return intNumber(uint64(int64(x))), true
	case uint32:
		return number{bits: uint64(x)}, true
	case int64:
		return intNumber(uint64(x)), true
	case uint64:
		return number{bits: x}, true
	case float32:
		return floatNumber(float64(x)), true
	case float64:
		return floatNumber(x), true
	}
	return number{}, false
}

// as converts to the Go type of k with C-style truncation.
func (n number) as(k Kind) any {
	switch k {
	case KindBool:
		return n.integer() != 0
	case KindInt8:
		return int8(n.integer())
	case KindUint8:
		return uint8(n.integer())
	case KindInt16:
		return int16(n.integer())
	case KindUint16:
		return uint16(n.integer())
	case KindInt32:
		return int32(n.integer())
	case KindUint32:
		return uint32(n.integer())
	case KindInt64:
		return int64(n.integer())
	case KindUint64:
		return n.integer()
	case KindFloat32:
		return float32(n.float())
	case KindFloat64:
		return n.float()
	}
	return nil
}
