package prediction

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// FieldType value type of a prediction field
type FieldType uint8

const (
	FieldInt FieldType = iota + 1
	FieldBool
	FieldFloat
	FieldVec2
	FieldVec3
	FieldVec4
)

// Stride bytes the type occupies in a history slot
func (t FieldType) Stride() int {
	switch t {
	case FieldBool:
		return 1
	case FieldInt, FieldFloat:
		return 4
	case FieldVec2:
		return 8
	case FieldVec3:
		return 12
	case FieldVec4:
		return 16
	}
	return 0
}

func (t FieldType) components() int {
	switch t {
	case FieldVec2:
		return 2
	case FieldVec3:
		return 3
	case FieldVec4:
		return 4
	}
	return 1
}

func (t FieldType) String() string {
	switch t {
	case FieldInt:
		return "int"
	case FieldBool:
		return "bool"
	case FieldFloat:
		return "float"
	case FieldVec2:
		return "vec2"
	case FieldVec3:
		return "vec3"
	case FieldVec4:
		return "vec4"
	}
	return fmt.Sprintf("field_type(%d)", uint8(t))
}

// Flags field flags
type Flags uint8

const (
	FlagPrivate      Flags = 1 << iota // only predicted for the local player
	FlagNetworked                      // received from the server, error checked
	FlagNoErrorCheck                   // networked but never compared
)

// DiffType classification of a predicted value against the received one
type DiffType uint8

const (
	DiffIdentical DiffType = iota
	DiffWithinTolerance
	DiffDiffers
)

func (d DiffType) String() string {
	switch d {
	case DiffIdentical:
		return "identical"
	case DiffWithinTolerance:
		return "within_tolerance"
	}
	return "differs"
}

// Value types a field can bind to
type Value interface {
	int32 | bool | float32 | mgl32.Vec2 | mgl32.Vec3 | mgl32.Vec4
}

// Field one predicted member of an entity, bound to its live value.
type Field struct {
	Name      string
	Type      FieldType
	Tolerance float32 // 0 = must match exactly
	Flags     Flags

	offset int
	save   func(dst []byte)
	load   func(src []byte)
}

// Bind binds a field to the value at p
func Bind[T Value](name string, p *T, tolerance float32, flags Flags) *Field {
	return BindFunc(name, func() T { return *p }, func(v T) { *p = v }, tolerance, flags)
}

// BindFunc binds a field through a getter / setter pair
func BindFunc[T Value](name string, get func() T, set func(T), tolerance float32, flags Flags) *Field {
	return &Field{
		Name:      name,
		Type:      typeOf[T](),
		Tolerance: tolerance,
		Flags:     flags,
		save:      func(dst []byte) { put(dst, any(get())) },
		load:      func(src []byte) { set(take[T](src)) },
	}
}

// Stride bytes in a history slot
func (f *Field) Stride() int {
	return f.Type.Stride()
}

// Networked received from the server
func (f *Field) Networked() bool {
	return f.Flags&FlagNetworked != 0
}

// Checked compared against received state
func (f *Field) Checked() bool {
	return f.Networked() && f.Flags&FlagNoErrorCheck == 0
}

// Compare classifies the encoded value a against b.
func (f *Field) Compare(a, b []byte) DiffType {
	switch f.Type {
	case FieldBool:
		if a[0] == b[0] {
			return DiffIdentical
		}
		return DiffDiffers
	case FieldInt:
		x, y := int32(binary.LittleEndian.Uint32(a)), int32(binary.LittleEndian.Uint32(b))
		if x == y {
			return DiffIdentical
		}
		if f.Tolerance > 0 && math.Abs(float64(x)-float64(y)) <= float64(f.Tolerance) {
			return DiffWithinTolerance
		}
		return DiffDiffers
	}

	diff := DiffIdentical
	for i := 0; i < f.Type.components(); i++ {
		x, y := getFloat(a[i*4:]), getFloat(b[i*4:])
		if math.Float32bits(x) == math.Float32bits(y) {
			continue
		}
		if f.Tolerance > 0 && float32(math.Abs(float64(x-y))) <= f.Tolerance {
			diff = DiffWithinTolerance
			continue
		}
		return DiffDiffers
	}
	return diff
}

func typeOf[T Value]() FieldType {
	var zero T
	switch any(zero).(type) {
	case int32:
		return FieldInt
	case bool:
		return FieldBool
	case float32:
		return FieldFloat
	case mgl32.Vec2:
		return FieldVec2
	case mgl32.Vec3:
		return FieldVec3
	}
	return FieldVec4
}

func put(dst []byte, v any) {
	switch x := v.(type) {
	case int32:
		binary.LittleEndian.PutUint32(dst, uint32(x))
	case bool:
		dst[0] = 0
		if x {
			dst[0] = 1
		}
	case float32:
		putFloat(dst, x)
	case mgl32.Vec2:
		putFloats(dst, x[:])
	case mgl32.Vec3:
		putFloats(dst, x[:])
	case mgl32.Vec4:
		putFloats(dst, x[:])
	}
}

func take[T Value](src []byte) T {
	var v any
	var zero T
	switch any(zero).(type) {
	case int32:
		v = int32(binary.LittleEndian.Uint32(src))
	case bool:
		v = src[0] != 0
	case float32:
		v = getFloat(src)
	case mgl32.Vec2:
		v = mgl32.Vec2{getFloat(src), getFloat(src[4:])}
	case mgl32.Vec3:
		v = vec3(src)
	case mgl32.Vec4:
		v = mgl32.Vec4{getFloat(src), getFloat(src[4:]), getFloat(src[8:]), getFloat(src[12:])}
	}
	return v.(T)
}

func vec3(src []byte) mgl32.Vec3 {
	return mgl32.Vec3{getFloat(src), getFloat(src[4:]), getFloat(src[8:])}
}

func putFloats(dst []byte, v []float32) {
	for i, x := range v {
		putFloat(dst[i*4:], x)
	}
}

func putFloat(dst []byte, x float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(x))
}

func getFloat(src []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(src))
}
