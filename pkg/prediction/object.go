package prediction

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// OriginalSlot restores / saves the state last received from the server
const OriginalSlot = -1

// FieldDiff one compared field
type FieldDiff struct {
	Field *Field
	Diff  DiffType
}

// Object prediction state of one entity: its fields, a history slot per
// predicted command and the original (networked) slot.
type Object struct {
	fields     []*Field
	bufferSize int
	ring       *Ring
	original   []byte
	scratch    []byte

	intermediate int // slots holding valid predicted data
	errorField   *Field
	smoother     *Smoother

	pass uint64 // last simulation pass, simulated once per command
}

// NewObject 构造
func NewObject(slots int, fields ...*Field) *Object {
	o := &Object{fields: fields}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, ok := seen[f.Name]; ok {
			panic(fmt.Sprintf("prediction: duplicate field %s", f.Name))
		}
		seen[f.Name] = struct{}{}
		f.offset = o.bufferSize
		o.bufferSize += f.Stride()
	}
	o.ring = NewRing(slots, o.bufferSize)
	o.original = make([]byte, o.bufferSize)
	o.scratch = make([]byte, o.bufferSize)
	return o
}

// Fields bound fields in slot order
func (o *Object) Fields() []*Field {
	return o.fields
}

// Field by name
func (o *Object) Field(name string) *Field {
	for _, f := range o.fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// BufferSize bytes per history slot
func (o *Object) BufferSize() int {
	return o.bufferSize
}

// Ring history slots
func (o *Object) Ring() *Ring {
	return o.ring
}

// IntermediateCount predicted slots holding valid data
func (o *Object) IntermediateCount() int {
	return o.intermediate
}

// SetErrorField designates the vec3 field measured for prediction error
// smoothing; usually the origin.
func (o *Object) SetErrorField(name string, smoothing *Smoother) *Object {
	f := o.Field(name)
	if f == nil || f.Type != FieldVec3 {
		panic(fmt.Sprintf("prediction: error field %s must be a vec3 field", name))
	}
	o.errorField = f
	o.smoother = smoothing
	return o
}

// Smoother nil unless an error field is set
func (o *Object) Smoother() *Smoother {
	return o.smoother
}

func (o *Object) slot(i int) []byte {
	if i < 0 {
		return o.original
	}
	return o.ring.Slot(i)
}

// Save copies the live values into slot i, OriginalSlot for the networked copy
func (o *Object) Save(i int) {
	dst := o.slot(i)
	for _, f := range o.fields {
		f.save(dst[f.offset:])
	}
	if i >= 0 && i+1 > o.intermediate {
		o.intermediate = i + 1
		if o.intermediate > o.ring.Cap() {
			o.intermediate = o.ring.Cap()
		}
	}
}

// Restore writes slot i back into the live values
func (o *Object) Restore(i int) {
	src := o.slot(i)
	for _, f := range o.fields {
		f.load(src[f.offset:])
	}
}

// Compare classifies slot i against the live values of every checked field.
// Returns the worst classification; diffs is appended for non identical fields.
func (o *Object) Compare(i int, diffs []FieldDiff) (DiffType, []FieldDiff) {
	predicted := o.slot(i)
	for _, f := range o.fields {
		f.save(o.scratch[f.offset:])
	}
	worst := DiffIdentical
	for _, f := range o.fields {
		if !f.Checked() {
			continue
		}
		d := f.Compare(predicted[f.offset:], o.scratch[f.offset:])
		if d == DiffIdentical {
			continue
		}
		diffs = append(diffs, FieldDiff{Field: f, Diff: d})
		if d > worst {
			worst = d
		}
	}
	return worst, diffs
}

// PredictionError predicted minus live value of the error field
func (o *Object) PredictionError(i int) (mgl32.Vec3, bool) {
	if o.errorField == nil {
		return mgl32.Vec3{}, false
	}
	f := o.errorField
	f.save(o.scratch[f.offset:])
	return vec3(o.slot(i)[f.offset:]).Sub(vec3(o.scratch[f.offset:])), true
}

// ShiftIntermediateForward drops remove predicted slots from the front of
// the first count slots.
func (o *Object) ShiftIntermediateForward(remove, count int) {
	if remove > count {
		return
	}
	o.ring.ShiftForward(remove, count)
	o.intermediate -= remove
	if o.intermediate < 0 {
		o.intermediate = 0
	}
}
