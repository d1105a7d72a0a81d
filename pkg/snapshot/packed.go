package snapshot

import (
	"bytes"

	"github.com/byebyebruce/snapsync/pkg/schema"
	"github.com/pkg/errors"
)

// ErrFieldCountMismatch two records of one object disagree on their layout
var ErrFieldCountMismatch = errors.New("snapshot: field count mismatch")

// PackedField byte span of one field inside PackedState.Data
type PackedField = schema.FieldSpan

// Object a networked object
type Object interface {
	NetworkID() uint32
	NetworkClass() *schema.Class
}

// PackedState immutable packed state of one object at one tick
type PackedState struct {
	Data     []byte
	Fields   []PackedField
	Class    *schema.Class
	ObjectID uint32
	Tick     int32

	history *ChangeHistory
}

// Pack serializes obj. The record starts with a fresh history.
func Pack(obj Object, tick int32) (*PackedState, error) {
	c := obj.NetworkClass()
	data, fields, err := schema.Serialize(c, obj)
	if nil != err {
		return nil, errors.Wrapf(err, "pack object %d", obj.NetworkID())
	}
	return &PackedState{
		Data:     data,
		Fields:   fields,
		Class:    c,
		ObjectID: obj.NetworkID(),
		Tick:     tick,
		history:  NewChangeHistory(len(fields), tick),
	}, nil
}

// History nil once a newer record took it over
func (p *PackedState) History() *ChangeHistory {
	return p.history
}

// FieldBytes encoded bytes of field i
func (p *PackedState) FieldBytes(i int) []byte {
	f := p.Fields[i]
	return p.Data[f.Offset : f.Offset+f.Length]
}

// Diff appends to dst the fields whose bytes differ from prev.
// Returns AllChanged when the two records cannot be compared.
func (p *PackedState) Diff(prev *PackedState, dst []int) ([]int, int) {
	if prev == nil || prev.Class != p.Class || len(prev.Fields) != len(p.Fields) {
		return dst, AllChanged
	}
	n := 0
	for i := range p.Fields {
		if p.Fields[i].Length != prev.Fields[i].Length ||
			!bytes.Equal(p.FieldBytes(i), prev.FieldBytes(i)) {
			dst = append(dst, i)
			n++
		}
	}
	return dst, n
}

// steal moves the history of prev into p
func (p *PackedState) steal(prev *PackedState) {
	p.history = prev.history
	prev.history = nil
}

// appendFull field_count:uint16, {field_id:uint16, bytes}*
func (p *PackedState) appendFull(w *schema.Writer) {
	w.PutUint16(uint16(len(p.Fields)))
	for i := range p.Fields {
		w.PutUint16(uint16(i))
		w.PutRaw(p.FieldBytes(i))
	}
}

// appendFields changed:uint16, {field_id:uint16, bytes}*
func (p *PackedState) appendFields(w *schema.Writer, fields []int) {
	w.PutUint16(uint16(len(fields)))
	for _, i := range fields {
		w.PutUint16(uint16(i))
		w.PutRaw(p.FieldBytes(i))
	}
}
