package schema

import (
	"encoding/binary"
	"math"
	"sort"

	l4g "github.com/alecthomas/log4go"
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

var (
	ErrAssigned       = errors.New("schema: registry already assigned")
	ErrNotAssigned    = errors.New("schema: registry not assigned")
	ErrDuplicateClass = errors.New("schema: duplicate class")
	ErrUnknownParent  = errors.New("schema: parent class not registered")
	ErrTooManyClasses = errors.New("schema: too many classes")
)

// Registry owns the networked classes of a process. Both ends of a
// connection build one from the same definitions, call Assign, and end up with
// identical class, field and message ids.
type Registry struct {
	classes     map[string]*Class
	byID        []*Class
	assigned    bool
	fingerprint uint64
}

// NewRegistry 构造
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]*Class),
	}
}

// Register adds classes. Must be called before Assign.
func (r *Registry) Register(classes ...*Class) error {
	if r.assigned {
		return ErrAssigned
	}
	for _, c := range classes {
		if _, ok := r.classes[c.Name]; ok {
			return errors.Wrap(ErrDuplicateClass, c.Name)
		}
		r.classes[c.Name] = c
	}
	return nil
}

// Assign flattens every class, then assigns dense ids sorted by class name
// and computes the schema fingerprint.
func (r *Registry) Assign() error {
	if r.assigned {
		return ErrAssigned
	}
	if len(r.classes) > math.MaxUint16 {
		return ErrTooManyClasses
	}

	byID := make([]*Class, 0, len(r.classes))
	for _, c := range r.classes {
		if nil != c.Parent {
			if p, ok := r.classes[c.Parent.Name]; !ok || p != c.Parent {
				return errors.Wrapf(ErrUnknownParent, "%s -> %s", c.Name, c.Parent.Name)
			}
		}
		byID = append(byID, c)
	}

	// parents first so every class sees a flattened parent
	for _, c := range byID {
		c.Flatten()
	}

	sort.Slice(byID, func(i, j int) bool { return byID[i].Name < byID[j].Name })
	for i, c := range byID {
		c.id = uint16(i)
		c.registered = true
	}

	r.byID = byID
	r.fingerprint = fingerprint(byID)
	r.assigned = true

	l4g.Debug("[schema] assigned %d classes fingerprint=%016x", len(byID), r.fingerprint)
	return nil
}

// MustAssign Assign that panics, for static registration at start up
func (r *Registry) MustAssign() *Registry {
	if err := r.Assign(); nil != err {
		panic(err)
	}
	return r
}

// Assigned reports whether ids are valid
func (r *Registry) Assigned() bool {
	return r.assigned
}

// Class class by id
func (r *Registry) Class(id uint16) (*Class, bool) {
	if int(id) >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

// Lookup class by name
func (r *Registry) Lookup(name string) (*Class, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// Classes classes in id order
func (r *Registry) Classes() []*Class {
	return r.byID
}

// Fingerprint hash over the assigned layout of every class
func (r *Registry) Fingerprint() uint64 {
	return r.fingerprint
}

func fingerprint(classes []*Class) uint64 {
	h := xxhash.New()
	var scratch [8]byte
	putU64 := func(v uint64) {
		binary.BigEndian.PutUint64(scratch[:], v)
		h.Write(scratch[:])
	}

	for _, c := range classes {
		h.WriteString(c.Name)
		putU64(uint64(c.id))
		for _, f := range c.Fields() {
			writeField(h, putU64, f)
		}
		for _, m := range c.Messages() {
			h.WriteString(m.Name)
			putU64(uint64(m.Flags))
		}
	}
	return h.Sum64()
}

func writeField(h *xxhash.Digest, putU64 func(uint64), f *Field) {
	h.WriteString(f.Name)
	putU64(uint64(f.Source)<<8 | uint64(f.Wire))
	putU64(uint64(f.Count))
	putU64(math.Float64bits(f.Divisor))
	putU64(math.Float64bits(f.Modulo))
	putU64(uint64(f.MaxLen))
	if nil != f.Class {
		h.WriteString(f.Class.Name)
		for _, nf := range f.Class.Fields() {
			writeField(h, putU64, nf)
		}
	}
}
