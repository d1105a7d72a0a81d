package snapshot

import (
	l4g "github.com/alecthomas/log4go"
	"github.com/byebyebruce/snapsync/pkg/schema"
	"github.com/pkg/errors"
)

var (
	ErrUnknownClass  = errors.New("snapshot: unknown class")
	ErrUnknownObject = errors.New("snapshot: unknown object")
	ErrUnknownField  = errors.New("snapshot: unknown field")
	ErrNoFactory     = errors.New("snapshot: class has no factory")
)

// Mirror client side copy of a replicated object
type Mirror struct {
	Class  *schema.Class
	Zone   uint32
	Object any
}

// Decoder applies generate, delete and snapshot datagrams to a local mirror
// of the server's objects. A datagram that fails to decode is dropped whole
// and the decoder asks for a full resync.
type Decoder struct {
	registry *schema.Registry
	objects  map[uint32]*Mirror
	tick     int32
	resync   bool

	OnGenerate func(id uint32, m *Mirror)
	OnDelete   func(id uint32, m *Mirror)
}

// NewDecoder 构造
func NewDecoder(registry *schema.Registry) *Decoder {
	return &Decoder{
		registry: registry,
		objects:  make(map[uint32]*Mirror),
		tick:     TickNoComparison,
	}
}

// Object mirrored object by id
func (d *Decoder) Object(id uint32) (*Mirror, bool) {
	m, ok := d.objects[id]
	return m, ok
}

// Len mirrored objects
func (d *Decoder) Len() int {
	return len(d.objects)
}

// Tick last fully applied snapshot tick
func (d *Decoder) Tick() int32 {
	return d.tick
}

// NeedsResync a datagram was lost to a decode error
func (d *Decoder) NeedsResync() bool {
	return d.resync
}

// Ack tick to acknowledge, TickNoComparison while a resync is pending
func (d *Decoder) Ack() int32 {
	if d.resync {
		return TickNoComparison
	}
	return d.tick
}

// RequestResync drops delta state until the next full snapshot
func (d *Decoder) RequestResync() {
	d.resync = true
}

func (d *Decoder) fail(err error) error {
	if !d.resync {
		l4g.Warn("[decoder] resync: %v", err)
	}
	d.resync = true
	return err
}

// ApplyGenerate creates or refreshes one object
func (d *Decoder) ApplyGenerate(data []byte) error {
	r := schema.NewReader(data)
	classID := r.Uint16()
	id := r.Uint32()
	zone := r.Uint32()
	hasState := r.Bool()
	if err := r.Err(); nil != err {
		return d.fail(errors.Wrap(err, "generate header"))
	}

	c, ok := d.registry.Class(classID)
	if !ok {
		return d.fail(errors.Wrapf(ErrUnknownClass, "generate id=%d class=%d", id, classID))
	}

	m, exists := d.objects[id]
	if !exists || m.Class != c {
		if c.New == nil {
			return d.fail(errors.Wrap(ErrNoFactory, c.Name))
		}
		m = &Mirror{Class: c, Object: c.New()}
		exists = false
	}

	if hasState {
		body := r.Rest()
		if err := validateObject(schema.NewReader(body), c); nil != err {
			return d.fail(errors.Wrapf(err, "generate id=%d", id))
		}
		if err := decodeObject(schema.NewReader(body), c, m.Object); nil != err {
			return d.fail(errors.Wrapf(err, "generate id=%d", id))
		}
	}

	m.Zone = zone
	d.objects[id] = m
	if !exists && nil != d.OnGenerate {
		d.OnGenerate(id, m)
	}
	return nil
}

// ApplyDelete removes the listed objects
func (d *Decoder) ApplyDelete(data []byte) error {
	if len(data)%4 != 0 {
		return d.fail(errors.Wrapf(schema.ErrTruncated, "delete datagram of %d bytes", len(data)))
	}
	r := schema.NewReader(data)
	for r.Remaining() > 0 {
		d.remove(r.Uint32())
	}
	return nil
}

func (d *Decoder) remove(id uint32) {
	m, ok := d.objects[id]
	if !ok {
		return
	}
	delete(d.objects, id)
	if nil != d.OnDelete {
		d.OnDelete(id, m)
	}
}

// ApplySnapshot applies a full or delta snapshot datagram. Returns false when
// the datagram was skipped: stale, or a delta while a resync is pending.
func (d *Decoder) ApplySnapshot(data []byte) (bool, error) {
	r := schema.NewReader(data)
	tick := int32(r.Uint32())
	isDelta := r.Bool()
	count := int(r.Uint16())
	if err := r.Err(); nil != err {
		return false, d.fail(errors.Wrap(err, "snapshot header"))
	}
	if isDelta && d.resync {
		return false, nil
	}
	if d.tick != TickNoComparison && tick <= d.tick && !(d.resync && !isDelta) {
		return false, nil
	}

	body := r.Rest()
	if err := d.walkSnapshot(schema.NewReader(body), count, nil); nil != err {
		return false, d.fail(errors.Wrapf(err, "snapshot tick=%d", tick))
	}

	seen := make(map[uint32]struct{}, count)
	if err := d.walkSnapshot(schema.NewReader(body), count, seen); nil != err {
		// validated above, only a broken accessor gets here
		return false, d.fail(errors.Wrapf(err, "snapshot tick=%d", tick))
	}

	if !isDelta {
		for id := range d.objects {
			if _, ok := seen[id]; !ok {
				d.remove(id)
			}
		}
		d.resync = false
	}
	d.tick = tick
	return true, nil
}

// walkSnapshot validates the object list when seen is nil, applies it otherwise.
func (d *Decoder) walkSnapshot(r *schema.Reader, count int, seen map[uint32]struct{}) error {
	for i := 0; i < count; i++ {
		id := r.Uint32()
		if err := r.Err(); nil != err {
			return err
		}
		m, ok := d.objects[id]
		if !ok {
			return errors.Wrapf(ErrUnknownObject, "id=%d", id)
		}

		n := r.Uint16()
		full := n == FullObjectMarker
		if full {
			n = r.Uint16()
		}
		if err := r.Err(); nil != err {
			return err
		}

		var err error
		if nil == seen {
			err = validateFields(r, m.Class, int(n))
		} else {
			seen[id] = struct{}{}
			err = decodeFields(r, m.Class, m.Object, int(n))
		}
		if nil != err {
			return errors.Wrapf(err, "id=%d", id)
		}
	}
	return nil
}

// validateObject reads a field_count prefixed object without applying it.
func validateObject(r *schema.Reader, c *schema.Class) error {
	n := int(r.Uint16())
	if err := r.Err(); nil != err {
		return err
	}
	return validateFields(r, c, n)
}

func decodeObject(r *schema.Reader, c *schema.Class, obj any) error {
	n := int(r.Uint16())
	if err := r.Err(); nil != err {
		return err
	}
	return decodeFields(r, c, obj, n)
}

func validateFields(r *schema.Reader, c *schema.Class, n int) error {
	for i := 0; i < n; i++ {
		f := c.Field(int(r.Uint16()))
		if err := r.Err(); nil != err {
			return err
		}
		if f == nil {
			return errors.Wrapf(ErrUnknownField, "class %s", c.Name)
		}
		if err := schema.SkipField(r, f); nil != err {
			return errors.Wrapf(err, "field %s", f.Name)
		}
	}
	return nil
}

func decodeFields(r *schema.Reader, c *schema.Class, obj any, n int) error {
	for i := 0; i < n; i++ {
		f := c.Field(int(r.Uint16()))
		if err := r.Err(); nil != err {
			return err
		}
		if f == nil {
			return errors.Wrapf(ErrUnknownField, "class %s", c.Name)
		}
		if err := schema.DecodeField(r, f, obj); nil != err {
			return errors.Wrapf(err, "field %s", f.Name)
		}
	}
	return nil
}
