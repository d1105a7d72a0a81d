package snapshot

import (
	"math/rand"
	"testing"

	"github.com/byebyebruce/snapsync/pkg/schema"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unit struct {
	id     uint32
	zone   uint32
	Health int32
	Armor  uint8
	X, Y   float32
	Name   string
}

var unitClass = schema.NewClass("unit", nil, func() any { return &unit{} }).
	AddField(schema.Field{Name: "health", Wire: schema.KindInt16, Access: schema.Direct(func(o any) *int32 { return &o.(*unit).Health })}).
	AddField(schema.Field{Name: "armor", Access: schema.Direct(func(o any) *uint8 { return &o.(*unit).Armor })}).
	AddField(schema.Field{Name: "x", Wire: schema.KindInt32, Divisor: 100, Access: schema.Direct(func(o any) *float32 { return &o.(*unit).X })}).
	AddField(schema.Field{Name: "y", Wire: schema.KindInt32, Divisor: 100, Access: schema.Direct(func(o any) *float32 { return &o.(*unit).Y })}).
	AddField(schema.Field{Name: "name", Access: schema.Direct(func(o any) *string { return &o.(*unit).Name })})

var registry = func() *schema.Registry {
	r := schema.NewRegistry()
	if err := r.Register(unitClass); nil != err {
		panic(err)
	}
	return r.MustAssign()
}()

func (u *unit) NetworkID() uint32           { return u.id }
func (u *unit) NetworkClass() *schema.Class { return unitClass }

type table []*unit

func (t table) Slots() int { return len(t) }
func (t table) Slot(i int) (Object, uint32, bool) {
	if t[i] == nil {
		return nil, 0, false
	}
	return t[i], t[i].zone, true
}

func field(name string) int { return unitClass.FieldIndex(name) }

func TestPackIntoSnapshot(t *testing.T) {
	m := NewManager()
	u := &unit{id: 7, Health: 100, Name: "a"}

	s1 := NewFrameSnapshot(1, 1)
	n, err := m.PackIntoSnapshot(s1, 0, u, 0)
	require.NoError(t, err)
	assert.Equal(t, AllChanged, n)
	assert.Equal(t, []int{0}, s1.Valid)

	s2 := NewFrameSnapshot(2, 1)
	n, err = m.PackIntoSnapshot(s2, 0, u, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Same(t, s1.Entries[0].Packed, s2.Entries[0].Packed, "unchanged object reuses its record")

	u.Health = 90
	u.X = 1.5
	s3 := NewFrameSnapshot(3, 1)
	n, err = m.PackIntoSnapshot(s3, 0, u, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotSame(t, s2.Entries[0].Packed, s3.Entries[0].Packed)
	assert.Nil(t, s2.Entries[0].Packed.History(), "history moved to the newest record")
	require.NotNil(t, s3.Entries[0].Packed.History())

	last, ok := m.LastSent(7)
	require.True(t, ok)
	assert.Same(t, s3.Entries[0].Packed, last)
}

func TestGetOrCreateBaseline(t *testing.T) {
	m := NewManager()
	u := &unit{id: 1, Health: 50}

	b, err := m.GetOrCreateBaseline(u)
	require.NoError(t, err)
	assert.Equal(t, TickNoComparison, b.Tick)

	again, err := m.GetOrCreateBaseline(u)
	require.NoError(t, err)
	assert.Same(t, b, again)

	u.Health = 40
	s := NewFrameSnapshot(5, 1)
	n, err := m.PackIntoSnapshot(s, 0, u, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "packing compares against the baseline")

	m.Forget(1)
	_, ok := m.LastSent(1)
	assert.False(t, ok)
}

func TestChangeHistoryOwnership(t *testing.T) {
	m := NewManager()
	u := &unit{id: 3}
	var records []*PackedState

	mutate := []func(){
		func() {},
		func() { u.Health = 1 },
		func() { u.Armor = 2 },
		func() {},
		func() { u.Health = 3 },
		func() {},
	}
	for i, f := range mutate {
		f()
		s := NewFrameSnapshot(int32(10+i), 1)
		_, err := m.PackIntoSnapshot(s, 0, u, 0)
		require.NoError(t, err)
		records = append(records, s.Entries[0].Packed)
	}

	last := records[len(records)-1]
	h := last.History()
	require.NotNil(t, h)
	assert.Equal(t, int32(14), h.Tick(field("health")))
	assert.Equal(t, int32(12), h.Tick(field("armor")))
	assert.Equal(t, int32(10), h.Tick(field("x")))
	assert.Equal(t, int32(10), h.Tick(field("name")))

	fields, n := h.ChangedSince(10, nil)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []int{field("health"), field("armor")}, fields)

	_, n = h.ChangedSince(9, nil)
	assert.Equal(t, AllChanged, n, "baseline older than the object")

	// unchanged ticks reuse the previous record; only the newest one owns the history
	for _, r := range records {
		if r != last {
			assert.Nil(t, r.History(), "record of tick %d", r.Tick)
		}
	}
}

func TestHealthDelta(t *testing.T) {
	m := NewManager()
	a := &unit{id: 1, Health: 100, Name: "a"}
	b := &unit{id: 2, Health: 70, Name: "b"}
	objs := table{a, b}

	c := NewClient(m, DefaultLedgerSize, nil)
	f10 := c.Frame(m.TakeSnapshot(10, objs))
	assert.Len(t, f10.Generate, 2)
	assert.False(t, f10.Delta)
	require.True(t, c.Acknowledge(10))

	m.TakeSnapshot(11, objs)
	a.Health = 80
	f12 := c.Frame(m.TakeSnapshot(12, objs))
	assert.Empty(t, f12.Generate)
	assert.Nil(t, f12.Delete)
	require.True(t, f12.Delta)
	assert.Equal(t, int32(10), f12.Baseline)

	r := schema.NewReader(f12.Snapshot)
	assert.Equal(t, uint32(12), r.Uint32())
	assert.True(t, r.Bool())
	assert.Equal(t, uint16(1), r.Uint16(), "unaffected object omitted")
	assert.Equal(t, uint32(1), r.Uint32())
	assert.Equal(t, uint16(1), r.Uint16(), "exactly one changed field")
	assert.Equal(t, uint16(field("health")), r.Uint16())
	assert.Equal(t, uint16(80), r.Uint16())
	assert.Equal(t, 0, r.Remaining())
	require.NoError(t, r.Err())
}

func TestZeroChangeOmission(t *testing.T) {
	m := NewManager()
	objs := table{{id: 1, Health: 5}, {id: 2, Health: 6}}
	m.TakeSnapshot(1, objs)
	s2 := m.TakeSnapshot(2, objs)

	data := m.FormatDelta(1, s2, nil)
	r := schema.NewReader(data)
	r.Uint32()
	r.Bool()
	assert.Equal(t, uint16(0), r.Uint16())
	assert.Equal(t, 0, r.Remaining())
}

func TestDeltaCorrectness(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	m := NewManager()
	objs := make(table, 8)
	for i := range objs {
		objs[i] = &unit{id: uint32(100 + i), Health: int32(i), Name: "u"}
	}

	c := NewClient(m, DefaultLedgerSize, nil)
	d := NewDecoder(registry)

	apply := func(f Frame) {
		for _, g := range f.Generate {
			require.NoError(t, d.ApplyGenerate(g))
		}
		if nil != f.Delete {
			require.NoError(t, d.ApplyDelete(f.Delete))
		}
		ok, err := d.ApplySnapshot(f.Snapshot)
		require.NoError(t, err)
		require.True(t, ok)
	}

	apply(c.Frame(m.TakeSnapshot(1, objs)))
	require.True(t, c.Acknowledge(d.Ack()))

	for tick := int32(2); tick < 40; tick++ {
		for _, u := range objs {
			switch rnd.Intn(5) {
			case 0:
				u.Health = int32(rnd.Intn(200))
			case 1:
				u.X = float32(rnd.Intn(10000)) / 100
			case 2:
				u.Armor = uint8(rnd.Intn(255))
			}
		}
		f := c.Frame(m.TakeSnapshot(tick, objs))
		require.True(t, f.Delta)
		// ack only every fourth tick so deltas span several snapshots
		apply(f)
		if tick%4 == 0 {
			require.True(t, c.Acknowledge(d.Ack()))
		}

		for _, u := range objs {
			mirror, ok := d.Object(u.id)
			require.True(t, ok)
			got := mirror.Object.(*unit)
			assert.Equal(t, u.Health, got.Health, "tick %d id %d", tick, u.id)
			assert.Equal(t, u.Armor, got.Armor)
			assert.InDelta(t, u.X, got.X, 0.005)
			assert.Equal(t, u.Name, got.Name)
		}
	}
}

func TestInterestAndDelete(t *testing.T) {
	m := NewManager()
	a := &unit{id: 1, zone: 1}
	b := &unit{id: 2, zone: 2}
	objs := table{a, b}

	c := NewClient(m, 0, Zones{1: {}})
	d := NewDecoder(registry)

	f := c.Frame(m.TakeSnapshot(1, objs))
	require.Len(t, f.Generate, 1)
	require.NoError(t, d.ApplyGenerate(f.Generate[0]))
	_, err := d.ApplySnapshot(f.Snapshot)
	require.NoError(t, err)
	assert.True(t, c.Knows(1))
	assert.False(t, c.Knows(2))

	a.zone = 2
	f = c.Frame(m.TakeSnapshot(2, objs))
	require.NotNil(t, f.Delete)
	require.NoError(t, d.ApplyDelete(f.Delete))
	_, ok := d.Object(1)
	assert.False(t, ok)
	assert.False(t, c.Knows(1))

	c.SetInterest(InterestFunc(func(zone uint32) bool { return true }))
	f = c.Frame(m.TakeSnapshot(3, objs))
	assert.Len(t, f.Generate, 2)
}

func TestPackFailureKeepsObject(t *testing.T) {
	m := NewManager()
	u := &unit{id: 1, Health: 10, Name: "a"}
	objs := table{u}
	c := NewClient(m, 0, nil)
	d := NewDecoder(registry)

	f := c.Frame(m.TakeSnapshot(1, objs))
	require.Len(t, f.Generate, 1)
	require.NoError(t, d.ApplyGenerate(f.Generate[0]))
	_, err := d.ApplySnapshot(f.Snapshot)
	require.NoError(t, err)
	require.True(t, c.Acknowledge(d.Ack()))

	// name longer than its field allows
	u.Name = string(make([]byte, 100))
	u.Health = 20
	snap := m.TakeSnapshot(2, objs)
	e, ok := snap.Find(1)
	require.True(t, ok)
	last, _ := m.LastSent(1)
	assert.Same(t, last, e.Packed, "previous record stays in the snapshot")

	f = c.Frame(snap)
	assert.Nil(t, f.Delete)
	assert.Empty(t, f.Generate)
	_, err = d.ApplySnapshot(f.Snapshot)
	require.NoError(t, err)
	require.True(t, c.Acknowledge(d.Ack()))
	mirror, ok := d.Object(1)
	require.True(t, ok)
	assert.Equal(t, int32(10), mirror.Object.(*unit).Health)

	u.Name = "b"
	f = c.Frame(m.TakeSnapshot(3, objs))
	assert.Nil(t, f.Delete)
	assert.Empty(t, f.Generate)
	_, err = d.ApplySnapshot(f.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, int32(20), mirror.Object.(*unit).Health)
	assert.Equal(t, "b", mirror.Object.(*unit).Name)

	// never packed: left out
	fresh := NewManager()
	snap = fresh.TakeSnapshot(1, table{{id: 2, Name: string(make([]byte, 100))}})
	assert.Empty(t, snap.Valid)
}

func TestResync(t *testing.T) {
	m := NewManager()
	objs := table{{id: 1, Health: 10}}
	c := NewClient(m, 0, nil)
	d := NewDecoder(registry)

	f := c.Frame(m.TakeSnapshot(1, objs))
	require.NoError(t, d.ApplyGenerate(f.Generate[0]))
	_, err := d.ApplySnapshot(f.Snapshot)
	require.NoError(t, err)
	require.True(t, c.Acknowledge(d.Ack()))

	objs[0].Health = 11
	f = c.Frame(m.TakeSnapshot(2, objs))
	require.True(t, f.Delta)

	// lose the tail of the datagram
	ok, err := d.ApplySnapshot(f.Snapshot[:len(f.Snapshot)-1])
	assert.False(t, ok)
	assert.True(t, errors.Is(err, schema.ErrTruncated))
	assert.True(t, d.NeedsResync())
	assert.Equal(t, TickNoComparison, d.Ack())

	mirror, _ := d.Object(1)
	assert.Equal(t, int32(10), mirror.Object.(*unit).Health, "failed datagram applied nothing")

	assert.True(t, c.Acknowledge(d.Ack()))
	f = c.Frame(m.TakeSnapshot(3, objs))
	assert.False(t, f.Delta)
	require.Len(t, f.Generate, 1)
	require.NoError(t, d.ApplyGenerate(f.Generate[0]))
	ok, err = d.ApplySnapshot(f.Snapshot)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, d.NeedsResync())
	assert.Equal(t, int32(11), mirror.Object.(*unit).Health)
}

func TestDecoderErrors(t *testing.T) {
	d := NewDecoder(registry)

	err := d.ApplyGenerate([]byte{0, 9, 0, 0, 0, 1, 0, 0, 0, 0, 0})
	assert.True(t, errors.Is(err, ErrUnknownClass))

	d = NewDecoder(registry)
	snap := schema.NewWriter(nil)
	snap.PutUint32(1)
	snap.PutBool(false)
	snap.PutUint16(1)
	snap.PutUint32(42)
	snap.PutUint16(0)
	_, err = d.ApplySnapshot(snap.Bytes())
	assert.True(t, errors.Is(err, ErrUnknownObject))

	d = NewDecoder(registry)
	assert.Error(t, d.ApplyDelete([]byte{0, 0, 1}))
	assert.True(t, d.NeedsResync())
}

func TestLedger(t *testing.T) {
	l := NewLedger(4)
	for tick := int32(1); tick <= 6; tick++ {
		l.Add(NewFrameSnapshot(tick*2, 0))
	}
	assert.Equal(t, 4, l.Len())

	_, ok := l.Lookup(2, true)
	assert.False(t, ok, "evicted")
	s, ok := l.Lookup(8, true)
	require.True(t, ok)
	assert.Equal(t, int32(8), s.Tick)

	_, ok = l.Lookup(9, true)
	assert.False(t, ok)
	s, ok = l.Lookup(9, false)
	require.True(t, ok)
	assert.Equal(t, int32(8), s.Tick)

	_, ok = l.Lookup(5, false)
	assert.False(t, ok, "older than everything held")

	l.Reset()
	assert.Equal(t, 0, l.Len())
}

func TestAcknowledge(t *testing.T) {
	m := NewManager()
	c := NewClient(m, 0, nil)
	objs := table{{id: 1}}
	c.Frame(m.TakeSnapshot(5, objs))

	assert.False(t, c.Acknowledge(4), "never sent")
	assert.True(t, c.Acknowledge(5))
	assert.False(t, c.Acknowledge(5), "not newer")
	assert.Equal(t, int32(5), c.Ack())
	assert.True(t, c.Acknowledge(TickNoComparison))
	assert.Equal(t, TickNoComparison, c.Ack())
	assert.False(t, c.Knows(1))
}

func BenchmarkFormatDelta(b *testing.B) {
	m := NewManager()
	objs := make(table, 256)
	for i := range objs {
		objs[i] = &unit{id: uint32(i), Health: int32(i)}
	}
	m.TakeSnapshot(1, objs)
	for i := 0; i < len(objs); i += 3 {
		objs[i].Health++
	}
	s := m.TakeSnapshot(2, objs)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.FormatDelta(1, s, nil)
	}
}
