package snapshot

import (
	"sort"

	l4g "github.com/alecthomas/log4go"
	"github.com/byebyebruce/snapsync/pkg/metrics"
	"github.com/byebyebruce/snapsync/pkg/schema"
)

// FullObjectMarker replaces the changed field count of an object sent whole
const FullObjectMarker = 0xFFFF

// Manager packs objects into frame snapshots and formats them for clients.
// Owns the last sent record of every object. Not safe for concurrent use.
type Manager struct {
	lastSent map[uint32]*PackedState
	scratch  []int
}

// NewManager 构造
func NewManager() *Manager {
	return &Manager{
		lastSent: make(map[uint32]*PackedState),
	}
}

// GetOrCreateBaseline most recently sent record of obj, or a freshly packed
// record without comparison tick.
func (m *Manager) GetOrCreateBaseline(obj Object) (*PackedState, error) {
	if p, ok := m.lastSent[obj.NetworkID()]; ok {
		return p, nil
	}
	p, err := Pack(obj, TickNoComparison)
	if nil != err {
		return nil, err
	}
	m.lastSent[p.ObjectID] = p
	return p, nil
}

// LastSent record of objectID
func (m *Manager) LastSent(objectID uint32) (*PackedState, bool) {
	p, ok := m.lastSent[objectID]
	return p, ok
}

// Forget drops the record of a destroyed object
func (m *Manager) Forget(objectID uint32) {
	delete(m.lastSent, objectID)
}

// PackIntoSnapshot packs obj into slot of snap. Returns the number of fields
// changed since the previous record or AllChanged.
func (m *Manager) PackIntoSnapshot(snap *FrameSnapshot, slot int, obj Object, zone uint32) (int, error) {
	packed, err := Pack(obj, snap.Tick)
	if nil != err {
		return 0, err
	}

	prev := m.lastSent[packed.ObjectID]
	var changed int
	m.scratch, changed = packed.Diff(prev, m.scratch[:0])

	switch {
	case changed == 0:
		packed = prev
		metrics.PackedRecords.WithLabelValues("reused").Inc()
	case changed == AllChanged || prev.history == nil:
		if nil != prev {
			prev.history = nil
		}
		changed = AllChanged
		m.lastSent[packed.ObjectID] = packed
		metrics.PackedRecords.WithLabelValues("full").Inc()
	default:
		packed.steal(prev)
		packed.history.SetChangeTick(m.scratch, snap.Tick)
		m.lastSent[packed.ObjectID] = packed
		metrics.PackedRecords.WithLabelValues("created").Inc()
	}

	snap.set(slot, packed, zone)
	return changed, nil
}

// TakeSnapshot packs every live object of table in slot order. An object
// that fails to pack keeps its baseline so clients still see its previous
// state; it is left out only when it was never packed.
func (m *Manager) TakeSnapshot(tick int32, table ObjectTable) *FrameSnapshot {
	snap := NewFrameSnapshot(tick, table.Slots())
	for i := 0; i < table.Slots(); i++ {
		obj, zone, ok := table.Slot(i)
		if !ok {
			continue
		}
		if _, err := m.PackIntoSnapshot(snap, i, obj, zone); nil != err {
			l4g.Error("[snapshot] tick=%d slot=%d %v", tick, i, err)
			if base, err := m.GetOrCreateBaseline(obj); nil == err {
				snap.set(i, base, zone)
			}
		}
	}
	return snap
}

// FormatFull every visible object with all its fields
func (m *Manager) FormatFull(snap *FrameSnapshot, interest Interest) []byte {
	w := schema.NewWriter(make([]byte, 0, 256))
	w.PutUint32(uint32(snap.Tick))
	w.PutBool(false)
	countAt := w.Len()
	w.PutUint16(0)

	n := 0
	for _, i := range snap.Valid {
		e := &snap.Entries[i]
		if !visible(interest, e.Zone) {
			continue
		}
		w.PutUint32(e.ObjectID)
		e.Packed.appendFull(w)
		n++
	}
	w.SetUint16(countAt, uint16(n))

	metrics.SnapshotDatagrams.WithLabelValues("full").Inc()
	metrics.SnapshotBytes.WithLabelValues("full").Observe(float64(w.Len()))
	return w.Bytes()
}

// FormatDelta visible objects changed after baselineTick, each with only its
// changed fields, or whole when its history cannot tell.
func (m *Manager) FormatDelta(baselineTick int32, snap *FrameSnapshot, interest Interest) []byte {
	w := schema.NewWriter(make([]byte, 0, 128))
	w.PutUint32(uint32(snap.Tick))
	w.PutBool(true)
	countAt := w.Len()
	w.PutUint16(0)

	n := 0
	for _, i := range snap.Valid {
		e := &snap.Entries[i]
		if !visible(interest, e.Zone) {
			continue
		}
		var changed int
		m.scratch, changed = e.Packed.History().ChangedSince(baselineTick, m.scratch[:0])
		switch changed {
		case 0:
			continue
		case AllChanged:
			w.PutUint32(e.ObjectID)
			w.PutUint16(FullObjectMarker)
			e.Packed.appendFull(w)
		default:
			w.PutUint32(e.ObjectID)
			e.Packed.appendFields(w, m.scratch)
		}
		n++
	}
	w.SetUint16(countAt, uint16(n))

	metrics.SnapshotDatagrams.WithLabelValues("delta").Inc()
	metrics.SnapshotBytes.WithLabelValues("delta").Observe(float64(w.Len()))
	return w.Bytes()
}

// FormatGenerate class_id:uint16, object_id:uint32, zone_id:uint32,
// has_initial_state:bool, [full object]
func (m *Manager) FormatGenerate(e *Entry, withState bool) []byte {
	w := schema.NewWriter(make([]byte, 0, 16+len(e.Packed.Data)+4*len(e.Packed.Fields)))
	w.PutUint16(e.Class.ID())
	w.PutUint32(e.ObjectID)
	w.PutUint32(e.Zone)
	w.PutBool(withState)
	if withState {
		e.Packed.appendFull(w)
	}
	metrics.SnapshotDatagrams.WithLabelValues("generate").Inc()
	return w.Bytes()
}

// FormatDelete repeated object_id:uint32, ids sorted
func (m *Manager) FormatDelete(ids []uint32) []byte {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	w := schema.NewWriter(make([]byte, 0, 4*len(ids)))
	for _, id := range ids {
		w.PutUint32(id)
	}
	metrics.SnapshotDatagrams.WithLabelValues("delete").Inc()
	return w.Bytes()
}
