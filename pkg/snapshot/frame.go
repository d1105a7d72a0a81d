package snapshot

import (
	"github.com/byebyebruce/snapsync/pkg/schema"
)

// Entry one object table slot inside a snapshot
type Entry struct {
	Exists   bool
	Zone     uint32
	ObjectID uint32
	Class    *schema.Class
	Packed   *PackedState
}

// FrameSnapshot packed state of every live object at one tick
type FrameSnapshot struct {
	Tick    int32
	Entries []Entry
	Valid   []int
}

// NewFrameSnapshot 构造
func NewFrameSnapshot(tick int32, slots int) *FrameSnapshot {
	return &FrameSnapshot{
		Tick:    tick,
		Entries: make([]Entry, slots),
	}
}

func (s *FrameSnapshot) set(slot int, packed *PackedState, zone uint32) {
	e := &s.Entries[slot]
	if !e.Exists {
		s.Valid = append(s.Valid, slot)
	}
	*e = Entry{
		Exists:   true,
		Zone:     zone,
		ObjectID: packed.ObjectID,
		Class:    packed.Class,
		Packed:   packed,
	}
}

// Find entry of objectID
func (s *FrameSnapshot) Find(objectID uint32) (*Entry, bool) {
	for _, i := range s.Valid {
		if s.Entries[i].ObjectID == objectID {
			return &s.Entries[i], true
		}
	}
	return nil, false
}

// ObjectTable live networked objects indexed by slot
type ObjectTable interface {
	Slots() int
	Slot(i int) (obj Object, zone uint32, ok bool)
}

// Interest decides which zones a client sees
type Interest interface {
	Contains(zone uint32) bool
}

// InterestFunc adapter
type InterestFunc func(zone uint32) bool

func (f InterestFunc) Contains(zone uint32) bool { return f(zone) }

// Zones interest set of explicit zones
type Zones map[uint32]struct{}

func (z Zones) Contains(zone uint32) bool {
	_, ok := z[zone]
	return ok
}

func visible(interest Interest, zone uint32) bool {
	return interest == nil || interest.Contains(zone)
}
