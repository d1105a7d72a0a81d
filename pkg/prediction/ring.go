package prediction

// DefaultSlots history slots per predicted object
const DefaultSlots = 90

// Ring fixed number of history slots. Slot i lives at i mod Cap; slot i and
// slot i+Cap are the same storage.
type Ring struct {
	stride int
	slots  [][]byte
}

// NewRing 构造. Slots are allocated on first use.
func NewRing(slots, stride int) *Ring {
	if slots <= 0 {
		slots = DefaultSlots
	}
	return &Ring{stride: stride, slots: make([][]byte, slots)}
}

// Cap number of slots
func (r *Ring) Cap() int {
	return len(r.slots)
}

// Slot storage of slot i, zeroed when first touched
func (r *Ring) Slot(i int) []byte {
	i = r.index(i)
	if nil == r.slots[i] {
		r.slots[i] = make([]byte, r.stride)
	}
	return r.slots[i]
}

// Allocated reports whether slot i was ever touched
func (r *Ring) Allocated(i int) bool {
	return nil != r.slots[r.index(i)]
}

func (r *Ring) index(i int) int {
	i %= len(r.slots)
	if i < 0 {
		i += len(r.slots)
	}
	return i
}

// ShiftForward drops the first remove slots of the first count slots and
// moves the rest to the front. The dropped buffers are reused at the back.
func (r *Ring) ShiftForward(remove, count int) {
	if count > len(r.slots) {
		count = len(r.slots)
	}
	if remove <= 0 || remove > count {
		return
	}
	saved := make([][]byte, remove)
	copy(saved, r.slots[:remove])
	copy(r.slots, r.slots[remove:count])
	copy(r.slots[count-remove:count], saved)
}
