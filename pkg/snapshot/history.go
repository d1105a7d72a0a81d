package snapshot

// TickNoComparison creation tick of baseline records; nothing can be
// delta-compared against it.
const TickNoComparison int32 = -1

// AllChanged returned instead of a field count when every field has to be sent.
const AllChanged = -1

// ChangeHistory last changed tick per field index
type ChangeHistory struct {
	created int32
	ticks   []int32
}

// NewChangeHistory every field starts changed at tick
func NewChangeHistory(fields int, tick int32) *ChangeHistory {
	h := &ChangeHistory{
		created: tick,
		ticks:   make([]int32, fields),
	}
	for i := range h.ticks {
		h.ticks[i] = tick
	}
	return h
}

// Len number of tracked fields
func (h *ChangeHistory) Len() int {
	return len(h.ticks)
}

// Created tick the history was started at
func (h *ChangeHistory) Created() int32 {
	return h.created
}

// Tick last change of field i
func (h *ChangeHistory) Tick(i int) int32 {
	return h.ticks[i]
}

// SetChangeTick stamps fields with tick
func (h *ChangeHistory) SetChangeTick(fields []int, tick int32) {
	for _, i := range fields {
		h.ticks[i] = tick
	}
}

// ChangedSince appends to dst the fields changed after baseline.
// The count is AllChanged when h is nil (the history moved to a newer record)
// or when the baseline predates the history.
func (h *ChangeHistory) ChangedSince(baseline int32, dst []int) ([]int, int) {
	if h == nil || baseline == TickNoComparison || baseline < h.created {
		return dst, AllChanged
	}
	n := 0
	for i, t := range h.ticks {
		if t > baseline {
			dst = append(dst, i)
			n++
		}
	}
	return dst, n
}
