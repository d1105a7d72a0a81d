package snapshot

// DefaultLedgerSize snapshots remembered per client
const DefaultLedgerSize = 128

type ledgerEntry struct {
	tick int32
	snap *FrameSnapshot
}

// Ledger ring of the snapshots sent to one client
type Ledger struct {
	entries []ledgerEntry
	head    int // next write
	count   int
}

// NewLedger 构造
func NewLedger(size int) *Ledger {
	if size <= 0 {
		size = DefaultLedgerSize
	}
	return &Ledger{entries: make([]ledgerEntry, size)}
}

// Add records snap, evicting the oldest entry when full
func (l *Ledger) Add(snap *FrameSnapshot) {
	l.entries[l.head] = ledgerEntry{tick: snap.Tick, snap: snap}
	l.head = (l.head + 1) % len(l.entries)
	if l.count < len(l.entries) {
		l.count++
	}
}

// Len entries held
func (l *Ledger) Len() int {
	return l.count
}

// Lookup snapshot of tick. When exact is false the newest snapshot older than
// tick is returned if tick itself is missing.
func (l *Ledger) Lookup(tick int32, exact bool) (*FrameSnapshot, bool) {
	var best *FrameSnapshot
	for i := 0; i < l.count; i++ {
		e := l.entries[(l.head-1-i+len(l.entries))%len(l.entries)]
		if e.tick == tick {
			return e.snap, true
		}
		if !exact && e.tick < tick && (best == nil || e.tick > best.Tick) {
			best = e.snap
		}
	}
	return best, best != nil
}

// Reset forgets everything
func (l *Ledger) Reset() {
	for i := range l.entries {
		l.entries[i] = ledgerEntry{}
	}
	l.head = 0
	l.count = 0
}
