package snapshot

// Frame datagrams produced for one client from one snapshot. Generate and
// Delete go out reliably before Snapshot.
type Frame struct {
	Generate [][]byte
	Delete   []byte // nil when nothing left the interest
	Snapshot []byte
	Delta    bool
	Baseline int32
}

// Client server side view of one connected client: what it was sent, what it
// acknowledged and which objects it knows.
type Client struct {
	mgr      *Manager
	ledger   *Ledger
	interest Interest
	ack      int32
	known    map[uint32]struct{}
	visible  map[uint32]struct{}
}

// NewClient 构造. interest nil sees every zone.
func NewClient(mgr *Manager, ledgerSize int, interest Interest) *Client {
	return &Client{
		mgr:      mgr,
		ledger:   NewLedger(ledgerSize),
		interest: interest,
		ack:      TickNoComparison,
		known:    make(map[uint32]struct{}),
		visible:  make(map[uint32]struct{}),
	}
}

// SetInterest replaces the zone filter, effective next Frame
func (c *Client) SetInterest(interest Interest) {
	c.interest = interest
}

// Ack last acknowledged tick, TickNoComparison when none
func (c *Client) Ack() int32 {
	return c.ack
}

// Knows reports whether the client was told about objectID
func (c *Client) Knows(objectID uint32) bool {
	_, ok := c.known[objectID]
	return ok
}

// Acknowledge applies a tick acknowledgment. TickNoComparison forces a full
// resync: every object is generated again and the next snapshot is full.
// Returns false when the tick was ignored.
func (c *Client) Acknowledge(tick int32) bool {
	if tick < 0 {
		c.ack = TickNoComparison
		for id := range c.known {
			delete(c.known, id)
		}
		return true
	}
	if tick <= c.ack {
		return false
	}
	if _, ok := c.ledger.Lookup(tick, true); !ok {
		return false
	}
	c.ack = tick
	return true
}

// Frame records snap in the ledger and builds the datagrams for it.
func (c *Client) Frame(snap *FrameSnapshot) Frame {
	c.ledger.Add(snap)

	var f Frame
	for id := range c.visible {
		delete(c.visible, id)
	}
	for _, i := range snap.Valid {
		e := &snap.Entries[i]
		if !visible(c.interest, e.Zone) {
			continue
		}
		c.visible[e.ObjectID] = struct{}{}
		if _, ok := c.known[e.ObjectID]; !ok {
			f.Generate = append(f.Generate, c.mgr.FormatGenerate(e, true))
			c.known[e.ObjectID] = struct{}{}
		}
	}

	var gone []uint32
	for id := range c.known {
		if _, ok := c.visible[id]; !ok {
			gone = append(gone, id)
			delete(c.known, id)
		}
	}
	if len(gone) > 0 {
		f.Delete = c.mgr.FormatDelete(gone)
	}

	f.Baseline = TickNoComparison
	if c.ack != TickNoComparison {
		if _, ok := c.ledger.Lookup(c.ack, true); ok {
			f.Delta = true
			f.Baseline = c.ack
		}
	}
	if f.Delta {
		f.Snapshot = c.mgr.FormatDelta(f.Baseline, snap, c.interest)
	} else {
		f.Snapshot = c.mgr.FormatFull(snap, c.interest)
	}
	return f
}
