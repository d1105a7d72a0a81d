// Package world authoritative server simulation: the object table, the
// sessions and the snapshots sent to them.
package world

import (
	"time"

	l4g "github.com/alecthomas/log4go"
	"github.com/byebyebruce/snapsync/logic/entity"
	"github.com/byebyebruce/snapsync/pb"
	"github.com/byebyebruce/snapsync/pkg/metrics"
	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/byebyebruce/snapsync/pkg/packet/pb_packet"
	"github.com/byebyebruce/snapsync/pkg/prediction"
	"github.com/byebyebruce/snapsync/pkg/schema"
	"github.com/byebyebruce/snapsync/pkg/simclock"
	"github.com/byebyebruce/snapsync/pkg/snapshot"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	ErrNoSession      = errors.New("world: no such session")
	ErrNoObject       = errors.New("world: no such object")
	ErrUnknownName    = errors.New("world: unknown message name")
	ErrNotDeliverable = errors.New("world: message cannot be delivered")
)

// Config world tuning
type Config struct {
	TickRate           int
	SnapshotInterval   int     // ticks between snapshots
	LedgerSize         int     // snapshots kept per client for delta baselines
	MaxPendingCommands int     // queued commands per session
	MaxCatchupTicks    int     // ticks one Advance may run
	BadNetworkTicks    int32   // no snapshots to a session silent this long
	ZoneSize           float32 // 0 puts every object in one zone
	ViewZones          int32   // zones a player sees around its own
	PickupRadius       float32

	// rates per second per session, 0 is unlimited
	ResyncRate   float64 // full resyncs
	ResyncBurst  int
	CommandRate  float64 // command packets
	CommandBurst int
}

func newLimiter(r float64, burst int) *rate.Limiter {
	if r <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r), burst)
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		TickRate:           simclock.DefaultTickRate,
		SnapshotInterval:   1,
		LedgerSize:         snapshot.DefaultLedgerSize,
		MaxPendingCommands: 2 * prediction.DefaultSlots,
		MaxCatchupTicks:    5,
		BadNetworkTicks:    2 * simclock.DefaultTickRate,
		ViewZones:          1,
		PickupRadius:       32,
		ResyncRate:         1,
		ResyncBurst:        2,
		CommandRate:        4 * simclock.DefaultTickRate,
		CommandBurst:       2 * simclock.DefaultTickRate,
	}
}

// World single goroutine simulation; the room loop owns it
type World struct {
	cfg      Config
	registry *schema.Registry
	mgr      *snapshot.Manager
	clock    *simclock.Clock

	slots  []entity.Entity
	index  map[uint32]int
	nextID uint32

	sessions map[uint64]*Session
}

// New 构造
func New(cfg Config, registry *schema.Registry) *World {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 1
	}
	if cfg.MaxPendingCommands <= 0 {
		cfg.MaxPendingCommands = 2 * prediction.DefaultSlots
	}
	return &World{
		cfg:      cfg,
		registry: registry,
		mgr:      snapshot.NewManager(),
		clock:    simclock.New(simclock.Config{TickRate: cfg.TickRate, MaxCatchupTicks: cfg.MaxCatchupTicks}),
		index:    make(map[uint32]int),
		nextID:   1,
		sessions: make(map[uint64]*Session),
	}
}

// Config in use
func (w *World) Config() Config {
	return w.cfg
}

// Registry classes replicated by the world
func (w *World) Registry() *schema.Registry {
	return w.registry
}

// Clock simulation clock
func (w *World) Clock() *simclock.Clock {
	return w.clock
}

// Tick next tick to simulate
func (w *World) Tick() int32 {
	return w.clock.Tick()
}

// Slots snapshot.ObjectTable
func (w *World) Slots() int {
	return len(w.slots)
}

// Slot snapshot.ObjectTable
func (w *World) Slot(i int) (snapshot.Object, uint32, bool) {
	e := w.slots[i]
	if nil == e {
		return nil, 0, false
	}
	return e, e.Base().Zone, true
}

// Objects live objects
func (w *World) Objects() int {
	return len(w.index)
}

// Object by network id
func (w *World) Object(id uint32) (entity.Entity, bool) {
	i, ok := w.index[id]
	if !ok {
		return nil, false
	}
	return w.slots[i], true
}

// Spawn places e in the first free slot and gives it an id
func (w *World) Spawn(e entity.Entity) uint32 {
	id := w.nextID
	w.nextID++

	b := e.Base()
	b.SetNetworkID(id)
	b.Zone = entity.ZoneOf(b.Origin.X(), w.cfg.ZoneSize)

	slot := -1
	for i, v := range w.slots {
		if nil == v {
			slot = i
			break
		}
	}
	if slot < 0 {
		slot = len(w.slots)
		w.slots = append(w.slots, nil)
	}
	w.slots[slot] = e
	w.index[id] = slot
	l4g.Debug("[world] spawn %s id=%d slot=%d", e.NetworkClass().Name, id, slot)
	return id
}

// Destroy removes an object; clients that know it get a delete with the
// next snapshot.
func (w *World) Destroy(id uint32) bool {
	i, ok := w.index[id]
	if !ok {
		return false
	}
	w.slots[i] = nil
	delete(w.index, id)
	w.mgr.Forget(id)
	l4g.Debug("[world] destroy id=%d", id)
	return true
}

// Session by player id
func (w *World) Session(id uint64) (*Session, bool) {
	s, ok := w.sessions[id]
	return s, ok
}

// Sessions joined players
func (w *World) Sessions() int {
	return len(w.sessions)
}

// Online sessions with a live connection
func (w *World) Online() int {
	n := 0
	for _, s := range w.sessions {
		if s.IsOnline() {
			n++
		}
	}
	return n
}

func (w *World) interest(s *Session) snapshot.Interest {
	if w.cfg.ZoneSize <= 0 {
		return nil
	}
	return snapshot.InterestFunc(func(zone uint32) bool {
		return entity.ZoneDistance(zone, s.player.Zone) <= w.cfg.ViewZones
	})
}

// Join connects a player. A known player keeps its object; its client state
// starts over as if it never received anything.
func (w *World) Join(id uint64, name string, sender network.Sender) *Session {
	s, ok := w.sessions[id]
	if ok {
		if s.IsOnline() {
			l4g.Warn("[world] player[%d] replace", id)
		}
	} else {
		s = &Session{
			id:       id,
			player:   entity.NewPlayer(name),
			queue:    newCommandQueue(w.cfg.MaxPendingCommands),
			resync:   newLimiter(w.cfg.ResyncRate, w.cfg.ResyncBurst),
			commands: newLimiter(w.cfg.CommandRate, w.cfg.CommandBurst),
		}
		w.Spawn(s.player)
		w.sessions[id] = s
	}
	s.client = snapshot.NewClient(w.mgr, w.cfg.LedgerSize, w.interest(s))
	s.queue.reset()
	s.connect(sender, w.clock.Tick())
	l4g.Info("[world] player[%d] join object=%d tick=%d", id, s.player.NetworkID(), w.clock.Tick())
	return s
}

// ConnectAck join reply of s
func (w *World) ConnectAck(s *Session) *pb.S2C_ConnectMsg {
	return &pb.S2C_ConnectMsg{
		ErrorCode:   pb.ERRORCODE_ERR_Ok,
		ObjectID:    s.player.NetworkID(),
		TickRate:    int32(time.Second / w.clock.Interval()),
		Tick:        w.clock.Tick(),
		Fingerprint: w.registry.Fingerprint(),
	}
}

// Leave drops the connection of a player, its object stays
func (w *World) Leave(id uint64) bool {
	s, ok := w.sessions[id]
	if !ok {
		return false
	}
	s.Cleanup()
	l4g.Info("[world] player[%d] leave", id)
	return true
}

// Remove drops the player and destroys its object
func (w *World) Remove(id uint64) bool {
	s, ok := w.sessions[id]
	if !ok {
		return false
	}
	s.Cleanup()
	w.Destroy(s.player.NetworkID())
	delete(w.sessions, id)
	return true
}

// HandlePacket one packet of a player
func (w *World) HandlePacket(id uint64, p *pb_packet.Packet) {
	s, ok := w.sessions[id]
	if !ok {
		l4g.Error("[world] packet of unknown player[%d] msg=[%d]", id, p.GetMessageID())
		return
	}
	s.lastSeen = w.clock.Tick()

	switch msgID := pb.ID(p.GetMessageID()); msgID {
	case pb.ID_MSG_Command:
		m := &pb.C2S_CommandMsg{}
		if err := p.Unmarshal(m); nil != err {
			l4g.Error("[world] player[%d] msg=[%s] unmarshal error:[%s]", id, msgID, err.Error())
			return
		}
		cmds := make([]prediction.Command, 0, len(m.Commands))
		for _, c := range m.Commands {
			cmds = append(cmds, FromWire(c))
		}
		w.HandleCommands(s, cmds)

	case pb.ID_MSG_TickAck:
		m := &wrapperspb.Int32Value{}
		if err := p.Unmarshal(m); nil != err {
			l4g.Error("[world] player[%d] msg=[%s] unmarshal error:[%s]", id, msgID, err.Error())
			return
		}
		w.HandleAck(s, m.GetValue())

	case pb.ID_MSG_ObjectMessage:
		if err := w.HandleObjectMessage(s, p.GetData()); nil != err {
			l4g.Warn("[world] player[%d] object message: %v", id, err)
		}

	case pb.ID_MSG_Heartbeat:
		s.SendMessage(pb_packet.NewPacket(uint8(pb.ID_MSG_Heartbeat), nil), true)

	default:
		l4g.Warn("[world] player[%d] unknown message id[%s]", id, msgID)
	}
}

// HandleCommands queues the commands of one packet. Backups already run are
// dropped by the queue.
func (w *World) HandleCommands(s *Session, cmds []prediction.Command) {
	if !s.commands.Allow() {
		metrics.CommandsDropped.WithLabelValues("rate_limit").Add(float64(len(cmds)))
		return
	}
	for _, c := range cmds {
		s.queue.push(c)
	}
}

// HandleAck a tick acknowledgment; a negative tick asks for a full resync,
// granted at the configured rate.
func (w *World) HandleAck(s *Session, tick int32) {
	if tick >= 0 {
		s.client.Acknowledge(tick)
		return
	}
	if !s.resync.Allow() {
		metrics.Resyncs.WithLabelValues("limited").Inc()
		return
	}
	metrics.Resyncs.WithLabelValues("accepted").Inc()
	l4g.Info("[world] player[%d] full resync tick=%d", s.id, w.clock.Tick())
	s.client.Acknowledge(snapshot.TickNoComparison)
}

// HandleObjectMessage dispatches a message a client sent to an object
func (w *World) HandleObjectMessage(s *Session, data []byte) error {
	objectID, msgID, payload, err := schema.ParseMessage(data)
	if nil != err {
		return err
	}
	e, ok := w.Object(objectID)
	if !ok {
		return errors.Wrapf(ErrNoObject, "id=%d", objectID)
	}
	from := schema.Sender{ID: s.id, Owner: e == entity.Entity(s.player)}
	return e.NetworkClass().Dispatch(msgID, e, from, payload)
}

// SendObjectMessage sends a named message of object objectID to a player
func (w *World) SendObjectMessage(id uint64, objectID uint32, name string, payload []byte) error {
	s, ok := w.sessions[id]
	if !ok {
		return errors.Wrapf(ErrNoSession, "player=%d", id)
	}
	e, ok := w.Object(objectID)
	if !ok {
		return errors.Wrapf(ErrNoObject, "id=%d", objectID)
	}
	c := e.NetworkClass()
	msgID, ok := c.MessageID(name)
	if !ok {
		return errors.Wrapf(ErrUnknownName, "class %s message %s", c.Name, name)
	}
	if c.Messages()[msgID].Flags&schema.MessageToClient == 0 {
		return errors.Wrapf(ErrNotDeliverable, "class %s message %s", c.Name, name)
	}
	data := schema.AppendMessage(nil, objectID, msgID, payload)
	s.SendMessage(pb_packet.NewPacket(uint8(pb.ID_MSG_ObjectMessage), data), true)
	return nil
}

// Advance runs the ticks dt of real time covers
func (w *World) Advance(dt time.Duration) int {
	return w.clock.Advance(dt, w.step)
}

// Step runs exactly one tick
func (w *World) Step() {
	w.Advance(w.clock.Interval() - w.clock.Pending())
}

func (w *World) step(now simclock.State) {
	begin := time.Now()

	for _, s := range w.sessions {
		s.queue.pop(func(cmd *prediction.Command) {
			s.player.Simulate(cmd, now)
		})
	}

	for _, e := range w.slots {
		if nil == e {
			continue
		}
		b := e.Base()
		b.Zone = entity.ZoneOf(b.Origin.X(), w.cfg.ZoneSize)
	}

	w.collectPickups()

	if now.Tick%int32(w.cfg.SnapshotInterval) == 0 {
		w.sendSnapshots(now.Tick)
	}

	metrics.TickDuration.Observe(time.Since(begin).Seconds())
}

func (w *World) collectPickups() {
	if w.cfg.PickupRadius <= 0 {
		return
	}
	for _, e := range w.slots {
		pk, ok := e.(*entity.Pickup)
		if !ok {
			continue
		}
		for _, s := range w.sessions {
			p := s.player
			if p.Origin.Sub(pk.Origin).Len() > w.cfg.PickupRadius {
				continue
			}
			var notice string
			switch pk.Kind {
			case entity.PickupHealth:
				p.Health += pk.Amount
				if p.Health > entity.MaxHealth {
					p.Health = entity.MaxHealth
				}
				notice = "health"
			case entity.PickupArmor:
				armor := int32(p.Armor) + pk.Amount
				if armor > 255 {
					armor = 255
				}
				p.Armor = uint8(armor)
				notice = "armor"
			}
			w.Destroy(pk.NetworkID())
			if err := w.SendObjectMessage(s.id, p.NetworkID(), "notice", []byte(notice)); nil != err {
				l4g.Warn("[world] notice player[%d]: %v", s.id, err)
			}
			break
		}
	}
}

func (w *World) sendSnapshots(tick int32) {
	snap := w.mgr.TakeSnapshot(tick, w)
	for _, s := range w.sessions {
		if !s.IsOnline() {
			continue
		}
		if w.cfg.BadNetworkTicks > 0 && tick-s.lastSeen > w.cfg.BadNetworkTicks {
			continue
		}
		f := s.client.Frame(snap)
		for _, g := range f.Generate {
			s.SendMessage(pb_packet.NewPacket(uint8(pb.ID_MSG_Generate), g).Compress(), true)
		}
		if nil != f.Delete {
			s.SendMessage(pb_packet.NewPacket(uint8(pb.ID_MSG_Delete), f.Delete), true)
		}
		msg := &pb.S2C_SnapshotMsg{
			CommandAck: s.queue.last,
			TickBase:   s.player.TickBase,
			Data:       f.Snapshot,
		}
		s.SendMessage(pb_packet.NewPacket(uint8(pb.ID_MSG_Snapshot), msg).Compress(), false)
	}
}

// Close tells every player the world is closing
func (w *World) Close() {
	for _, s := range w.sessions {
		s.SendMessage(pb_packet.NewPacket(uint8(pb.ID_MSG_Close), nil), true)
	}
}

// Cleanup drops every connection
func (w *World) Cleanup() {
	for _, s := range w.sessions {
		s.Cleanup()
	}
}
