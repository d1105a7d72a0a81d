// Package client replicating and predicting peer of a world.
package client

import (
	"time"

	l4g "github.com/alecthomas/log4go"
	"github.com/byebyebruce/snapsync/logic/entity"
	"github.com/byebyebruce/snapsync/logic/world"
	"github.com/byebyebruce/snapsync/pb"
	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/byebyebruce/snapsync/pkg/packet/pb_packet"
	"github.com/byebyebruce/snapsync/pkg/prediction"
	"github.com/byebyebruce/snapsync/pkg/schema"
	"github.com/byebyebruce/snapsync/pkg/simclock"
	"github.com/byebyebruce/snapsync/pkg/snapshot"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	ErrRejected    = errors.New("client: connect rejected")
	ErrFingerprint = errors.New("client: schema fingerprint mismatch")
	ErrNotJoined   = errors.New("client: not joined")
	ErrNoObject    = errors.New("client: no such object")
)

// Input what the user does during one tick
type Input struct {
	Move    mgl32.Vec3 // forward, side, up in [-1, 1]
	Yaw     float32
	Buttons prediction.Buttons
}

// Client single goroutine; Frame and HandlePacket must not run concurrently
type Client struct {
	cfg      prediction.Config
	registry *schema.Registry
	sender   network.Sender

	decoder  *snapshot.Decoder
	clock    *simclock.Clock
	commands *prediction.CommandBuffer
	pred     *prediction.Coordinator

	objectID uint32
	local    *entity.Player
	pending  *entity.Player // generated, predicted once a snapshot says which command it is at
	joined   bool
	closed   bool

	lastAck    int32 // last command the server ran
	tickBase   int32
	received   bool // snapshot applied since the last prediction
	lastResult prediction.Result
}

// New 构造
func New(cfg prediction.Config, registry *schema.Registry, sender network.Sender) *Client {
	c := &Client{
		cfg:      cfg,
		registry: registry,
		sender:   sender,
		decoder:  snapshot.NewDecoder(registry),
		commands: prediction.NewCommandBuffer(cfg.Slots),
	}
	c.resetClock(simclock.DefaultTickRate, 0)
	c.decoder.OnGenerate = c.onGenerate
	c.decoder.OnDelete = c.onDelete
	return c
}

func (c *Client) resetClock(tickRate int, tick int32) {
	c.clock = simclock.New(simclock.Config{TickRate: tickRate})
	c.clock.SetTick(tick)
	c.pred = prediction.NewCoordinator(c.cfg, c.clock, c.commands)
	if nil != c.local {
		c.pred.Add(c.local)
	}
}

// Joined connect was accepted
func (c *Client) Joined() bool {
	return c.joined
}

// Closed the server closed the room
func (c *Client) Closed() bool {
	return c.closed
}

// Local predicted player, nil until generated
func (c *Client) Local() *entity.Player {
	return c.local
}

// Decoder mirror of the server's objects
func (c *Client) Decoder() *snapshot.Decoder {
	return c.decoder
}

// Clock client simulation clock
func (c *Client) Clock() *simclock.Clock {
	return c.clock
}

// Prediction coordinator of the local player
func (c *Client) Prediction() *prediction.Coordinator {
	return c.pred
}

// LastResult result of the last prediction update
func (c *Client) LastResult() prediction.Result {
	return c.lastResult
}

// LastAck last command the server acknowledged
func (c *Client) LastAck() int32 {
	return c.lastAck
}

// Outgoing newest command created
func (c *Client) Outgoing() int32 {
	n := c.commands.Newest()
	if n < 0 {
		return 0
	}
	return n
}

// RenderOrigin local player origin with the prediction error still decaying
func (c *Client) RenderOrigin() mgl32.Vec3 {
	if nil == c.local {
		return mgl32.Vec3{}
	}
	return c.local.RenderOrigin(c.clock.Now().Time)
}

func (c *Client) send(id pb.ID, msg interface{}, reliable bool) error {
	p := pb_packet.NewPacket(uint8(id), msg)
	if nil == p {
		return errors.Errorf("client: cannot encode %s", id)
	}
	return c.sender.Send(p, reliable)
}

// Connect asks to join a room
func (c *Client) Connect(playerID, roomID uint64, token string) error {
	return c.send(pb.ID_MSG_Connect, &pb.C2S_ConnectMsg{
		PlayerID:    playerID,
		RoomID:      roomID,
		Token:       token,
		Fingerprint: c.registry.Fingerprint(),
	}, true)
}

// Heartbeat keeps the session alive while no commands are sent
func (c *Client) Heartbeat() error {
	return c.send(pb.ID_MSG_Heartbeat, nil, true)
}

// SendObjectMessage sends a named message to an object on the server
func (c *Client) SendObjectMessage(objectID uint32, name string, payload []byte) error {
	m, ok := c.decoder.Object(objectID)
	if !ok {
		return errors.Wrapf(ErrNoObject, "id=%d", objectID)
	}
	id, ok := m.Class.MessageID(name)
	if !ok || m.Class.Messages()[id].Flags&schema.MessageToServer == 0 {
		return errors.Wrapf(schema.ErrUnknownMessage, "class %s message %s", m.Class.Name, name)
	}
	return c.send(pb.ID_MSG_ObjectMessage, schema.AppendMessage(nil, objectID, id, payload), true)
}

func (c *Client) onGenerate(id uint32, m *snapshot.Mirror) {
	if id != c.objectID || !c.joined {
		return
	}
	p, ok := m.Object.(*entity.Player)
	if !ok {
		l4g.Error("[client] local object %d is a %s", id, m.Class.Name)
		return
	}
	p.SetPredictionObject(entity.NewPredictionObject(p, c.cfg.Slots, c.cfg.SmoothTime))
	c.pending = p
	l4g.Info("[client] local player %d generated", id)
}

func (c *Client) onDelete(id uint32, m *snapshot.Mirror) {
	if nil != c.pending && m.Object == c.pending {
		c.pending = nil
	}
	if nil == c.local || m.Object != c.local {
		return
	}
	c.pred.Remove(c.local)
	c.local = nil
	l4g.Info("[client] local player %d deleted", id)
}

// Drain handles every packet pending on ch
func (c *Client) Drain(ch network.Channel) int {
	n := 0
	for {
		p, ok := ch.Receive()
		if !ok {
			return n
		}
		n++
		if err := c.HandlePacket(p.(*pb_packet.Packet)); nil != err {
			l4g.Warn("[client] packet %d: %v", p.(*pb_packet.Packet).GetMessageID(), err)
		}
	}
}

// HandlePacket applies one server packet
func (c *Client) HandlePacket(p *pb_packet.Packet) error {
	switch msgID := pb.ID(p.GetMessageID()); msgID {
	case pb.ID_MSG_Connect:
		m := &pb.S2C_ConnectMsg{}
		if err := p.Unmarshal(m); nil != err {
			return err
		}
		return c.onConnect(m)

	case pb.ID_MSG_Generate:
		return c.decoder.ApplyGenerate(p.GetData())

	case pb.ID_MSG_Delete:
		return c.decoder.ApplyDelete(p.GetData())

	case pb.ID_MSG_Snapshot:
		m := &pb.S2C_SnapshotMsg{}
		if err := p.Unmarshal(m); nil != err {
			c.decoder.RequestResync()
			c.ack()
			return err
		}
		err := c.onSnapshot(m)
		c.ack()
		return err

	case pb.ID_MSG_ObjectMessage:
		objectID, id, payload, err := schema.ParseMessage(p.GetData())
		if nil != err {
			return err
		}
		m, ok := c.decoder.Object(objectID)
		if !ok {
			return errors.Wrapf(ErrNoObject, "id=%d", objectID)
		}
		return m.Class.Dispatch(id, m.Object, schema.Sender{Server: true}, payload)

	case pb.ID_MSG_Heartbeat:

	case pb.ID_MSG_Close:
		c.closed = true
		l4g.Info("[client] room closed")

	default:
		return errors.Errorf("client: unknown message id %s", msgID)
	}
	return nil
}

func (c *Client) onConnect(m *pb.S2C_ConnectMsg) error {
	if code := m.GetErrorCode(); code != pb.ERRORCODE_ERR_Ok {
		return errors.Wrapf(ErrRejected, "%s", code)
	}
	if m.Fingerprint != c.registry.Fingerprint() {
		return errors.Wrapf(ErrFingerprint, "server %x local %x", m.Fingerprint, c.registry.Fingerprint())
	}
	c.objectID = m.ObjectID
	c.joined = true
	c.lastAck = 0
	c.resetClock(int(m.TickRate), m.Tick)
	l4g.Info("[client] joined object=%d tick=%d rate=%d", m.ObjectID, m.Tick, m.TickRate)
	return nil
}

func (c *Client) onSnapshot(m *pb.S2C_SnapshotMsg) error {
	c.pred.PreNetworkDataReceived()
	applied, err := c.decoder.ApplySnapshot(m.Data)
	if !applied {
		return err
	}

	acked := int(m.CommandAck - c.lastAck)
	if acked < 0 {
		acked = 0
	}
	if nil != c.pending {
		c.local, c.pending = c.pending, nil
		c.pred.Add(c.local)
		acked = 0
	}
	c.pred.PostNetworkDataReceived(acked)
	if m.CommandAck > c.lastAck {
		c.lastAck = m.CommandAck
	}
	c.tickBase = m.TickBase
	c.received = true
	return nil
}

func (c *Client) ack() {
	if err := c.send(pb.ID_MSG_TickAck, wrapperspb.Int32(c.decoder.Ack()), false); nil != err {
		l4g.Warn("[client] tick ack: %v", err)
	}
}

// Frame advances the client by dt: one command per elapsed tick, sent with
// the unacknowledged backups, then prediction of every unacknowledged
// command. Returns the ticks run.
func (c *Client) Frame(dt time.Duration, in Input) int {
	if !c.joined || c.closed {
		return 0
	}

	n := c.clock.Advance(dt, func(now simclock.State) {
		c.commands.Add(prediction.Command{
			Number:  c.Outgoing() + 1,
			Tick:    now.Tick,
			Move:    in.Move,
			Yaw:     in.Yaw,
			Buttons: in.Buttons,
		})
	})
	if n > 0 {
		c.sendCommands()
	}

	c.lastResult = c.pred.Update(c.received, c.lastAck, c.Outgoing(), c.tickBase)
	c.received = false
	return n
}

func (c *Client) sendCommands() {
	cmds := c.commands.Unacknowledged(c.lastAck, c.cfg.BackupCommands+1)
	if len(cmds) == 0 {
		return
	}
	msg := &pb.C2S_CommandMsg{Commands: make([]*pb.Command, 0, len(cmds))}
	for i := range cmds {
		msg.Commands = append(msg.Commands, world.ToWire(&cmds[i]))
	}
	if err := c.send(pb.ID_MSG_Command, msg, false); nil != err {
		l4g.Warn("[client] send commands: %v", err)
	}
}
