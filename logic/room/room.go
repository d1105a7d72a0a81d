package room

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/byebyebruce/snapsync/logic/entity"
	"github.com/byebyebruce/snapsync/logic/world"
	"github.com/byebyebruce/snapsync/pb"
	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/byebyebruce/snapsync/pkg/packet/pb_packet"
	"github.com/byebyebruce/snapsync/pkg/schema"
	"github.com/google/uuid"

	l4g "github.com/alecthomas/log4go"
)

const (
	IdleTimeout  = time.Minute * 5 // 没有在线玩家超过这个时间关闭房间
	QuitWaitTime = time.Second     // 关闭前等待Close消息发出去
)

type packet struct {
	id  uint64
	msg network.Packet
}

// Listener room events, called from the room goroutine
type Listener interface {
	OnJoin(roomID, playerID uint64)
	OnLeave(roomID, playerID uint64)
	OnRoomClose(roomID uint64)
}

// Room 房间, one goroutine driving a world
type Room struct {
	wg sync.WaitGroup

	roomID    uint64
	players   []uint64
	closeFlag int32
	timeStamp int64
	secretKey string

	exitChan chan struct{}
	stopOnce sync.Once
	msgQ     chan *packet
	inChan   chan *network.Conn
	outChan  chan *network.Conn

	world    *world.World
	listener Listener
}

// NewRoom 构造. pickups health and armor pickups are spread along the x axis.
func NewRoom(id uint64, players []uint64, cfg world.Config, registry *schema.Registry, pickups int, listener Listener) *Room {
	r := &Room{
		roomID:    id,
		players:   players,
		exitChan:  make(chan struct{}),
		msgQ:      make(chan *packet, 2048),
		outChan:   make(chan *network.Conn, 8),
		inChan:    make(chan *network.Conn, 8),
		timeStamp: time.Now().Unix(),
		secretKey: uuid.NewString(),
		world:     world.New(cfg, registry),
		listener:  listener,
	}

	for i := 0; i < pickups; i++ {
		kind := entity.PickupHealth
		if i%2 == 1 {
			kind = entity.PickupArmor
		}
		r.world.Spawn(entity.NewPickup(kind, 25, float32(i+1)*100))
	}

	return r
}

// ID room ID
func (r *Room) ID() uint64 {
	return r.roomID
}

// SecretKey token a player must present to join
func (r *Room) SecretKey() string {
	return r.secretKey
}

// TimeStamp time stamp
func (r *Room) TimeStamp() int64 {
	return r.timeStamp
}

// Players 玩家列表
func (r *Room) Players() []uint64 {
	return r.players
}

// IsOver 是否已经结束
func (r *Room) IsOver() bool {
	return atomic.LoadInt32(&r.closeFlag) != 0
}

// HasPlayer 是否有这个player, an empty list admits everyone
func (r *Room) HasPlayer(id uint64) bool {
	if len(r.players) == 0 {
		return true
	}
	for _, v := range r.players {
		if v == id {
			return true
		}
	}

	return false
}

// OnConnect network.Conn callback
func (r *Room) OnConnect(conn *network.Conn) bool {

	conn.SetCallback(r) // SetCallback只能在OnConnect里调
	r.inChan <- conn
	l4g.Warn("[room(%d)] OnConnect %d", r.roomID, conn.GetExtraData().(uint64))

	return true
}

// OnMessage network.Conn callback
func (r *Room) OnMessage(conn *network.Conn, msg network.Packet) bool {

	id, ok := conn.GetExtraData().(uint64)
	if !ok {
		l4g.Error("[room] OnMessage error conn don't have id")
		return false
	}

	select {
	case r.msgQ <- &packet{id: id, msg: msg}:
	case <-r.exitChan:
		return false
	}

	return true
}

// OnClose network.Conn callback
func (r *Room) OnClose(conn *network.Conn) {
	select {
	case r.outChan <- conn:
	case <-r.exitChan:
	default:
		// the room goroutine itself closes connections, never block it
		go func() {
			select {
			case r.outChan <- conn:
			case <-r.exitChan:
			}
		}()
	}
	if id, ok := conn.GetExtraData().(uint64); ok {
		l4g.Warn("[room(%d)] OnClose %d", r.roomID, id)
	} else {
		l4g.Warn("[room(%d)] OnClose no id", r.roomID)
	}
}

func (r *Room) join(c *network.Conn) {
	id, ok := c.GetExtraData().(uint64)
	if !ok {
		c.Close()
		l4g.Error("[room(%d)] inChan don't have id", r.roomID)
		return
	}

	// 把现有的玩家顶掉
	if s, ok := r.world.Session(id); ok {
		if old, ok := s.Sender().(*network.Conn); ok && old != c {
			old.PutExtraData(nil)
			old.Close()
			l4g.Error("[room(%d)] player[%d] replace", r.roomID, id)
		}
	}

	s := r.world.Join(id, fmt.Sprintf("player%d", id), c)
	s.SendMessage(pb_packet.NewPacket(uint8(pb.ID_MSG_Connect), r.world.ConnectAck(s)), true)
	l4g.Info("[room(%d)] player[%d] join room ok", r.roomID, id)
	if nil != r.listener {
		r.listener.OnJoin(r.roomID, id)
	}
}

func (r *Room) leave(c *network.Conn) {
	id, ok := c.GetExtraData().(uint64)
	if !ok {
		return
	}
	s, ok := r.world.Session(id)
	if !ok || s.Sender() != network.Sender(c) {
		return
	}
	r.world.Leave(id)
	if nil != r.listener {
		r.listener.OnLeave(r.roomID, id)
	}
}

// Run 主循环
func (r *Room) Run() {
	r.wg.Add(1)
	defer r.wg.Done()
	defer func() {
		atomic.StoreInt32(&r.closeFlag, 1)
		r.stopOnce.Do(func() { close(r.exitChan) })
		r.world.Cleanup()
		if nil != r.listener {
			r.listener.OnRoomClose(r.roomID)
		}
		l4g.Warn("[room(%d)] quit! total time=[%d]", r.roomID, time.Now().Unix()-r.timeStamp)
	}()

	// 心跳
	tickerTick := time.NewTicker(r.world.Clock().Interval())
	defer tickerTick.Stop()

	last := time.Now()
	lastActive := last

	l4g.Info("[room(%d)] running...", r.roomID)

LOOP:
	for {
		select {
		case <-r.exitChan:
			l4g.Error("[room(%d)] force exit", r.roomID)
			return
		case msg := <-r.msgQ:
			r.world.HandlePacket(msg.id, msg.msg.(*pb_packet.Packet))
		case now := <-tickerTick.C:
			r.world.Advance(now.Sub(last))
			last = now
			if r.world.Online() > 0 {
				lastActive = now
			} else if now.Sub(lastActive) > IdleTimeout {
				l4g.Info("[room(%d)] idle timeout", r.roomID)
				break LOOP
			}
		case c := <-r.inChan:
			r.join(c)
		case c := <-r.outChan:
			r.leave(c)
		}
	}

	atomic.StoreInt32(&r.closeFlag, 1)
	r.world.Close()

	select {
	case <-time.After(QuitWaitTime):
	case <-r.exitChan:
	}
}

// Stop 强制关闭
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.exitChan) })
	r.wg.Wait()
}
