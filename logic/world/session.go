package world

import (
	l4g "github.com/alecthomas/log4go"
	"github.com/byebyebruce/snapsync/logic/entity"
	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/byebyebruce/snapsync/pkg/packet/pb_packet"
	"github.com/byebyebruce/snapsync/pkg/snapshot"
	"golang.org/x/time/rate"
)

// Session one connected player: its object, what it was sent and the
// commands it sent.
type Session struct {
	id       uint64
	player   *entity.Player
	client   *snapshot.Client
	sender   network.Sender
	queue    *commandQueue
	resync   *rate.Limiter
	commands *rate.Limiter

	isOnline bool
	lastSeen int32 // tick of the last packet received
}

// ID player id
func (s *Session) ID() uint64 {
	return s.id
}

// Player the session's object
func (s *Session) Player() *entity.Player {
	return s.player
}

// Client snapshot state of the session
func (s *Session) Client() *snapshot.Client {
	return s.client
}

// LastCommand last executed command number
func (s *Session) LastCommand() int32 {
	return s.queue.last
}

// IsOnline has a live sender
func (s *Session) IsOnline() bool {
	return nil != s.sender && s.isOnline
}

func (s *Session) connect(sender network.Sender, tick int32) {
	s.sender = sender
	s.isOnline = true
	s.lastSeen = tick
}

// SendMessage drops the connection when the send fails
func (s *Session) SendMessage(p *pb_packet.Packet, reliable bool) {
	if !s.IsOnline() || nil == p {
		return
	}
	if err := s.sender.Send(p, reliable); nil != err {
		l4g.Warn("[session(%d)] send error:%s", s.id, err.Error())
		s.Cleanup()
	}
}

// Cleanup closes the sender and marks the session offline
func (s *Session) Cleanup() {
	if c, ok := s.sender.(interface{ Close() }); ok {
		c.Close()
	}
	s.sender = nil
	s.isOnline = false
}

// Sender current connection, nil when offline
func (s *Session) Sender() network.Sender {
	return s.sender
}
