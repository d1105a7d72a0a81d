package network

import (
	"bytes"
	"math/rand"
	"net"
	"sync"

	l4g "github.com/alecthomas/log4go"
	"github.com/byebyebruce/snapsync/pkg/metrics"
)

// Sender sends packets over a session. Reliable packets arrive in order;
// unreliable ones may be dropped but are never reordered.
type Sender interface {
	Send(p Packet, reliable bool) error
}

// Channel a Sender that is polled for incoming packets
type Channel interface {
	Sender
	// Receive next packet, false when none is pending
	Receive() (Packet, bool)
}

// LoopbackConfig in-memory link behaviour
type LoopbackConfig struct {
	Loss float64 // probability an unreliable send is lost
	Seed int64
}

type endpoint struct {
	link  *loopback
	peer  *endpoint
	queue [][]byte
}

type loopback struct {
	mu       sync.Mutex
	protocol Protocol
	loss     float64
	rnd      *rand.Rand
}

// NewLoopback connected pair of in-memory channels. Packets are serialized
// and read back through protocol like on a real connection.
func NewLoopback(cfg LoopbackConfig, protocol Protocol) (Channel, Channel) {
	l := &loopback{
		protocol: protocol,
		loss:     cfg.Loss,
		rnd:      rand.New(rand.NewSource(cfg.Seed)),
	}
	a, b := &endpoint{link: l}, &endpoint{link: l}
	a.peer, b.peer = b, a
	return a, b
}

func (e *endpoint) Send(p Packet, reliable bool) error {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()

	if !reliable && e.link.loss > 0 && e.link.rnd.Float64() < e.link.loss {
		metrics.PacketsDropped.Inc()
		return nil
	}
	e.peer.queue = append(e.peer.queue, p.Serialize())
	return nil
}

func (e *endpoint) Receive() (Packet, bool) {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()

	for len(e.queue) > 0 {
		data := e.queue[0]
		e.queue = e.queue[1:]
		p, err := e.link.protocol.ReadPacket(bytes.NewReader(data))
		if nil != err {
			continue
		}
		return p, true
	}
	return nil, false
}

// Stream client side Channel over a dialed connection. A goroutine reads
// packets into a queue; Receive never blocks.
type Stream struct {
	conn     net.Conn
	protocol Protocol
	incoming chan Packet
	closed   chan struct{}
	once     sync.Once
	err      error
}

// NewStream starts reading conn. queue bounds the packets held between
// two Receive calls; when it is full the reader waits.
func NewStream(conn net.Conn, protocol Protocol, queue int) *Stream {
	if queue <= 0 {
		queue = 1024
	}
	s := &Stream{
		conn:     conn,
		protocol: protocol,
		incoming: make(chan Packet, queue),
		closed:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Stream) readLoop() {
	defer s.Close()
	for {
		p, err := s.protocol.ReadPacket(s.conn)
		if nil != err {
			s.err = err
			return
		}
		metrics.Packets.WithLabelValues("in").Inc()
		select {
		case s.incoming <- p:
		case <-s.closed:
			return
		}
	}
}

// Send writes p; the stream is ordered so reliable is ignored
func (s *Stream) Send(p Packet, reliable bool) error {
	if s.IsClosed() {
		return ErrConnClosing
	}
	if _, err := s.conn.Write(p.Serialize()); nil != err {
		l4g.Warn("[stream] write error:%s", err.Error())
		s.Close()
		return err
	}
	metrics.Packets.WithLabelValues("out").Inc()
	return nil
}

func (s *Stream) Receive() (Packet, bool) {
	select {
	case p := <-s.incoming:
		return p, true
	default:
		return nil, false
	}
}

// IsClosed the connection is gone
func (s *Stream) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Err read error that closed the stream
func (s *Stream) Err() error {
	if !s.IsClosed() {
		return nil
	}
	return s.err
}

// Close closes the connection
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}
