package network

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	l4g "github.com/alecthomas/log4go"
	"github.com/byebyebruce/snapsync/pkg/metrics"
	"github.com/pkg/errors"
)

// Error type
var (
	ErrConnClosing   = errors.New("network: use of closed network connection")
	ErrWriteBlocking = errors.New("network: write packet was blocking")
	ErrReadBlocking  = errors.New("network: read packet was blocking")
)

// ConnCallback is an interface of methods that are used as callbacks on a connection
type ConnCallback interface {
	// OnConnect is called when the connection was accepted,
	// If the return value of false is closed
	OnConnect(*Conn) bool

	// OnMessage is called when the connection receives a packet,
	// If the return value of false is closed
	OnMessage(*Conn, Packet) bool

	// OnClose is called when the connection closed
	OnClose(*Conn)
}

// Conn exposes a set of callbacks for the various events that occur on a connection
type Conn struct {
	srv               *Server
	conn              net.Conn      // the raw connection
	extraData         atomic.Value  // to save extra data
	closeOnce         sync.Once     // close the conn, once, per instance
	closeFlag         int32         // close flag
	closeChan         chan struct{} // close chanel
	packetSendChan    chan Packet   // packet send chanel
	packetReceiveChan chan Packet   // packeet receive chanel
	callback          atomic.Value  // callback
}

type extra struct {
	v interface{}
}

type callbackHolder struct {
	cb ConnCallback
}

// NewConn returns a wrapper of raw conn
func NewConn(conn net.Conn, srv *Server) *Conn {
	c := &Conn{
		srv:               srv,
		conn:              conn,
		closeChan:         make(chan struct{}),
		packetSendChan:    make(chan Packet, srv.config.PacketSendChanLimit),
		packetReceiveChan: make(chan Packet, srv.config.PacketReceiveChanLimit),
	}
	c.callback.Store(callbackHolder{srv.callback})
	atomic.AddInt64(&srv.conns, 1)
	return c
}

// GetExtraData gets the extra data from the Conn
func (c *Conn) GetExtraData() interface{} {
	if e, ok := c.extraData.Load().(extra); ok {
		return e.v
	}
	return nil
}

// PutExtraData puts the extra data with the Conn
func (c *Conn) PutExtraData(data interface{}) {
	c.extraData.Store(extra{data})
}

// SetCallback replaces the callback; only call it from OnConnect or OnMessage
func (c *Conn) SetCallback(cb ConnCallback) {
	c.callback.Store(callbackHolder{cb})
}

func (c *Conn) getCallback() ConnCallback {
	return c.callback.Load().(callbackHolder).cb
}

// GetRawConn returns the raw net.Conn from the Conn
func (c *Conn) GetRawConn() net.Conn {
	return c.conn
}

// Close closes the connection
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closeFlag, 1)
		close(c.closeChan)
		c.conn.Close()
		atomic.AddInt64(&c.srv.conns, -1)
		c.getCallback().OnClose(c)
	})
}

// IsClosed indicates whether or not the connection is closed
func (c *Conn) IsClosed() bool {
	return atomic.LoadInt32(&c.closeFlag) == 1
}

// AsyncWritePacket queues p for writing. timeout 0 fails immediately when the
// send queue is full.
func (c *Conn) AsyncWritePacket(p Packet, timeout time.Duration) (err error) {
	if c.IsClosed() {
		return ErrConnClosing
	}

	defer func() {
		if e := recover(); e != nil {
			err = ErrConnClosing
		}
	}()

	if timeout == 0 {
		select {
		case c.packetSendChan <- p:
			return nil

		default:
			return ErrWriteBlocking
		}

	} else {
		select {
		case c.packetSendChan <- p:
			return nil

		case <-c.closeChan:
			return ErrConnClosing

		case <-time.After(timeout):
			return ErrWriteBlocking
		}
	}
}

// Send Sender. Reliable packets wait up to the write timeout for queue space,
// unreliable ones are dropped when the queue is full.
func (c *Conn) Send(p Packet, reliable bool) error {
	if !reliable {
		err := c.AsyncWritePacket(p, 0)
		if errors.Is(err, ErrWriteBlocking) {
			metrics.PacketsDropped.Inc()
			return nil
		}
		return err
	}
	timeout := c.srv.config.ConnWriteTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return c.AsyncWritePacket(p, timeout)
}

// Do it
func (c *Conn) Do() {
	if !c.getCallback().OnConnect(c) {
		c.Close()
		return
	}

	asyncDo(c.handleLoop, c.srv.waitGroup)
	asyncDo(c.readLoop, c.srv.waitGroup)
	asyncDo(c.writeLoop, c.srv.waitGroup)
}

func (c *Conn) readLoop() {
	defer func() {
		recover()
		c.Close()
	}()

	for {
		select {
		case <-c.srv.exitChan:
			return

		case <-c.closeChan:
			return

		default:
		}

		if c.srv.config.ConnReadTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.srv.config.ConnReadTimeout))
		}
		p, err := c.srv.protocol.ReadPacket(c.conn)
		if err != nil {
			l4g.Debug("[network] read %s error:%s", c.conn.RemoteAddr(), err.Error())
			return
		}
		metrics.Packets.WithLabelValues("in").Inc()

		select {
		case c.packetReceiveChan <- p:
		case <-c.closeChan:
			return
		case <-c.srv.exitChan:
			return
		}
	}
}

func (c *Conn) writeLoop() {
	defer func() {
		recover()
		c.Close()
	}()

	for {
		select {
		case <-c.srv.exitChan:
			return

		case <-c.closeChan:
			return

		case p := <-c.packetSendChan:
			if c.IsClosed() {
				return
			}
			if c.srv.config.ConnWriteTimeout > 0 {
				c.conn.SetWriteDeadline(time.Now().Add(c.srv.config.ConnWriteTimeout))
			}
			if _, err := c.conn.Write(p.Serialize()); err != nil {
				l4g.Debug("[network] write %s error:%s", c.conn.RemoteAddr(), err.Error())
				return
			}
			metrics.Packets.WithLabelValues("out").Inc()
		}
	}
}

func (c *Conn) handleLoop() {
	defer func() {
		recover()
		c.Close()
	}()

	for {
		select {
		case <-c.srv.exitChan:
			return

		case <-c.closeChan:
			return

		case p := <-c.packetReceiveChan:
			if c.IsClosed() {
				return
			}
			if !c.getCallback().OnMessage(c, p) {
				return
			}
		}
	}
}

func asyncDo(fn func(), wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		fn()
		wg.Done()
	}()
}
