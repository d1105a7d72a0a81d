package network

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	l4g "github.com/alecthomas/log4go"
)

// Config connection tuning
type Config struct {
	PacketSendChanLimit    uint32        // the limit of packet send channel
	PacketReceiveChanLimit uint32        // the limit of packet receive channel
	ConnReadTimeout        time.Duration // read timeout
	ConnWriteTimeout       time.Duration // write timeout
}

// Server accepts connections and runs one Conn per connection
type Server struct {
	config    *Config         // server configuration
	callback  ConnCallback    // message callbacks in connection
	protocol  Protocol        // customize packet protocol
	exitChan  chan struct{}   // notify all goroutines to shutdown
	waitGroup *sync.WaitGroup // wait for all goroutines
	closeOnce sync.Once
	listener  net.Listener
	conns     int64
}

// NewServer creates a server
func NewServer(config *Config, callback ConnCallback, protocol Protocol) *Server {
	return &Server{
		config:    config,
		callback:  callback,
		protocol:  protocol,
		exitChan:  make(chan struct{}),
		waitGroup: &sync.WaitGroup{},
	}
}

// ConnectionCreator tunes an accepted connection and wraps it
type ConnectionCreator func(net.Conn, *Server) *Conn

// Start accepts until Stop; blocks
func (s *Server) Start(listener net.Listener, create ConnectionCreator) {
	s.listener = listener
	s.waitGroup.Add(1)
	defer func() {
		s.waitGroup.Done()
	}()

	for {
		select {
		case <-s.exitChan:
			return

		default:
		}

		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.exitChan:
				return
			default:
			}
			l4g.Warn("[network] accept error:%s", err.Error())
			time.Sleep(10 * time.Millisecond)
			continue
		}

		s.waitGroup.Add(1)
		go func() {
			create(conn, s).Do()
			s.waitGroup.Done()
		}()
	}
}

// Conns live connections
func (s *Server) Conns() int64 {
	return atomic.LoadInt64(&s.conns)
}

// Stop stops service
func (s *Server) Stop() {
	s.closeOnce.Do(func() {
		close(s.exitChan)
		if nil != s.listener {
			s.listener.Close()
		}
	})

	s.waitGroup.Wait()
}
