package ws_server

import (
	"net"
	"net/http"
	"sync"

	l4g "github.com/alecthomas/log4go"
	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// ErrListenerClosed Accept after Close
var ErrListenerClosed = errors.New("ws_server: listener closed")

// Listener net.Listener fed by upgraded http requests
type Listener struct {
	upgrader  websocket.Upgrader
	conns     chan net.Conn
	closeChan chan struct{}
	closeOnce sync.Once
	addr      net.Addr
}

func newListener() *Listener {
	return &Listener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// peers authenticate with the connect message
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:     make(chan net.Conn, 64),
		closeChan: make(chan struct{}),
		addr:      &net.TCPAddr{},
	}
}

// ServeHTTP upgrades the request and hands the connection to Accept
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if nil != err {
		l4g.Warn("[ws] upgrade %s error:%s", r.RemoteAddr, err.Error())
		return
	}
	select {
	case l.conns <- NewConn(ws):
	case <-l.closeChan:
		ws.Close()
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closeChan:
		return nil, ErrListenerClosed
	}
}

func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closeChan)
	})
	return nil
}

func (l *Listener) Addr() net.Addr {
	return l.addr
}

// Server network.Server accepting websocket peers; mount it as an http handler
type Server struct {
	*network.Server
	listener *Listener
}

// New 构造. The returned server is accepting.
func New(cfg network.Config, callback network.ConnCallback, protocol network.Protocol) *Server {
	s := &Server{
		Server:   network.NewServer(&cfg, callback, protocol),
		listener: newListener(),
	}
	go s.Server.Start(s.listener, func(conn net.Conn, srv *network.Server) *network.Conn {
		return network.NewConn(conn, srv)
	})
	return s
}

// ServeHTTP http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.listener.ServeHTTP(w, r)
}
