package kcp_server

import (
	"net"
	"time"

	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/xtaci/kcp-go"
)

// Mode ikcp_nodelay parameters
type Mode struct {
	NoDelay  int
	Interval int
	Resend   int
	NC       int
}

var (
	// 普通模式：ikcp_nodelay(kcp, 0, 40, 0, 0)
	ModeNormal = Mode{0, 40, 0, 0}
	// 极速模式： ikcp_nodelay(kcp, 1, 10, 2, 1)
	ModeFast = Mode{1, 10, 2, 1}
)

// Config session tuning
type Config struct {
	network.Config
	Mode        Mode
	Window      int
	MTU         int
	SocketBytes int
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Config: network.Config{
			PacketReceiveChanLimit: 1024,
			PacketSendChanLimit:    1024,
			ConnReadTimeout:        time.Second * 5,
			ConnWriteTimeout:       time.Second * 5,
		},
		Mode:        ModeFast,
		Window:      4096,
		MTU:         1400,
		SocketBytes: 4 * 1024 * 1024,
	}
}

// Tune applies cfg to a session, both ends use it
func Tune(sess *kcp.UDPSession, cfg Config) {
	sess.SetNoDelay(cfg.Mode.NoDelay, cfg.Mode.Interval, cfg.Mode.Resend, cfg.Mode.NC)
	sess.SetStreamMode(true)
	sess.SetWindowSize(cfg.Window, cfg.Window)
	if cfg.MTU > 0 {
		sess.SetMtu(cfg.MTU)
	}
	sess.SetReadBuffer(cfg.SocketBytes)
	sess.SetWriteBuffer(cfg.SocketBytes)
	sess.SetACKNoDelay(true)
}

// ListenAndServe listens on addr and serves in the background
func ListenAndServe(addr string, callback network.ConnCallback, protocol network.Protocol, cfg Config) (*network.Server, error) {
	l, err := kcp.Listen(addr)
	if nil != err {
		return nil, err
	}

	dupConfig := cfg.Config
	server := network.NewServer(&dupConfig, callback, protocol)
	go server.Start(l, func(conn net.Conn, s *network.Server) *network.Conn {
		if sess, ok := conn.(*kcp.UDPSession); ok {
			Tune(sess, cfg)
		}
		return network.NewConn(conn, s)
	})

	return server, nil
}

// Dial connects a tuned session to addr
func Dial(addr string, cfg Config) (*kcp.UDPSession, error) {
	sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if nil != err {
		return nil, err
	}
	Tune(sess, cfg)
	return sess, nil
}
