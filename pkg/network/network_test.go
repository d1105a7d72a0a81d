package network

import (
	"bytes"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoCallback struct {
	numConn   uint32
	numMsg    uint32
	numDiscon uint32
}

func (t *echoCallback) OnMessage(conn *Conn, msg Packet) bool {
	atomic.AddUint32(&t.numMsg, 1)
	body := msg.(*DefaultPacket).GetBody()
	return nil == conn.Send(NewDefaultPacket(append([]byte("re:"), body...)), true)
}

func (t *echoCallback) OnConnect(conn *Conn) bool {
	id := atomic.AddUint32(&t.numConn, 1)
	conn.PutExtraData(id)
	return true
}

func (t *echoCallback) OnClose(conn *Conn) {
	atomic.AddUint32(&t.numDiscon, 1)
}

func TestTCPServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()

	config := &Config{
		PacketReceiveChanLimit: 64,
		PacketSendChanLimit:    64,
		ConnReadTimeout:        time.Second * 2,
		ConnWriteTimeout:       time.Second * 2,
	}
	callback := &echoCallback{}
	server := NewServer(config, callback, &DefaultProtocol{})
	go server.Start(l, func(conn net.Conn, s *Server) *Conn {
		return NewConn(conn, s)
	})

	const maxConn = 20
	wg := sync.WaitGroup{}
	for i := 0; i < maxConn; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, e := net.Dial("tcp", addr)
			if !assert.NoError(t, e) {
				return
			}
			defer c.Close()
			c.Write(NewDefaultPacket([]byte("ping")).Serialize())
			c.SetReadDeadline(time.Now().Add(time.Second * 2))
			p, e := (&DefaultProtocol{}).ReadPacket(c)
			if assert.NoError(t, e) {
				assert.Equal(t, "re:ping", string(p.(*DefaultPacket).GetBody()))
			}
		}()
	}
	wg.Wait()
	server.Stop()

	assert.Equal(t, uint32(maxConn), atomic.LoadUint32(&callback.numConn))
	assert.Equal(t, uint32(maxConn), atomic.LoadUint32(&callback.numMsg))
	assert.Equal(t, uint32(maxConn), atomic.LoadUint32(&callback.numDiscon))
	assert.Equal(t, int64(0), server.Conns())
}

func TestDefaultProtocolLimit(t *testing.T) {
	p := NewDefaultPacket(make([]byte, 100))
	_, err := (&DefaultProtocol{MaxLength: 10}).ReadPacket(bytes.NewReader(p.Serialize()))
	assert.ErrorIs(t, err, ErrPacketTooLarge)

	ret, err := (&DefaultProtocol{}).ReadPacket(bytes.NewReader(p.Serialize()))
	require.NoError(t, err)
	assert.Len(t, ret.(*DefaultPacket).GetBody(), 100)
}

func TestLoopback(t *testing.T) {
	a, b := NewLoopback(LoopbackConfig{}, &DefaultProtocol{})
	require.NoError(t, a.Send(NewDefaultPacket([]byte("1")), true))
	require.NoError(t, a.Send(NewDefaultPacket([]byte("2")), false))

	for _, want := range []string{"1", "2"} {
		p, ok := b.Receive()
		require.True(t, ok)
		assert.Equal(t, want, string(p.(*DefaultPacket).GetBody()))
	}
	_, ok := b.Receive()
	assert.False(t, ok)
	_, ok = a.Receive()
	assert.False(t, ok, "nothing was sent to a")
}

func TestLoopbackLoss(t *testing.T) {
	a, b := NewLoopback(LoopbackConfig{Loss: 1}, &DefaultProtocol{})
	a.Send(NewDefaultPacket([]byte("lost")), false)
	a.Send(NewDefaultPacket([]byte("kept")), true)

	p, ok := b.Receive()
	require.True(t, ok)
	assert.Equal(t, "kept", string(p.(*DefaultPacket).GetBody()))
	_, ok = b.Receive()
	assert.False(t, ok)
}

func TestStream(t *testing.T) {
	a, b := net.Pipe()
	s := NewStream(a, &DefaultProtocol{}, 4)

	go func() {
		for _, body := range []string{"one", "two"} {
			b.Write(NewDefaultPacket([]byte(body)).Serialize())
		}
		p, err := (&DefaultProtocol{}).ReadPacket(b)
		if nil == err {
			b.Write(NewDefaultPacket(append([]byte("re:"), p.(*DefaultPacket).GetBody()...)).Serialize())
		}
	}()

	var got []string
	require.Eventually(t, func() bool {
		for {
			p, ok := s.Receive()
			if !ok {
				break
			}
			got = append(got, string(p.(*DefaultPacket).GetBody()))
		}
		return len(got) >= 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, got)

	require.NoError(t, s.Send(NewDefaultPacket([]byte("three")), false))
	require.Eventually(t, func() bool {
		p, ok := s.Receive()
		return ok && string(p.(*DefaultPacket).GetBody()) == "re:three"
	}, time.Second, time.Millisecond)

	b.Close()
	require.Eventually(t, s.IsClosed, time.Second, time.Millisecond)
	assert.Error(t, s.Err())
	assert.ErrorIs(t, s.Send(NewDefaultPacket(nil), true), ErrConnClosing)
}
