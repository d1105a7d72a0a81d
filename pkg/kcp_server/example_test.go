package kcp_server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	latency = time.Second
)

type testCallback struct {
	numConn   uint32
	numMsg    uint32
	numDiscon uint32
}

func (t *testCallback) OnMessage(conn *network.Conn, msg network.Packet) bool {
	atomic.AddUint32(&t.numMsg, 1)
	conn.AsyncWritePacket(network.NewDefaultPacket([]byte("pong")), time.Second*1)
	return true
}

func (t *testCallback) OnConnect(conn *network.Conn) bool {
	id := atomic.AddUint32(&t.numConn, 1)
	conn.PutExtraData(id)
	return true
}

func (t *testCallback) OnClose(conn *network.Conn) {
	atomic.AddUint32(&t.numDiscon, 1)
}

func Test_KCPServer(t *testing.T) {
	const addr = "127.0.0.1:10186"

	cfg := DefaultConfig()
	cfg.ConnReadTimeout = latency
	cfg.ConnWriteTimeout = latency

	callback := &testCallback{}
	server, err := ListenAndServe(addr, callback, &network.DefaultProtocol{}, cfg)
	require.NoError(t, err)

	wg := sync.WaitGroup{}
	const maxConn = 20
	for i := 0; i < maxConn; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			c, e := Dial(addr, cfg)
			if !assert.NoError(t, e) {
				return
			}
			defer c.Close()

			c.Write(network.NewDefaultPacket([]byte("ping")).Serialize())
			c.SetReadDeadline(time.Now().Add(latency))
			p, e := (&network.DefaultProtocol{}).ReadPacket(c)
			if assert.NoError(t, e) {
				assert.Equal(t, "pong", string(p.(*network.DefaultPacket).GetBody()))
			}
		}()
	}

	wg.Wait()
	server.Stop()

	assert.Equal(t, uint32(maxConn), atomic.LoadUint32(&callback.numConn))
	assert.Equal(t, uint32(maxConn), atomic.LoadUint32(&callback.numMsg))
	assert.Equal(t, uint32(maxConn), atomic.LoadUint32(&callback.numDiscon))
}

func Benchmark_KCPServer(b *testing.B) {
	const addr = "127.0.0.1:10187"

	cfg := DefaultConfig()
	server, err := ListenAndServe(addr, &testCallback{}, &network.DefaultProtocol{}, cfg)
	if nil != err {
		b.Fatal(err)
	}
	defer server.Stop()

	c, e := Dial(addr, cfg)
	if nil != e {
		b.Fatal(e)
	}
	defer c.Close()

	ping := network.NewDefaultPacket([]byte("ping")).Serialize()
	proto := &network.DefaultProtocol{}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Write(ping)
		c.SetReadDeadline(time.Now().Add(time.Second * 2))
		if _, err := proto.ReadPacket(c); nil != err {
			b.Fatal(err)
		}
	}
}
