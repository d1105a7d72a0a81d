package server

import (
	"testing"
	"time"

	"github.com/byebyebruce/snapsync/logic"
	"github.com/byebyebruce/snapsync/logic/client"
	"github.com/byebyebruce/snapsync/logic/world"
	"github.com/byebyebruce/snapsync/pkg/kcp_server"
	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/byebyebruce/snapsync/pkg/packet/pb_packet"
	"github.com/byebyebruce/snapsync/pkg/prediction"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "127.0.0.1:10196"

func dial(t *testing.T, s *SnapServer, cfg Config) (*client.Client, *network.Stream) {
	sess, err := kcp_server.Dial(cfg.UDPAddress, cfg.KCP)
	require.NoError(t, err)
	stream := network.NewStream(sess, &pb_packet.MsgProtocol{}, 0)
	return client.New(prediction.DefaultConfig(), s.RoomManager().Registry(), stream), stream
}

func TestJoinOverKCP(t *testing.T) {
	cfg := Config{
		UDPAddress: testAddr,
		KCP:        kcp_server.DefaultConfig(),
		World:      world.DefaultConfig(),
		Pickups:    2,
	}
	s, err := New(cfg)
	require.NoError(t, err)
	defer s.Stop()

	r, err := s.RoomManager().CreateRoom(1, []uint64{7})
	require.NoError(t, err)
	_, err = s.RoomManager().CreateRoom(1, nil)
	assert.ErrorIs(t, err, logic.ErrRoomExists)
	assert.Len(t, s.RoomManager().Rooms(), 1)

	// wrong token
	bad, badStream := dial(t, s, cfg)
	defer badStream.Close()
	require.NoError(t, bad.Connect(7, 1, "guess"))
	require.Eventually(t, func() bool {
		p, ok := badStream.Receive()
		if !ok {
			return false
		}
		assert.ErrorIs(t, bad.HandlePacket(p.(*pb_packet.Packet)), client.ErrRejected)
		return true
	}, 3*time.Second, 10*time.Millisecond)

	c, stream := dial(t, s, cfg)
	defer stream.Close()
	require.NoError(t, c.Connect(7, 1, r.SecretKey()))
	require.Eventually(t, func() bool {
		c.Drain(stream)
		c.Frame(10*time.Millisecond, client.Input{Move: mgl32.Vec3{1, 0, 0}})
		return nil != c.Local() && c.LastAck() > 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, c.Decoder().Len(), "player and both pickups")
	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, uint64(7), sessions[0].PlayerID)
	assert.Equal(t, uint64(1), sessions[0].RoomID)
}
