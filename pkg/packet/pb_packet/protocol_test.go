package pb_packet

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/byebyebruce/snapsync/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func Test_SCPacket(t *testing.T) {

	msg := &pb.C2S_ConnectMsg{
		PlayerID: 19234333,
		RoomID:   10,
		Token:    "t",
	}
	raw := msg.Marshal()
	p := NewPacket(uint8(pb.ID_MSG_Connect), msg)
	require.NotNil(t, p)

	buff := p.Serialize()

	dataLen := binary.BigEndian.Uint16(buff[0:])
	assert.Equal(t, uint16(len(raw)), dataLen)
	assert.Equal(t, p.id, buff[DataLen])

	msg1 := &pb.C2S_ConnectMsg{}
	require.NoError(t, msg1.Unmarshal(buff[MinPacketLen:]))
	assert.Equal(t, msg, msg1)
}

func Test_Packet(t *testing.T) {
	p := NewPacket(uint8(pb.ID_MSG_TickAck), wrapperspb.Int32(-1))
	require.NotNil(t, p)

	r := strings.NewReader(string(p.Serialize()))
	ret, err := (&MsgProtocol{}).ReadPacket(r)
	require.NoError(t, err)

	packet := ret.(*Packet)
	assert.Equal(t, uint8(pb.ID_MSG_TickAck), packet.GetMessageID())

	ack := &wrapperspb.Int32Value{}
	require.NoError(t, packet.Unmarshal(ack))
	assert.Equal(t, int32(-1), ack.GetValue())
}

func Test_CompressedPacket(t *testing.T) {
	data := bytes.Repeat([]byte("snapshot"), 200)
	p := NewPacket(uint8(pb.ID_MSG_Generate), data).Compress()
	buff := p.Serialize()

	assert.Less(t, len(buff), len(data))
	assert.NotZero(t, buff[DataLen]&CompressedFlag)

	ret, err := (&MsgProtocol{}).ReadPacket(bytes.NewReader(buff))
	require.NoError(t, err)
	packet := ret.(*Packet)
	assert.Equal(t, uint8(pb.ID_MSG_Generate), packet.GetMessageID())
	assert.Equal(t, data, packet.GetData())
}

func Test_SmallPacketNotCompressed(t *testing.T) {
	buff := NewPacket(uint8(pb.ID_MSG_Delete), []byte{0, 0, 0, 1}).Compress().Serialize()
	assert.Zero(t, buff[DataLen]&CompressedFlag)
	assert.Len(t, buff, MinPacketLen+4)
}

func Test_CorruptCompressedPacket(t *testing.T) {
	buff := []byte{0, 5, uint8(pb.ID_MSG_Generate) | CompressedFlag, 0, 0, 0x10, 0, 0xff}
	_, err := (&MsgProtocol{}).ReadPacket(bytes.NewReader(buff))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func Test_CompressedRawLengthLimit(t *testing.T) {
	buff := []byte{0, 6, uint8(pb.ID_MSG_Generate) | CompressedFlag, 0, 0, 0, 0, 0, 0}
	binary.BigEndian.PutUint32(buff[MinPacketLen:], MaxRawLen+1)
	_, err := (&MsgProtocol{}).ReadPacket(bytes.NewReader(buff))
	assert.ErrorIs(t, err, ErrCorrupt)

	// the largest allowed payload still round trips
	data := bytes.Repeat([]byte{7}, MaxRawLen)
	buff = NewPacket(uint8(pb.ID_MSG_Generate), data).Compress().Serialize()
	require.NotNil(t, buff)
	ret, err := (&MsgProtocol{}).ReadPacket(bytes.NewReader(buff))
	require.NoError(t, err)
	assert.Equal(t, data, ret.(*Packet).GetData())
}

func Test_UnknownPayload(t *testing.T) {
	assert.Nil(t, NewPacket(1, 42))
	assert.Error(t, NewPacket(1, nil).Unmarshal(42))
}

func Benchmark_Packet(b *testing.B) {
	msg := &pb.C2S_CommandMsg{}
	for i := int32(0); i < 24; i++ {
		msg.Commands = append(msg.Commands, &pb.Command{Number: i, Tick: i, MoveY: 1})
	}
	buf := NewPacket(uint8(pb.ID_MSG_Command), msg).Serialize()

	proto := &MsgProtocol{}
	r := bytes.NewBuffer(nil)

	for i := 0; i < b.N; i++ {
		r.Write(buf)
		if _, err := proto.ReadPacket(r); nil != err {
			b.Error(err)
		}
	}
}
