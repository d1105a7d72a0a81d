package pb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestConnectMsg(t *testing.T) {
	in := &C2S_ConnectMsg{PlayerID: 7, RoomID: 1, Token: "secret", Fingerprint: 0xdeadbeefcafe}
	out := &C2S_ConnectMsg{}
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in, out)

	var nilMsg *C2S_ConnectMsg
	assert.Equal(t, uint64(0), nilMsg.GetPlayerID())
	assert.Equal(t, "", nilMsg.GetToken())
}

func TestConnectAckNegativeTick(t *testing.T) {
	in := &S2C_ConnectMsg{ErrorCode: ERRORCODE_ERR_Schema, ObjectID: 3, TickRate: 30, Tick: -1, Fingerprint: 9}
	out := &S2C_ConnectMsg{}
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in, out)
	assert.Equal(t, "ERR_Schema", out.GetErrorCode().String())
}

func TestCommandMsgSkipsUnknownFields(t *testing.T) {
	in := &C2S_CommandMsg{Commands: []*Command{
		{Number: 99, Tick: 99, MoveY: 1},
		{Number: 100, Tick: 100, MoveX: -0.5, Yaw: 90, Buttons: 3},
	}}
	b := in.Marshal()
	// a newer peer may append fields
	b = protowire.AppendTag(b, 15, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	out := &C2S_CommandMsg{}
	require.NoError(t, out.Unmarshal(b))
	assert.Equal(t, in.Commands, out.Commands)
}

func TestCommandMsgTruncated(t *testing.T) {
	b := (&C2S_CommandMsg{Commands: []*Command{{Number: 1}}}).Marshal()
	assert.Error(t, (&C2S_CommandMsg{}).Unmarshal(b[:len(b)-1]))
}

func TestSnapshotMsg(t *testing.T) {
	in := &S2C_SnapshotMsg{CommandAck: -1, TickBase: 42, Data: []byte{1, 2, 3}}
	out := &S2C_SnapshotMsg{}
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in, out)
	assert.ErrorIs(t, out.Unmarshal([]byte{1, 2}), ErrShortSnapshot)
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "MSG_Snapshot", ID_MSG_Snapshot.String())
	assert.Equal(t, "ID(99)", ID(99).String())
}
