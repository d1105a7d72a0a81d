// Package pb message ids and payloads of the snapsync envelope.
//
// Payloads use the protobuf wire format through protowire, except the
// replication datagrams which are carried as raw bytes.
package pb

import "fmt"

// ID message id, 7 bits
type ID uint8

const (
	ID_MSG_BEGIN ID = iota

	ID_MSG_Connect       // C2S_ConnectMsg / S2C_ConnectMsg
	ID_MSG_Heartbeat     // empty
	ID_MSG_Generate      // generate datagram, reliable
	ID_MSG_Delete        // delete datagram, reliable
	ID_MSG_Snapshot      // S2C_SnapshotMsg, unreliable
	ID_MSG_TickAck       // wrapperspb.Int32Value, last fully applied tick
	ID_MSG_Command       // C2S_CommandMsg, unreliable
	ID_MSG_ObjectMessage // object_id, message_id, payload
	ID_MSG_Close         // empty, room closing

	ID_MSG_END
)

var idNames = [...]string{
	ID_MSG_BEGIN:         "MSG_BEGIN",
	ID_MSG_Connect:       "MSG_Connect",
	ID_MSG_Heartbeat:     "MSG_Heartbeat",
	ID_MSG_Generate:      "MSG_Generate",
	ID_MSG_Delete:        "MSG_Delete",
	ID_MSG_Snapshot:      "MSG_Snapshot",
	ID_MSG_TickAck:       "MSG_TickAck",
	ID_MSG_Command:       "MSG_Command",
	ID_MSG_ObjectMessage: "MSG_ObjectMessage",
	ID_MSG_Close:         "MSG_Close",
	ID_MSG_END:           "MSG_END",
}

func (x ID) String() string {
	if int(x) < len(idNames) {
		return idNames[x]
	}
	return fmt.Sprintf("ID(%d)", uint8(x))
}

// ERRORCODE connect result
type ERRORCODE int32

const (
	ERRORCODE_ERR_Ok ERRORCODE = iota
	ERRORCODE_ERR_NoRoom
	ERRORCODE_ERR_RoomState
	ERRORCODE_ERR_NoPlayer
	ERRORCODE_ERR_Token
	ERRORCODE_ERR_Schema // schema fingerprint mismatch
)

var errorNames = [...]string{
	ERRORCODE_ERR_Ok:        "ERR_Ok",
	ERRORCODE_ERR_NoRoom:    "ERR_NoRoom",
	ERRORCODE_ERR_RoomState: "ERR_RoomState",
	ERRORCODE_ERR_NoPlayer:  "ERR_NoPlayer",
	ERRORCODE_ERR_Token:     "ERR_Token",
	ERRORCODE_ERR_Schema:    "ERR_Schema",
}

func (x ERRORCODE) String() string {
	if x >= 0 && int(x) < len(errorNames) {
		return errorNames[x]
	}
	return fmt.Sprintf("ERRORCODE(%d)", int32(x))
}
