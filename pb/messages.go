package pb

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrShortSnapshot snapshot message without its header
var ErrShortSnapshot = errors.New("pb: snapshot message shorter than its header")

// C2S_ConnectMsg join request
type C2S_ConnectMsg struct {
	PlayerID    uint64 // 1
	RoomID      uint64 // 2
	Token       string // 3
	Fingerprint uint64 // 4, schema fingerprint of the client
}

func (m *C2S_ConnectMsg) GetPlayerID() uint64 {
	if nil == m {
		return 0
	}
	return m.PlayerID
}

func (m *C2S_ConnectMsg) GetRoomID() uint64 {
	if nil == m {
		return 0
	}
	return m.RoomID
}

func (m *C2S_ConnectMsg) GetToken() string {
	if nil == m {
		return ""
	}
	return m.Token
}

func (m *C2S_ConnectMsg) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, m.PlayerID)
	b = appendVarint(b, 2, m.RoomID)
	if m.Token != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, m.Token)
	}
	b = appendFixed64(b, 4, m.Fingerprint)
	return b
}

func (m *C2S_ConnectMsg) Unmarshal(b []byte) error {
	*m = C2S_ConnectMsg{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			return consumeVarint(b, &m.PlayerID)
		case num == 2 && typ == protowire.VarintType:
			return consumeVarint(b, &m.RoomID)
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Token = v
			return n
		case num == 4 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			m.Fingerprint = v
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

// S2C_ConnectMsg join result
type S2C_ConnectMsg struct {
	ErrorCode   ERRORCODE // 1
	ObjectID    uint32    // 2, the player's object
	TickRate    int32     // 3
	Tick        int32     // 4, current server tick
	Fingerprint uint64    // 5, schema fingerprint of the server
}

func (m *S2C_ConnectMsg) GetErrorCode() ERRORCODE {
	if nil == m {
		return ERRORCODE_ERR_Ok
	}
	return m.ErrorCode
}

func (m *S2C_ConnectMsg) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.ErrorCode))
	b = appendVarint(b, 2, uint64(m.ObjectID))
	b = appendVarint(b, 3, uint64(int64(m.TickRate)))
	b = appendVarint(b, 4, uint64(int64(m.Tick)))
	b = appendFixed64(b, 5, m.Fingerprint)
	return b
}

func (m *S2C_ConnectMsg) Unmarshal(b []byte) error {
	*m = S2C_ConnectMsg{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		var v uint64
		switch {
		case num == 5 && typ == protowire.Fixed64Type:
			f, n := protowire.ConsumeFixed64(b)
			m.Fingerprint = f
			return n
		case typ != protowire.VarintType:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		n := consumeVarint(b, &v)
		switch num {
		case 1:
			m.ErrorCode = ERRORCODE(int32(v))
		case 2:
			m.ObjectID = uint32(v)
		case 3:
			m.TickRate = int32(v)
		case 4:
			m.Tick = int32(v)
		}
		return n
	})
}

// Command one user command on the wire
type Command struct {
	Number  int32   // 1
	Tick    int32   // 2
	MoveX   float32 // 3
	MoveY   float32 // 4
	MoveZ   float32 // 5
	Yaw     float32 // 6
	Buttons uint32  // 7
}

func (m *Command) append(b []byte) []byte {
	b = appendVarint(b, 1, uint64(int64(m.Number)))
	b = appendVarint(b, 2, uint64(int64(m.Tick)))
	b = appendFloat(b, 3, m.MoveX)
	b = appendFloat(b, 4, m.MoveY)
	b = appendFloat(b, 5, m.MoveZ)
	b = appendFloat(b, 6, m.Yaw)
	b = appendVarint(b, 7, uint64(m.Buttons))
	return b
}

func (m *Command) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch typ {
		case protowire.VarintType:
			var v uint64
			n := consumeVarint(b, &v)
			switch num {
			case 1:
				m.Number = int32(v)
			case 2:
				m.Tick = int32(v)
			case 7:
				m.Buttons = uint32(v)
			}
			return n
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			f := math.Float32frombits(v)
			switch num {
			case 3:
				m.MoveX = f
			case 4:
				m.MoveY = f
			case 5:
				m.MoveZ = f
			case 6:
				m.Yaw = f
			}
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

// C2S_CommandMsg newest command plus unacknowledged backups, oldest first
type C2S_CommandMsg struct {
	Commands []*Command // 1
}

func (m *C2S_CommandMsg) Marshal() []byte {
	var b, nested []byte
	for _, c := range m.Commands {
		nested = c.append(nested[:0])
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, nested)
	}
	return b
}

func (m *C2S_CommandMsg) Unmarshal(b []byte) error {
	*m = C2S_CommandMsg{}
	var err error
	perr := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		c := &Command{}
		if e := c.unmarshal(v); nil != e && nil == err {
			err = e
		}
		m.Commands = append(m.Commands, c)
		return n
	})
	if nil != perr {
		return perr
	}
	return err
}

// S2C_SnapshotMsg |command_ack:int32|tick_base:int32|snapshot datagram|
type S2C_SnapshotMsg struct {
	CommandAck int32 // last user command the server ran
	TickBase   int32 // server tick of that command
	Data       []byte
}

func (m *S2C_SnapshotMsg) Marshal() []byte {
	b := make([]byte, 8, 8+len(m.Data))
	binary.BigEndian.PutUint32(b, uint32(m.CommandAck))
	binary.BigEndian.PutUint32(b[4:], uint32(m.TickBase))
	return append(b, m.Data...)
}

func (m *S2C_SnapshotMsg) Unmarshal(b []byte) error {
	if len(b) < 8 {
		return ErrShortSnapshot
	}
	m.CommandAck = int32(binary.BigEndian.Uint32(b))
	m.TickBase = int32(binary.BigEndian.Uint32(b[4:]))
	m.Data = b[8:]
	return nil
}

func walk(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "pb: tag")
		}
		b = b[n:]
		n = field(num, typ, b)
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "pb: field %d", num)
		}
		b = b[n:]
	}
	return nil
}

func consumeVarint(b []byte, v *uint64) int {
	x, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*v = x
	}
	return n
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if 0 == v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed64(b []byte, num protowire.Number, v uint64) []byte {
	if 0 == v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	if 0 == v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}
