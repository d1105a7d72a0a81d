package pb_packet

import (
	"encoding/binary"
	"io"

	l4g "github.com/alecthomas/log4go"
	"github.com/byebyebruce/snapsync/pkg/network"
	"github.com/golang/protobuf/proto"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

const (
	DataLen      = 2
	MessageIDLen = 1

	MinPacketLen = DataLen + MessageIDLen
	MaxPacketLen = 1<<16 - 1
	MaxMessageID = 1<<7 - 1

	// CompressedFlag high bit of the id: data is |rawLen:uint32|lz4 block|
	CompressedFlag = 0x80
	// CompressThreshold payloads shorter than this are never compressed
	CompressThreshold = 256
	// MaxRawLen largest payload a compressed packet may expand to
	MaxRawLen = MaxPacketLen * 8
)

// ErrCorrupt compressed data that does not decompress
var ErrCorrupt = errors.New("pb_packet: corrupt compressed data")

/*

|--totalDataLen(uint16)--|--msgID(uint8)--|--------------data--------------|
|-------------2----------|--------1-------|---------(totalDataLen)---------|

msgID&0x80 != 0: data = |rawLen(uint32)|lz4 block|

*/

// Marshaler messages encoding themselves
type Marshaler interface {
	Marshal() []byte
}

// Unmarshaler messages decoding themselves
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// Packet 消息
type Packet struct {
	id       uint8
	data     []byte
	compress bool
}

func (p *Packet) GetMessageID() uint8 {
	return p.id
}

func (p *Packet) GetData() []byte {
	return p.data
}

// Compress marks the packet for lz4 compression when it is large enough
func (p *Packet) Compress() *Packet {
	p.compress = true
	return p
}

func (p *Packet) Serialize() []byte {
	data, id := p.data, p.id
	if p.compress && len(data) >= CompressThreshold && len(data) <= MaxRawLen {
		if c, ok := compress(data); ok {
			data, id = c, id|CompressedFlag
		}
	}
	if len(data) > MaxPacketLen {
		l4g.Error("[Packet] msg: %d data %d bytes exceeds %d", p.id, len(data), MaxPacketLen)
		return nil
	}

	buff := make([]byte, MinPacketLen, MinPacketLen+len(data))
	binary.BigEndian.PutUint16(buff, uint16(len(data)))
	buff[DataLen] = id
	return append(buff, data...)
}

func (p *Packet) Unmarshal(m interface{}) error {
	switch v := m.(type) {
	case Unmarshaler:
		return v.Unmarshal(p.data)
	case proto.Message:
		return proto.Unmarshal(p.data, v)
	}
	return errors.Errorf("pb_packet: cannot unmarshal into %T", m)
}

func NewPacket(id uint8, msg interface{}) *Packet {

	p := &Packet{
		id: id,
	}

	switch v := msg.(type) {
	case []byte:
		p.data = v
	case Marshaler:
		p.data = v.Marshal()
	case proto.Message:
		if mdata, err := proto.Marshal(v); err == nil {
			p.data = mdata
		} else {
			l4g.Error("[NewPacket] proto marshal msg: %d error: %v",
				id, err)
			return nil
		}
	case nil:
	default:
		l4g.Error("[NewPacket] error msg type msg: %d", id)
		return nil
	}

	return p
}

func compress(data []byte) ([]byte, bool) {
	out := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	var c lz4.Compressor
	n, err := c.CompressBlock(data, out[4:])
	if nil != err || 0 == n || 4+n >= len(data) {
		return nil, false
	}
	return out[:4+n], true
}

func decompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrCorrupt
	}
	raw := binary.BigEndian.Uint32(data)
	if raw > MaxRawLen {
		return nil, errors.Wrapf(ErrCorrupt, "raw length %d", raw)
	}
	out := make([]byte, raw)
	n, err := lz4.UncompressBlock(data[4:], out)
	if nil != err {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	if n != int(raw) {
		return nil, errors.Wrapf(ErrCorrupt, "got %d of %d bytes", n, raw)
	}
	return out, nil
}

type MsgProtocol struct {
}

func (p *MsgProtocol) ReadPacket(r io.Reader) (network.Packet, error) {

	buff := make([]byte, MinPacketLen, MinPacketLen)

	// data length
	if _, err := io.ReadFull(r, buff); err != nil {
		return nil, err
	}
	dataLen := binary.BigEndian.Uint16(buff)

	// id
	msg := &Packet{
		id: buff[DataLen] &^ CompressedFlag,
	}

	// data
	if dataLen > 0 {
		msg.data = make([]byte, dataLen, dataLen)
		if _, err := io.ReadFull(r, msg.data); err != nil {
			return nil, err
		}
	}

	if buff[DataLen]&CompressedFlag != 0 {
		data, err := decompress(msg.data)
		if nil != err {
			return nil, err
		}
		msg.data = data
		msg.compress = true
	}

	return msg, nil
}
