package network

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ErrPacketTooLarge length prefix above the protocol limit
var ErrPacketTooLarge = errors.New("network: packet larger than the limit")

// Packet a framed message
type Packet interface {
	Serialize() []byte
}

// Protocol reads one Packet from a stream
type Protocol interface {
	ReadPacket(conn io.Reader) (Packet, error)
}

// DefaultPacket |len:uint32|body|
type DefaultPacket struct {
	buff []byte
}

// Serialize framed bytes
func (p *DefaultPacket) Serialize() []byte {
	return p.buff
}

// GetBody payload without the length prefix
func (p *DefaultPacket) GetBody() []byte {
	return p.buff[4:]
}

// NewDefaultPacket 构造
func NewDefaultPacket(buff []byte) *DefaultPacket {
	p := &DefaultPacket{}

	p.buff = make([]byte, 4+len(buff))
	binary.BigEndian.PutUint32(p.buff[0:4], uint32(len(buff)))
	copy(p.buff[4:], buff)

	return p
}

// DefaultProtocol reads DefaultPacket; MaxLength 0 means 64KB
type DefaultProtocol struct {
	MaxLength uint32
}

// ReadPacket Protocol
func (p *DefaultProtocol) ReadPacket(r io.Reader) (Packet, error) {
	var (
		lengthBytes = make([]byte, 4)
		length      uint32
	)

	limit := p.MaxLength
	if 0 == limit {
		limit = 64 * 1024
	}

	// read length
	if _, err := io.ReadFull(r, lengthBytes); err != nil {
		return nil, err
	}
	if length = binary.BigEndian.Uint32(lengthBytes); length > limit {
		return nil, errors.Wrapf(ErrPacketTooLarge, "length %d limit %d", length, limit)
	}

	buff := make([]byte, length)

	// read body
	if _, err := io.ReadFull(r, buff); err != nil {
		return nil, err
	}

	return NewDefaultPacket(buff), nil
}
