package schema

import (
	"github.com/pkg/errors"
)

// MessageFlags who may send a message
type MessageFlags uint8

const (
	MessageToServer  MessageFlags = 1 << iota // client -> server
	MessageToClient                           // server -> client
	MessageOwnerOnly                          // only the owning client may send
)

// Sender origin of a dispatched message
type Sender struct {
	ID     uint64
	Server bool
	Owner  bool
}

// MessageHandler handles a message addressed to obj
type MessageHandler func(obj any, from Sender, payload []byte)

// Message declared class message
type Message struct {
	Name    string
	Flags   MessageFlags
	Handler MessageHandler
}

var (
	ErrUnknownMessage = errors.New("schema: unknown message")
	ErrNotPermitted   = errors.New("schema: message not permitted")
)

// Messages inherited messages sorted by name; the index is the message id.
func (c *Class) Messages() []*Message {
	c.Flatten()
	return c.inheritedMessages
}

// MessageID id of the named message
func (c *Class) MessageID(name string) (uint16, bool) {
	c.Flatten()
	i, ok := c.messageIndex[name]
	return uint16(i), ok
}

// Dispatch checks the message permissions and runs its handler.
func (c *Class) Dispatch(id uint16, obj any, from Sender, payload []byte) error {
	messages := c.Messages()
	if int(id) >= len(messages) {
		return errors.Wrapf(ErrUnknownMessage, "class %s id %d", c.Name, id)
	}
	m := messages[id]

	switch {
	case from.Server && m.Flags&MessageToClient == 0,
		!from.Server && m.Flags&MessageToServer == 0,
		!from.Server && m.Flags&MessageOwnerOnly != 0 && !from.Owner:
		return errors.Wrapf(ErrNotPermitted, "class %s message %s from %d", c.Name, m.Name, from.ID)
	}

	m.Handler(obj, from, payload)
	return nil
}

// AppendMessage object_id:uint32, message_id:uint16, payload
func AppendMessage(buf []byte, objectID uint32, id uint16, payload []byte) []byte {
	w := NewWriter(buf)
	w.PutUint32(objectID)
	w.PutUint16(id)
	w.PutRaw(payload)
	return w.Bytes()
}

// ParseMessage inverse of AppendMessage
func ParseMessage(data []byte) (objectID uint32, id uint16, payload []byte, err error) {
	r := NewReader(data)
	objectID = r.Uint32()
	id = r.Uint16()
	if err = r.Err(); nil != err {
		return 0, 0, nil, errors.Wrap(err, "parse message")
	}
	return objectID, id, r.Rest(), nil
}
