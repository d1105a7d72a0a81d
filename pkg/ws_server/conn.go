package ws_server

import (
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn net.Conn over a websocket. Each Write is one binary message and
// Read streams the payloads of consecutive messages, so the envelope
// framing is unchanged. One reader and one writer at a time.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader
}

// NewConn wraps ws as a net.Conn
func NewConn(ws *websocket.Conn) net.Conn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(b []byte) (int, error) {
	for {
		if nil == c.reader {
			typ, r, err := c.ws.NextReader()
			if nil != err {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(b)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(b []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); nil != err {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) Close() error {
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); nil != err {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

// Dial connects to a websocket endpoint, url like ws://host/ws
func Dial(url string) (net.Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if nil != err {
		return nil, err
	}
	return NewConn(ws), nil
}
