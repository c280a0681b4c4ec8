package objproxy

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a *websocket.Conn to io.ReadWriteCloser by treating the
// connection as a stream of binary messages: each Write call becomes one
// binary message, and each Read drains the current message before asking
// for the next one.
type wsConn struct {
	conn *websocket.Conn

	readBuf []byte
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.readBuf) == 0 {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.readBuf = data
	}
	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// DialWebSocketHost dials url as a WebSocket connection and wraps it as a
// Host, so a proxy session can traverse an HTTP upgrade just like a raw TCP
// dial, carrying object-proxy frames instead of tunnel control messages.
func DialWebSocketHost(url string, header http.Header, locator ServiceLocator, opts ...HostOption) (*Host, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, err
	}
	return NewHost(newWSConn(conn), locator, opts...), nil
}

// NewHostOverWebSocket wraps an already-established *websocket.Conn (e.g.
// one accepted server-side via websocket.Upgrader) as a Host.
func NewHostOverWebSocket(conn *websocket.Conn, locator ServiceLocator, opts ...HostOption) *Host {
	return NewHost(newWSConn(conn), locator, opts...)
}
