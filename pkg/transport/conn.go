// Package transport hosts the TLS-secured, message-oriented socket layer
// shared by every hydromaas daemon. Servers run one goroutine per accepted
// connection and hand each connection to a Dispatcher; clients dial the same
// endpoints over wss.
package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a message-oriented wrapper around a websocket connection.
// Receive and Send exchange whole JSON text frames. Writes are serialized
// internally; reads must stay on a single goroutine.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Receive blocks until the next frame arrives and returns its payload.
func (c *Conn) Receive() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Send writes one text frame. Safe for concurrent use.
func (c *Conn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// SetReadDeadline bounds the next Receive call.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// RemoteIP returns the peer's IP address without the port.
func (c *Conn) RemoteIP() string {
	addr := c.ws.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// IsClosed reports whether err indicates the peer ended the connection
// normally, as opposed to a protocol or transport failure.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
