package relay

import (
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// conn abstracts a relay-side client connection, TCP or WebSocket.
type conn interface {
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)
	Close() error
	RemoteAddr() net.Addr
}

// tcpConn wraps a net.Conn whose initial bytes may already sit in the
// protocol-detection reader.
type tcpConn struct {
	conn   net.Conn
	reader io.Reader
}

func (c *tcpConn) Read(buf []byte) (int, error) {
	return c.reader.Read(buf)
}

func (c *tcpConn) Write(data []byte) (int, error) {
	return c.conn.Write(data)
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// wsConn wraps an upgraded WebSocket connection, presenting its binary
// messages as a byte stream. Message remainders that do not fit the read
// buffer are kept for the next call.
type wsConn struct {
	conn          net.Conn
	rw            io.ReadWriter
	readBuffer    []byte
	readBufferPos int
	mu            sync.Mutex
}

func (c *wsConn) Read(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.readBufferPos < len(c.readBuffer) {
		n := copy(buf, c.readBuffer[c.readBufferPos:])
		c.readBufferPos += n
		if c.readBufferPos >= len(c.readBuffer) {
			c.readBuffer = nil
			c.readBufferPos = 0
		}
		return n, nil
	}

	data, err := wsutil.ReadClientBinary(c.rw)
	if err != nil {
		return 0, err
	}

	n := copy(buf, data)
	if n < len(data) {
		c.readBuffer = data[n:]
		c.readBufferPos = 0
	}
	return n, nil
}

func (c *wsConn) Write(data []byte) (int, error) {
	if err := wsutil.WriteServerBinary(c.conn, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (c *wsConn) Close() error {
	_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, nil)
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
