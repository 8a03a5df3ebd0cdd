// Package tcp provides the plain TCP transport to the relay.
package tcp

import (
	"context"
	"fmt"
	"net"

	"github.com/crisismesh/meshchat/internal/transport"
)

// Dialer dials plain TCP connections.
type Dialer struct{}

// Dial connects to the relay at addr (host:port).
func (Dialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return &Conn{conn: conn}, nil
}

// Conn wraps a net.Conn as a transport.Conn.
type Conn struct {
	conn net.Conn
}

// NewConn wraps an established net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

func (c *Conn) Read(buf []byte) (int, error) {
	return c.conn.Read(buf)
}

func (c *Conn) Write(data []byte) (int, error) {
	return c.conn.Write(data)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
