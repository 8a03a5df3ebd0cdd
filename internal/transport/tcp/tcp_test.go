package tcp_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crisismesh/meshchat/internal/transport/tcp"
)

func startEchoServer(t *testing.T) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if n > 0 {
						c.Write(buf[:n])
					}
				}
			}(conn)
		}
	}()

	return listener.Addr().String(), func() { listener.Close() }
}

func TestDialer_RoundTrip(t *testing.T) {
	addr, cleanup := startEchoServer(t)
	defer cleanup()

	conn, err := tcp.Dialer{}.Dial(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("echo me\n"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "echo me\n", string(buf[:n]))
	assert.Equal(t, addr, conn.RemoteAddr().String())
}

func TestDialer_RefusedConnection(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = tcp.Dialer{}.Dial(ctx, addr)
	assert.Error(t, err)
}

func TestDialer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tcp.Dialer{}.Dial(ctx, "127.0.0.1:9")
	assert.Error(t, err)
}
