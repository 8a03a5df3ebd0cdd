package relay_test

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crisismesh/meshchat/internal/relay"
)

func startRelay(t *testing.T) (*relay.Server, string) {
	t.Helper()

	srv := relay.New("127.0.0.1:0", nil)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// Wait for the listener to come up.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("relay did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(func() {
		srv.Stop()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("relay did not stop")
		}
	})
	return srv, srv.Addr()
}

func dialRelay(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readLine(t *testing.T, conn net.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	return line
}

func waitForClients(t *testing.T, srv *relay.Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for srv.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, srv.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelay_BroadcastsToOtherClients(t *testing.T) {
	srv, addr := startRelay(t)

	alice := dialRelay(t, addr)
	bob := dialRelay(t, addr)
	carol := dialRelay(t, addr)
	waitForClients(t, srv, 3)

	_, err := alice.Write([]byte("need water at shelter 4\n"))
	require.NoError(t, err)

	assert.Equal(t, "need water at shelter 4\n", readLine(t, bob))
	assert.Equal(t, "need water at shelter 4\n", readLine(t, carol))
}

func TestRelay_DoesNotEchoToSender(t *testing.T) {
	srv, addr := startRelay(t)

	alice := dialRelay(t, addr)
	bob := dialRelay(t, addr)
	waitForClients(t, srv, 2)

	_, err := alice.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", readLine(t, bob))

	alice.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	_, err = alice.Read(buf)
	var nerr net.Error
	require.ErrorAs(t, err, &nerr)
	assert.True(t, nerr.Timeout())
}

func TestRelay_ReframesSplitInput(t *testing.T) {
	srv, addr := startRelay(t)

	alice := dialRelay(t, addr)
	bob := dialRelay(t, addr)
	waitForClients(t, srv, 2)

	// The sender's frame arrives in two TCP segments; the receiver still
	// gets exactly one frame.
	_, err := alice.Write([]byte("hel"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = alice.Write([]byte("lo\n"))
	require.NoError(t, err)

	assert.Equal(t, "hello\n", readLine(t, bob))
}

func TestRelay_ListenOnlyClientReceivesBroadcasts(t *testing.T) {
	srv, addr := startRelay(t)

	// bob never sends a byte. He must be registered the moment he connects
	// and still receive everything the others say.
	bob := dialRelay(t, addr)
	waitForClients(t, srv, 1)

	alice := dialRelay(t, addr)
	waitForClients(t, srv, 2)
	_, err := alice.Write([]byte("evac route is clear\n"))
	require.NoError(t, err)

	assert.Equal(t, "evac route is clear\n", readLine(t, bob))
}

func TestRelay_StopReturnsWithSilentClient(t *testing.T) {
	srv, addr := startRelay(t)

	dialRelay(t, addr)
	waitForClients(t, srv, 1)

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return while a quiet client was connected")
	}
}

func TestRelay_ClientDisconnectUnregisters(t *testing.T) {
	srv, addr := startRelay(t)

	alice := dialRelay(t, addr)
	bob := dialRelay(t, addr)
	waitForClients(t, srv, 2)

	alice.Close()
	waitForClients(t, srv, 1)

	// Remaining clients keep working.
	carol := dialRelay(t, addr)
	waitForClients(t, srv, 2)
	_, err := carol.Write([]byte("still here\n"))
	require.NoError(t, err)
	assert.Equal(t, "still here\n", readLine(t, bob))
}
