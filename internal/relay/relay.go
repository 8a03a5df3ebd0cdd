// Package relay implements the chat relay: every newline-delimited frame
// a client sends is rebroadcast to all other connected clients. TCP and
// WebSocket clients are accepted on a single port.
package relay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/crisismesh/meshchat/pkg/protocol"
)

// detectTimeout bounds how long a new connection may stay quiet before it
// is treated as a raw TCP client. WebSocket clients send their handshake
// as soon as they connect, so only listen-only TCP clients ever wait it out.
const detectTimeout = 500 * time.Millisecond

// client is one connected relay client. raw is set at accept time; conn is
// filled in once the protocol is known and is nil until then. Both fields
// are written under the server mutex so Stop and broadcast can read them.
type client struct {
	raw      net.Conn
	conn     conn
	outgoing chan []byte
}

// Server is the relay server.
type Server struct {
	address  string
	listener net.Listener
	clients  map[*client]bool
	mu       sync.RWMutex
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a relay Server listening on address.
func New(address string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		address: address,
		clients: make(map[*client]bool),
		quit:    make(chan struct{}),
		logger:  logger,
	}
}

// Start listens and serves until Stop is called. It blocks.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("relay started", zap.String("addr", listener.Addr().String()))

	for {
		netConn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				s.logger.Warn("failed to accept connection", zap.Error(err))
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(netConn)
	}
}

// Stop closes the listener and every client connection, then waits for
// the per-client goroutines to finish. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)

		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		for c := range s.clients {
			if c.conn != nil {
				c.conn.Close()
			} else {
				c.raw.Close()
			}
		}
		s.mu.Unlock()

		s.wg.Wait()
	})
}

// Addr returns the listening address, or "" before Start has bound it.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// handleConn registers the client, detects its protocol, and runs its read
// loop until the connection ends. Registration happens before detection so
// that a client which never sends anything still receives broadcasts and so
// that Stop can reach every connection.
func (s *Server) handleConn(netConn net.Conn) {
	defer s.wg.Done()

	cl := &client{
		raw:      netConn,
		outgoing: make(chan []byte, 16),
	}

	s.mu.Lock()
	s.clients[cl] = true
	s.mu.Unlock()

	s.logger.Info("client connected", zap.String("remote", netConn.RemoteAddr().String()))

	defer func() {
		// broadcast sends while holding the read lock, so once the write
		// lock has been taken and released nobody can still be sending:
		// closing outgoing after the delete is safe.
		s.mu.Lock()
		delete(s.clients, cl)
		s.mu.Unlock()
		close(cl.outgoing)
		if cl.conn != nil {
			cl.conn.Close()
		} else {
			netConn.Close()
		}
		s.logger.Info("client disconnected", zap.String("remote", netConn.RemoteAddr().String()))
	}()

	c, err := s.detectProtocol(netConn)
	if err != nil {
		s.logger.Warn("failed to establish client connection",
			zap.String("remote", netConn.RemoteAddr().String()), zap.Error(err))
		return
	}

	s.mu.Lock()
	cl.conn = c
	s.mu.Unlock()

	s.wg.Add(1)
	go s.writeLoop(cl)

	framer := &protocol.Framer{}
	buf := make([]byte, 4096)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			for _, line := range framer.Feed(buf[:n]) {
				s.logger.Debug("relaying frame",
					zap.String("from", c.RemoteAddr().String()),
					zap.Int("len", len(line)))
				frame, err := protocol.EncodeFrame(line)
				if err != nil {
					continue
				}
				s.broadcast(frame, cl)
			}
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("client read error", zap.Error(err))
			}
			return
		}
	}
}

// detectProtocol peeks at the first bytes: an HTTP request means a
// WebSocket upgrade, anything else is treated as a raw TCP client. A
// connection that stays quiet past detectTimeout is a raw TCP client too.
func (s *Server) detectProtocol(netConn net.Conn) (conn, error) {
	reader := bufio.NewReader(netConn)

	netConn.SetReadDeadline(time.Now().Add(detectTimeout))
	peek, err := reader.Peek(4)
	netConn.SetReadDeadline(time.Time{})
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			// Nothing sent yet: a listen-only TCP client. Any bytes the
			// peek did buffer stay in reader and are read normally.
			return &tcpConn{conn: netConn, reader: reader}, nil
		}
		return nil, fmt.Errorf("failed to peek connection: %w", err)
	}

	// A WebSocket handshake is always a GET request, so matching just that
	// method is enough; chat text starting with any other word stays TCP.
	if !bytes.HasPrefix(peek, []byte("GET ")) {
		return &tcpConn{conn: netConn, reader: reader}, nil
	}

	// The buffered reader already holds part of the request, so the
	// upgrader must read through it.
	rw := struct {
		io.Reader
		io.Writer
	}{reader, netConn}
	if _, err := (ws.Upgrader{}).Upgrade(rw); err != nil {
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}
	return &wsConn{conn: netConn, rw: rw}, nil
}

// writeLoop drains a client's outgoing queue onto its connection.
func (s *Server) writeLoop(cl *client) {
	defer s.wg.Done()
	for data := range cl.outgoing {
		if _, err := cl.conn.Write(data); err != nil {
			s.logger.Debug("failed to write to client", zap.Error(err))
			return
		}
	}
}

// broadcast queues data for every client except the sender. Clients whose
// queue is full are skipped rather than allowed to stall the relay.
func (s *Server) broadcast(data []byte, sender *client) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for cl := range s.clients {
		if cl == sender {
			continue
		}
		select {
		case cl.outgoing <- data:
		default:
			s.logger.Warn("client queue full, dropping frame",
				zap.String("remote", cl.raw.RemoteAddr().String()))
		}
	}
}
