// Package session implements the connection manager: it owns the relay
// connection, the connection state machine, inbound frame reassembly, and
// outbound transmission, and exposes an ordered message/state stream to
// the presentation layer.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crisismesh/meshchat/internal/history"
	"github.com/crisismesh/meshchat/internal/transport"
	"github.com/crisismesh/meshchat/pkg/protocol"
)

var (
	// ErrNotConnected is returned by Send when the session is not in
	// StateConnected.
	ErrNotConnected = errors.New("not connected to relay")

	// ErrEmptyMessage is returned by Send when the text is empty after
	// trimming whitespace.
	ErrEmptyMessage = errors.New("message is empty")
)

const defaultDialTimeout = 10 * time.Second

// event is one entry of the ordered notification stream. Exactly one of
// msg and state is set.
type event struct {
	msg   *protocol.Message
	state *State
}

// Session is the connection manager for one relay session. A process runs
// a single Session with at most one active connection at a time. All
// methods are safe for concurrent use; subscribers are invoked one event
// at a time, in event order.
type Session struct {
	dialer      transport.Dialer
	logger      *zap.Logger
	dialTimeout time.Duration
	log         *history.Log

	mu         sync.Mutex
	state      State
	conn       transport.Conn
	gen        int // connection generation, invalidates stale callbacks
	cancelDial context.CancelFunc
	queue      []event

	msgHandlers   []func(protocol.Message)
	stateHandlers []func(State)

	// notifyMu admits one event drainer at a time so handlers observe a
	// serialized, ordered stream.
	notifyMu sync.Mutex
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithDialTimeout bounds each connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Session) { s.dialTimeout = d }
}

// WithHistoryCapacity bounds the message log; zero keeps it unbounded.
func WithHistoryCapacity(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.log = history.NewBounded(n)
		}
	}
}

// New creates a Session that dials the relay through dialer.
func New(dialer transport.Dialer, opts ...Option) *Session {
	s := &Session{
		dialer:      dialer,
		logger:      zap.NewNop(),
		dialTimeout: defaultDialTimeout,
		state:       StateDisconnected,
		log:         history.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Log returns the session's message log.
func (s *Session) Log() *history.Log {
	return s.log
}

// OnMessage registers a handler invoked once per appended message, in
// append order.
func (s *Session) OnMessage(h func(protocol.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgHandlers = append(s.msgHandlers, h)
}

// OnStateChange registers a handler invoked once per state transition, in
// transition order.
func (s *Session) OnStateChange(h func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateHandlers = append(s.stateHandlers, h)
}

// Connect starts an asynchronous connection attempt to addr and returns
// immediately. The session transitions to StateConnecting; a failed dial
// lands in StateDisconnected with no error returned to the caller — the
// state transition is the error signal. Connect is a no-op unless the
// session is Disconnected or Closed.
func (s *Session) Connect(addr string) {
	s.mu.Lock()
	if s.state != StateDisconnected && s.state != StateClosed {
		st := s.state
		s.mu.Unlock()
		s.logger.Debug("connect ignored", zap.Stringer("state", st))
		return
	}

	s.gen++
	gen := s.gen
	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout)
	s.cancelDial = cancel
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()
	s.flush()

	go s.dial(ctx, cancel, addr, gen)
}

func (s *Session) dial(ctx context.Context, cancel context.CancelFunc, addr string, gen int) {
	defer cancel()

	conn, err := s.dialer.Dial(ctx, addr)

	s.mu.Lock()
	if gen != s.gen || s.state != StateConnecting {
		// Closed or superseded while the dial was in flight.
		s.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		s.logger.Warn("failed to connect", zap.String("addr", addr), zap.Error(err))
		s.setStateLocked(StateDisconnected)
		s.mu.Unlock()
		s.flush()
		return
	}

	s.conn = conn
	s.cancelDial = nil
	s.setStateLocked(StateConnected)
	s.mu.Unlock()

	s.logger.Info("connected to relay", zap.String("addr", addr))
	s.flush()

	go s.readLoop(conn, gen)
}

// readLoop owns the inbound buffer for one connection instance. A fresh
// Framer per loop means the buffer is reset on every reconnect.
func (s *Session) readLoop(conn transport.Conn, gen int) {
	framer := &protocol.Framer{}
	buf := make([]byte, 4096)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, line := range framer.Feed(buf[:n]) {
				msg := protocol.NewMessage(line, protocol.OriginPeer)
				s.mu.Lock()
				if gen != s.gen {
					s.mu.Unlock()
					return
				}
				s.log.Append(msg)
				s.enqueueLocked(event{msg: &msg})
				s.mu.Unlock()
				s.flush()
			}
		}
		if err != nil {
			if framer.Pending() > 0 {
				s.logger.Debug("discarding unterminated frame tail",
					zap.Int("bytes", framer.Pending()))
				framer.Reset()
			}
			s.connectionLost(conn, gen, err)
			return
		}
	}
}

// connectionLost handles a read failure on the active connection. Remote
// EOF means the relay closed its end (StateClosed); anything else is a
// mid-session transport error (StateDisconnected).
func (s *Session) connectionLost(conn transport.Conn, gen int, err error) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateConnected {
		// Local Close already drove the transition.
		s.mu.Unlock()
		return
	}

	s.conn = nil
	conn.Close()

	if errors.Is(err, io.EOF) {
		s.logger.Info("relay closed the connection")
		s.setStateLocked(StateClosed)
	} else {
		s.logger.Warn("transport error", zap.Error(err))
		s.setStateLocked(StateDisconnected)
	}
	s.mu.Unlock()
	s.flush()
}

// Send frames text with the protocol terminator, writes it to the relay,
// and appends a Self-origin message to the log. It returns
// ErrNotConnected when the session is not connected, ErrEmptyMessage for
// whitespace-only text, and protocol.ErrEmbeddedNewline for text that
// cannot be framed. A write failure drives the state machine to
// StateDisconnected and is returned wrapped.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return ErrEmptyMessage
	}
	frame, err := protocol.EncodeFrame(text)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	conn, gen := s.conn, s.gen
	s.mu.Unlock()

	if _, err := conn.Write(frame); err != nil {
		s.mu.Lock()
		if gen == s.gen && s.state == StateConnected {
			s.conn = nil
			conn.Close()
			s.logger.Warn("transport error", zap.Error(err))
			s.setStateLocked(StateDisconnected)
		}
		s.mu.Unlock()
		s.flush()
		return fmt.Errorf("failed to send message: %w", err)
	}

	msg := protocol.NewMessage(text, protocol.OriginSelf)
	s.mu.Lock()
	s.log.Append(msg)
	s.enqueueLocked(event{msg: &msg})
	s.mu.Unlock()
	s.flush()
	return nil
}

// Close tears the session down: it cancels an in-flight dial, releases
// the socket, and transitions to StateClosed. Close is idempotent and
// safe from any state, including from inside a subscriber. Connect may be
// called again afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.setStateLocked(StateClosed)
	s.mu.Unlock()
	s.flush()
}

// setStateLocked records a transition and queues the notification. Caller
// holds s.mu.
func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("state transition",
		zap.Stringer("from", s.state), zap.Stringer("to", st))
	s.state = st
	s.enqueueLocked(event{state: &st})
}

// enqueueLocked appends an event to the notification queue. Caller holds
// s.mu; queue order is therefore the order transitions and appends were
// observed.
func (s *Session) enqueueLocked(e event) {
	s.queue = append(s.queue, e)
}

// flush drains the event queue, invoking handlers outside the state lock.
// TryLock keeps delivery single-threaded and makes flush reentrancy-safe:
// a handler that triggers further events simply leaves them for the
// drainer already running.
func (s *Session) flush() {
	for {
		if !s.notifyMu.TryLock() {
			return
		}
		s.drain()
		s.notifyMu.Unlock()

		// An event enqueued between the final drain check and the unlock
		// above would otherwise be stranded.
		s.mu.Lock()
		again := len(s.queue) > 0
		s.mu.Unlock()
		if !again {
			return
		}
	}
}

// drain delivers queued events one at a time. Caller holds s.notifyMu.
func (s *Session) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		var msgHandlers []func(protocol.Message)
		var stateHandlers []func(State)
		if e.msg != nil {
			msgHandlers = append(msgHandlers, s.msgHandlers...)
		} else {
			stateHandlers = append(stateHandlers, s.stateHandlers...)
		}
		s.mu.Unlock()

		if e.msg != nil {
			for _, h := range msgHandlers {
				h(*e.msg)
			}
		} else {
			for _, h := range stateHandlers {
				h(*e.state)
			}
		}
	}
}
