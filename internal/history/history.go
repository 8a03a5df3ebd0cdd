// Package history provides the append-only message log rendered by the
// presentation layer.
package history

import (
	"sync"

	"github.com/crisismesh/meshchat/pkg/protocol"
)

// Log is an ordered, append-only sequence of messages. Insertion order is
// the causal order of send/receive events observed by this client; entries
// are never reordered or mutated. A positive capacity turns the log into a
// ring that evicts the oldest entry on overflow; zero means unbounded.
type Log struct {
	mu       sync.RWMutex
	messages []protocol.Message
	capacity int
}

// New creates an unbounded Log.
func New() *Log {
	return &Log{}
}

// NewBounded creates a Log holding at most capacity messages.
func NewBounded(capacity int) *Log {
	return &Log{capacity: capacity}
}

// Append adds a message to the end of the log.
func (l *Log) Append(msg protocol.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, msg)
	if l.capacity > 0 && len(l.messages) > l.capacity {
		n := copy(l.messages, l.messages[len(l.messages)-l.capacity:])
		l.messages = l.messages[:n]
	}
}

// All returns a snapshot of the log contents at call time.
func (l *Log) All() []protocol.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]protocol.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of logged messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
