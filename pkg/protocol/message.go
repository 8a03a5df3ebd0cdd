// Package protocol defines the relay wire format: UTF-8 text frames, each
// terminated by a single newline byte, with no length prefix or other
// structure.
package protocol

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Delimiter is the frame terminator byte.
const Delimiter = '\n'

// ErrEmbeddedNewline is returned when a message body contains the frame
// terminator. Such messages are not representable on the wire and are
// rejected rather than escaped.
var ErrEmbeddedNewline = errors.New("message contains embedded newline")

// Origin identifies who authored a message.
type Origin int

const (
	// OriginSelf marks messages authored locally and sent to the relay.
	OriginSelf Origin = iota
	// OriginPeer marks messages received from the relay.
	OriginPeer
)

// String returns the string representation of Origin.
func (o Origin) String() string {
	switch o {
	case OriginSelf:
		return "SELF"
	case OriginPeer:
		return "PEER"
	default:
		return "UNKNOWN"
	}
}

// Message is one chat message observed by this client. Messages are
// immutable once created.
type Message struct {
	ID        string
	Text      string
	Origin    Origin
	Timestamp time.Time
}

// NewMessage creates a Message with a unique identifier and the current
// time. UUIDs are used instead of timestamps so identifiers stay unique
// under same-millisecond bursts.
func NewMessage(text string, origin Origin) Message {
	return Message{
		ID:        uuid.NewString(),
		Text:      text,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

// EncodeFrame frames text for the wire by appending the terminator byte.
// Text containing the terminator is rejected with ErrEmbeddedNewline.
func EncodeFrame(text string) ([]byte, error) {
	if strings.ContainsRune(text, Delimiter) {
		return nil, ErrEmbeddedNewline
	}
	buf := make([]byte, 0, len(text)+1)
	buf = append(buf, text...)
	buf = append(buf, Delimiter)
	return buf, nil
}
