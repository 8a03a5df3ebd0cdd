package session

// State is the connection state of a Session. Transitions are the only
// failure signal the presentation layer observes; transport errors never
// surface across the subscription boundary.
type State int

const (
	// StateDisconnected means no connection exists: either none was ever
	// made, a dial failed, or the transport errored mid-session.
	StateDisconnected State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateConnected means the transport is established.
	StateConnected
	// StateClosed means the connection ended deliberately, by local Close
	// or by the relay closing its end. Connect is permitted again.
	StateClosed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
