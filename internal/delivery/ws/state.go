package ws

import "errors"

var (
	// ErrInvalidURL is returned by Connect when the server URL cannot be dialed at all
	ErrInvalidURL = errors.New("ws: invalid server url")

	// ErrReconnectExhausted is reported once every retry has failed
	ErrReconnectExhausted = errors.New("ws: reconnect attempts exhausted")

	// ErrClosed is returned to Connect callers when Disconnect is called
	ErrClosed = errors.New("ws: connection closed by client")
)

// State is the connection manager's lifecycle state
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateEvent describes one state transition
type StateEvent struct {
	Old         State
	New         State
	Attempt     int   // retry number when New is StateReconnecting
	MaxAttempts int
	Err         error // ErrReconnectExhausted on terminal failure
}

// CloseEvent is emitted whenever a connection (or connection attempt) ends
type CloseEvent struct {
	Code   int
	Reason string
	Manual bool // true when Disconnect caused it
}
