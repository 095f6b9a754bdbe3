// Copyright 2024-2026 Aiku AI

package relay

// State is the lifecycle state of the source connection.
//
// The cycle is Disconnected → Connecting → Handshaking → JoinPending →
// Active → Disconnected. Any transport error moves straight to
// Disconnected. There is no terminal state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateJoinPending
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateJoinPending:
		return "join_pending"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}
