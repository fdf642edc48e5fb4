// Package domain contains core concepts of the chat system.
// This file defines the participant lifecycle states.
// No runtime, network, or UI logic should be added here.
package domain

type SessionState int32

const (
	Connecting SessionState = iota
	Active
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
