package scope

import "fmt"

// State represents the lifecycle state of a Session. The intended transitions:
//
// disconnected -> connecting
// connecting   -> connected | disconnected | faulted
// connected    -> armed | disconnected | faulted
// armed        -> capturing | disconnected | faulted
// capturing    -> connected | disconnected | faulted
// faulted      -> disconnected
//
// Transitions outside this set are rejected by setState.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateArmed        State = "armed"
	StateCapturing    State = "capturing"
	StateFaulted      State = "faulted"
)

func allowedTransition(cur, next State) bool {
	if next == StateFaulted {
		return cur != StateDisconnected && cur != StateFaulted
	}
	if next == StateDisconnected {
		return cur != StateDisconnected
	}
	switch cur {
	case StateDisconnected:
		return next == StateConnecting
	case StateConnecting:
		return next == StateConnected
	case StateConnected:
		return next == StateArmed
	case StateArmed:
		return next == StateCapturing
	case StateCapturing:
		return next == StateConnected
	default:
		return false
	}
}

// errInvalidTransition reports a lifecycle bug, not a device problem.
type errInvalidTransition struct{ from, to State }

func (e errInvalidTransition) Error() string {
	return fmt.Sprintf("scope: invalid state transition %s -> %s", e.from, e.to)
}
