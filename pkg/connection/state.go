package connection

// State is the connection's lifecycle phase. Exactly one state holds at
// any instant; transitions happen only under the connection's lock.
type State int

const (
	// StateNotRunning means no transport exists and no background work
	// is in flight. Connect is only legal from here.
	StateNotRunning State = iota

	// StateConnecting means the initial dial is in progress.
	StateConnecting

	// StateRunning means the transport is open and the receive loop is
	// processing frames.
	StateRunning

	// StateReconnecting means the transport was lost while running and
	// the engine is re-dialing.
	StateReconnecting

	// StateDisconnecting means a Disconnect call is tearing the
	// connection down.
	StateDisconnecting
)

// String returns the state's lowercase name.
func (s State) String() string {
	switch s {
	case StateNotRunning:
		return "not-running"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// settled reports whether the state is stable, i.e. not a transition
// that callers of Send or Disconnect should wait out.
func (s State) settled() bool {
	return s != StateConnecting && s != StateReconnecting
}
