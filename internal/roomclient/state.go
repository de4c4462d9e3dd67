package roomclient

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnectPending
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnectPending:
		return "reconnect_pending"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type event interface{ isEvent() }

type dialedEvent struct {
	generation uint64
	conn       Conn
}

type dialFailedEvent struct {
	generation uint64
	err        error
}

type closedEvent struct {
	generation uint64
	err        error
}

type timerFiredEvent struct{ generation uint64 }

type snapshotEvent struct{ reply chan Snapshot }

type stopEvent struct{ reply chan struct{} }

func (dialedEvent) isEvent()     {}
func (dialFailedEvent) isEvent() {}
func (closedEvent) isEvent()     {}
func (timerFiredEvent) isEvent() {}
func (snapshotEvent) isEvent()   {}
func (stopEvent) isEvent()       {}
