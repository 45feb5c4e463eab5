package socket

// State is the lifecycle state of a Server.
type State int32

const (
	StateCreated State = iota
	StateListening
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
