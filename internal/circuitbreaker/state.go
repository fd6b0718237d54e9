package circuitbreaker

type State int

const (
	// StateClosed - normal operation, provider calls pass through
	StateClosed State = iota

	// StateOpen - provider calls are blocked until the open window elapses
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
