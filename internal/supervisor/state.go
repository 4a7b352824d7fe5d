package supervisor

// State is the lifecycle state of the supervised peer.
//
// Transitions are strictly ordered:
//
//	Constructing → Ready → Listening → (Instrumented) → Running → ShuttingDown → Stopped
//
// Instrumented is skipped when no scraper credentials are configured.
type State int32

const (
	StateConstructing State = iota
	StateReady
	StateListening
	StateInstrumented
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateReady:
		return "ready"
	case StateListening:
		return "listening"
	case StateInstrumented:
		return "instrumented"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
