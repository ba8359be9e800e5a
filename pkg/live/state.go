package live

// State is the bridge lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateInterrupted
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateInterrupted:
		return "interrupted"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed
}

// Active reports whether the session is exchanging audio.
func (s State) Active() bool {
	return s == StateStreaming || s == StateInterrupted
}
