package mcpmgr

// State is the lifecycle position of one server's connection.
//
//	Absent -> Connecting -> Connected -> Absent (evicted)
//	              |
//	              +-> Failed -> Connecting (next request)
type State string

const (
	StateAbsent     State = "absent"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateFailed     State = "failed"
)

var transitions = map[State][]State{
	StateAbsent:     {StateConnecting},
	StateConnecting: {StateConnected, StateFailed, StateAbsent},
	StateConnected:  {StateConnected, StateAbsent},
	StateFailed:     {StateConnecting, StateAbsent},
}

// CanTransition reports whether moving from s to next is a legal step.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (s State) String() string { return string(s) }
