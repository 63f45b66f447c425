package run

// State is the run lifecycle. A run moves Initialized -> Running exactly
// once and ends in exactly one terminal state; there are no transitions out
// of a terminal state.
type State int8

const (
	Initialized State = iota
	Running
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
