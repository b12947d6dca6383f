package playback

// State is a step of the playback lifecycle:
// Idle -> Validating -> (DryRunShortCircuit | Playing) -> Completed | Failed
type State int

const (
	Idle State = iota
	Validating
	DryRunShortCircuit
	Playing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case DryRunShortCircuit:
		return "dry_run"
	case Playing:
		return "playing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition follows s
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}
