package traverse

// State is the engine's position in its per-node cycle.
type State int32

// Engine states. Done is terminal for one Run or Continue call.
const (
	StateIdle State = iota
	StateEnumerating
	StateActivating
	StateClassifying
	StateRecursingChild
	StateAdvancingSibling
	StateDone
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnumerating:
		return "enumerating"
	case StateActivating:
		return "activating"
	case StateClassifying:
		return "classifying"
	case StateRecursingChild:
		return "recursing_child"
	case StateAdvancingSibling:
		return "advancing_sibling"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
