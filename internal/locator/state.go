package locator

// State is the lifecycle stage of a localization run
type State int32

const (
	Idle State = iota
	ServerStarting
	Running
	ShuttingDown
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ServerStarting:
		return "server-starting"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting-down"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}
