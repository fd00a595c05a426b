package engine

// state is a step of the run state machine.
type state int

const (
	stateInit state = iota
	stateProvisioning
	stateDiscovering
	stateRunning
	stateCompleting
	stateFailed
	stateClosing
	stateDone
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateProvisioning:
		return "provisioning"
	case stateDiscovering:
		return "discovering"
	case stateRunning:
		return "running"
	case stateCompleting:
		return "completing"
	case stateFailed:
		return "failed"
	case stateClosing:
		return "closing"
	case stateDone:
		return "done"
	}
	return "unknown"
}
