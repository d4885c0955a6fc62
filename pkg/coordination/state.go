package coordination

// StopState is the run/stop state of a job on one server
type StopState int

const (
	Running StopState = iota
	ManuallyStopped
	Crashed
)

func (s StopState) String() string {
	switch s {
	case ManuallyStopped:
		return "manually_stopped"
	case Crashed:
		return "crashed"
	default:
		return "running"
	}
}
