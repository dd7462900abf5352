package job

type State int

const (
	// StateRunning indicates the job's process group is running.
	StateRunning State = iota

	// StateStopped indicates the group leader reported it was stopped. The job
	// can be resumed with fg or bg.
	StateStopped

	// StateDone indicates every process in the group has exited or been
	// terminated by a signal. A Done job is printed once and removed.
	StateDone
)

// NOTE: Keep in sync with the State values.
var states = []string{
	"Running",
	"Stopped",
	"Done",
}

// String returns the status word printed by jobs.
func (s State) String() string {
	if int(s) < 0 || int(s) >= len(states) {
		return "Unknown"
	}

	return states[s]
}

// Marker identifies the current (+) and previous (-) jobs.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerPrevious
	MarkerCurrent
)

func (m Marker) Rune() rune {
	switch m {
	case MarkerCurrent:
		return '+'
	case MarkerPrevious:
		return '-'
	default:
		return ' '
	}
}

func (m Marker) String() string {
	return string(m.Rune())
}
