package job

import (
	"fmt"
	"slices"
	"strings"
)

// backgroundMarker terminates a command line that runs in the background.
const backgroundMarker = "&"

// Job is a snapshot of one tracked process group. Values returned by a Table
// are copies and are not updated when the table changes.
type Job struct {
	ID           int
	CommandLine  string
	ProcessGroup int
	State        State
	Marker       Marker

	// members are the pids of the group that have not been reaped yet.
	members []int
}

// String formats the job the way jobs prints it.
func (j Job) String() string {
	return fmt.Sprintf(
		"[%d] %c    %s     %s",
		j.ID,
		j.Marker.Rune(),
		j.State,
		j.CommandLine,
	)
}

// Backgrounded formats the job as bg prints it after resuming it.
func (j Job) Backgrounded() string {
	j.CommandLine = j.DisplayCommand() + " " + backgroundMarker
	return j.String()
}

// DisplayCommand returns the command line without its trailing background
// marker.
func (j Job) DisplayCommand() string {
	return StripBackground(j.CommandLine)
}

// Background reports whether the command line was launched with a trailing
// background marker.
func (j Job) Background() bool {
	return IsBackground(j.CommandLine)
}

// Members returns the pids of the group that are still alive.
func (j Job) Members() []int {
	return slices.Clone(j.members)
}

// IsBackground reports whether line ends with the background marker. A
// marker escaped with a backslash is part of the last argument instead.
func IsBackground(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasSuffix(trimmed, backgroundMarker) {
		return false
	}

	body := strings.TrimSuffix(trimmed, backgroundMarker)
	escapes := len(body) - len(strings.TrimRight(body, `\`))
	return escapes%2 == 0
}

// StripBackground removes a trailing background marker and the whitespace
// before it.
func StripBackground(line string) string {
	trimmed := strings.TrimSpace(line)
	if !IsBackground(trimmed) {
		return trimmed
	}

	return strings.TrimSpace(strings.TrimSuffix(trimmed, backgroundMarker))
}

func (j *Job) clone() Job {
	c := *j
	c.members = slices.Clone(j.members)
	return c
}
