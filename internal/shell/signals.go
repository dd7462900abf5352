package shell

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/lijx3643/yash/internal/job"
	"golang.org/x/sys/unix"
)

// foreground is the single job currently receiving terminal signals. The
// router sends exactly one event on events, Stopped or Done, and clears the
// foreground in the same critical section.
type foreground struct {
	jobID  int
	pgid   int
	events chan job.State
}

func (s *Shell) setupSignalHandling() {
	signal.Notify(s.signalChan, unix.SIGINT, unix.SIGTSTP, unix.SIGCHLD)
	go s.handleSignals()
}

func (s *Shell) teardownSignalHandling() {
	signal.Stop(s.signalChan)
	close(s.signalChan)
	<-s.routerDone
}

func (s *Shell) handleSignals() {
	defer close(s.routerDone)

	for sig := range s.signalChan {
		switch sig {
		case unix.SIGINT, unix.SIGTSTP:
			s.forward(sig.(syscall.Signal))
			s.reapChildren()
		case unix.SIGCHLD:
			s.reapChildren()
		}
	}
}

// forward sends sig to the foreground job's process group, if any.
func (s *Shell) forward(sig syscall.Signal) {
	s.fgMu.Lock()
	fg := s.fg
	s.fgMu.Unlock()

	if fg == nil {
		return
	}

	s.logger.Debug("forwarding signal", "signal", sig, "pgid", fg.pgid)

	if err := unix.Kill(-fg.pgid, sig); err != nil {
		s.logger.Debug("forward signal", "pgid", fg.pgid, "err", err)
	}
}

// Handle child process status changes
func (s *Shell) reapChildren() {
	s.reapMu.Lock()
	defer s.reapMu.Unlock()

	for {
		var status unix.WaitStatus

		pid, err := unix.Wait4(-1, &status, unix.WNOHANG|unix.WUNTRACED, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || pid <= 0 {
			return
		}

		s.childChanged(pid, status)
	}
}

func (s *Shell) childChanged(pid int, status unix.WaitStatus) {
	var (
		j  job.Job
		ok bool
	)

	switch {
	case status.Stopped():
		j, ok = s.jobs.Stopped(pid)
	case status.Exited(), status.Signaled():
		j, ok = s.jobs.Exited(pid)
		if ok && j.State != job.StateDone {
			// Other members of the group are still alive.
			return
		}
	default:
		return
	}

	if !ok {
		s.logger.Debug("ignoring child", "pid", pid, "status", status)
		return
	}

	s.logger.Debug("job changed", "job", j.ID, "pgid", j.ProcessGroup, "state", j.State)

	if s.notifyForeground(j) {
		return
	}

	switch j.State {
	case job.StateDone:
		s.println(j.String())
		s.jobs.Remove(j.ID)
	case job.StateStopped:
		s.println(j.String())
	}
}

// notifyForeground hands the change to the foreground waiter if j is the
// foreground job.
func (s *Shell) notifyForeground(j job.Job) bool {
	s.fgMu.Lock()
	defer s.fgMu.Unlock()

	if s.fg == nil || s.fg.pgid != j.ProcessGroup {
		return false
	}

	fg := s.fg
	s.fg = nil
	fg.events <- j.State

	return true
}

func (s *Shell) setForeground(id, pgid int) *foreground {
	fg := &foreground{
		jobID:  id,
		pgid:   pgid,
		events: make(chan job.State, 1),
	}

	s.fgMu.Lock()
	s.fg = fg
	s.fgMu.Unlock()

	s.terminal.give(pgid)

	return fg
}

// waitForeground blocks until the foreground job exits or stops.
func (s *Shell) waitForeground(fg *foreground) {
	state := <-fg.events

	s.terminal.reclaim()

	switch state {
	case job.StateDone:
		s.jobs.Remove(fg.jobID)
	case job.StateStopped:
		if j, ok := s.jobs.FindByID(fg.jobID); ok {
			s.println(j.String())
		}
	}
}
