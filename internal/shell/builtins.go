package shell

import (
	"github.com/lijx3643/yash/internal/job"
	"golang.org/x/sys/unix"
)

// executeBuiltin runs line if it is exactly one of the job control commands.
func (s *Shell) executeBuiltin(line string) (bool, error) {
	switch line {
	case "fg":
		return true, s.foregroundJob()
	case "bg":
		return true, s.backgroundJob()
	case "jobs":
		return true, s.listJobs()
	default:
		return false, nil
	}
}

// foregroundJob resumes the most recent job that is not Done and waits for
// it. With no such job it does nothing.
func (s *Shell) foregroundJob() error {
	s.reapMu.Lock()

	found, _, ok := s.jobs.FindMostRecentActive(func(j job.Job) bool {
		return j.State != job.StateDone
	})
	if !ok {
		s.reapMu.Unlock()
		return nil
	}

	j, err := s.jobs.Promote(found.ID)
	if err != nil {
		s.reapMu.Unlock()
		return err
	}

	if j.State == job.StateStopped {
		if j, err = s.jobs.SetState(j.ID, job.StateRunning); err != nil {
			s.reapMu.Unlock()
			return err
		}
	}

	fg := s.setForeground(j.ID, j.ProcessGroup)
	s.reapMu.Unlock()

	s.println(j.DisplayCommand())
	s.resume(j.ProcessGroup)

	s.waitForeground(fg)

	return nil
}

// backgroundJob resumes the most recent Stopped job without waiting for it.
func (s *Shell) backgroundJob() error {
	s.reapMu.Lock()
	defer s.reapMu.Unlock()

	found, _, ok := s.jobs.FindMostRecentActive(func(j job.Job) bool {
		return j.State == job.StateStopped
	})
	if !ok {
		return nil
	}

	j, err := s.jobs.SetState(found.ID, job.StateRunning)
	if err != nil {
		return err
	}

	s.resume(j.ProcessGroup)
	s.println(j.Backgrounded())

	return nil
}

func (s *Shell) listJobs() error {
	for _, j := range s.jobs.Jobs() {
		s.println(j.String())
	}
	return nil
}

func (s *Shell) resume(pgid int) {
	if err := unix.Kill(-pgid, unix.SIGCONT); err != nil {
		s.logger.Debug("continue process group", "pgid", pgid, "err", err)
	}
}
