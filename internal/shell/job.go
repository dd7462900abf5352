package shell

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/lijx3643/yash/internal/job"
	"github.com/lijx3643/yash/internal/parser"
	"golang.org/x/sys/unix"
)

// outputFileMode is rw-rw-r--.
const outputFileMode = 0o664

// launch creates the job for line and starts its processes. A foreground job
// is waited on until it exits or stops.
func (s *Shell) launch(line parser.Line) error {
	s.reapMu.Lock()

	j := s.jobs.Insert(line.Raw)

	pgid, pids, err := s.startProcesses(line)
	if err != nil {
		// Nothing was started. Report the job the same way as a child that
		// exited with a failure status.
		s.logger.Debug("launch failed", "job", j.ID, "err", err)
		s.finish(j.ID)
		s.reapMu.Unlock()
		return nil
	}

	if err := s.register(j.ID, pgid, pids); err != nil {
		s.reapMu.Unlock()
		return err
	}

	s.logger.Debug(
		"job started",
		"job", j.ID,
		"pgid", pgid,
		"pids", pids,
		"background", line.Background,
	)

	if line.Background {
		s.reapMu.Unlock()
		return nil
	}

	fg := s.setForeground(j.ID, pgid)
	s.reapMu.Unlock()

	s.waitForeground(fg)

	return nil
}

// register attaches the started processes to job id. If that fails the
// processes are killed and the job is reported Done, so nothing is left in
// the table without a process group. reapMu must be held.
func (s *Shell) register(id, pgid int, pids []int) error {
	err := s.jobs.Attach(id, pgid, pids)
	if err == nil {
		return nil
	}

	if kerr := unix.Kill(-pgid, unix.SIGKILL); kerr != nil {
		s.logger.Debug("kill unregistered process group", "pgid", pgid, "err", kerr)
	}
	s.finish(id)

	return fmt.Errorf("register job %d: %w", id, err)
}

// startProcesses starts one process, or both stages of a pipeline, in a new
// process group. It returns the group id and the pids of every process that
// was started.
func (s *Shell) startProcesses(line parser.Line) (int, []int, error) {
	if !line.Pipeline() {
		pid, err := s.startStage(line.Stages[0], 0, nil, nil)
		if err != nil {
			return 0, nil, err
		}
		return pid, []int{pid}, nil
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return 0, nil, fmt.Errorf("create pipe: %w", err)
	}
	// The parent must not keep either end open or the reader never sees EOF.
	defer pr.Close()
	defer pw.Close()

	leader, err := s.startStage(line.Stages[0], 0, nil, pw)
	if err != nil {
		// The second stage still runs, leads the group and reads EOF.
		s.logger.Debug("first pipeline stage failed", "err", err)
		pw.Close()

		second, err := s.startStage(line.Stages[1], 0, pr, nil)
		if err != nil {
			return 0, nil, err
		}
		return second, []int{second}, nil
	}

	second, err := s.startStage(line.Stages[1], leader, pr, nil)
	if err != nil {
		// The first stage keeps running and sees a closed pipe.
		s.logger.Debug("second pipeline stage failed", "pgid", leader, "err", err)
		return leader, []int{leader}, nil
	}

	return leader, []int{leader, second}, nil
}

// startStage starts a single command. pgid 0 makes the process the leader
// of a new group. stdin and stdout override the inherited descriptors and
// are in turn overridden by the stage's own redirections.
func (s *Shell) startStage(
	stage parser.Stage,
	pgid int,
	stdin *os.File,
	stdout *os.File,
) (int, error) {
	cmd := exec.Command(stage.Args[0], stage.Args[1:]...)

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if stdin != nil {
		cmd.Stdin = stdin
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}

	files, err := s.applyRedirects(cmd, stage.Redirects)
	defer closeAll(files)
	if err != nil {
		return 0, err
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    pgid,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start process: %w", err)
	}

	pid := cmd.Process.Pid

	// Children are reaped with wait4 by the signal router, never by
	// cmd.Wait, so only the handle is released here.
	if err := cmd.Process.Release(); err != nil {
		s.logger.Debug("release process handle", "pid", pid, "err", err)
	}

	return pid, nil
}

// applyRedirects opens the stage's redirection targets. An input target
// that cannot be opened is an error; output targets are best effort.
func (s *Shell) applyRedirects(
	cmd *exec.Cmd,
	redirects []parser.Redirect,
) ([]*os.File, error) {
	var files []*os.File

	for _, r := range redirects {
		switch r.Kind {
		case parser.RedirectStdin:
			f, err := os.Open(r.Path)
			if err != nil {
				return files, fmt.Errorf("open input %s: %w", r.Path, err)
			}
			files = append(files, f)
			cmd.Stdin = f

		case parser.RedirectStdout, parser.RedirectStderr:
			f, err := os.OpenFile(
				r.Path,
				os.O_RDWR|os.O_CREATE|os.O_TRUNC,
				outputFileMode,
			)
			if err != nil {
				s.logger.Debug("output redirection failed", "path", r.Path, "err", err)
				continue
			}
			files = append(files, f)

			if r.Kind == parser.RedirectStdout {
				cmd.Stdout = f
			} else {
				cmd.Stderr = f
			}
		}
	}

	return files, nil
}

// finish marks job id Done, prints it once and removes it.
func (s *Shell) finish(id int) {
	j, err := s.jobs.SetState(id, job.StateDone)
	if err != nil {
		return
	}

	s.println(j.String())
	s.jobs.Remove(id)
}

func closeAll(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}
