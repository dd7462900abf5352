package shell

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// terminal hands the controlling terminal to foreground jobs. A nil
// terminal does nothing and the shell keeps the terminal.
type terminal struct {
	fd        int
	shellPgid int
	logger    *slog.Logger
}

func newTerminal(f *os.File, logger *slog.Logger) (*terminal, error) {
	fd := int(f.Fd())

	if _, err := unix.IoctlGetTermios(fd, unix.TCGETS); err != nil {
		return nil, fmt.Errorf("stdin is not a terminal: %w", err)
	}

	return &terminal{fd: fd, shellPgid: unix.Getpgrp(), logger: logger}, nil
}

func (t *terminal) give(pgid int) {
	if t == nil {
		return
	}

	t.setForeground(pgid)
}

func (t *terminal) reclaim() {
	if t == nil {
		return
	}

	t.setForeground(t.shellPgid)
}

// setForeground ignores SIGTTOU only for the ioctl itself; an ignored
// disposition would otherwise be inherited by every job started later.
func (t *terminal) setForeground(pgid int) {
	signal.Ignore(unix.SIGTTOU)
	defer signal.Reset(unix.SIGTTOU)

	if err := unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid); err != nil {
		t.logger.Debug("set terminal foreground", "pgid", pgid, "err", err)
	}
}
