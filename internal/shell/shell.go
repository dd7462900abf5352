package shell

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/lijx3643/yash/internal/config"
	"github.com/lijx3643/yash/internal/job"
	"github.com/lijx3643/yash/internal/parser"
)

// LineReader returns one line of input per call and io.EOF at end of input.
type LineReader interface {
	Readline() (string, error)
}

type Options struct {
	Reader LineReader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

type Shell struct {
	config *config.Config
	limits parser.Limits
	reader LineReader
	logger *slog.Logger
	jobs   *job.Table

	stdout io.Writer
	stderr io.Writer
	outMu  sync.Mutex

	signalChan chan os.Signal
	routerDone chan struct{}

	// reapMu is held while a job's processes are started and registered, and
	// while children are reaped, so a child is never reaped before its job is
	// in the table.
	reapMu sync.Mutex

	fgMu sync.Mutex
	fg   *foreground

	terminal *terminal
}

// New creates a Shell and starts routing signals. Close must be called to
// stop routing.
func New(cfg *config.Config, opts Options) (*Shell, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	s := &Shell{
		config: cfg,
		limits: parser.Limits{
			MaxTokens:      cfg.MaxTokens,
			MaxTokenLength: cfg.MaxTokenLength,
		},
		reader:     opts.Reader,
		logger:     opts.Logger,
		jobs:       job.NewTable(),
		stdout:     opts.Stdout,
		stderr:     opts.Stderr,
		signalChan: make(chan os.Signal, 16),
		routerDone: make(chan struct{}),
	}

	if s.stdout == nil {
		s.stdout = os.Stdout
	}
	if s.stderr == nil {
		s.stderr = os.Stderr
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if cfg.TerminalHandoff {
		t, err := newTerminal(os.Stdin, s.logger)
		if err != nil {
			s.logger.Warn("terminal handoff disabled", "err", err)
		} else {
			s.terminal = t
		}
	}

	s.setupSignalHandling()

	return s, nil
}

// NewReadline creates the line editor used as the shell's LineReader.
func NewReadline(cfg *config.Config) (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       cfg.Prompt,
		HistoryFile:  cfg.HistoryFile,
		HistoryLimit: cfg.HistoryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing readline: %w", err)
	}

	return rl, nil
}

// Run reads and executes lines until end of input.
func (s *Shell) Run() error {
	if s.reader == nil {
		return errors.New("no line reader configured")
	}

	for {
		line, err := s.reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("read line: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := s.Execute(line); err != nil {
			s.errorf("yash: %v\n", err)
		}
	}
}

// Execute runs a single line: one of the job control commands or a command
// to launch. It blocks while a foreground job runs.
func (s *Shell) Execute(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	if ok, err := s.executeBuiltin(input); ok {
		return err
	}

	line, err := parser.Parse(input, s.limits)
	if err != nil {
		return err
	}

	return s.launch(line)
}

// Jobs returns a snapshot of the job table taken between launches and
// reaps.
func (s *Shell) Jobs() []job.Job {
	s.reapMu.Lock()
	defer s.reapMu.Unlock()

	return s.jobs.Jobs()
}

// Close stops signal routing. Jobs that are still running are left alone.
func (s *Shell) Close() {
	s.teardownSignalHandling()
}

func (s *Shell) println(a ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	fmt.Fprintln(s.stdout, a...)
}

func (s *Shell) errorf(format string, a ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	fmt.Fprintf(s.stderr, format, a...)
}
