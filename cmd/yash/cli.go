package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lijx3643/yash/internal/config"
	"github.com/lijx3643/yash/internal/shell"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// TODO: Inject version at build time.
const version = "0.1.0"

type flags struct {
	configPath string
	debug      bool
	prompt     string
}

func rootCmd() *cobra.Command {
	f := &flags{}

	command := &cobra.Command{
		Use:          "yash",
		Short:        "Interactive shell with job control",
		Example:      "  yash --config ~/.yash.yml",
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}

	command.CompletionOptions.HiddenDefaultCmd = true

	bindFlags(command.Flags(), f)

	return command
}

func bindFlags(fs *pflag.FlagSet, f *flags) {
	fs.StringVar(&f.configPath, "config", "config.yml", "Path to YAML config file")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logs")
	fs.StringVar(&f.prompt, "prompt", "", "Override the prompt from the config file")
}

func run(cmd *cobra.Command, f *flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cmd.Flags().Changed("prompt") {
		cfg.Prompt = f.prompt
	}

	level := cfg.LogLevel
	if f.debug {
		level = "debug"
	}

	rl, err := shell.NewReadline(cfg)
	if err != nil {
		return err
	}
	defer rl.Close()

	logger, err := newLogger(rl.Stderr(), level)
	if err != nil {
		return err
	}

	s, err := shell.New(cfg, shell.Options{
		Reader: rl,
		Stdout: rl.Stdout(),
		Stderr: rl.Stderr(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("error initializing shell: %w", err)
	}
	defer s.Close()

	return s.Run()
}

// newLogger returns a text logger at the named level. Each session gets its
// own id so interleaved logs from several shells can be told apart.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})

	return slog.New(handler).With("session", uuid.NewString()), nil
}
