package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	DefaultPrompt         = "# "
	DefaultHistoryLimit   = 1000
	DefaultMaxTokens      = 30
	DefaultMaxTokenLength = 29
	DefaultLogLevel       = "warn"
)

type Config struct {
	HistoryFile  string `yaml:"history_file"`
	HistoryLimit int    `yaml:"history_limit"`
	HomeDir      string `yaml:"home_dir"`
	Prompt       string `yaml:"prompt"`

	// Per-line tokenizer limits. Zero disables the limit.
	MaxTokens      int `yaml:"max_tokens"`
	MaxTokenLength int `yaml:"max_token_length"`

	// TerminalHandoff gives the controlling terminal to the foreground job
	// while it runs instead of keeping it with the shell.
	TerminalHandoff bool `yaml:"terminal_handoff"`

	LogLevel string `yaml:"log_level"`
}

// Load reads the YAML file at path. A missing file is not an error: the
// defaults are returned instead.
func Load(file string) (*Config, error) {
	cfg := &Config{
		MaxTokens:      DefaultMaxTokens,
		MaxTokenLength: DefaultMaxTokenLength,
	}

	data, err := os.ReadFile(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", file, err)
		}
	}

	if err := cfg.fill(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) fill() error {
	var err error
	if c.HomeDir == "" {
		c.HomeDir, err = os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home directory: %w", err)
		}
	}

	if c.HistoryFile == "" {
		c.HistoryFile = filepath.Join(c.HomeDir, ".yash_history")
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	return nil
}

func (c *Config) validate() error {
	if c.MaxTokens < 0 {
		return errors.New("max_tokens cannot be negative")
	}
	if c.MaxTokenLength < 0 {
		return errors.New("max_token_length cannot be negative")
	}
	return nil
}
