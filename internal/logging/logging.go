package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Environment selects the logging profile.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// ParseEnvironment maps a RUN_ENVIRONMENT value to an Environment.
// Unknown values fall back to development.
func ParseEnvironment(s string) Environment {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case EnvTesting:
		return EnvTesting
	case EnvProduction:
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

// Config contains logging configuration.
type Config struct {
	Environment Environment
	// Level overrides the environment's default level when set.
	Level string
	// Dir is the log directory. Required outside development.
	Dir string
	// AppName names the log file: <Dir>/<AppName>.log.
	AppName   string
	MaxSizeMB int
	MaxFiles  int
	// NoStderr suppresses stderr output, e.g. while serving MCP over stdio.
	NoStderr bool
}

// DefaultConfig returns the development profile.
func DefaultConfig() Config {
	return Config{
		Environment: EnvDevelopment,
		AppName:     "thedocs",
		MaxSizeMB:   5,
		MaxFiles:    5,
	}
}

// FilePath returns the log file path, or "" when file logging is off.
func (c Config) FilePath() string {
	if c.Dir == "" || c.Environment == EnvDevelopment {
		return ""
	}
	name := c.AppName
	if name == "" {
		name = "thedocs"
	}
	return filepath.Join(c.Dir, name+".log")
}

func (c Config) level() slog.Level {
	if c.Level != "" {
		return LevelFromString(c.Level)
	}
	if c.Environment == EnvDevelopment {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// New builds a logger for cfg. The returned cleanup closes the log file.
func New(cfg Config) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: cfg.level()}
	cleanup := func() {}

	path := cfg.FilePath()
	if cfg.Environment == EnvProduction && path == "" {
		return nil, nil, fmt.Errorf("production logging requires a log directory")
	}

	if path == "" {
		var out io.Writer = os.Stderr
		if cfg.NoStderr {
			out = io.Discard
		}
		return slog.New(slog.NewTextHandler(out, opts)), cleanup, nil
	}

	writer, err := NewRotatingWriter(path, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}
	cleanup = func() {
		_ = writer.Sync()
		_ = writer.Close()
	}

	var out io.Writer = writer
	if cfg.Environment == EnvTesting && !cfg.NoStderr {
		out = io.MultiWriter(writer, os.Stderr)
	}
	return slog.New(slog.NewJSONHandler(out, opts)), cleanup, nil
}

// Setup builds a logger for cfg and installs it as the slog default.
func Setup(cfg Config) (func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	slog.Debug("logging_initialized",
		slog.String("environment", string(cfg.Environment)),
		slog.String("log_file", cfg.FilePath()))
	return cleanup, nil
}

// LevelFromString converts a level name to slog.Level. Unknown names map to info.
func LevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
