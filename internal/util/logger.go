// Package util provides logging, host inspection and certificate helpers.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const logFilePrefix = "parklink_"

// LogConfig holds configuration for the logging system.
type LogConfig struct {
	Level      string
	Directory  string
	MaxSizeMB  int
	MaxBackups int
	Console    bool

	// Version and Server are stamped on every line when set. Server is the
	// host:port the client joins.
	Version string
	Server  string
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Directory:  "logs",
		MaxSizeMB:  10,
		MaxBackups: 5,
		Console:    true,
	}
}

// InitLogger points the global logger at a JSON log file in cfg.Directory
// and, optionally, a console writer.
func InitLogger(cfg LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	logFile, logFilePath, err := openLogFile(cfg.Directory, cfg.MaxSizeMB, time.Now())
	if err != nil {
		return err
	}

	writers := []io.Writer{logFile}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			// Constant per process; the file keeps them.
			FieldsExclude: []string{"app", "version", "server"},
		})
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("app", "parklink")
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}
	if cfg.Server != "" {
		ctx = ctx.Str("server", cfg.Server)
	}
	log.Logger = ctx.Caller().Logger()

	log.Info().
		Str("log_level", level.String()).
		Str("log_file", logFilePath).
		Msg("logger initialized")

	cleanOldLogs(cfg.Directory, cfg.MaxBackups, filepath.Base(logFilePath))

	return nil
}

// openLogFile opens today's log file for appending. Once a file reaches
// maxSizeMB the next numbered one is used: parklink_<date>.1.log and so on.
func openLogFile(directory string, maxSizeMB int, now time.Time) (*os.File, string, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create log directory %s: %w", directory, err)
	}

	base := logFilePrefix + now.Format("2006-01-02")
	limit := int64(maxSizeMB) << 20

	for n := 0; ; n++ {
		name := base + ".log"
		if n > 0 {
			name = fmt.Sprintf("%s.%d.log", base, n)
		}
		path := filepath.Join(directory, name)

		info, err := os.Stat(path)
		switch {
		case err == nil && limit > 0 && info.Size() >= limit:
			continue
		case err != nil && !os.IsNotExist(err):
			return nil, "", fmt.Errorf("failed to stat log file %s: %w", path, err)
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		return f, path, nil
	}
}

// cleanOldLogs keeps the newest maxBackups parklink log files, never
// removing current. Other files in the directory are left alone.
func cleanOldLogs(directory string, maxBackups int, current string) {
	if maxBackups <= 0 {
		return
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		return
	}

	type logFile struct {
		name    string
		modTime time.Time
	}
	var files []logFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == current || !strings.HasPrefix(name, logFilePrefix) || filepath.Ext(name) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{name: name, modTime: info.ModTime()})
	}

	// The current file counts against the limit.
	excess := len(files) + 1 - maxBackups
	if excess <= 0 {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	for _, f := range files[:excess] {
		path := filepath.Join(directory, f.name)
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("failed to remove old log file")
			continue
		}
		log.Debug().Str("file", path).Msg("removed old log file")
	}
}

// ComponentLogger creates a logger with a component name field.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// SessionLogger is a component logger bound to one client session.
func SessionLogger(component, sessionID string) zerolog.Logger {
	return log.With().Str("component", component).Str("session", sessionID).Logger()
}
