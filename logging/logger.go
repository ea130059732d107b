// Package logging holds the process-wide structured logger.
//
// Every subsystem asks GetLogger (or one of the With helpers) for a logger
// instead of building its own, so level and destination are set in one place
// by Init. Calling GetLogger before Init lazily installs a stderr logger at
// INFO level.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	logger   *slog.Logger
	loggerMu sync.RWMutex
	logFile  *os.File
	isInited bool
	initOnce sync.Once
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

type Config struct {
	Level      Level
	Format     string // "text" or "json"
	OutputPath string // empty logs to stderr
	Writer     io.Writer
}

// Init installs the global logger. It fails if a logger is already installed;
// call Close first to reinitialise.
func Init(config Config) error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if isInited {
		return fmt.Errorf("logger already initialized")
	}

	writer := config.Writer
	if writer == nil {
		if config.OutputPath == "" {
			writer = os.Stderr
		} else {
			if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0o750); err != nil {
				return err
			}

			file, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return err
			}
			writer = file
			logFile = file
		}
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(string(config.Level))}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "json") {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger = slog.New(handler)
	isInited = true
	return nil
}

func InitDefault() {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if isInited {
		return
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	isInited = true
}

// Close drops the global logger and closes its log file, if any.
func Close() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if !isInited {
		return nil
	}

	var err error
	if logFile != nil {
		err = logFile.Close()
		logFile = nil
	}

	logger = nil
	isInited = false
	initOnce = sync.Once{}
	return err
}

// IsInitialized reports whether a logger is installed, either by Init or
// lazily by GetLogger.
func IsInitialized() bool {
	loggerMu.RLock()
	defer loggerMu.RUnlock()

	return isInited
}

func GetLogger() *slog.Logger {
	loggerMu.RLock()
	if isInited {
		l := logger
		loggerMu.RUnlock()
		return l
	}
	loggerMu.RUnlock()

	initOnce.Do(InitDefault)

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

func ParseLevel(level string) slog.Level {
	switch Level(strings.ToUpper(level)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
