package obs

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logMu    sync.RWMutex
	logLevel = new(slog.LevelVar)
	logger   = newLogger(os.Stdout)
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// Logger returns the shared structured logger used across the service.
func Logger() *slog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// ResolveLogger returns l, or the shared logger when l is nil.
func ResolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Logger()
}

// SetLogOutput points the shared logger at w and returns a function that
// restores the previous logger.
func SetLogOutput(w io.Writer) (restore func()) {
	logMu.Lock()
	prev := logger
	logger = newLogger(w)
	logMu.Unlock()
	return func() {
		logMu.Lock()
		logger = prev
		logMu.Unlock()
	}
}

// SetLogLevel accepts debug, info, warn or error (case-insensitive).
func SetLogLevel(level string) error {
	if level == "" {
		return nil
	}
	return logLevel.UnmarshalText([]byte(level))
}
