package obs

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// Logger returns the shared structured logger used across the service.
func Logger() *slog.Logger { return logger.Load() }

// SetLogger replaces the shared logger and returns a func restoring the
// previous one.
func SetLogger(l *slog.Logger) (restore func()) {
	prev := logger.Swap(l)
	return func() { logger.Store(prev) }
}

// ParseLevel maps "debug", "warn" and "error" to slog levels; anything else
// is info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Configure installs a JSON logger at the given level on stdout.
func Configure(level string) {
	logger.Store(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLevel(level)})))
}

// LogRequest emits one structured line with common HTTP fields.
func LogRequest(entry map[string]any) {
	attrs := make([]any, 0, len(entry)*2)
	for k, v := range entry {
		attrs = append(attrs, k, v)
	}
	Logger().Info("http_request", attrs...)
}
