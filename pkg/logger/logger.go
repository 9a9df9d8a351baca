package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	APP        = "APP"
	COMPLETION = "COMPLETION"
	CONFIG     = "CONFIG"
	GATEWAY    = "GATEWAY"
	HANDLER    = "HANDLER"
	HISTORY    = "HISTORY"
	IAM        = "IAM"
	INDEX      = "INDEX"
	REDIS      = "REDIS"
	RETRIEVAL  = "RETRIEVAL"
	VALIDATOR  = "VALIDATOR"
)

// ParseLevel maps a LOG_LEVEL style string to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing to w. Format "console" produces human readable output,
// anything else produces JSON.
func New(w io.Writer, level, format string) zerolog.Logger {
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Init replaces the global logger
func Init(level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = New(os.Stdout, level, format)
}

// For returns the global logger tagged with a component namespace
func For(namespace string) zerolog.Logger {
	return log.With().Str("component", namespace).Logger()
}

// Truncate shortens s to at most n runes for logging user content
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
