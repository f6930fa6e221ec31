package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the application logger instance
var Logger zerolog.Logger

// Init initializes the server logger on stdout and makes it global
func Init(level, format string) {
	zerolog.SetGlobalLevel(ParseLevel(level))

	Logger = New(os.Stdout, format).With().
		Caller().
		Logger()

	// Set the global logger
	log.Logger = Logger
}

// New returns a timestamped logger writing to w. Format "json" emits JSON
// lines, anything else a human-readable console format.
func New(w io.Writer, format string) zerolog.Logger {
	if strings.ToLower(format) == "json" {
		return zerolog.New(w).With().Timestamp().Logger()
	}

	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    w != os.Stdout && w != os.Stderr,
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// NewCLI returns the logger used by the command line tool. It logs to
// stderr at the given level without touching the global level.
func NewCLI(level string) zerolog.Logger {
	return New(os.Stderr, "console").Level(ParseLevel(level))
}

// ParseLevel parses string log level to zerolog level
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// GetLogger returns the configured logger instance
func GetLogger() zerolog.Logger {
	return Logger
}
