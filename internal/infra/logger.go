package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs a zerolog.Logger for the given environment. Development
// logs are human readable at debug level; everything else is JSON at info.
func NewLogger(appEnv string) zerolog.Logger {
	return NewLoggerWithLevel(appEnv, "")
}

// NewLoggerWithLevel is NewLogger with an explicit level override such as
// "warn". An empty or unknown level keeps the environment default.
func NewLoggerWithLevel(appEnv, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if appEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(level); err == nil && level != "" {
		lvl = parsed
	}

	logger := zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "tryon").
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// Logger aliases zerolog.Logger so internal packages depend on the logging
// contract through infra.
type Logger = zerolog.Logger
