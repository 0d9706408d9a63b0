// Package logging configures the process-wide zerolog logger used by the
// client library and the bundled tools.
package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogLevel overrides the default level ("trace".."error", "disabled").
const EnvLogLevel = "VULSIM_LOG_LEVEL"

var initOnce sync.Once

// Init sets up the global console logger once and returns it. Safe to call
// from multiple entry points; only the first call configures the output.
func Init(app string) zerolog.Logger {
	initOnce.Do(func() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
		zerolog.SetGlobalLevel(levelFromEnv())
		log.Logger = zerolog.New(output).With().Timestamp().Str("app", app).Logger()
	})
	return log.Logger
}

// Component returns a child logger tagged with a component name. Library
// packages use this so every line can be traced to the control channel, the
// log channel, the monitor, and so on.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogLevel))) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
