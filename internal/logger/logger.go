package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "whatsapp-processor"

// Logger is the process-wide logger. It writes JSON to stdout until Init
// reconfigures it.
var Logger = newLogger(os.Stdout, false)

// Init sets the global level and rebuilds Logger. LOG_FORMAT=console (or
// ENV=development) switches to the human-readable writer.
func Init(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	if os.Getenv("LOG_FORMAT") == "console" || os.Getenv("ENV") == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	Logger = newLogger(out, lvl <= zerolog.DebugLevel)
	Logger.Info().Str("level", lvl.String()).Msg("logger initialized")
}

func newLogger(out io.Writer, caller bool) zerolog.Logger {
	ctx := zerolog.New(out).With().Timestamp().Str("service", serviceName)
	if caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithInvocation tags log lines with the invocation and the agent it runs for.
func WithInvocation(invocationID, agentID string) zerolog.Logger {
	return Logger.With().
		Str("component", "handler").
		Str("invocation_id", invocationID).
		Str("agent_id", agentID).
		Logger()
}
