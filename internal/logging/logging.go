// Package logging builds the zerolog loggers shared by every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
	FormatGCP     = "gcp"
	FormatAuto    = "auto"
)

type Config struct {
	Level  string
	Format string
}

// New returns the root logger writing to out (stderr when nil).
// The gcp format emits upper case "severity" so Cloud Logging picks the level up.
func New(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	format := strings.ToLower(cfg.Format)
	if format == FormatAuto {
		format = FormatJSON
		if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			format = FormatConsole
		}
	}

	var w io.Writer = out
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	l := zerolog.New(w).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().
		Str("service", "productsync").
		Logger()
	if format == FormatGCP {
		l = l.Hook(severityHook{})
	}
	return l
}

type severityHook struct{}

func (severityHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	severity := "DEFAULT"
	switch level {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		severity = "DEBUG"
	case zerolog.InfoLevel:
		severity = "INFO"
	case zerolog.WarnLevel:
		severity = "WARNING"
	case zerolog.ErrorLevel:
		severity = "ERROR"
	case zerolog.FatalLevel, zerolog.PanicLevel:
		severity = "CRITICAL"
	}
	e.Str("severity", severity)
}

// Component derives a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
