// Package logging provides the structured logger used across pathscout's
// engine and CLI. It bridges logrus into a narrow interface so that engine
// packages never depend on logrus directly.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the bridging interface between logrus and the engine's
// components. Any component that wants to log takes a Logger rather than a
// concrete logrus type.
type Logger interface {
	logrus.FieldLogger
	// Writer returns a pipe writer suitable for redirecting the output of
	// external processes (e.g. exec.Cmd.Stdout) into the logger at Info level.
	Writer() *io.PipeWriter
}

// entry adapts a *logrus.Entry to the Logger interface.
type entry struct {
	*logrus.Entry
}

// New creates a root Logger writing to stderr at the given level in text
// format, mirroring the engine's default CLI invocation.
func New(level logrus.Level) Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return &entry{Entry: logrus.NewEntry(log)}
}

// NewJSON creates a root Logger that emits JSON-formatted lines, used when
// --json is passed so that log output can be consumed by other tooling
// alongside the scan's JSON response stream.
func NewJSON(level logrus.Level) Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{})
	return &entry{Entry: logrus.NewEntry(log)}
}

// Component returns a derived Logger tagged with a "component" field, used
// to label log lines coming from a specific engine subsystem (the scanner
// and the requester).
func Component(log Logger, name string) Logger {
	return &entry{Entry: log.WithField("component", name).(*logrus.Entry)}
}

// Writer implements Logger.
func (e *entry) Writer() *io.PipeWriter {
	return e.Entry.Writer()
}

// VerbosityToLevel converts the CLI's repeated -v count (0-4) into a logrus
// level, matching the engine's coarser default of Warn.
func VerbosityToLevel(count int) logrus.Level {
	switch {
	case count <= 0:
		return logrus.WarnLevel
	case count == 1:
		return logrus.InfoLevel
	case count == 2:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}
