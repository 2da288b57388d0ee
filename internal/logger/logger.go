// Package logger provides the structured logger used across the execution
// core. It wraps charmbracelet/log directly so every component — worker
// loop, run executor, recovery orchestrator — logs through the same
// leveled, field-carrying interface without depending on a separate ports
// abstraction.
package logger

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options describes logger configuration supplied at creation time.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        io.Writer
	Component     string
}

// Logger is a leveled, field-carrying logger used throughout the core.
type Logger struct {
	base   *cblog.Logger
	fields []interface{}
}

// New creates a configured Logger instance based on Options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}

	level := cblog.InfoLevel
	if opts.Level != "" {
		parsed, err := cblog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	copts := cblog.Options{
		Level:           level,
		ReportTimestamp: true,
	}
	if !opts.HumanReadable {
		copts.Formatter = cblog.JSONFormatter
	}

	base := cblog.NewWithOptions(writer, copts)

	var fields []interface{}
	if opts.Component != "" {
		fields = append(fields, "component", opts.Component)
	}

	return &Logger{base: base, fields: fields}, nil
}

// WithFields returns a derived logger that always writes the supplied
// fields in addition to this logger's own.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil || len(fields) == 0 {
		return l
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(l.fields)+len(fields)*2)
	args = append(args, l.fields...)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}

	return &Logger{base: l.base, fields: args}
}

// Info writes an informational log entry.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(l.base.Info, msg, keyvals...)
}

// Debug writes a debug-level log entry if enabled.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(l.base.Debug, msg, keyvals...)
}

// Warn writes a warning level log entry.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(l.base.Warn, msg, keyvals...)
}

// Error writes an error log entry including the supplied error context.
func (l *Logger) Error(err error, msg string, keyvals ...interface{}) {
	if l == nil || l.base == nil {
		return
	}
	args := make([]interface{}, 0, len(l.fields)+len(keyvals)+2)
	args = append(args, l.fields...)
	args = append(args, keyvals...)
	if err != nil {
		args = append(args, "error", err)
	}
	l.base.Error(strings.TrimSpace(msg), args...)
}

func (l *Logger) log(fn func(interface{}, ...interface{}), msg string, keyvals ...interface{}) {
	if l == nil || l.base == nil {
		return
	}
	args := make([]interface{}, 0, len(l.fields)+len(keyvals))
	args = append(args, l.fields...)
	args = append(args, keyvals...)
	fn(strings.TrimSpace(msg), args...)
}

// Background is a convenience used by call sites that do not yet thread a
// context through; kept distinct from context.Context plumbing so call
// sites can be upgraded independently.
func Background() context.Context {
	return context.Background()
}
