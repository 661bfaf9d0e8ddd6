package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logger is the structured logging surface of rsap4go. Key/value pairs follow
// the message, as in zap's sugared API.
//
// NopLogger is used wherever an Options struct leaves Logger nil. NewStdLogger
// and NewZapLogger cover plain text and JSON output.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// NopLogger returns a Logger that discards all output.
func NopLogger() Logger { return nopLogger{} }

// OrNop returns l, or NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger()
	}
	return l
}

// stdLogger writes one text line per entry through a log.Logger.
type stdLogger struct {
	out *log.Logger
}

func (s *stdLogger) emit(level, msg string, kv []interface{}) {
	s.out.Printf("[%s] %s", level, formatLogMsg(msg, kv))
}

func (s *stdLogger) Debug(msg string, kv ...interface{}) { s.emit("DEBUG", msg, kv) }
func (s *stdLogger) Info(msg string, kv ...interface{})  { s.emit("INFO", msg, kv) }
func (s *stdLogger) Warn(msg string, kv ...interface{})  { s.emit("WARN", msg, kv) }
func (s *stdLogger) Error(msg string, kv ...interface{}) { s.emit("ERROR", msg, kv) }

// NewStdLogger returns a text Logger writing to w, or to os.Stderr when w is
// nil. Every line starts with prefix and the standard date and time.
func NewStdLogger(w io.Writer, prefix string) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &stdLogger{out: log.New(w, prefix, log.LstdFlags)}
}

// With returns a Logger that prepends keysAndValues to the pairs of every entry.
func With(l Logger, keysAndValues ...interface{}) Logger {
	if len(keysAndValues) == 0 {
		return OrNop(l)
	}
	return &fieldLogger{base: OrNop(l), fields: keysAndValues}
}

type fieldLogger struct {
	base   Logger
	fields []interface{}
}

func (f *fieldLogger) merge(kv []interface{}) []interface{} {
	out := make([]interface{}, 0, len(f.fields)+len(kv))
	out = append(out, f.fields...)
	return append(out, kv...)
}

func (f *fieldLogger) Debug(msg string, kv ...interface{}) { f.base.Debug(msg, f.merge(kv)...) }
func (f *fieldLogger) Info(msg string, kv ...interface{})  { f.base.Info(msg, f.merge(kv)...) }
func (f *fieldLogger) Warn(msg string, kv ...interface{})  { f.base.Warn(msg, f.merge(kv)...) }
func (f *fieldLogger) Error(msg string, kv ...interface{}) { f.base.Error(msg, f.merge(kv)...) }

// formatLogMsg renders msg followed by key=value pairs. An odd trailing value
// is reported as EXTRA.
func formatLogMsg(msg string, kv []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	n := len(kv) &^ 1
	for i := 0; i < n; i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	if n < len(kv) {
		fmt.Fprintf(&b, " EXTRA=%v", kv[n])
	}
	return b.String()
}
