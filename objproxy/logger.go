package objproxy

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jpillora/sizestr"
)

// LogLevel specifies the level of spew that should go to a Logger.
type LogLevel int

const (
	// LogLevelUnknown is the zero value; behavior at this level is undefined.
	LogLevelUnknown LogLevel = iota
	LogLevelPanic
	LogLevelFatal
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

var logLevelNames = [...]string{
	"unknown", "panic", "fatal", "error", "warning", "info", "debug", "trace",
}

// ParseLogLevel converts a string (case-insensitive) to a LogLevel, returning
// LogLevelUnknown if s does not name a known level.
func ParseLogLevel(s string) LogLevel {
	s = strings.ToLower(s)
	for i, name := range logLevelNames {
		if name == s {
			return LogLevel(i)
		}
	}
	return LogLevelUnknown
}

func (l LogLevel) String() string {
	if l < LogLevelUnknown || l > LogLevelTrace {
		return logLevelNames[LogLevelUnknown]
	}
	return logLevelNames[l]
}

// Logger is a leveled, prefix-forkable logging component used throughout the
// host, registry, and correlator implementations. Prefixes accumulate as
// sub-components fork loggers off their owner, so a log line names the exact
// path that produced it (e.g. "host[A]: receive-loop: codec").
type Logger interface {
	// Logf emits a formatted message if level is enabled for this logger.
	// LogLevelFatal exits the process after logging; LogLevelPanic panics.
	Logf(level LogLevel, f string, args ...interface{})

	Tracef(f string, args ...interface{})
	Debugf(f string, args ...interface{})
	Infof(f string, args ...interface{})
	Warnf(f string, args ...interface{})
	Errorf(f string, args ...interface{})
	Fatalf(f string, args ...interface{})

	// DebugFrame logs a frame transfer at Debug level with a human-readable
	// byte count, e.g. "wrote frame seq=4 size=1.2kB".
	DebugFrame(direction string, seq int32, nbytes int)

	// Fork returns a new Logger whose prefix is this logger's prefix plus
	// the given suffix, inheriting the current level.
	Fork(suffix string, args ...interface{}) Logger

	// Prefix returns the logger's current prefix string (without trailing separator).
	Prefix() string

	GetLevel() LogLevel
	SetLevel(level LogLevel)
}

const defaultLogFlags = log.Ldate | log.Ltime

type stdLogger struct {
	prefix string
	out    *log.Logger
	level  LogLevel
}

// NewLogger creates a Logger with the given prefix and level, writing to stderr.
func NewLogger(prefix string, level LogLevel) Logger {
	return &stdLogger{
		prefix: prefix,
		out:    log.New(os.Stderr, "", defaultLogFlags),
		level:  level,
	}
}

func (l *stdLogger) format(f string, args ...interface{}) string {
	msg := fmt.Sprintf(f, args...)
	if l.prefix == "" {
		return msg
	}
	return l.prefix + ": " + msg
}

func (l *stdLogger) Logf(level LogLevel, f string, args ...interface{}) {
	if level > l.level && level > LogLevelFatal {
		return
	}
	msg := l.format(f, args...)
	l.out.Print(msg)
	switch level {
	case LogLevelFatal:
		os.Exit(1)
	case LogLevelPanic:
		panic(msg)
	}
}

func (l *stdLogger) Tracef(f string, args ...interface{})   { l.Logf(LogLevelTrace, f, args...) }
func (l *stdLogger) Debugf(f string, args ...interface{})   { l.Logf(LogLevelDebug, f, args...) }
func (l *stdLogger) Infof(f string, args ...interface{})    { l.Logf(LogLevelInfo, f, args...) }
func (l *stdLogger) Warnf(f string, args ...interface{})    { l.Logf(LogLevelWarning, f, args...) }
func (l *stdLogger) Errorf(f string, args ...interface{})   { l.Logf(LogLevelError, f, args...) }
func (l *stdLogger) Fatalf(f string, args ...interface{})   { l.Logf(LogLevelFatal, f, args...) }

func (l *stdLogger) DebugFrame(direction string, seq int32, nbytes int) {
	if l.level < LogLevelDebug {
		return
	}
	l.Debugf("%s frame seq=%d size=%s", direction, seq, sizestr.ToString(int64(nbytes)))
}

func (l *stdLogger) Fork(suffix string, args ...interface{}) Logger {
	msg := fmt.Sprintf(suffix, args...)
	newPrefix := msg
	if l.prefix != "" {
		newPrefix = l.prefix + ": " + msg
	}
	return &stdLogger{prefix: newPrefix, out: l.out, level: l.level}
}

func (l *stdLogger) Prefix() string      { return l.prefix }
func (l *stdLogger) GetLevel() LogLevel  { return l.level }
func (l *stdLogger) SetLevel(lv LogLevel) { l.level = lv }
