// Package observ is spillsort's internal logging facility: a small
// leveled logger in the shape of peak/s5cmd's log package, scaled down to
// a library (no package-level singleton — a library must not mutate
// global state a caller never asked for). All writes are funneled through
// one goroutine so concurrent callers never interleave a line.
package observ

import (
	"fmt"
	"io"
	"log"
)

// Level is a logging severity, ordered the same way s5cmd's logLevel is.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "#"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the interface the Orchestrator logs through.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Discard is a Logger that drops everything. It is the default when
// Config.Logger is nil.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debugf(string, ...interface{})   {}
func (discard) Infof(string, ...interface{})    {}
func (discard) Warningf(string, ...interface{}) {}
func (discard) Errorf(string, ...interface{})   {}

// stdLogger serializes writes from arbitrary goroutines through a single
// channel-fed pump, mirroring s5cmd's logger.stdout().
type stdLogger struct {
	level Level
	lines chan string
	done  chan struct{}
	impl  *log.Logger
}

// NewStdLogger returns a Logger backed by the standard library's log
// package, writing to w, suppressing messages below level.
func NewStdLogger(w io.Writer, level Level) Logger {
	l := &stdLogger{
		level: level,
		lines: make(chan string, 1000),
		done:  make(chan struct{}),
		impl:  log.New(w, "", log.LstdFlags),
	}
	go l.pump()
	return l
}

func (l *stdLogger) pump() {
	defer close(l.done)
	for line := range l.lines {
		l.impl.Println(line)
	}
}

func (l *stdLogger) printf(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	select {
	case l.lines <- fmt.Sprintf("%v %s", level, fmt.Sprintf(format, args...)):
	default:
		// lines is saturated; drop rather than block the sort on logging.
	}
}

func (l *stdLogger) Debugf(format string, args ...interface{})   { l.printf(LevelDebug, format, args...) }
func (l *stdLogger) Infof(format string, args ...interface{})    { l.printf(LevelInfo, format, args...) }
func (l *stdLogger) Warningf(format string, args ...interface{}) { l.printf(LevelWarning, format, args...) }
func (l *stdLogger) Errorf(format string, args ...interface{})   { l.printf(LevelError, format, args...) }
