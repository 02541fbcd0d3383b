// Package logctx provides a minimal structured-ish logger shared across the
// seeder's components. It mirrors the ad-hoc log.Printf call sites of the
// btcd/dcrd-family seeder lineage rather than pulling in a full structured
// logging framework.
package logctx

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

var debugEnabled int32

// SetDebug toggles debug-level output for all loggers. Off by default.
func SetDebug(on bool) {
	if on {
		atomic.StoreInt32(&debugEnabled, 1)
	} else {
		atomic.StoreInt32(&debugEnabled, 0)
	}
}

// Logger emits {level, target, fields} shaped lines for one named component.
type Logger struct {
	target string
	std    *log.Logger
}

// New returns a Logger tagged with the given component name.
func New(target string) *Logger {
	return &Logger{
		target: target,
		std:    log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *Logger) logf(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.std.Printf("%s [%s] %s", level, l.target, msg)
}

// Debugf logs at debug level; suppressed unless SetDebug(true) was called.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if atomic.LoadInt32(&debugEnabled) == 0 {
		return
	}
	l.logf("DBG", format, args...)
}

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf("INF", format, args...)
}

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf("WRN", format, args...)
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf("ERR", format, args...)
}
