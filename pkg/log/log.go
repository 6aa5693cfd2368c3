// Package log wraps the standard library logger with named, per-service
// loggers and a debug switch that can be flipped globally or for a single
// service.
//
//	l := log.ForService("prismic")
//	l.Infof("master ref %s", ref)
//	l.Debugf("query %s", u) // printed only with --debug or EnableDebugFor("prismic")
//
// The package name collides with the standard library on purpose; alias one of
// them when both are needed.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"sync"
	"sync/atomic"
)

// Level is the label printed in front of every line.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelDebug Level = "DEBUG"
)

// Logger is a named logger. Obtain one with ForService.
type Logger struct {
	name string
	std  *stdlog.Logger
}

// sink keeps atomic.Value storing a single concrete type.
type sink struct {
	w io.Writer
}

var (
	debugAll     atomic.Bool
	debugService sync.Map // name -> *atomic.Bool
	registry     sync.Map // name -> *Logger
	output       atomic.Value
)

func init() {
	output.Store(sink{w: os.Stderr})
}

// ForService returns the memoized logger for name.
func ForService(name string) *Logger {
	if name == "" {
		name = "sketchweb"
	}
	if l, ok := registry.Load(name); ok {
		return l.(*Logger)
	}
	w := output.Load().(sink).w
	l := &Logger{name: name, std: stdlog.New(w, "", stdlog.LstdFlags|stdlog.Lmicroseconds)}
	actual, _ := registry.LoadOrStore(name, l)
	return actual.(*Logger)
}

// SetGlobalDebug turns debug output on or off for every logger.
func SetGlobalDebug(enabled bool) {
	debugAll.Store(enabled)
}

// GlobalDebug reports whether debug output is enabled for every logger.
func GlobalDebug() bool {
	return debugAll.Load()
}

// EnableDebugFor turns on debug output for a single service.
func EnableDebugFor(name string) {
	setServiceDebug(name, true)
}

// DisableDebugFor reverts EnableDebugFor.
func DisableDebugFor(name string) {
	setServiceDebug(name, false)
}

func setServiceDebug(name string, on bool) {
	if name == "" {
		return
	}
	v, _ := debugService.LoadOrStore(name, &atomic.Bool{})
	v.(*atomic.Bool).Store(on)
}

// DebugEnabledFor reports whether debug lines from name are printed.
func DebugEnabledFor(name string) bool {
	if debugAll.Load() {
		return true
	}
	if v, ok := debugService.Load(name); ok {
		return v.(*atomic.Bool).Load()
	}
	return false
}

// SetOutput redirects every logger, existing and future, to w.
func SetOutput(w io.Writer) {
	if w == nil {
		return
	}
	output.Store(sink{w: w})
	registry.Range(func(_, v any) bool {
		v.(*Logger).std.SetOutput(w)
		return true
	})
}

// Name returns the service name of the logger.
func (l *Logger) Name() string {
	return l.name
}

func (l *Logger) emit(level Level, format string, args ...any) {
	l.std.Printf("%s [%s>] %s", level, l.name, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.emit(LevelInfo, format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.emit(LevelWarn, format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.emit(LevelError, format, args...)
}

// Debugf is a no-op unless debug is enabled globally or for this service.
func (l *Logger) Debugf(format string, args ...any) {
	if !DebugEnabledFor(l.name) {
		return
	}
	l.emit(LevelDebug, format, args...)
}
