// Package logger provides namespaced loggers for the esl packages, backed by
// github.com/op/go-logging. It keeps a namespaced New/Child shape so call
// sites read the same way regardless of backend, layered over the real
// leveled/backended logging library instead of a hand-rolled fmt.Printf
// table.
package logger

import (
	"os"
	"sync"

	"github.com/op/go-logging"
)

var format = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{shortfunc} ▶ %{level:.4s} [%{module}]%{color:reset} %{message}`,
)

var initOnce sync.Once

func ensureBackend() {
	initOnce.Do(func() {
		backend := logging.NewLogBackend(os.Stderr, "", 0)
		formatted := logging.NewBackendFormatter(backend, format)
		leveled := logging.AddModuleLevel(formatted)
		leveled.SetLevel(logging.INFO, "")
		logging.SetBackend(leveled)
	})
}

// Logger is a namespaced handle onto the shared go-logging backend.
type Logger struct {
	ns  string
	log *logging.Logger
}

// New creates a logger under namespace ns (e.g. "esl.mux").
func New(ns string) *Logger {
	ensureBackend()
	return &Logger{ns: ns, log: logging.MustGetLogger(ns)}
}

// Child returns a logger namespaced under this one, e.g. New("esl").Child("mux") -> "esl.mux".
func (l *Logger) Child(ns string) *Logger {
	return New(l.ns + "." + ns)
}

// SetLevel sets the log level for exactly the namespace ns ("" sets the
// default for namespaces without a level of their own). Nested namespaces
// such as ns+".mux" are not affected.
func SetLevel(level logging.Level, ns string) {
	ensureBackend()
	logging.SetLevel(level, ns)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}

func (l *Logger) Notice(format string, args ...interface{}) {
	l.log.Noticef(format, args...)
}

func (l *Logger) Warning(format string, args ...interface{}) {
	l.log.Warningf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}
