// Package monitoring holds the diagnostic logging hook and tracing setup.
package monitoring

import (
	"fmt"
	"log"

	"github.com/sirupsen/logrus"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger or UseLogrus. Tests can mute it with SetLogger(nil).
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var base = logrus.StandardLogger()

// UseLogrus routes Logf through logrus at the given level ("debug", "info",
// "warn", ...) and returns the configured logger.
func UseLogrus(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	base = l
	Logf = l.Infof
	return l, nil
}

// Entry returns a structured entry on the active logrus logger.
func Entry(fields logrus.Fields) *logrus.Entry {
	return base.WithFields(fields)
}
