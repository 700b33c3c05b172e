// Package logger configures the logrus logger shared by the CLI and the pipeline.
package logger

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// New returns a text logger writing to stderr. Verbose enables debug output.
func New(verbose bool) *log.Logger {
	l := log.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	if verbose {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}
	return l
}

// Discard returns an entry that drops everything, used when callers pass no logger
func Discard() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	l.SetLevel(log.PanicLevel)
	return log.NewEntry(l)
}
