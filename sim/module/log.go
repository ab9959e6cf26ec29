package module

import (
	"io"
	"log"
)

// Log is the output stream of a module. It is disabled by default and is
// switched on and off by Root.EnableLogging.
type Log struct {
	logger  *log.Logger
	enabled bool
}

func newLog(out io.Writer, prefix string) *Log {
	return &Log{
		logger: log.New(out, prefix+": ", 0),
	}
}

// Enable turns the log on.
func (l *Log) Enable() {
	l.enabled = true
}

// Disable turns the log off.
func (l *Log) Disable() {
	l.enabled = false
}

// Enabled tells if the log prints anything.
func (l *Log) Enabled() bool {
	return l.enabled
}

// Printf prints to the log if it is enabled.
func (l *Log) Printf(format string, v ...any) {
	if !l.enabled {
		return
	}

	l.logger.Printf(format, v...)
}

// Println prints to the log if it is enabled.
func (l *Log) Println(v ...any) {
	if !l.enabled {
		return
	}

	l.logger.Println(v...)
}
