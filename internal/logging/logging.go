// Package logging builds the run logger from configuration.
package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Level maps a configured level name to a logrus level. "silent" suppresses
// everything below panic.
func Level(name string) (logrus.Level, error) {
	switch name {
	case "silent":
		return logrus.PanicLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: must be one of silent, error, warn, info, debug", name)
	}
}

// New creates a logger writing to out in the given format ("text" or "json").
func New(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := Level(level)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	switch format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableLevelTruncation: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", format)
	}
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}
