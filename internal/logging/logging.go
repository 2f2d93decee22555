// Package logging builds the structured logger shared by every command.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// TimestampFormat is used by both the text and JSON formatters.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// New creates a logger with the given level ("debug", "info", ...) and format ("json" or "text").
// Unknown levels fall back to info. A nil out writes to stdout.
func New(level, format string, out io.Writer) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: TimestampFormat,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: TimestampFormat,
		})
	}

	return logger
}

// ForSite returns an entry tagged with the portal being processed.
func ForSite(logger logrus.FieldLogger, site string) *logrus.Entry {
	return logger.WithField("site", site)
}
