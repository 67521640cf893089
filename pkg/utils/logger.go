package utils

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// InitLogger configures the process-wide logger from the logging config.
// Called once at startup; GetLogger falls back to defaults if it never ran.
func InitLogger(level, format, output, file string) error {
	l := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.SetLevel(parsed)

	switch format {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	switch {
	case output == "file" && file != "":
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		l.SetOutput(f)
	case output == "stderr":
		l.SetOutput(os.Stderr)
	default:
		l.SetOutput(os.Stdout)
	}

	log = l
	return nil
}

// GetLogger returns the process-wide logger, initializing it lazily with
// JSON output at info level.
func GetLogger() *logrus.Logger {
	if log == nil {
		InitLogger("info", "json", "stdout", "")
	}
	return log
}
