// Package logger builds the logrus instances shared by the control plane
// binaries.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger at the requested level; unknown levels fall
// back to info rather than failing startup. Production runs emit JSON so
// promotion and canary decision logs stay machine-parseable, while local
// runs get the colored text formatter.
func NewLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logger.Warnf("Invalid log level '%s', defaulting to info", logLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("ENVIRONMENT") == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	}

	return logger
}
