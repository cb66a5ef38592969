package logger

import (
	"io"
	"os"
	"strings"

	"github.com/segyhp/loan-tracker/internal/config"
	"github.com/sirupsen/logrus"
)

// New builds the process logger from the logging config.
// Unknown levels fall back to info.
func New(cfg config.LoggingConfig) *logrus.Logger {
	return NewWithOutput(cfg, os.Stdout)
}

func NewWithOutput(cfg config.LoggingConfig, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	switch strings.ToLower(cfg.Format) {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}

// Discard returns a logger that writes nowhere, for tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
