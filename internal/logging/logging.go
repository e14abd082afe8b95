// Package logging builds the per-component structured loggers used
// across tracevis, chaining fieldLogger := log.WithField("component", ...)
// the way long-running ingestion services typically do.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Root is the process-wide base logger; every component logger is derived
// from it via For so that log level/format/output are configured once.
var Root = logrus.New()

func init() {
	Root.SetOutput(os.Stderr)
	Root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Configure sets the root logger's level and formatter from config values.
func Configure(level string, jsonFormat bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Root.SetLevel(lvl)
	if jsonFormat {
		Root.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// For returns a child logger tagged with the given component name, e.g.
// logging.For("store"), logging.For("thread").
func For(component string) *logrus.Entry {
	return Root.WithField("component", component)
}
