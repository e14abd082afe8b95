// Package assert implements the one fatal error path this system allows:
// invariant violations. Parse errors and transient misses are never
// routed through here — they return a value the caller queues or logs
// instead, since control flow should never run on exceptions.
package assert

import (
	"os"

	"github.com/go-stack/stack"
	"github.com/sirupsen/logrus"
)

// Invariant aborts the process if cond is false, after logging msg, the
// supplied fields, and a captured stack trace. It must only guard
// conditions whose failure indicates an upstream bug (e.g. a referenced
// lastVertID that does not exist) — never a routine missing-data case.
func Invariant(log *logrus.Entry, cond bool, msg string, fields logrus.Fields) {
	if cond {
		return
	}
	trace := stack.Trace().TrimRuntime()
	log.WithFields(fields).WithField("stack", trace.String()).Error("invariant violation: " + msg)
	os.Exit(1)
}
