// Package obslog provides structured, per-component logging via
// github.com/sirupsen/logrus. One base logger is configured per process;
// callers derive component loggers carrying the movieId/runId/jobId/layer
// fields spec.md's operations are keyed by, instead of reaching for a
// package-global *logrus.Logger directly.
package obslog

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu   sync.Mutex
	base = newDefaultLogger()
)

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(os.Stderr)
	return l
}

// Configure replaces the process-wide base logger's output and level.
// Called once at process startup (internal/run), before any component
// logger is derived, so per-run log files capture everything from plan
// build through executor termination.
func Configure(out io.Writer, level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	l := newDefaultLogger()
	l.SetOutput(out)
	l.SetLevel(level)
	base = l
}

// Component returns a logger scoped to one subsystem ("store", "graph",
// "planner", "executor", "provider"), per SPEC_FULL.md's ambient logging
// section.
func Component(name string) *logrus.Entry {
	mu.Lock()
	l := base
	mu.Unlock()
	return l.WithField("component", name)
}

// Run narrows a component logger to one run/movie, the fields every
// operation in this package is keyed by (movieId, runId).
func Run(component, movieID, runID string) *logrus.Entry {
	return Component(component).WithFields(logrus.Fields{
		"movieId": movieID,
		"runId":   runID,
	})
}

// Job narrows a run logger further to one job at one layer.
func Job(entry *logrus.Entry, jobID string, layer int) *logrus.Entry {
	return entry.WithFields(logrus.Fields{
		"jobId": jobID,
		"layer": layer,
	})
}
