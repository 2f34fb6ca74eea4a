// Package log is styrolite's logging entry point, modeled on the
// teacher's pkg/log/log.go: a logrus.Entry, level controlled by the
// environment, JSON-formatted when debugging is requested.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger for component (e.g. "wrap", "attach", "cgroup"),
// writing to stderr so it never collides with the workload's own stdio.
// STYROLITE_DEBUG=1 switches to JSON output at debug level; otherwise
// LOG_LEVEL (parsed with logrus.ParseLevel) picks the level, defaulting
// to warn, the level at which this project's best-effort-and-swallowed
// errors (CgroupError, BoottimeError, HostnameError, RlimitError) are
// surfaced.
func New(component string) *logrus.Entry {
	logger := logrus.New()
	logger.Out = os.Stderr

	if os.Getenv("STYROLITE_DEBUG") == "1" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		logger.SetLevel(levelFromEnv())
	}

	return logger.WithField("component", component)
}

func levelFromEnv() logrus.Level {
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return logrus.WarnLevel
	}
	return level
}
