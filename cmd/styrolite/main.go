// Command styrolite is the supervisor binary: given the path to a
// serialized request.Envelope, it either builds a new container (Create)
// or joins an existing one (Attach), then execve's the workload.
//
// It re-execs itself under a handful of registered argv[0] sentinels to
// run parts of that pipeline in a fresh, single-threaded process — see
// pkg/reexec's doc comment for why. main's first job is always to check
// for that before doing anything else.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/edera-dev/styrolite/pkg/attach"
	"github.com/edera-dev/styrolite/pkg/log"
	"github.com/edera-dev/styrolite/pkg/reexec"
	"github.com/edera-dev/styrolite/pkg/request"
	"github.com/edera-dev/styrolite/pkg/wrap"
	goerrors "github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
)

func main() {
	if reexec.Init() {
		return
	}
	os.Exit(run())
}

func run() int {
	logger := log.New("styrolite")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: styrolite <config.json>")
		return 1
	}
	configPath := os.Args[1]

	data, err := os.ReadFile(configPath)
	if err != nil {
		logStackTrace(logger, err, "reading config failed")
		return 1
	}

	var envelope request.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		logStackTrace(logger, err, "parsing config failed")
		return 1
	}
	if err := envelope.Validate(); err != nil {
		logger.WithError(err).Error("invalid request")
		return 1
	}

	switch {
	case envelope.Create != nil:
		return wrap.Create(envelope.Create, configPath)
	case envelope.Attach != nil:
		return attach.Attach(envelope.Attach)
	default:
		logger.Error("envelope has neither Create nor Attach set")
		return 1
	}
}

// logStackTrace is for errors that should never happen in a well-formed
// invocation (bad config on disk, not a request the caller made). Wrapping
// gives us a stack trace pointing at where styrolite noticed, not just the
// bare os/json error string.
func logStackTrace(logger *logrus.Entry, err error, msg string) {
	wrapped := goerrors.Wrap(err, 0)
	logger.WithField("stack", wrapped.ErrorStack()).Error(msg)
}
