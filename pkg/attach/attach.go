// Package attach implements the Attach pipeline: join an existing
// container's namespaces by setns-ing into whatever its supervisor
// forked, then execve the new workload inside them.
package attach

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/edera-dev/styrolite/pkg/cgroup"
	"github.com/edera-dev/styrolite/pkg/exitcode"
	"github.com/edera-dev/styrolite/pkg/log"
	"github.com/edera-dev/styrolite/pkg/reexec"
	"github.com/edera-dev/styrolite/pkg/request"
	goerrors "github.com/go-errors/errors"
)

const childSentinel = "styrolite-attach-child"

// execChildSentinel is the second-stage re-exec: setns(CLONE_NEWPID) only
// changes which namespace the *next* children of the caller are born
// into, never the caller's own. The first-stage child (childSentinel)
// setns's into the target container, then forks this second process so
// the workload actually runs as a member of the target PID namespace
// rather than as a visitor still living in the caller's.
const execChildSentinel = "styrolite-attach-exec-child"

const envConfigPath = "_STYROLITE_ATTACH_CONFIG"
const envTargetPID = "_STYROLITE_ATTACH_TARGET_PID"

var logger = log.New("attach")

func init() {
	reexec.Register(childSentinel, func() {
		os.Exit(runChild())
	})
	reexec.Register(execChildSentinel, func() {
		os.Exit(runExecChild())
	})
}

// Attach runs the Attach pipeline for req and returns the process exit
// code cmd/styrolite should use.
func Attach(req *request.AttachRequest) int {
	targetPID, err := resolveChildPID(req.PID)
	if err != nil {
		logger.WithError(err).Error("resolving attach target failed")
		return exitcode.From(err)
	}

	identity := request.IdentityOf(req.WorkloadID, req.PID)
	subtreePath := filepath.Join(req.CgroupFSOrDefault(), identity.CgroupSubtree())
	if err := cgroup.BindPID(subtreePath, os.Getpid()); err != nil {
		logger.WithError(err).Warn("cgroup join failed, continuing outside the container's subtree")
	}

	configPath, err := writeTempConfig(req)
	if err != nil {
		logger.WithError(err).Error("writing attach config failed")
		return exitcode.NamespaceError
	}
	defer os.Remove(configPath) //nolint:errcheck

	cmd := reexec.Command(childSentinel)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = append(os.Environ(),
		envConfigPath+"="+configPath,
		envTargetPID+"="+strconv.Itoa(targetPID),
	)
	if err := cmd.Start(); err != nil {
		logger.WithError(err).Error("spawning attach child failed")
		return exitcode.NamespaceError
	}

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		wrapped := goerrors.Wrap(err, 0)
		logger.WithField("stack", wrapped.ErrorStack()).Error("waiting on attach child failed")
		return exitcode.NamespaceError
	}
	return exitcode.OK
}

func writeTempConfig(req *request.AttachRequest) (string, error) {
	data, err := json.Marshal(request.Envelope{Attach: req})
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "styrolite-attach-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}
