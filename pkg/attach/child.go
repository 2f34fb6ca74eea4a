package attach

import (
	"encoding/json"
	"os"
	"os/exec"
	"strconv"

	"github.com/edera-dev/styrolite/pkg/capset"
	"github.com/edera-dev/styrolite/pkg/execspec"
	"github.com/edera-dev/styrolite/pkg/exitcode"
	"github.com/edera-dev/styrolite/pkg/log"
	"github.com/edera-dev/styrolite/pkg/nskind"
	"github.com/edera-dev/styrolite/pkg/reexec"
	"github.com/edera-dev/styrolite/pkg/request"
	"github.com/edera-dev/styrolite/pkg/rlimit"
	"github.com/edera-dev/styrolite/pkg/sigforward"
)

// runChild is the second half of the attach pipeline, run by reexec.Init
// in a freshly started process — setns(2) into a user namespace, like
// unshare(2), refuses a multithreaded caller, so this has to happen in a
// new process rather than a goroutine of the long-lived attach command.
func runChild() int {
	childLogger := log.New("attach-child")

	configPath := os.Getenv(envConfigPath)
	data, err := os.ReadFile(configPath)
	if err != nil {
		childLogger.WithError(err).Error("reading attach config failed")
		return exitcode.NamespaceError
	}
	var envelope request.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		childLogger.WithError(err).Error("parsing attach config failed")
		return exitcode.ValidationError
	}
	if envelope.Attach == nil {
		childLogger.Error("attach child invoked with a non-Attach envelope")
		return exitcode.ValidationError
	}
	req := envelope.Attach

	targetPID, err := strconv.Atoi(os.Getenv(envTargetPID))
	if err != nil {
		childLogger.WithError(err).Error("parsing attach target pid failed")
		return exitcode.NamespaceError
	}

	namespaces := req.NamespacesOrDefault()
	if err := nskind.Setns(targetPID, namespaces); err != nil {
		childLogger.WithError(err).Error("setns failed")
		return exitcode.From(err)
	}

	// setns(CLONE_NEWPID) (and the other namespace kinds that behave the
	// same way) only takes effect for processes forked after this call,
	// not for this process itself. Fork a second re-exec'd child now so
	// the workload actually lands inside the target namespaces instead
	// of running alongside them in the caller's own.
	cmd := reexec.Command(execChildSentinel)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = append(os.Environ(), envConfigPath+"="+configPath)
	if err := cmd.Start(); err != nil {
		childLogger.WithError(err).Error("spawning attach exec child failed")
		return exitcode.NamespaceError
	}

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		childLogger.WithError(err).Error("waiting on attach exec child failed")
		return exitcode.NamespaceError
	}
	return exitcode.OK
}

// runExecChild is the third process in the attach pipeline: forked by
// runChild after it has setns'd into the target container, so this one
// is actually born inside the target namespaces. It applies the
// workload's own rlimits and capabilities and execve's it.
func runExecChild() int {
	childLogger := log.New("attach-exec-child")

	configPath := os.Getenv(envConfigPath)
	data, err := os.ReadFile(configPath)
	if err != nil {
		childLogger.WithError(err).Error("reading attach config failed")
		return exitcode.NamespaceError
	}
	var envelope request.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		childLogger.WithError(err).Error("parsing attach config failed")
		return exitcode.ValidationError
	}
	if envelope.Attach == nil {
		childLogger.Error("attach exec child invoked with a non-Attach envelope")
		return exitcode.ValidationError
	}
	req := envelope.Attach

	if err := rlimit.Apply(req.Exec.ProcessLimits); err != nil {
		childLogger.WithError(err).Warn("rlimit failed")
	}

	if err := capset.Apply(req.Capabilities.Raise, req.Capabilities.RaiseAmbient, req.Capabilities.Drop); err != nil {
		childLogger.WithError(err).Error("applying capabilities failed")
		return exitcode.From(err)
	}

	sigforward.ResetChildDefaults()

	if err := execspec.Run(req.Exec); err != nil {
		childLogger.WithError(err).Error("exec failed")
		return exitcode.From(err)
	}
	return exitcode.OK
}
