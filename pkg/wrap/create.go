// Package wrap implements the Create pipeline: the supervisor builds a new
// container from a CreateRequest by unsharing namespaces, laying out the
// rootfs, handing off into a new user namespace, dropping capabilities and
// finally execve-ing the workload as what becomes that namespace's PID 1.
package wrap

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/edera-dev/styrolite/pkg/cgroup"
	"github.com/edera-dev/styrolite/pkg/exitcode"
	"github.com/edera-dev/styrolite/pkg/log"
	"github.com/edera-dev/styrolite/pkg/nskind"
	"github.com/edera-dev/styrolite/pkg/reexec"
	"github.com/edera-dev/styrolite/pkg/request"
	"github.com/edera-dev/styrolite/pkg/rlimit"
	"github.com/edera-dev/styrolite/pkg/sigforward"
	goerrors "github.com/go-errors/errors"
)

// childSentinel is the argv[0] this package re-execs itself under to run
// the second half of the create pipeline in a fresh, single-threaded
// process — see package reexec's doc comment for why that's necessary.
const childSentinel = "styrolite-create-child"

const (
	envConfigPath = "_STYROLITE_CONFIG"
	envReadyFD    = "_STYROLITE_READY_FD"
	envGoFD       = "_STYROLITE_GO_FD"
)

var logger = log.New("wrap")

func init() {
	reexec.Register(childSentinel, func() {
		os.Exit(runChild())
	})
}

func containsKind(kinds []nskind.Kind, k nskind.Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// resolveHostname returns req.Hostname if set, else the identity-derived
// "litewrap-<id>" fallback.
func resolveHostname(req *request.CreateRequest, identity request.Identity) string {
	if req.Hostname != nil && *req.Hostname != "" {
		return *req.Hostname
	}
	return identity.Hostname()
}

// firstLevelNamespaces is what the supervisor unshares before forking:
// every requested namespace except User, which is deferred to the
// two-stage handoff — unless the caller opted out of that, in which case
// User is unshared up front along with everything else.
func firstLevelNamespaces(namespaces []nskind.Kind, twoStageUserNS bool) []nskind.Kind {
	if twoStageUserNS {
		return nskind.Without(namespaces, nskind.User)
	}
	return namespaces
}

// Create runs the full create pipeline for req and returns the process
// exit code cmd/styrolite should use. configPath is the on-disk location
// of the envelope req came from; the re-exec'd child rereads it from
// there instead of having it serialized across the fork a second time.
func Create(req *request.CreateRequest, configPath string) int {
	identity := request.IdentityOf(req.WorkloadID, os.Getpid())
	namespaces := req.NamespacesOrDefault()
	twoStageUserNS := containsKind(namespaces, nskind.User) && !req.SkipTwoStageUserNS
	hostname := resolveHostname(req, identity)

	// Cgroup placement happens before any fork: the supervisor's own PID
	// joins the subtree first, so every process forked afterward inherits
	// membership without a write-after-fork race. Best-effort: logged and
	// swallowed, never fatal.
	if _, err := cgroup.Place(req.CgroupFSOrDefault(), identity.CgroupSubtree(), req.Limits, os.Getpid()); err != nil {
		logger.WithError(err).Warn("cgroup placement failed, continuing without resource limits")
	}

	firstLevel := firstLevelNamespaces(namespaces, twoStageUserNS)
	if err := nskind.Unshare(firstLevel); err != nil {
		logger.WithError(err).Error("unshare failed")
		return exitcode.From(err)
	}

	if containsKind(namespaces, nskind.Time) {
		if err := writeBoottimeOffset(); err != nil {
			logger.WithError(err).Warn("boot time offset failed")
		}
	}
	// Unconditional: without a Uts namespace this simply renames the
	// host, which a caller that skipped Uts has implicitly accepted.
	if err := setHostname(hostname); err != nil {
		logger.WithError(err).Warn("sethostname failed")
	}
	if err := rlimit.Apply(req.Exec.ProcessLimits); err != nil {
		logger.WithError(err).Warn("rlimit failed")
	}

	var readyFD, goFD *os.File
	if twoStageUserNS {
		var err error
		readyFD, err = newEventFD()
		if err != nil {
			logger.WithError(err).Error("eventfd failed")
			return exitcode.NamespaceError
		}
		defer readyFD.Close()
		goFD, err = newEventFD()
		if err != nil {
			logger.WithError(err).Error("eventfd failed")
			return exitcode.NamespaceError
		}
		defer goFD.Close()
	}

	cmd := reexec.Command(childSentinel)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", envConfigPath, configPath))
	if twoStageUserNS {
		cmd.ExtraFiles = []*os.File{readyFD, goFD}
		cmd.Env = append(cmd.Env,
			fmt.Sprintf("%s=%d", envReadyFD, 3),
			fmt.Sprintf("%s=%d", envGoFD, 4),
		)
	}

	if err := cmd.Start(); err != nil {
		logger.WithError(err).Error("spawning create child failed")
		return exitcode.NamespaceError
	}

	forwarder := sigforward.Install()
	defer forwarder.Stop()
	sigforward.SetChildPID(cmd.Process.Pid)

	if twoStageUserNS {
		if err := waitEvent(readyFD); err != nil {
			logger.WithError(err).Error("waiting for child readiness failed")
			_ = cmd.Process.Kill()
			return exitcode.NamespaceError
		}
		if err := writeIDMaps(cmd.Process.Pid, req.UIDMappings, req.GIDMappings, req.SetgroupsDenyOrDefault()); err != nil {
			logger.WithError(err).Error("writing id maps failed")
			_ = cmd.Process.Kill()
			return exitcode.From(err)
		}
		if err := postEvent(goFD); err != nil {
			logger.WithError(err).Error("releasing create child failed")
			_ = cmd.Process.Kill()
			return exitcode.NamespaceError
		}
	}

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		wrapped := goerrors.Wrap(err, 0)
		logger.WithField("stack", wrapped.ErrorStack()).Error("waiting on create child failed")
		return exitcode.NamespaceError
	}
	return exitcode.OK
}
