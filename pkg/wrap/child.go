package wrap

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/edera-dev/styrolite/pkg/capset"
	"github.com/edera-dev/styrolite/pkg/execspec"
	"github.com/edera-dev/styrolite/pkg/exitcode"
	"github.com/edera-dev/styrolite/pkg/log"
	"github.com/edera-dev/styrolite/pkg/nskind"
	"github.com/edera-dev/styrolite/pkg/request"
	"github.com/edera-dev/styrolite/pkg/sigforward"
	"github.com/moby/sys/userns"
)

// runChild is the second half of the create pipeline, run by reexec.Init
// in the freshly started process the parent's Create spawned. It rereads
// the same config file the parent did rather than having the request
// serialized across the fork a second time.
func runChild() int {
	childLogger := log.New("wrap-child")

	configPath := os.Getenv(envConfigPath)
	data, err := os.ReadFile(configPath)
	if err != nil {
		childLogger.WithError(err).Error("reading config failed")
		return exitcode.NamespaceError
	}
	var envelope request.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		childLogger.WithError(err).Error("parsing config failed")
		return exitcode.ValidationError
	}
	if envelope.Create == nil {
		childLogger.Error("create child invoked with a non-Create envelope")
		return exitcode.ValidationError
	}
	req := envelope.Create

	namespaces := req.NamespacesOrDefault()
	twoStageUserNS := containsKind(namespaces, nskind.User) && !req.SkipTwoStageUserNS

	// Rootfs setup must happen before the second-stage user-namespace
	// unshare below: once this process unshares into a new user
	// namespace, it is unprivileged relative to the mount namespace it
	// already created (owned by the ancestor/host userns), and
	// pivot_root/mount calls made afterward fail with EPERM.
	if containsKind(namespaces, nskind.Mount) {
		if err := pivotFS(req); err != nil {
			childLogger.WithError(err).Error("rootfs setup failed")
			return exitcode.From(err)
		}
	} else {
		childLogger.Warn("no mount namespace requested, running without a new root — insecure")
	}

	var readyFD, goFD *os.File
	if twoStageUserNS {
		readyFD = fdFromEnv(envReadyFD)
		goFD = fdFromEnv(envGoFD)

		if err := nskind.Unshare([]nskind.Kind{nskind.User}); err != nil {
			childLogger.WithError(err).Error("second-stage user unshare failed")
			return exitcode.From(err)
		}
		if err := postEvent(readyFD); err != nil {
			childLogger.WithError(err).Error("signalling readiness failed")
			return exitcode.NamespaceError
		}
		if err := waitEvent(goFD); err != nil {
			childLogger.WithError(err).Error("waiting for id maps failed")
			return exitcode.NamespaceError
		}
		readyFD.Close()
		goFD.Close()
	}

	if userns.RunningInUserNS() {
		childLogger.Debug("running inside a user namespace")
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

func fdFromEnv(key string) *os.File {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return nil
	}
	return os.NewFile(uintptr(n), key)
}
