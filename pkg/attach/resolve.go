package attach

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/edera-dev/styrolite/pkg/exitcode"
)

// AttachTargetError wraps a failure to locate or validate the process
// whose namespaces Attach should join.
type AttachTargetError struct {
	Op  string
	Err error
}

func (e *AttachTargetError) Error() string {
	return fmt.Sprintf("attach target: %s: %v", e.Op, e.Err)
}

func (e *AttachTargetError) Unwrap() error { return e.Err }

// ExitCode reports exitcode.AttachTargetError, satisfying exitcode.Coder.
func (e *AttachTargetError) ExitCode() int { return exitcode.AttachTargetError }

// resolveChildPID reads /proc/<pid>/task/<pid>/children and returns the
// first PID listed in it. A container's supervisor stays outside the PID
// namespace it creates (unshare(2) of CLONE_NEWPID only moves the caller's
// later children into it, never the caller itself), and in the two-stage
// handoff the user namespace is unshared by the supervisor's child, so
// the namespaces Attach needs to join live on the supervisor's child, not
// the supervisor itself — this file is how that child's PID is found from
// the outside. The children file is whitespace-separated and may contain
// more than one PID if the supervisor ever forks again after spawning the
// workload; only the first entry, the original fork, is the one wanted.
func resolveChildPID(pid int) (int, error) {
	path := fmt.Sprintf("/proc/%d/task/%d/children", pid, pid)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, &AttachTargetError{Op: "read " + path, Err: err}
	}
	childPID, err := firstPID(data)
	if err != nil {
		return 0, &AttachTargetError{Op: "parse " + path, Err: err}
	}
	return childPID, nil
}

// firstPID parses a /proc/<pid>/task/<pid>/children-shaped buffer: PIDs
// separated by one or more spaces, with or without a trailing newline.
// strings.Fields already tolerates repeated whitespace, so the only extra
// case handled here is an empty (no children) file.
func firstPID(data []byte) (int, error) {
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, errors.New("process has no children to attach to")
	}
	return strconv.Atoi(fields[0])
}
