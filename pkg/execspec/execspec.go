// Package execspec runs the final execve that turns a supervised process
// into the workload, shared between pkg/wrap's create path and pkg/attach's
// attach path since both end the same way: drop to the requested
// gid/uid, honor no_new_privs, then execvpe.
package execspec

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/edera-dev/styrolite/pkg/exitcode"
	"github.com/edera-dev/styrolite/pkg/log"
	"github.com/edera-dev/styrolite/pkg/request"
	"golang.org/x/sys/unix"
)

var logger = log.New("execspec")

// ExecError wraps a failure anywhere along the drop-privileges-then-exec
// path. Per this project's error policy this is always fatal: the caller
// maps it to the supervisor's ExecError exit code.
type ExecError struct {
	Op  string
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec: %s: %v", e.Op, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// ExitCode reports exitcode.ExecError, satisfying exitcode.Coder.
func (e *ExecError) ExitCode() int { return exitcode.ExecError }

// Run drops privileges per spec and execve's spec.Executable, replacing the
// calling process. It only returns if something failed; a successful call
// never returns at all.
func Run(spec request.ExecutableSpec) error {
	// uid, then gid, then chdir. setuid/setgid failures are logged and
	// swallowed rather than aborting the exec.
	if spec.UID != nil {
		if err := unix.Setuid(int(*spec.UID)); err != nil {
			logger.WithError(err).Warn("setuid failed")
		}
	}
	if spec.GID != nil {
		if err := unix.Setgid(int(*spec.GID)); err != nil {
			logger.WithError(err).Warn("setgid failed")
		}
	}
	if spec.WorkingDirectory != nil {
		if err := unix.Chdir(*spec.WorkingDirectory); err != nil {
			return &ExecError{Op: "chdir " + *spec.WorkingDirectory, Err: err}
		}
	}
	if spec.NoNewPrivs {
		if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
			return &ExecError{Op: "prctl no_new_privs", Err: err}
		}
	}

	argv := append([]string{spec.Executable}, spec.Arguments...)
	envp := spec.Environment.ToEnviron()

	path, err := exec.LookPath(spec.Executable)
	if err != nil {
		// execvpe falls back to treating the name as a literal path when
		// PATH search fails to resolve it; unix.Exec below will surface
		// ENOENT itself if that's also wrong.
		path = spec.Executable
	}

	if err := unix.Exec(path, argv, envp); err != nil {
		return &ExecError{Op: "execve " + path, Err: err}
	}
	return &ExecError{Op: "execve", Err: errors.New("execve returned without replacing the process")}
}
