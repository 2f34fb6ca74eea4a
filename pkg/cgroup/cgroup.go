// Package cgroup opens and writes a cgroup v2 subtree: resource limits
// are applied best-effort, and the supervisor's own PID is bound to the
// subtree before fork so that every subsequently forked process inherits
// membership without a write-procs-after-fork race.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/edera-dev/styrolite/pkg/request"
	"golang.org/x/sys/unix"
)

// CgroupError wraps a failed open/create/write under a cgroupfs root.
// Per this project's error policy, CgroupError is always logged and
// swallowed by the caller (pkg/wrap), never fatal: resource limits are
// best-effort.
type CgroupError struct {
	Op  string
	Err error
}

func (e *CgroupError) Error() string {
	return fmt.Sprintf("cgroup: %s: %v", e.Op, e.Err)
}

func (e *CgroupError) Unwrap() error { return e.Err }

// IsV2 reports whether root is a cgroup v2 (unified hierarchy) mount, by
// statfs-ing it and checking for CGROUP2_SUPER_MAGIC. cgroup v1 is an
// explicit non-goal, so CreateChild refuses a v1 root.
func IsV2(root string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return false, &CgroupError{Op: "statfs " + root, Err: err}
	}
	return st.Type == unix.CGROUP2_SUPER_MAGIC, nil
}

// Open checks that root exists and is accessible.
func Open(root string) error {
	if err := unix.Faccessat(unix.AT_FDCWD, root, unix.F_OK, unix.AT_EACCESS); err != nil {
		return &CgroupError{Op: "access " + root, Err: err}
	}
	return nil
}

// CreateChild mkdir-p's <root>/<name> and returns its path.
func CreateChild(root, name string) (string, error) {
	v2, err := IsV2(root)
	if err != nil {
		return "", err
	}
	if !v2 {
		return "", &CgroupError{Op: "create " + name, Err: fmt.Errorf("%q is not a cgroup v2 hierarchy", root)}
	}
	path := filepath.Join(root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", &CgroupError{Op: "mkdir " + path, Err: err}
	}
	return path, nil
}

// SetValue writes value verbatim to <subtreePath>/<key>.
func SetValue(subtreePath, key, value string) error {
	file := filepath.Join(subtreePath, key)
	if err := os.WriteFile(file, []byte(value), 0o644); err != nil {
		return &CgroupError{Op: "write " + file, Err: err}
	}
	return nil
}

// BindPID writes pid into <subtreePath>/cgroup.procs, joining the caller
// to the subtree.
func BindPID(subtreePath string, pid int) error {
	return SetValue(subtreePath, "cgroup.procs", strconv.Itoa(pid))
}

// Place opens root, creates the named child subtree, writes every limit,
// and binds pid into it — the full sequence the create pipeline runs
// before fork. It stops at the first failure and returns it; the caller
// is responsible for logging and swallowing per this project's
// best-effort policy for cgroup placement.
func Place(root, name string, limits []request.Limit, pid int) (subtreePath string, err error) {
	if err := Open(root); err != nil {
		return "", err
	}
	subtreePath, err = CreateChild(root, name)
	if err != nil {
		return "", err
	}
	for _, l := range limits {
		if err := SetValue(subtreePath, l.Key, l.Value); err != nil {
			return subtreePath, err
		}
	}
	if err := BindPID(subtreePath, pid); err != nil {
		return subtreePath, err
	}
	return subtreePath, nil
}
