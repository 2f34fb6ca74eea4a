// Package nskind maps the logical namespace kinds this project understands
// to Linux clone flags, and wraps the unshare(2)/setns(2) syscalls that act
// on them.
package nskind

import (
	"fmt"
	"os"

	"github.com/edera-dev/styrolite/pkg/exitcode"
	"golang.org/x/sys/unix"
)

// Kind is a tagged variant over the namespace kinds styrolite can
// unshare or join.
type Kind string

const (
	Mount  Kind = "mount"
	Uts    Kind = "uts"
	Ipc    Kind = "ipc"
	User   Kind = "user"
	Pid    Kind = "pid"
	Net    Kind = "net"
	Cgroup Kind = "cgroup"
	Time   Kind = "time"
)

// cloneFlags maps each kind to its fixed kernel clone-flag constant.
var cloneFlags = map[Kind]int{
	Mount:  unix.CLONE_NEWNS,
	Uts:    unix.CLONE_NEWUTS,
	Ipc:    unix.CLONE_NEWIPC,
	User:   unix.CLONE_NEWUSER,
	Pid:    unix.CLONE_NEWPID,
	Net:    unix.CLONE_NEWNET,
	Cgroup: unix.CLONE_NEWCGROUP,
	Time:   unix.CLONE_NEWTIME,
}

// procNSFile maps each kind to the name it has under /proc/<pid>/ns/.
var procNSFile = map[Kind]string{
	Mount:  "mnt",
	Uts:    "uts",
	Ipc:    "ipc",
	User:   "user",
	Pid:    "pid",
	Net:    "net",
	Cgroup: "cgroup",
	Time:   "time",
}

// setnsOrder is the deterministic order setns walks requested kinds in:
// user first (the kernel needs it entered before the others can be joined
// with the right capabilities), then the rest in a fixed order.
var setnsOrder = []Kind{User, Mount, Uts, Ipc, Pid, Net, Cgroup, Time}

// Valid reports whether k is one of the known namespace kinds.
func Valid(k Kind) bool {
	_, ok := cloneFlags[k]
	return ok
}

// NamespaceError wraps a failed unshare/setns call.
type NamespaceError struct {
	Op  string
	Err error
}

func (e *NamespaceError) Error() string {
	return fmt.Sprintf("namespace: %s: %v", e.Op, e.Err)
}

func (e *NamespaceError) Unwrap() error { return e.Err }

// ExitCode reports exitcode.NamespaceError, satisfying exitcode.Coder.
func (e *NamespaceError) ExitCode() int { return exitcode.NamespaceError }

// Flags OR-s together the clone flags for the given kinds.
func Flags(kinds []Kind) int {
	var flags int
	for _, k := range kinds {
		flags |= cloneFlags[k]
	}
	return flags
}

// Without returns kinds with every occurrence of excl removed, preserving
// the relative order of the rest.
func Without(kinds []Kind, excl Kind) []Kind {
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		if k != excl {
			out = append(out, k)
		}
	}
	return out
}

// Unshare OR-s together the clone flags for kinds and invokes unshare(2).
func Unshare(kinds []Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	if err := unix.Unshare(Flags(kinds)); err != nil {
		return &NamespaceError{Op: "unshare", Err: err}
	}
	return nil
}

// Setns opens /proc/<pid>/ns/<name> for each requested kind, in
// deterministic order (user first when present), and calls setns(2) on
// each descriptor. Every opened descriptor is released on every exit path.
func Setns(targetPID int, kinds []Kind) error {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	var opened []*os.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	for _, k := range setnsOrder {
		if !want[k] {
			continue
		}
		path := fmt.Sprintf("/proc/%d/ns/%s", targetPID, procNSFile[k])
		f, err := os.Open(path)
		if err != nil {
			return &NamespaceError{Op: "open " + path, Err: err}
		}
		opened = append(opened, f)
		if err := unix.Setns(int(f.Fd()), cloneFlags[k]); err != nil {
			return &NamespaceError{Op: "setns " + string(k), Err: err}
		}
	}
	return nil
}
