// Package rlimit applies POSIX resource limits, shared between pkg/wrap's
// create pipeline (limits go on the supervisor, pre-fork) and pkg/attach's
// attach pipeline (limits go on the attach child, pre-exec) since both end
// up doing the exact same setrlimit(2) sequence.
package rlimit

import (
	"fmt"

	"github.com/edera-dev/styrolite/pkg/request"
	"golang.org/x/sys/unix"
)

// Error wraps a failed setrlimit(2) call. Per this project's error policy
// this is logged and swallowed, not fatal: a workload that asked for a
// resource limit the kernel won't grant still runs, just unbounded on
// that one resource.
type Error struct {
	Resource string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rlimit: %s: %v", e.Resource, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// infinity is RLIM_INFINITY: a nil ProcessResourceLimits field means this
// resource is explicitly set unbounded, not left untouched.
const infinity = ^uint64(0)

type field struct {
	name     string
	resource int
	value    *uint64
}

func fields(limits *request.ProcessResourceLimits) []field {
	return []field{
		{"AS", unix.RLIMIT_AS, limits.AS},
		{"CORE", unix.RLIMIT_CORE, limits.CORE},
		{"CPU", unix.RLIMIT_CPU, limits.CPU},
		{"DATA", unix.RLIMIT_DATA, limits.DATA},
		{"FSIZE", unix.RLIMIT_FSIZE, limits.FSIZE},
		{"MEMLOCK", unix.RLIMIT_MEMLOCK, limits.MEMLOCK},
		{"MSGQUEUE", unix.RLIMIT_MSGQUEUE, limits.MSGQUEUE},
		{"NICE", unix.RLIMIT_NICE, limits.NICE},
		{"NOFILE", unix.RLIMIT_NOFILE, limits.NOFILE},
		{"NPROC", unix.RLIMIT_NPROC, limits.NPROC},
		{"RSS", unix.RLIMIT_RSS, limits.RSS},
		{"RTPRIO", unix.RLIMIT_RTPRIO, limits.RTPRIO},
		{"RTTIME", unix.RLIMIT_RTTIME, limits.RTTIME},
		{"SIGPENDING", unix.RLIMIT_SIGPENDING, limits.SIGPENDING},
		{"STACK", unix.RLIMIT_STACK, limits.STACK},
	}
}

// Apply sets every POSIX rlimit named in limits on the calling process. A
// nil limits is a no-op. It stops at the first failure, which the caller
// logs and swallows per this project's best-effort policy for resource
// limits.
func Apply(limits *request.ProcessResourceLimits) error {
	if limits == nil {
		return nil
	}
	for _, f := range fields(limits) {
		value := infinity
		if f.value != nil {
			value = *f.value
		}
		rlim := unix.Rlimit{Cur: value, Max: value}
		if err := unix.Setrlimit(f.resource, &rlim); err != nil {
			return &Error{Resource: f.name, Err: err}
		}
	}
	return nil
}
