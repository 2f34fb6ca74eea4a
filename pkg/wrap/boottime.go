package wrap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// BoottimeError wraps a failed CLOCK_BOOTTIME read or timens_offsets
// write. Per this project's error policy this is logged and swallowed:
// a workload that asked for a private boot time still runs, just seeing
// the host's uptime instead of its own.
type BoottimeError struct {
	Err error
}

func (e *BoottimeError) Error() string {
	return fmt.Sprintf("boottime offset: %v", e.Err)
}

func (e *BoottimeError) Unwrap() error { return e.Err }

// writeBoottimeOffset reads the host's current CLOCK_BOOTTIME and writes an
// offset of one second less than that (clamped at zero) to
// /proc/self/timens_offsets, so the namespace's boot time reads as about
// one second from this point on. Like CLONE_NEWPID, a time namespace's
// offsets only take effect for children created after they're written, so
// this must run after the Time unshare and before the fork that creates
// the workload's process.
func writeBoottimeOffset() error {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return &BoottimeError{Err: err}
	}
	boottime := ts.Sec - 1
	var line string
	if boottime <= 0 {
		line = "boottime 0 0\n"
	} else {
		line = fmt.Sprintf("boottime -%d 0\n", boottime)
	}
	if err := os.WriteFile("/proc/self/timens_offsets", []byte(line), 0o644); err != nil {
		return &BoottimeError{Err: err}
	}
	return nil
}
