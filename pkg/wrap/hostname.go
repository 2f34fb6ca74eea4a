package wrap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// HostnameError wraps a failed sethostname(2) call. Logged and swallowed,
// not fatal: a cosmetic failure shouldn't take down the workload.
type HostnameError struct {
	Err error
}

func (e *HostnameError) Error() string {
	return fmt.Sprintf("hostname: %v", e.Err)
}

func (e *HostnameError) Unwrap() error { return e.Err }

func setHostname(name string) error {
	if err := unix.Sethostname([]byte(name)); err != nil {
		return &HostnameError{Err: err}
	}
	return nil
}
