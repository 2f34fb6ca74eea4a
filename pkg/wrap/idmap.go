package wrap

import (
	"fmt"
	"os"

	"github.com/edera-dev/styrolite/pkg/exitcode"
	"github.com/edera-dev/styrolite/pkg/request"
)

// IDMapError wraps a failed write to a child's uid_map, gid_map or
// setgroups file. Fatal: the parent can't go on if it can't establish the
// mapping the child is now blocked waiting on.
type IDMapError struct {
	Op  string
	Err error
}

func (e *IDMapError) Error() string {
	return fmt.Sprintf("idmap: %s: %v", e.Op, e.Err)
}

func (e *IDMapError) Unwrap() error { return e.Err }

func (e *IDMapError) ExitCode() int { return exitcode.NamespaceError }

// writeIDMaps writes uid_map, gid_map and (when requested) a "deny"
// setgroups for pid, run from outside the user namespace pid has just
// unshared — only a process that hasn't dropped its own privileges can
// set another's id mappings. setgroups must be written before gid_map:
// the kernel refuses a gid_map write from an unprivileged writer unless
// setgroups was already denied.
func writeIDMaps(pid int, uidMappings, gidMappings []request.IdMapping, setgroupsDeny bool) error {
	if setgroupsDeny {
		path := fmt.Sprintf("/proc/%d/setgroups", pid)
		if err := os.WriteFile(path, []byte("deny"), 0o644); err != nil {
			return &IDMapError{Op: "write " + path, Err: err}
		}
	}
	if len(uidMappings) > 0 {
		path := fmt.Sprintf("/proc/%d/uid_map", pid)
		if err := os.WriteFile(path, []byte(request.RenderIDMappings(uidMappings)), 0o644); err != nil {
			return &IDMapError{Op: "write " + path, Err: err}
		}
	}
	if len(gidMappings) > 0 {
		path := fmt.Sprintf("/proc/%d/gid_map", pid)
		if err := os.WriteFile(path, []byte(request.RenderIDMappings(gidMappings)), 0o644); err != nil {
			return &IDMapError{Op: "write " + path, Err: err}
		}
	}
	return nil
}
