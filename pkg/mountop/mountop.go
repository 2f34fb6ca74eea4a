// Package mountop executes a single mount spec and performs the
// pivot_root dance used to switch a process into a new rootfs.
package mountop

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/edera-dev/styrolite/pkg/exitcode"
	"github.com/edera-dev/styrolite/pkg/request"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// MountError wraps a failed mount(2)/pivot_root(2)/umount2(2) call.
type MountError struct {
	Op  string
	Err error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("mount: %s: %v", e.Op, e.Err)
}

func (e *MountError) Unwrap() error { return e.Err }

// ExitCode reports exitcode.MountError, satisfying exitcode.Coder.
func (e *MountError) ExitCode() int { return exitcode.MountError }

// Flags computes the flag word for a MountSpec: MS_SILENT is always set;
// the rest are the bitwise-OR of the fixed constants for whichever of
// {bind, recurse, unshare, safe, read_only} are set. The result doesn't
// depend on the order the fields were set in.
func Flags(spec request.MountSpec) uintptr {
	flags := uintptr(unix.MS_SILENT)
	if spec.Bind {
		flags |= unix.MS_BIND
	}
	if spec.Unshare {
		flags |= unix.MS_PRIVATE
	}
	if spec.Recurse {
		flags |= unix.MS_REC
	}
	if spec.Safe {
		flags |= unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC
	}
	if spec.ReadOnly {
		flags |= unix.MS_RDONLY
	}
	return flags
}

// rawMount calls mount(2) directly instead of through unix.Mount, because
// a nil source/fstype must reach the kernel as a NULL pointer: passing ""
// through unix.Mount's string parameters hands the kernel a pointer to an
// empty C string, which is not the same thing for operations (remounts,
// propagation changes) that key off the pointer being NULL.
func rawMount(source, target, fstype *string, flags uintptr, data string) error {
	var srcPtr, fstypePtr, dataPtr *byte
	var err error
	if source != nil {
		if srcPtr, err = unix.BytePtrFromString(*source); err != nil {
			return err
		}
	}
	if fstype != nil {
		if fstypePtr, err = unix.BytePtrFromString(*fstype); err != nil {
			return err
		}
	}
	if data != "" {
		if dataPtr, err = unix.BytePtrFromString(data); err != nil {
			return err
		}
	}
	targetPtr, err := unix.BytePtrFromString(target)
	if err != nil {
		return err
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_MOUNT,
		uintptr(unsafe.Pointer(srcPtr)),
		uintptr(unsafe.Pointer(targetPtr)),
		uintptr(unsafe.Pointer(fstypePtr)),
		flags,
		uintptr(unsafe.Pointer(dataPtr)),
		0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}

// Apply realizes a single mount: it creates the mountpoint directory if
// requested, computes the flag word, and calls mount(2). When a bind
// mount is also requested read-only, a single mount(2) call cannot make
// a bind mount read-only (the kernel silently ignores MS_RDONLY
// alongside MS_BIND), so a follow-up "remount,bind,ro" is issued — see
// DESIGN.md for the full reasoning.
func Apply(spec request.MountSpec) error {
	if spec.CreateMountpoint {
		if err := os.MkdirAll(spec.Target, 0o755); err != nil {
			return &MountError{Op: "mkdir " + spec.Target, Err: err}
		}
	}

	flags := Flags(spec)
	if err := rawMount(spec.Source, spec.Target, spec.FSType, flags, ""); err != nil {
		return &MountError{Op: "mount " + spec.Target, Err: err}
	}

	if spec.Bind && spec.ReadOnly {
		remountFlags := uintptr(unix.MS_SILENT | unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY)
		if spec.Recurse {
			remountFlags |= unix.MS_REC
		}
		if err := rawMount(nil, spec.Target, nil, remountFlags, ""); err != nil {
			return &MountError{Op: "remount,bind,ro " + spec.Target, Err: err}
		}
	}
	return nil
}

// EnsureBindable makes path eligible to be the new root for pivot_root by
// recursively bind-mounting it onto itself, unless it is already a mount
// point (pivot_root requires the new root to be a mount point distinct
// from its parent). Probing first, in the manner of buildah's bind
// package, makes this idempotent instead of erroring on a double bind. When
// readOnly is set, a "remount,bind,ro" follow-up is issued regardless of
// whether the self-bind was just created or already existed, so a rootfs
// that was already a mount point still ends up read-only.
func EnsureBindable(path string, readOnly bool) error {
	mounted, err := mountinfo.Mounted(path)
	if err != nil {
		return &MountError{Op: "mountinfo " + path, Err: err}
	}
	if !mounted {
		if err := rawMount(&path, path, nil, uintptr(unix.MS_SILENT|unix.MS_BIND|unix.MS_REC), ""); err != nil {
			return &MountError{Op: "self-bind " + path, Err: err}
		}
	}
	if readOnly {
		remountFlags := uintptr(unix.MS_SILENT | unix.MS_BIND | unix.MS_REC | unix.MS_REMOUNT | unix.MS_RDONLY)
		if err := rawMount(nil, path, nil, remountFlags, ""); err != nil {
			return &MountError{Op: "remount,bind,ro " + path, Err: err}
		}
	}
	return nil
}

// Pivot switches the calling process's root filesystem to target using
// the chdir/pivot_root(".", ".")/detach idiom, which pivots without
// needing a separate put_old mountpoint.
func Pivot(target string) error {
	if err := unix.Chdir(target); err != nil {
		return &MountError{Op: "chdir " + target, Err: err}
	}
	if err := unix.PivotRoot(".", "."); err != nil {
		return &MountError{Op: "pivot_root", Err: err}
	}
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return &MountError{Op: "umount2 old root", Err: err}
	}
	if err := unix.Chdir("/"); err != nil {
		return &MountError{Op: "chdir /", Err: err}
	}
	return nil
}
