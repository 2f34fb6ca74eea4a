package wrap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edera-dev/styrolite/pkg/mountop"
	"github.com/edera-dev/styrolite/pkg/request"
)

// pivotFS realizes the new root: it makes the mount tree private, makes
// rootfs bindable, mounts procfs under it, realizes every requested mount
// and mutation underneath it, and finally pivots into it. Every target in
// req.Mounts and req.Mutations is rewritten relative to rootfs here — the
// caller specifies them relative to the container's eventual "/", and this
// is the one place that turns "/data" into "<rootfs>/data".
func pivotFS(req *request.CreateRequest) error {
	// Detach from whatever mount propagation the host's "/" has, so
	// nothing realized below leaks back out.
	if err := mountop.Apply(request.MountSpec{Target: "/", Unshare: true, Recurse: true}); err != nil {
		return err
	}

	if err := mountop.EnsureBindable(req.Rootfs, req.RootfsReadOnly); err != nil {
		return err
	}

	procFSType := "proc"
	procTarget := filepath.Join(req.Rootfs, "proc")
	if err := mountop.Apply(request.MountSpec{
		Target:           procTarget,
		FSType:           &procFSType,
		Safe:             true,
		CreateMountpoint: true,
	}); err != nil {
		return err
	}

	for _, m := range req.Mounts {
		if err := mountop.Apply(rewriteMountTarget(req.Rootfs, m)); err != nil {
			return err
		}
	}

	for _, mut := range req.Mutations {
		if err := applyMutation(req.Rootfs, mut); err != nil {
			return err
		}
	}

	return mountop.Pivot(req.Rootfs)
}

// rewriteMountTarget rewrites a request-relative mount target (e.g.
// "/data") to be relative to rootfs (e.g. "/jail" -> "/jail/data").
func rewriteMountTarget(rootfs string, m request.MountSpec) request.MountSpec {
	m.Target = filepath.Join(rootfs, m.Target)
	return m
}

func applyMutation(rootfs string, m request.Mutation) error {
	target := filepath.Join(rootfs, m.Target)
	switch m.Kind {
	case request.MutationCreateDir:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return &mountop.MountError{Op: "mkdir " + target, Err: err}
		}
		return nil
	default:
		return &mountop.MountError{Op: "mutation " + target, Err: fmt.Errorf("unknown mutation kind %q", m.Kind)}
	}
}
