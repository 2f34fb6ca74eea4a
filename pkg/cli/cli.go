// Package cli parses styrojail's --mount and --limit flag values into the
// request types the front-end serializes into a CreateRequest.
package cli

import (
	"fmt"
	"strings"

	"github.com/edera-dev/styrolite/pkg/request"
)

// ParseMount parses a "host:jail" or "host:jail:rw" --mount value into a
// read-only-by-default bind mount; "rw" is the only modifier recognized.
func ParseMount(spec string) (request.MountSpec, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return request.MountSpec{}, fmt.Errorf("mount must look like %q or %q, got %q", "host:jail", "host:jail:rw", spec)
	}

	readOnly := true
	if len(parts) == 3 {
		if parts[2] != "rw" {
			return request.MountSpec{}, fmt.Errorf("only %q is supported, got %q", ":rw", spec)
		}
		readOnly = false
	}

	host := parts[0]
	return request.MountSpec{
		Source:           &host,
		Target:           parts[1],
		Bind:             true,
		Recurse:          true,
		ReadOnly:         readOnly,
		CreateMountpoint: true,
	}, nil
}

// ParseLimit parses a "key=value" --limit value into the cgroup control
// file key and value it writes.
func ParseLimit(spec string) (key, value string, err error) {
	k, v, found := strings.Cut(spec, "=")
	if !found || k == "" {
		return "", "", fmt.Errorf("limit key cannot be empty, got %q", spec)
	}
	return k, v, nil
}
