// Package runner is the front-end's glue to the supervisor binary: it
// serializes a request.Envelope to a temp file and launches
// cmd/styrolite against it, in one of three ways mirroring how the
// front-end itself was invoked.
package runner

import (
	"encoding/json"
	"os"
	"os/exec"

	"github.com/edera-dev/styrolite/pkg/request"
	"golang.org/x/sys/unix"
)

// writeConfig serializes envelope to a fresh styrolite-cfg-*.json temp
// file and returns its path.
func writeConfig(envelope request.Envelope) (string, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "styrolite-cfg-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// Run launches bin against envelope's serialized config, blocks until the
// whole supervised process tree exits, and deletes the temp config
// afterward — safe only because by the time Wait returns, every reader of
// that file (the supervisor and whatever it forked) is long done with it.
func Run(bin string, envelope request.Envelope) (int, error) {
	path, err := writeConfig(envelope)
	if err != nil {
		return 0, err
	}
	defer os.Remove(path) //nolint:errcheck

	cmd := exec.Command(bin, path)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 0, err
	}
	return 0, nil
}

// Spawn launches bin against envelope's serialized config and returns its
// PID immediately without waiting. The temp config is deliberately left
// on disk: Spawn returns before there is any way to know the supervisor
// is done reading it, so unlike Run there is no safe point to delete it
// from the front-end.
func Spawn(bin string, envelope request.Envelope) (int, error) {
	path, err := writeConfig(envelope)
	if err != nil {
		return 0, err
	}
	cmd := exec.Command(bin, path)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	return cmd.Process.Pid, nil
}

// Exec replaces the calling front-end process's own image with bin via
// execve, passing the serialized config path as its sole argument. The
// temp config leaks intentionally: once execve succeeds there is no
// front-end process left to delete it, and the supervisor that inherits
// this process slot has no reason to know the path it was given is a
// temp file rather than a caller-managed one.
func Exec(bin string, envelope request.Envelope) error {
	path, err := writeConfig(envelope)
	if err != nil {
		return err
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		resolved = bin
	}
	return unix.Exec(resolved, []string{resolved, path}, os.Environ())
}
