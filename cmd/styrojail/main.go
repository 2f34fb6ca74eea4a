// Command styrojail is the front-end CLI: it turns flags and a
// program-plus-arguments into a CreateRequest, and launches the styrolite
// supervisor binary against it.
package main

import (
	"fmt"
	"os"

	"github.com/edera-dev/styrolite/pkg/cli"
	"github.com/edera-dev/styrolite/pkg/log"
	"github.com/edera-dev/styrolite/pkg/request"
	"github.com/edera-dev/styrolite/pkg/runner"
	"github.com/integrii/flaggy"
)

// defaultMounts is styrojail's own convenience default, laid on top of
// whatever the supervisor always mounts (procfs): a bound-in /dev and a
// fresh tmpfs /tmp, both subject to the safe-mount flags. --no-default-mounts
// skips this set entirely, leaving only what --mount named explicitly.
func defaultMounts() []request.MountSpec {
	dev := "/dev"
	tmpfs := "tmpfs"
	return []request.MountSpec{
		{Source: &dev, Target: "/dev", Bind: true, Recurse: true, Safe: true, CreateMountpoint: true},
		{FSType: &tmpfs, Target: "/tmp", Safe: true, CreateMountpoint: true},
	}
}

func main() {
	var mountFlags []string
	var limitFlags []string
	var noDefaultMounts bool
	var detach bool
	var execSelf bool
	var styroliteBin string
	var executable string

	flaggy.SetName("styrojail")
	flaggy.SetDescription("run a program inside a styrolite container")

	flaggy.StringSlice(&mountFlags, "m", "mount", "bind mount \"host:jail\" or \"host:jail:rw\", repeatable")
	flaggy.StringSlice(&limitFlags, "l", "limit", "cgroup limit \"key=value\", repeatable")
	flaggy.Bool(&noDefaultMounts, "", "no-default-mounts", "skip styrojail's default /dev and /tmp mounts")
	flaggy.Bool(&detach, "", "detach", "start the container and return immediately instead of waiting")
	flaggy.Bool(&execSelf, "", "exec-self", "replace this process with the supervisor instead of forking it")
	flaggy.String(&styroliteBin, "", "styrolite-bin", "path to the styrolite supervisor binary (default: look up \"styrolite\" on PATH)")
	flaggy.AddPositionalValue(&executable, "program", 1, true, "the program to run inside the container")

	flaggy.Parse()

	logger := log.New("styrojail")

	if styroliteBin == "" {
		styroliteBin = "styrolite"
	}

	req := request.CreateRequest{
		Exec: request.ExecutableSpec{
			Executable: executable,
			Arguments:  flaggy.TrailingArguments,
		},
		Rootfs: "/",
	}

	if !noDefaultMounts {
		req.Mounts = append(req.Mounts, defaultMounts()...)
	}
	for _, spec := range mountFlags {
		m, err := cli.ParseMount(spec)
		if err != nil {
			logger.WithError(err).Error("invalid --mount")
			os.Exit(1)
		}
		req.Mounts = append(req.Mounts, m)
	}
	for _, spec := range limitFlags {
		key, value, err := cli.ParseLimit(spec)
		if err != nil {
			logger.WithError(err).Error("invalid --limit")
			os.Exit(1)
		}
		req.Limits = append(req.Limits, request.Limit{Key: key, Value: value})
	}

	if err := req.Validate(); err != nil {
		logger.WithError(err).Error("invalid request")
		os.Exit(1)
	}

	envelope := request.Envelope{Create: &req}

	switch {
	case execSelf:
		if err := runner.Exec(styroliteBin, envelope); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case detach:
		pid, err := runner.Spawn(styroliteBin, envelope)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(pid)
	default:
		code, err := runner.Run(styroliteBin, envelope)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(code)
	}
}
