// Package reexec lets the supervisor binary re-invoke its own image under
// a registered argv[0] sentinel, so that namespace-entering code that needs
// a freshly-started, single-threaded process runs in a real new process
// rather than a raw fork of the calling Go runtime — the kernel rejects
// CLONE_NEWUSER from a multithreaded task, which every live Go process is.
//
// This mirrors the Register/Init/Command/Self idiom of
// go.podman.io/storage/pkg/reexec (the package buildah and podman use to
// get the same property), reimplemented locally rather than imported: that
// module's own reason for existing is containers/storage's layered image
// store, none of which this project has a use for, so pulling it in whole
// for four functions would be the tail wagging the dog.
package reexec

import (
	"fmt"
	"os"
	"os/exec"
)

var inits = map[string]func(){}

// Register records fn to run when Init sees os.Args[0] == name. It panics
// on a duplicate name, which would only happen from a programming error
// since every registration in this project happens once, from an init().
func Register(name string, fn func()) {
	if _, exists := inits[name]; exists {
		panic(fmt.Sprintf("reexec: %q already registered", name))
	}
	inits[name] = fn
}

// Init looks up os.Args[0] in the registry. If it matches, the registered
// function runs and Init returns true: main() should return immediately
// rather than starting the normal program, since the registered function
// is expected to end the process itself (typically by execve).
func Init() bool {
	if fn, ok := inits[os.Args[0]]; ok {
		fn()
		return true
	}
	return false
}

// Self is the path Command re-invokes: /proc/self/exe always resolves to
// the running binary regardless of argv[0] or PATH, even after the
// original file has been unlinked.
func Self() string {
	return "/proc/self/exe"
}

// Command builds a *exec.Cmd that runs this binary again with argv[0] set
// to name. name must already be Register-ed; the process that name
// launches will run the registered function instead of main's normal body.
func Command(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(Self())
	cmd.Args = append([]string{name}, args...)
	return cmd
}
