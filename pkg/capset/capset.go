// Package capset edits the calling thread's capability sets: the
// effective/permitted/inheritable triple plus the ambient set.
//
// The capget/capset(_LINUX_CAPABILITY_VERSION_3) pair and the per-bit
// PR_CAP_AMBIENT prctl calls are both done for us by
// github.com/moby/sys/capability, the library buildah's own
// chroot.setCapabilities uses for the same job.
package capset

import (
	"fmt"
	"strings"

	"github.com/edera-dev/styrolite/pkg/exitcode"
	"github.com/moby/sys/capability"
)

// CapabilityError wraps a failed capget/capset or ambient prctl call.
type CapabilityError struct {
	Op  string
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability: %s: %v", e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// ExitCode reports exitcode.CapabilityError, satisfying exitcode.Coder.
func (e *CapabilityError) ExitCode() int { return exitcode.CapabilityError }

func canonicalName(c capability.Cap) string {
	return "CAP_" + strings.ToUpper(c.String())
}

// Known returns the canonical CAP_* name of every capability this kernel's
// headers know about.
func Known() []string {
	known := capability.ListKnown()
	names := make([]string, len(known))
	for i, c := range known {
		names[i] = canonicalName(c)
	}
	return names
}

// Resolve maps a canonical CAP_* name to its bit, matched case-insensitively.
// ok is false if the name isn't one of capability.ListKnown().
func Resolve(name string) (c capability.Cap, ok bool) {
	for _, known := range capability.ListKnown() {
		if strings.EqualFold(canonicalName(known), name) {
			return known, true
		}
	}
	return capability.Cap(-1), false
}

// Bit returns the resolved capability's bit index in [0,63].
func Bit(name string) (int, bool) {
	c, ok := Resolve(name)
	if !ok {
		return 0, false
	}
	return int(c), true
}

// ValidateNames returns a CapabilityError-free nil if every name in names
// resolves to a known capability, else an error naming the first bad one.
func ValidateNames(names []string) error {
	for _, name := range names {
		if _, ok := Resolve(name); !ok {
			return fmt.Errorf("unknown capability %q", name)
		}
	}
	return nil
}

// Apply computes effective' = (effective \ drop) ∪ raise, then assigns
// permitted = inheritable = effective' wholesale (not just the bits named
// in raise/drop — any permitted or inheritable bit left over from before
// this call is replaced by effective' too), and lowers or raises the
// named bits in the ambient set. Every name must already have passed
// ValidateNames; an unresolvable name here is a programming error,
// reported as a CapabilityError rather than panicking.
func Apply(raise, raiseAmbient, drop []string) error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return &CapabilityError{Op: "new", Err: err}
	}
	if err := caps.Load(); err != nil {
		return &CapabilityError{Op: "load", Err: err}
	}

	for _, name := range drop {
		bit, ok := Resolve(name)
		if !ok {
			return &CapabilityError{Op: "drop", Err: fmt.Errorf("unknown capability %q", name)}
		}
		caps.Unset(capability.EFFECTIVE, bit)
		caps.Unset(capability.AMBIENT, bit)
	}
	for _, name := range raise {
		bit, ok := Resolve(name)
		if !ok {
			return &CapabilityError{Op: "raise", Err: fmt.Errorf("unknown capability %q", name)}
		}
		caps.Set(capability.EFFECTIVE, bit)
	}

	// permitted = inheritable = effective', as a wholesale copy over
	// every known bit, not just the ones raise/drop named.
	for _, bit := range capability.ListKnown() {
		if caps.Get(capability.EFFECTIVE, bit) {
			caps.Set(capability.PERMITTED, bit)
			caps.Set(capability.INHERITABLE, bit)
		} else {
			caps.Unset(capability.PERMITTED, bit)
			caps.Unset(capability.INHERITABLE, bit)
		}
	}

	for _, name := range raiseAmbient {
		bit, ok := Resolve(name)
		if !ok {
			return &CapabilityError{Op: "raise_ambient", Err: fmt.Errorf("unknown capability %q", name)}
		}
		caps.Set(capability.AMBIENT, bit)
	}

	if err := caps.Apply(capability.CAPS | capability.AMBS); err != nil {
		return &CapabilityError{Op: "apply", Err: err}
	}
	return nil
}
