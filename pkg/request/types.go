// Package request is the typed description of create/attach requests: its
// validation and its JSON wire format. Nothing in this package touches the
// kernel; it is a pure data model consumed by pkg/wrap and pkg/attach.
package request

import (
	"fmt"
	"strings"

	"github.com/edera-dev/styrolite/pkg/capset"
	"github.com/edera-dev/styrolite/pkg/exitcode"
	"github.com/edera-dev/styrolite/pkg/nskind"
)

// ValidationError marks a request that failed validation before any side
// effect was attempted.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// ExitCode reports exitcode.ValidationError, satisfying exitcode.Coder.
func (e *ValidationError) ExitCode() int { return exitcode.ValidationError }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// DefaultNamespaces is the namespace set a CreateRequest gets when it
// doesn't name one explicitly.
var DefaultNamespaces = []nskind.Kind{
	nskind.Mount, nskind.Time, nskind.Uts, nskind.Pid, nskind.Ipc, nskind.User,
}

// EnvVar is one entry of an ExecutableSpec's environment, kept as an
// ordered pair rather than a Go map so that envp construction (styrolite
// execve's argv/envp in the order given) is deterministic: encoding/json
// marshals map[string]string with its keys sorted, which would silently
// reorder the environment relative to what the caller wrote. No package
// in the example pack models an ordered string map either, so this small
// type is hand-rolled rather than borrowed.
type EnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// EnvList is an ordered list of environment variables.
type EnvList []EnvVar

// ToEnviron renders the list as "K=V" pairs in original order, the shape
// execve's envp wants.
func (e EnvList) ToEnviron() []string {
	out := make([]string, len(e))
	for i, kv := range e {
		out[i] = kv.Key + "=" + kv.Value
	}
	return out
}

// IdMapping is one line of a uid_map/gid_map.
type IdMapping struct {
	BaseNSID   uint32 `json:"base_nsid"`
	BaseHostID uint32 `json:"base_hostid"`
	RemapCount uint32 `json:"remap_count"`
}

// RenderIDMappings renders mappings as whitespace-separated lines with a
// single '\n' separator and no trailing newline, e.g.
// RenderIDMappings([{0,1000,1},{1,100000,65536}]) == "0 1000 1\n1 100000 65536".
func RenderIDMappings(mappings []IdMapping) string {
	lines := make([]string, len(mappings))
	for i, m := range mappings {
		lines[i] = fmt.Sprintf("%d %d %d", m.BaseNSID, m.BaseHostID, m.RemapCount)
	}
	return strings.Join(lines, "\n")
}

// MountSpec describes one mount to realize inside the new mount namespace.
type MountSpec struct {
	Source           *string `json:"source,omitempty"`
	Target           string  `json:"target"`
	FSType           *string `json:"fstype,omitempty"`
	Bind             bool    `json:"bind,omitempty"`
	Recurse          bool    `json:"recurse,omitempty"`
	Unshare          bool    `json:"unshare,omitempty"`
	Safe             bool    `json:"safe,omitempty"`
	ReadOnly         bool    `json:"read_only,omitempty"`
	CreateMountpoint bool    `json:"create_mountpoint,omitempty"`
}

// Validate checks the MountSpec invariants from the data model: target is
// required, and a bind mount must name a source unless it's a propagation
// change on "/".
func (m MountSpec) Validate() error {
	if m.Target == "" {
		return invalid("mounts[].target", "must not be empty")
	}
	if m.Bind && m.Source == nil && m.Target != "/" {
		return invalid("mounts[].source", "required for a bind mount of %q", m.Target)
	}
	return nil
}

// Capabilities is the set of capability edits applied in the process that
// execve's the workload, just before the exec: raise into
// effective/permitted/inheritable, raise into the ambient set, and drop.
type Capabilities struct {
	Raise        []string `json:"raise,omitempty"`
	RaiseAmbient []string `json:"raise_ambient,omitempty"`
	Drop         []string `json:"drop,omitempty"`
}

// Validate resolves every named capability and checks the operational
// invariant that raise_ambient is a subset of raise (the kernel requires a
// bit to be inheritable+permitted before it can be raised into the
// ambient set, so catching the mismatch here turns a would-be
// CapabilityError at apply time into a friendlier, pre-side-effect
// ValidationError).
func (c Capabilities) Validate() error {
	if err := capset.ValidateNames(c.Raise); err != nil {
		return invalid("capabilities.raise", "%v", err)
	}
	if err := capset.ValidateNames(c.RaiseAmbient); err != nil {
		return invalid("capabilities.raise_ambient", "%v", err)
	}
	if err := capset.ValidateNames(c.Drop); err != nil {
		return invalid("capabilities.drop", "%v", err)
	}
	raised := make(map[string]bool, len(c.Raise))
	for _, name := range c.Raise {
		raised[strings.ToUpper(name)] = true
	}
	for _, name := range c.RaiseAmbient {
		if !raised[strings.ToUpper(name)] {
			return invalid("capabilities.raise_ambient", "%q must also be present in raise", name)
		}
	}
	return nil
}

// ProcessResourceLimits are POSIX rlimits; a nil field means RLIM_INFINITY.
type ProcessResourceLimits struct {
	AS         *uint64 `json:"as,omitempty"`
	CORE       *uint64 `json:"core,omitempty"`
	CPU        *uint64 `json:"cpu,omitempty"`
	DATA       *uint64 `json:"data,omitempty"`
	FSIZE      *uint64 `json:"fsize,omitempty"`
	MEMLOCK    *uint64 `json:"memlock,omitempty"`
	MSGQUEUE   *uint64 `json:"msgqueue,omitempty"`
	NICE       *uint64 `json:"nice,omitempty"`
	NOFILE     *uint64 `json:"nofile,omitempty"`
	NPROC      *uint64 `json:"nproc,omitempty"`
	RSS        *uint64 `json:"rss,omitempty"`
	RTPRIO     *uint64 `json:"rtprio,omitempty"`
	RTTIME     *uint64 `json:"rttime,omitempty"`
	SIGPENDING *uint64 `json:"sigpending,omitempty"`
	STACK      *uint64 `json:"stack,omitempty"`
}

// ExecutableSpec describes the workload to execve.
type ExecutableSpec struct {
	Executable       string                 `json:"executable"`
	Arguments        []string               `json:"arguments,omitempty"`
	WorkingDirectory *string                `json:"working_directory,omitempty"`
	Environment      EnvList                `json:"environment,omitempty"`
	UID              *uint32                `json:"uid,omitempty"`
	GID              *uint32                `json:"gid,omitempty"`
	NoNewPrivs       bool                   `json:"no_new_privs,omitempty"`
	ProcessLimits    *ProcessResourceLimits `json:"process_limits,omitempty"`
}

// Validate checks that executable is present. It's checked eagerly here
// along with the rest of the request, since ValidationError must be
// raised before any side effect and deferring this one check would be
// the only exception.
func (e ExecutableSpec) Validate() error {
	if e.Executable == "" {
		return invalid("exec.executable", "must not be empty")
	}
	return nil
}

// MutationKind tags the one current Mutation variant.
type MutationKind string

const MutationCreateDir MutationKind = "create_dir"

// Mutation is a filesystem change applied to the rootfs after mounts.
type Mutation struct {
	Kind   MutationKind `json:"kind"`
	Target string       `json:"target"`
}

func (m Mutation) Validate() error {
	switch m.Kind {
	case MutationCreateDir:
		if m.Target == "" {
			return invalid("mutations[].target", "must not be empty")
		}
		return nil
	default:
		return invalid("mutations[].kind", "unknown mutation kind %q", m.Kind)
	}
}

// Limit is one cgroup control-file write: Key names the file under the
// subtree (e.g. "memory.max"), Value is written verbatim. Kept as an
// ordered pair, like EnvList, so limits are applied in the order the
// caller listed them.
type Limit struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (l Limit) Validate() error {
	if l.Key == "" {
		return invalid("limits[].key", "must not be empty")
	}
	return nil
}

// Identity is the name this container is known by: workload_id if given,
// else the decimal supervisor PID. It derives the hostname and cgroup
// subtree name, both prefixed "litewrap-" per the wire protocol this
// project's supervisor binary shares with its predecessor.
type Identity string

func IdentityOf(workloadID *string, supervisorPID int) Identity {
	if workloadID != nil && *workloadID != "" {
		return Identity(*workloadID)
	}
	return Identity(fmt.Sprintf("%d", supervisorPID))
}

func (id Identity) Hostname() string      { return "litewrap-" + string(id) }
func (id Identity) CgroupSubtree() string { return "litewrap-" + string(id) }

// CreateRequest describes a container to build from scratch.
type CreateRequest struct {
	Exec               ExecutableSpec `json:"exec"`
	Rootfs             string         `json:"rootfs"`
	RootfsReadOnly     bool           `json:"rootfs_readonly,omitempty"`
	SkipTwoStageUserNS bool           `json:"skip_two_stage_userns,omitempty"`
	WorkloadID         *string        `json:"workload_id,omitempty"`
	Hostname           *string        `json:"hostname,omitempty"`
	SetgroupsDeny      *bool          `json:"setgroups_deny,omitempty"`
	Namespaces         []nskind.Kind  `json:"namespaces,omitempty"`
	UIDMappings        []IdMapping    `json:"uid_mappings,omitempty"`
	GIDMappings        []IdMapping    `json:"gid_mappings,omitempty"`
	Mounts             []MountSpec    `json:"mounts,omitempty"`
	Mutations          []Mutation     `json:"mutations,omitempty"`
	Limits             []Limit        `json:"limits,omitempty"`
	CgroupFS           string         `json:"cgroupfs,omitempty"`
	Capabilities       Capabilities   `json:"capabilities,omitempty"`
}

// NamespacesOrDefault returns Namespaces, or DefaultNamespaces if unset.
func (r *CreateRequest) NamespacesOrDefault() []nskind.Kind {
	if len(r.Namespaces) == 0 {
		return DefaultNamespaces
	}
	return r.Namespaces
}

// CgroupFSOrDefault returns CgroupFS, or "/sys/fs/cgroup" if unset.
func (r *CreateRequest) CgroupFSOrDefault() string {
	if r.CgroupFS == "" {
		return "/sys/fs/cgroup"
	}
	return r.CgroupFS
}

// SetgroupsDenyOrDefault returns SetgroupsDeny, defaulting to true.
func (r *CreateRequest) SetgroupsDenyOrDefault() bool {
	if r.SetgroupsDeny == nil {
		return true
	}
	return *r.SetgroupsDeny
}

// Validate checks every invariant in the data model that can be checked
// before any side effect.
func (r *CreateRequest) Validate() error {
	if err := r.Exec.Validate(); err != nil {
		return err
	}
	if r.Rootfs == "" {
		return invalid("rootfs", "must not be empty")
	}
	for _, k := range r.Namespaces {
		if !nskind.Valid(k) {
			return invalid("namespaces[]", "unknown namespace kind %q", k)
		}
	}
	for i, m := range r.Mounts {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("mounts[%d]: %w", i, err)
		}
	}
	for i, m := range r.Mutations {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("mutations[%d]: %w", i, err)
		}
	}
	for i, l := range r.Limits {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("limits[%d]: %w", i, err)
		}
	}
	return r.Capabilities.Validate()
}

// AttachRequest describes joining an existing container's namespaces.
type AttachRequest struct {
	Exec         ExecutableSpec `json:"exec"`
	PID          int            `json:"pid"`
	WorkloadID   *string        `json:"workload_id,omitempty"`
	Namespaces   []nskind.Kind  `json:"namespaces,omitempty"`
	CgroupFS     string         `json:"cgroupfs,omitempty"`
	Capabilities Capabilities   `json:"capabilities,omitempty"`
}

func (r *AttachRequest) NamespacesOrDefault() []nskind.Kind {
	if len(r.Namespaces) == 0 {
		return DefaultNamespaces
	}
	return r.Namespaces
}

func (r *AttachRequest) CgroupFSOrDefault() string {
	if r.CgroupFS == "" {
		return "/sys/fs/cgroup"
	}
	return r.CgroupFS
}

func (r *AttachRequest) Validate() error {
	if err := r.Exec.Validate(); err != nil {
		return err
	}
	if r.PID <= 0 {
		return invalid("pid", "must be positive")
	}
	for _, k := range r.Namespaces {
		if !nskind.Valid(k) {
			return invalid("namespaces[]", "unknown namespace kind %q", k)
		}
	}
	return r.Capabilities.Validate()
}

// Envelope is the discriminated union the front-end serializes and the
// supervisor binary reads: exactly one of Create or Attach is set.
type Envelope struct {
	Create *CreateRequest `json:"Create,omitempty"`
	Attach *AttachRequest `json:"Attach,omitempty"`
}

// Validate checks that exactly one variant is populated and that it
// validates on its own.
func (e *Envelope) Validate() error {
	switch {
	case e.Create != nil && e.Attach != nil:
		return invalid("", "exactly one of Create or Attach must be set, not both")
	case e.Create != nil:
		return e.Create.Validate()
	case e.Attach != nil:
		return e.Attach.Validate()
	default:
		return invalid("", "exactly one of Create or Attach must be set")
	}
}
