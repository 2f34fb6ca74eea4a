package request

import (
	"encoding/json"
	"testing"

	"github.com/edera-dev/styrolite/pkg/nskind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderIDMappings(t *testing.T) {
	got := RenderIDMappings([]IdMapping{
		{BaseNSID: 0, BaseHostID: 1000, RemapCount: 1},
		{BaseNSID: 1, BaseHostID: 100000, RemapCount: 65536},
	})
	assert.Equal(t, "0 1000 1\n1 100000 65536", got)
}

func TestRenderIDMappingsEmpty(t *testing.T) {
	assert.Equal(t, "", RenderIDMappings(nil))
}

func TestIdentityOf(t *testing.T) {
	workload := "foo"
	assert.Equal(t, Identity("foo"), IdentityOf(&workload, 4242))
	assert.Equal(t, Identity("4242"), IdentityOf(nil, 4242))
}

func TestIdentityHostnameAndCgroup(t *testing.T) {
	id := Identity("foo")
	assert.Equal(t, "litewrap-foo", id.Hostname())
	assert.Equal(t, "litewrap-foo", id.CgroupSubtree())
}

func TestMountSpecValidate(t *testing.T) {
	assert.Error(t, MountSpec{}.Validate(), "empty target")

	src := "/etc/passwd"
	assert.NoError(t, MountSpec{Source: &src, Target: "/etc/passwd", Bind: true}.Validate())

	assert.Error(t, MountSpec{Target: "/data", Bind: true}.Validate(), "bind without source")

	assert.NoError(t, MountSpec{Target: "/", Bind: true, Unshare: true}.Validate(), "propagation change on /")
}

func TestCapabilitiesValidateAmbientSubsetOfRaise(t *testing.T) {
	c := Capabilities{Raise: []string{"CAP_SYS_ADMIN"}, RaiseAmbient: []string{"CAP_SYS_ADMIN"}}
	assert.NoError(t, c.Validate())

	bad := Capabilities{RaiseAmbient: []string{"CAP_SYS_ADMIN"}}
	assert.Error(t, bad.Validate())
}

func TestCapabilitiesValidateUnknownName(t *testing.T) {
	c := Capabilities{Drop: []string{"CAP_NOT_REAL"}}
	assert.Error(t, c.Validate())
}

func TestCreateRequestNamespacesOrDefault(t *testing.T) {
	r := &CreateRequest{}
	assert.Equal(t, DefaultNamespaces, r.NamespacesOrDefault())

	r.Namespaces = []nskind.Kind{nskind.Net}
	assert.Equal(t, []nskind.Kind{nskind.Net}, r.NamespacesOrDefault())
}

func TestCreateRequestDefaults(t *testing.T) {
	r := &CreateRequest{}
	assert.Equal(t, "/sys/fs/cgroup", r.CgroupFSOrDefault())
	assert.True(t, r.SetgroupsDenyOrDefault())

	deny := false
	r.SetgroupsDeny = &deny
	assert.False(t, r.SetgroupsDenyOrDefault())
}

func TestCreateRequestValidateRequiresExecAndRootfs(t *testing.T) {
	r := &CreateRequest{}
	assert.Error(t, r.Validate())

	r.Exec.Executable = "/bin/true"
	assert.Error(t, r.Validate(), "still missing rootfs")

	r.Rootfs = "/"
	assert.NoError(t, r.Validate())
}

func TestEnvListToEnvironPreservesOrder(t *testing.T) {
	e := EnvList{{Key: "B", Value: "2"}, {Key: "A", Value: "1"}}
	assert.Equal(t, []string{"B=2", "A=1"}, e.ToEnviron())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	workload := "t1"
	hostname := "myhost"
	env := &Envelope{Create: &CreateRequest{
		Exec:       ExecutableSpec{Executable: "/bin/true", Environment: EnvList{{Key: "A", Value: "1"}}},
		Rootfs:     "/",
		WorkloadID: &workload,
		Hostname:   &hostname,
		Namespaces: []nskind.Kind{nskind.Mount, nskind.Pid},
		Limits:     []Limit{{Key: "memory.max", Value: "16777216"}},
	}}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, env, &decoded)
}

func TestEnvelopeValidateRequiresExactlyOneVariant(t *testing.T) {
	assert.Error(t, (&Envelope{}).Validate())

	c := &Envelope{Create: &CreateRequest{Exec: ExecutableSpec{Executable: "/bin/true"}, Rootfs: "/"}}
	assert.NoError(t, c.Validate())

	both := &Envelope{Create: c.Create, Attach: &AttachRequest{Exec: c.Create.Exec, PID: 1}}
	assert.Error(t, both.Validate())
}

func TestMutationValidate(t *testing.T) {
	assert.NoError(t, Mutation{Kind: MutationCreateDir, Target: "/data"}.Validate())
	assert.Error(t, Mutation{Kind: MutationCreateDir}.Validate())
	assert.Error(t, Mutation{Kind: "bogus", Target: "/x"}.Validate())
}

func TestAttachRequestValidate(t *testing.T) {
	r := &AttachRequest{Exec: ExecutableSpec{Executable: "/bin/true"}}
	assert.Error(t, r.Validate(), "pid must be positive")
	r.PID = 123
	assert.NoError(t, r.Validate())
}
