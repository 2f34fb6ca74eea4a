package wrap

import (
	"testing"

	"github.com/edera-dev/styrolite/pkg/nskind"
	"github.com/edera-dev/styrolite/pkg/request"
	"github.com/stretchr/testify/assert"
)

func TestResolveHostnameFallsBackToIdentity(t *testing.T) {
	req := &request.CreateRequest{}
	identity := request.IdentityOf(nil, 4242)
	assert.Equal(t, "litewrap-4242", resolveHostname(req, identity))
}

func TestResolveHostnameHonorsExplicitOverride(t *testing.T) {
	name := "my-jail"
	req := &request.CreateRequest{Hostname: &name}
	identity := request.IdentityOf(nil, 4242)
	assert.Equal(t, "my-jail", resolveHostname(req, identity))
}

func TestFirstLevelNamespacesExcludesUserDuringTwoStageHandoff(t *testing.T) {
	namespaces := []nskind.Kind{nskind.Mount, nskind.User, nskind.Pid}
	got := firstLevelNamespaces(namespaces, true)
	assert.Equal(t, []nskind.Kind{nskind.Mount, nskind.Pid}, got)
}

func TestFirstLevelNamespacesKeepsUserWhenTwoStageSkipped(t *testing.T) {
	namespaces := []nskind.Kind{nskind.Mount, nskind.User, nskind.Pid}
	got := firstLevelNamespaces(namespaces, false)
	assert.Equal(t, namespaces, got)
}

func TestRewriteMountTargetParentsUnderRootfs(t *testing.T) {
	m := request.MountSpec{Target: "/data", Bind: true}
	got := rewriteMountTarget("/jail", m)
	assert.Equal(t, "/jail/data", got.Target)
	assert.True(t, got.Bind)
}

func TestRewriteMountTargetHandlesRootTarget(t *testing.T) {
	m := request.MountSpec{Target: "/"}
	got := rewriteMountTarget("/jail", m)
	assert.Equal(t, "/jail", got.Target)
}
