package runner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edera-dev/styrolite/pkg/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope() request.Envelope {
	return request.Envelope{Create: &request.CreateRequest{
		Exec:   request.ExecutableSpec{Executable: "/bin/true"},
		Rootfs: "/",
	}}
}

func TestWriteConfigNamesMatchConvention(t *testing.T) {
	path, err := writeConfig(testEnvelope())
	require.NoError(t, err)
	defer os.Remove(path) //nolint:errcheck

	assert.True(t, strings.HasPrefix(filepath.Base(path), "styrolite-cfg-"))
	assert.True(t, strings.HasSuffix(path, ".json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Create"`)
}

func TestRunDeletesConfigAndReportsExitCode(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	path, err := writeConfig(testEnvelope())
	require.NoError(t, err)
	os.Remove(path) //nolint:errcheck

	code, err := Run("/bin/false", testEnvelope())
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	leftover, err := filepath.Glob(filepath.Join(dir, "styrolite-cfg-*.json"))
	require.NoError(t, err)
	assert.Empty(t, leftover)
}

func TestSpawnReturnsPIDAndLeavesConfigBehind(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	pid, err := Spawn("/bin/sleep", appendArgEnvelope())
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	proc, err := os.FindProcess(pid)
	require.NoError(t, err)
	_ = proc.Kill()

	leftover, err := filepath.Glob(filepath.Join(dir, "styrolite-cfg-*.json"))
	require.NoError(t, err)
	assert.Len(t, leftover, 1)
}

func appendArgEnvelope() request.Envelope {
	return testEnvelope()
}
