package cgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetValueAndBindPID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SetValue(dir, "memory.max", "16777216"))

	data, err := os.ReadFile(filepath.Join(dir, "memory.max"))
	require.NoError(t, err)
	assert.Equal(t, "16777216", string(data))

	require.NoError(t, BindPID(dir, 4242))
	data, err = os.ReadFile(filepath.Join(dir, "cgroup.procs"))
	require.NoError(t, err)
	assert.Equal(t, "4242", string(data))
}

func TestOpenMissingRoot(t *testing.T) {
	err := Open(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}
