package attach

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstPIDParsesSingleChild(t *testing.T) {
	pid, err := firstPID([]byte("4242\n"))
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestFirstPIDTakesFirstOfMultipleChildren(t *testing.T) {
	pid, err := firstPID([]byte("4242  4300 4301\n"))
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestFirstPIDToleratesRepeatedWhitespace(t *testing.T) {
	pid, err := firstPID([]byte("   4242   \n"))
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestFirstPIDErrorsOnNoChildren(t *testing.T) {
	_, err := firstPID([]byte(""))
	assert.Error(t, err)

	_, err = firstPID([]byte("\n"))
	assert.Error(t, err)
}
