package log

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsToWarnLevel(t *testing.T) {
	os.Unsetenv("STYROLITE_DEBUG")
	os.Unsetenv("LOG_LEVEL")
	entry := New("test")
	assert.Equal(t, logrus.WarnLevel, entry.Logger.GetLevel())
	assert.Equal(t, "test", entry.Data["component"])
}

func TestNewHonorsLogLevelEnv(t *testing.T) {
	os.Unsetenv("STYROLITE_DEBUG")
	os.Setenv("LOG_LEVEL", "debug")
	defer os.Unsetenv("LOG_LEVEL")
	entry := New("test")
	assert.Equal(t, logrus.DebugLevel, entry.Logger.GetLevel())
}

func TestNewDebugEnvForcesJSONAndDebugLevel(t *testing.T) {
	os.Setenv("STYROLITE_DEBUG", "1")
	defer os.Unsetenv("STYROLITE_DEBUG")
	entry := New("test")
	assert.Equal(t, logrus.DebugLevel, entry.Logger.GetLevel())
	_, isJSON := entry.Logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}
