package rlimit

import (
	"testing"

	"github.com/edera-dev/styrolite/pkg/request"
	"github.com/stretchr/testify/assert"
)

func TestFieldsCoversEveryLimit(t *testing.T) {
	got := fields(&request.ProcessResourceLimits{})
	assert.Len(t, got, 15)
	seen := make(map[string]bool, len(got))
	for _, f := range got {
		seen[f.name] = true
	}
	for _, name := range []string{
		"AS", "CORE", "CPU", "DATA", "FSIZE", "MEMLOCK", "MSGQUEUE", "NICE",
		"NOFILE", "NPROC", "RSS", "RTPRIO", "RTTIME", "SIGPENDING", "STACK",
	} {
		assert.True(t, seen[name], "missing rlimit field %s", name)
	}
}

func TestApplyNilLimitsIsNoop(t *testing.T) {
	assert.NoError(t, Apply(nil))
}
