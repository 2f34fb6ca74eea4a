package mountop

import (
	"testing"

	"github.com/edera-dev/styrolite/pkg/request"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestFlagsAlwaysIncludesSilent(t *testing.T) {
	flags := Flags(request.MountSpec{})
	assert.Equal(t, uintptr(unix.MS_SILENT), flags)
}

func TestFlagsCompositionIsOrderIndependent(t *testing.T) {
	a := request.MountSpec{Bind: true, ReadOnly: true, Safe: true}
	b := request.MountSpec{Safe: true, ReadOnly: true, Bind: true}
	assert.Equal(t, Flags(a), Flags(b))

	want := uintptr(unix.MS_SILENT | unix.MS_BIND | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC | unix.MS_RDONLY)
	assert.Equal(t, want, Flags(a))
}

func TestFlagsEachFieldContributesItsConstant(t *testing.T) {
	assert.Equal(t, uintptr(unix.MS_SILENT|unix.MS_BIND), Flags(request.MountSpec{Bind: true}))
	assert.Equal(t, uintptr(unix.MS_SILENT|unix.MS_REC), Flags(request.MountSpec{Recurse: true}))
	assert.Equal(t, uintptr(unix.MS_SILENT|unix.MS_PRIVATE), Flags(request.MountSpec{Unshare: true}))
	assert.Equal(t, uintptr(unix.MS_SILENT|unix.MS_RDONLY), Flags(request.MountSpec{ReadOnly: true}))
}
