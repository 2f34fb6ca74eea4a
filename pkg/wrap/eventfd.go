package wrap

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

// newEventFD opens a semaphore-mode eventfd: one write adds 1 to its
// counter and wakes exactly one blocked read. A single descriptor is all
// either side needs — the child inherits its own fd number referring to
// the same underlying counter across the fork, so parent and child signal
// each other by reading and writing their own copy. Used for the two
// rendezvous points of the two-stage user namespace handoff (child ready
// for id maps, id maps written and child cleared to proceed), in place of
// the pipe pair storage/pkg/unshare.Cmd uses for the same kind of
// handoff — a semaphore eventfd carries the same one-shot wake-up with
// less plumbing than a pipe's read/write ends.
func newEventFD() (*os.File, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_SEMAPHORE)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), "eventfd"), nil
}

func postEvent(f *os.File) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 1)
	_, err := f.Write(buf)
	return err
}

func waitEvent(f *os.File) error {
	buf := make([]byte, 8)
	_, err := f.Read(buf)
	return err
}
