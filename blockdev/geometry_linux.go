package blockdev

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// deviceGeometry returns the logical block size and the size in bytes of the
// block device f.
func deviceGeometry(f *os.File) (sectorSize uint32, size int64, _ error) {
	ss, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return 0, 0, fmt.Errorf("ioctl(BLKSSZGET): %v", err)
	}
	var sz uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&sz))); errno != 0 {
		return 0, 0, fmt.Errorf("ioctl(BLKGETSIZE64): %v", errno)
	}
	return uint32(ss), int64(sz), nil
}
