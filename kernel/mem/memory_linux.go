//go:build linux

package mem

import (
	"golang.org/x/sys/unix"
)

// allocBacking reserves an anonymous private mapping for the physical memory
// store. Host pages are only committed once the kernel touches them.
func allocBacking(size Size) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(-1,
		0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE,
	)
	if err != nil {
		return nil, nil, err
	}

	return data, unix.Munmap, nil
}
