//go:build !linux

package mem

func allocBacking(size Size) ([]byte, func([]byte) error, error) {
	return make([]byte, size), func([]byte) error { return nil }, nil
}
