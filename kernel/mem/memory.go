package mem

import (
	"geeos/kernel"
)

var (
	// ErrAddressOutOfRange is returned when an access falls outside the
	// installed physical memory.
	ErrAddressOutOfRange = &kernel.Error{Module: "mem", Message: "physical address out of range"}
)

// Memory models the machine's physical address space. Address 0 corresponds
// to the first byte of the backing store and every access is bounds-checked
// against the installed size. Page tables, the frame bitmap and the kernel
// heap all live inside a Memory instance.
//
// Memory is not safe for concurrent use.
type Memory struct {
	data    []byte
	release func([]byte) error
}

// NewMemory installs size bytes of zeroed physical memory. The size is rounded
// up to a multiple of PageSize.
func NewMemory(size Size) (*Memory, error) {
	if size == 0 {
		size = PageSize
	}
	size = Size(AlignUp(uintptr(size), PageSize))

	data, release, err := allocBacking(size)
	if err != nil {
		return nil, err
	}

	return &Memory{data: data, release: release}, nil
}

// Close releases the backing store. The Memory must not be used afterwards.
func (m *Memory) Close() error {
	if m.data == nil {
		return nil
	}

	data := m.data
	m.data = nil
	return m.release(data)
}

// Size returns the amount of installed physical memory.
func (m *Memory) Size() Size {
	return Size(len(m.data))
}

// Slice returns a view of size bytes of physical memory starting at addr.
// Writes to the returned slice update physical memory.
func (m *Memory) Slice(addr uintptr, size Size) ([]byte, *kernel.Error) {
	end := uint64(addr) + uint64(size)
	if end < uint64(addr) || end > uint64(len(m.data)) {
		return nil, ErrAddressOutOfRange
	}

	return m.data[addr:end:end], nil
}

// Memset sets size bytes at the given address to the supplied value. Instead
// of using a for loop, this function uses log2(size) copy calls which should
// give us a speed boost as page addresses are always aligned.
func (m *Memory) Memset(addr uintptr, value byte, size Size) *kernel.Error {
	if size == 0 {
		return nil
	}

	target, err := m.Slice(addr, size)
	if err != nil {
		return err
	}

	// Set first element and make log2(size) optimized copies
	target[0] = value
	for index := Size(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}

	return nil
}

// Memcopy copies size bytes from src to dst.
func (m *Memory) Memcopy(src, dst uintptr, size Size) *kernel.Error {
	if size == 0 {
		return nil
	}

	from, err := m.Slice(src, size)
	if err != nil {
		return err
	}

	to, err := m.Slice(dst, size)
	if err != nil {
		return err
	}

	copy(to, from)
	return nil
}
