// Package mem contains the physical memory model and the size and page
// constants shared by the memory management packages.
package mem

import (
	"strconv"
	"strings"
)

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// PhysAddrLimit is the size of the physical address space reachable by
	// a 32-bit page table entry (no PAE).
	PhysAddrLimit = 4 * Gb
)

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of pages required for storing a block of this size.
func (s Size) Pages() uint32 {
	pageSizeMinus1 := PageSize - 1
	return uint32((s+pageSizeMinus1) & ^pageSizeMinus1) >> PageShift
}

// String formats the size using the largest unit that divides it exactly.
func (s Size) String() string {
	switch {
	case s != 0 && s%Gb == 0:
		return strconv.FormatUint(uint64(s/Gb), 10) + "G"
	case s != 0 && s%Mb == 0:
		return strconv.FormatUint(uint64(s/Mb), 10) + "M"
	case s != 0 && s%Kb == 0:
		return strconv.FormatUint(uint64(s/Kb), 10) + "K"
	default:
		return strconv.FormatUint(uint64(s), 10)
	}
}

// ParseSize parses a size expressed as a decimal byte count with an optional
// K, M or G suffix (case-insensitive). It returns false if the input is not a
// valid size.
func ParseSize(v string) (Size, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}

	unit := Byte
	switch v[len(v)-1] {
	case 'k', 'K':
		unit = Kb
	case 'm', 'M':
		unit = Mb
	case 'g', 'G':
		unit = Gb
	}
	if unit != Byte {
		v = v[:len(v)-1]
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n > uint64(^Size(0)/unit) {
		return 0, false
	}

	return Size(n) * unit, true
}

// AlignUp rounds addr up to the next multiple of align which must be a power
// of two.
func AlignUp(addr uintptr, align Size) uintptr {
	mask := uintptr(align - 1)
	return (addr + mask) &^ mask
}

// AlignDown rounds addr down to a multiple of align which must be a power of
// two.
func AlignDown(addr uintptr, align Size) uintptr {
	return addr &^ uintptr(align-1)
}
