package mem

// Region describes a contiguous run of physical memory that the firmware
// reported as usable RAM.
type Region struct {
	// The physical address where the region begins.
	Base uint64

	// The region length in bytes.
	Length uint64
}

// End returns the first physical address past the end of the region.
func (r Region) End() uint64 {
	return r.Base + r.Length
}
