package vmm

import "geeos/kernel/mem"

const (
	// pageLevels indicates the number of page levels supported by the
	// 32-bit (non-PAE) x86 architecture.
	pageLevels = 2

	// entriesPerTable is the number of entries in a page directory or a
	// page table.
	entriesPerTable = 1 << 10

	// pteSize is the size in bytes of a page table entry.
	pteSize = 4

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry. For this particular architecture,
	// bits 12-31 contain the physical memory address.
	ptePhysPageMask = uint32(0xfffff000)

	// maxVirtAddr is the highest address that fits in a 32-bit virtual
	// address space.
	maxVirtAddr = uintptr(0xffffffff)

	// kernelPDTEntryStart is the first page directory entry belonging to the
	// kernel half (3 GiB and above) of every address space.
	kernelPDTEntryStart = 768
)

// IdentityMapLimit is the end of the physical range identity mapped by
// SetupKernelSpace.
const IdentityMapLimit = 4 * mem.Mb


var (
	// pageLevelBits defines the number of virtual address bits that correspond to each
	// page level. Each level uses 10 bits which amounts to 1024 entries per table.
	pageLevelBits = [pageLevels]uint8{
		10,
		10,
	}

	// pageLevelShifts defines the shift required to access each page table component
	// of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		22,
		12,
	}
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set when a page directory entry maps a 4Mb page
	// instead of pointing to a page table.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal
)
