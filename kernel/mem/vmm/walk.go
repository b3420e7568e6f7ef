package vmm

import (
	"geeos/kernel"
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments.  If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// the page directory of pdt. It calls the supplied walkFn with the page table
// entry that corresponds to each page table level. The table for the next
// level is read from the entry after walkFn returns so walkFn may install it.
// An error is returned only if a table lies outside physical memory.
func (m *Manager) walk(pdt PageDirectoryTable, virtAddr uintptr, walkFn pageTableWalker) *kernel.Error {
	tableFrame := pdt.pdtFrame

	for level := uint8(0); level < pageLevels; level++ {
		table, err := m.table(tableFrame)
		if err != nil {
			return err
		}

		// Extract the bits from virtual address that correspond to the
		// index in this level's page table
		entryIndex := (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)

		pte := &table[entryIndex]
		if !walkFn(level, pte) {
			return nil
		}

		tableFrame = pte.Frame()
	}

	return nil
}

// pteForAddress returns the final page table entry that correspond to a
// particular virtual address. The function performs a page table walk till it
// reaches the final page table entry returning ErrInvalidMapping if the page
// is not present.
func (m *Manager) pteForAddress(pdt PageDirectoryTable, virtAddr uintptr) (*pageTableEntry, *kernel.Error) {
	var (
		err   *kernel.Error
		entry *pageTableEntry
	)

	if virtAddr > maxVirtAddr {
		return nil, errAddressOutOfRange
	}

	walkErr := m.walk(pdt, virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			entry = nil
			err = ErrInvalidMapping
			return false
		}

		if pteLevel < pageLevels-1 && pte.HasFlags(FlagHugePage) {
			entry = nil
			err = errNoHugePageSupport
			return false
		}

		entry = pte
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return entry, err
}
