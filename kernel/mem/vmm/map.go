package vmm

import (
	"geeos/kernel"
	"geeos/kernel/mem"
	"geeos/kernel/mem/pmm"
)

// maxPage and maxFrame are the last page and frame addressable by a 32-bit
// page table entry.
const (
	maxPage  = Page(maxVirtAddr >> mem.PageShift)
	maxFrame = pmm.Frame(maxVirtAddr >> mem.PageShift)
)

// Map establishes a mapping between a virtual page and a physical memory
// frame in the address space described by pdt. A missing page table is
// allocated with the frame allocator, cleared and installed with the
// requested flags; an existing page table gets the requested flags added to
// its directory entry so that the page table entry permissions take effect.
// If pdt is the active page directory and paging is enabled, the TLB entry
// for the page is flushed.
func (m *Manager) Map(pdt PageDirectoryTable, page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	if page > maxPage || frame > maxFrame {
		return errAddressOutOfRange
	}

	var err *kernel.Error

	walkErr := m.walk(pdt, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place and flag it as present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | flags)
			m.flushTLBEntry(pdt, page)
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		if pte.HasFlags(FlagPresent) {
			pte.SetFlags(flags)
			return true
		}

		// Next table does not yet exist; allocate a cleared frame for it
		// before linking it into the directory.
		var newTableFrame pmm.Frame
		if newTableFrame, err = m.newTable(); err != nil {
			return false
		}

		*pte = 0
		pte.SetFrame(newTableFrame)
		pte.SetFlags(FlagPresent | flags)
		return true
	})
	if walkErr != nil {
		return walkErr
	}

	return err
}

// MapUser maps a page that user-mode code can read and write.
func (m *Manager) MapUser(pdt PageDirectoryTable, page Page, frame pmm.Frame) *kernel.Error {
	return m.Map(pdt, page, frame, FlagUserAccessible|FlagRW)
}

// Unmap removes a mapping previously installed via a call to Map. The page
// table itself is kept even if it no longer maps any page. It returns
// ErrInvalidMapping if the page is not mapped.
func (m *Manager) Unmap(pdt PageDirectoryTable, page Page) *kernel.Error {
	if page > maxPage {
		return errAddressOutOfRange
	}

	var err *kernel.Error

	walkErr := m.walk(pdt, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// Next table is not present; this is an invalid mapping
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		// If we reached the last level all we need to do is to set the
		// page as non-present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			pte.ClearFlags(FlagPresent)
			m.flushTLBEntry(pdt, page)
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})
	if walkErr != nil {
		return walkErr
	}

	return err
}
