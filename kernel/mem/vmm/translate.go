package vmm

import "geeos/kernel"

// Translate returns the physical address that corresponds to the supplied
// virtual address in the address space described by pdt or ErrInvalidMapping
// if the virtual address does not correspond to a mapped physical address.
func (m *Manager) Translate(pdt PageDirectoryTable, virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := m.pteForAddress(pdt, virtAddr)
	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return pte.Frame().Address() + PageOffset(virtAddr), nil
}

// Flags returns the flags of the page table entry mapping virtAddr.
func (m *Manager) Flags(pdt PageDirectoryTable, virtAddr uintptr) (PageTableEntryFlag, *kernel.Error) {
	pte, err := m.pteForAddress(pdt, virtAddr)
	if err != nil {
		return 0, err
	}

	return pte.Flags(), nil
}
