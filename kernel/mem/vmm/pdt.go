package vmm

import (
	"geeos/kernel"
	"geeos/kernel/kfmt"
	"geeos/kernel/mem"
	"geeos/kernel/mem/pmm"
)

// PageDirectoryTable describes the top-most table in a multi-level paging
// scheme. A PageDirectoryTable value is a handle to a physical frame; copies
// refer to the same directory.
type PageDirectoryTable struct {
	pdtFrame pmm.Frame
}

// Frame returns the physical frame holding the page directory.
func (pdt PageDirectoryTable) Frame() pmm.Frame {
	return pdt.pdtFrame
}

// Address returns the physical address of the page directory; this is the
// value loaded into CR3.
func (pdt PageDirectoryTable) Address() uintptr {
	return pdt.pdtFrame.Address()
}

// SetupKernelSpace creates the kernel page directory, identity maps the first
// 4Mb of physical memory as read/write, loads the directory into CR3 and
// enables paging. The directory must be active before paging is switched on.
func (m *Manager) SetupKernelSpace() *kernel.Error {
	if m.kernelReady {
		return errKernelSpaceReady
	}

	pdtFrame, err := m.newTable()
	if err != nil {
		return err
	}

	pdt := PageDirectoryTable{pdtFrame: pdtFrame}
	for addr := uintptr(0); addr < uintptr(IdentityMapLimit); addr += uintptr(mem.PageSize) {
		if err = m.Map(pdt, PageFromAddress(addr), pmm.FrameFromAddress(addr), FlagRW); err != nil {
			return err
		}
	}

	m.mmu.SwitchPDT(pdt.Address())
	if err = m.mmu.EnablePaging(); err != nil {
		return err
	}

	m.kernelPDT = pdt
	m.kernelReady = true

	kfmt.Printf("[vmm] kernel page directory at 0x%x; identity mapped %s\n", pdt.Address(), mem.Size(IdentityMapLimit))
	return nil
}

// CreateProcessSpace returns a new page directory whose kernel half
// (entries 768 to 1023) is a copy of the kernel page directory. The copy is
// by value: kernel page tables are shared but page tables created later in
// either directory are not. The remaining entries are empty.
func (m *Manager) CreateProcessSpace() (PageDirectoryTable, *kernel.Error) {
	if !m.kernelReady {
		return PageDirectoryTable{}, errKernelSpaceMissing
	}

	pdtFrame, err := m.newTable()
	if err != nil {
		return PageDirectoryTable{}, err
	}

	kernelTable, err := m.table(m.kernelPDT.pdtFrame)
	if err != nil {
		return PageDirectoryTable{}, err
	}

	processTable, err := m.table(pdtFrame)
	if err != nil {
		return PageDirectoryTable{}, err
	}

	copy(processTable[kernelPDTEntryStart:], kernelTable[kernelPDTEntryStart:])
	return PageDirectoryTable{pdtFrame: pdtFrame}, nil
}

// Activate loads pdt into CR3 and flushes the TLB.
func (m *Manager) Activate(pdt PageDirectoryTable) {
	m.mmu.SwitchPDT(pdt.Address())
}
