// Package vmm manages the two-level x86 page tables that define virtual
// address spaces. Page directories and page tables live in physical memory
// and are encoded exactly as the MMU reads them.
package vmm

import (
	"unsafe"

	"geeos/kernel"
	"geeos/kernel/mem"
	"geeos/kernel/mem/pmm"
)

var (
	errNoHugePageSupport  = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errAddressOutOfRange  = &kernel.Error{Module: "vmm", Message: "address does not fit in 32 bits"}
	errKernelSpaceReady   = &kernel.Error{Module: "vmm", Message: "kernel address space already set up"}
	errKernelSpaceMissing = &kernel.Error{Module: "vmm", Message: "kernel address space not set up"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// MMU is the part of the CPU that the Manager drives.
type MMU interface {
	// SwitchPDT loads the page directory at the given physical address
	// into CR3 and flushes the TLB.
	SwitchPDT(pdtPhysAddr uintptr)

	// ActivePDT returns the physical address of the active page directory.
	ActivePDT() uintptr

	// EnablePaging sets the paging bit in CR0.
	EnablePaging() *kernel.Error

	// PagingEnabled returns true if paging is on.
	PagingEnabled() bool

	// FlushTLBEntry flushes a TLB entry for a particular virtual address.
	FlushTLBEntry(virtAddr uintptr)
}

// Manager creates and edits address spaces. Page table frames are obtained
// from allocFn and accessed through physMem.
//
// Manager is not safe for concurrent use.
type Manager struct {
	physMem *mem.Memory
	allocFn FrameAllocatorFn
	mmu     MMU

	kernelPDT   PageDirectoryTable
	kernelReady bool
}

// NewManager returns a Manager that stores page tables in physMem, allocates
// them with allocFn and loads them into mmu.
func NewManager(physMem *mem.Memory, allocFn FrameAllocatorFn, mmu MMU) *Manager {
	return &Manager{
		physMem: physMem,
		allocFn: allocFn,
		mmu:     mmu,
	}
}

// KernelPDT returns the kernel page directory and true once SetupKernelSpace
// has completed.
func (m *Manager) KernelPDT() (PageDirectoryTable, bool) {
	return m.kernelPDT, m.kernelReady
}

// table returns the page table stored in the given physical frame.
func (m *Manager) table(frame pmm.Frame) (*[entriesPerTable]pageTableEntry, *kernel.Error) {
	data, err := m.physMem.Slice(frame.Address(), mem.PageSize)
	if err != nil {
		return nil, err
	}

	return (*[entriesPerTable]pageTableEntry)(unsafe.Pointer(&data[0])), nil
}

// newTable allocates a frame for a page directory or page table and clears
// its entries.
func (m *Manager) newTable() (pmm.Frame, *kernel.Error) {
	frame, err := m.allocFn()
	if err != nil {
		return pmm.InvalidFrame, err
	}

	if err = m.physMem.Memset(frame.Address(), 0, mem.PageSize); err != nil {
		return pmm.InvalidFrame, err
	}

	return frame, nil
}

// flushTLBEntry invalidates the cached translation for page if pdt is the
// active page directory and paging is enabled.
func (m *Manager) flushTLBEntry(pdt PageDirectoryTable, page Page) {
	if m.mmu.PagingEnabled() && m.mmu.ActivePDT() == pdt.Address() {
		m.mmu.FlushTLBEntry(page.Address())
	}
}
