// Package cpu models the processor state the memory subsystem depends on:
// the CR3 root page directory register, the CR0 paging bit, the TLB and the
// halt instruction.
package cpu

import (
	"geeos/kernel"
)

var (
	errNoActivePDT = &kernel.Error{Module: "cpu", Message: "cannot enable paging without an active page directory"}
	errHalted      = &kernel.Error{Module: "cpu", Message: "cpu is halted"}
)

// CPU holds the register state of a single 32-bit x86 processor. The zero
// value is a CPU that just entered protected mode: paging is disabled, no page
// directory is loaded and interrupts are disabled.
//
// CPU is not safe for concurrent use.
type CPU struct {
	cr3        uintptr
	cr3Loaded  bool
	paging     bool
	interrupts bool
	halted     bool

	tlbEntryFlushes uint64
	tlbFullFlushes  uint64
}

// EnableInterrupts enables interrupt handling.
func (c *CPU) EnableInterrupts() { c.interrupts = true }

// DisableInterrupts disables interrupt handling.
func (c *CPU) DisableInterrupts() { c.interrupts = false }

// InterruptsEnabled returns true if interrupt handling is enabled.
func (c *CPU) InterruptsEnabled() bool { return c.interrupts }

// Halt stops instruction execution. Interrupts are disabled first so the CPU
// never resumes.
func (c *CPU) Halt() {
	c.interrupts = false
	c.halted = true
}

// Halted returns true if Halt has been called.
func (c *CPU) Halted() bool { return c.halted }

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func (c *CPU) SwitchPDT(pdtPhysAddr uintptr) {
	c.cr3 = pdtPhysAddr
	c.cr3Loaded = true
	c.tlbFullFlushes++
}

// ActivePDT returns the physical address of the currently active page table.
func (c *CPU) ActivePDT() uintptr { return c.cr3 }

// EnablePaging sets the paging bit in CR0. A page directory must have been
// loaded with SwitchPDT first; on real hardware the next instruction fetch
// would otherwise fault.
func (c *CPU) EnablePaging() *kernel.Error {
	switch {
	case c.halted:
		return errHalted
	case !c.cr3Loaded:
		return errNoActivePDT
	}

	c.paging = true
	return nil
}

// PagingEnabled returns true if the paging bit in CR0 is set.
func (c *CPU) PagingEnabled() bool { return c.paging }

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func (c *CPU) FlushTLBEntry(virtAddr uintptr) {
	c.tlbEntryFlushes++
}

// TLBFlushes returns the number of single entry and full TLB flushes issued
// so far.
func (c *CPU) TLBFlushes() (entries, full uint64) {
	return c.tlbEntryFlushes, c.tlbFullFlushes
}
