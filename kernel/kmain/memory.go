package kmain

import (
	"geeos/kernel"
	"geeos/kernel/hal/multiboot"
	"geeos/kernel/heap"
	"geeos/kernel/kfmt"
	"geeos/kernel/mem"
	"geeos/kernel/mem/pmm"
	"geeos/kernel/mem/pmm/allocator"
	"geeos/kernel/mem/vmm"
)

var (
	errHeapArenaUnavailable = &kernel.Error{Module: "kmain", Message: "heap arena overlaps reserved or missing memory"}
)

// Memory is the state of the memory subsystem after boot. It owns the frame
// allocator, the address space manager and the kernel heap; code that needs
// memory services receives it explicitly.
//
// Memory is not safe for concurrent use.
type Memory struct {
	// Regions lists the usable physical memory regions reported by the
	// boot loader.
	Regions []mem.Region

	// Config holds the settings parsed from the boot command line.
	Config Config

	Frames *allocator.BitmapAllocator
	VMM    *vmm.Manager
	Heap   *heap.Heap
}

// InitMemory brings up the memory subsystem in the following order:
//  - parse the memory map and the boot command line
//  - initialize the physical frame allocator
//  - reserve the frames for the kernel heap arena right after the frame bitmap
//  - create the kernel address space and enable paging
//  - map the heap arena pages that lie outside the identity mapped range
//  - create the kernel heap
//
// Any error is unrecoverable; the memory subsystem is left partially
// initialized.
func InitMemory(bootInfo *multiboot.Info, physMem *mem.Memory, mmu vmm.MMU, kernelStart, kernelEnd uintptr) (*Memory, *kernel.Error) {
	m := &Memory{
		Regions: bootInfo.AvailableRegions(),
		Config:  ConfigFromCmdLine(bootInfo.BootCmdLine()),
		Frames:  new(allocator.BitmapAllocator),
	}

	kfmt.Printf("[kmain] boot loader: %s; %d usable memory regions\n", bootInfo.BootLoaderName(), len(m.Regions))
	for _, region := range m.Regions {
		kfmt.Printf("[kmain]   [0x%10x - 0x%10x]\n", region.Base, region.End()-1)
	}

	if err := m.Frames.Init(physMem, m.Regions, kernelStart, kernelEnd); err != nil {
		return nil, err
	}

	heapBase := mem.AlignUp(m.Frames.BitmapAddress()+uintptr(m.Frames.BitmapSize()), mem.PageSize)
	if err := reserveHeapArena(m.Frames, heapBase, m.Config.HeapSize); err != nil {
		return nil, err
	}

	m.VMM = vmm.NewManager(physMem, m.Frames.AllocFrame, mmu)
	if err := m.VMM.SetupKernelSpace(); err != nil {
		return nil, err
	}

	if err := mapHeapArena(m.VMM, heapBase, m.Config.HeapSize); err != nil {
		return nil, err
	}

	arena, err := physMem.Slice(heapBase, m.Config.HeapSize)
	if err != nil {
		return nil, err
	}
	m.Heap = heap.New(heapBase, arena)

	kfmt.Printf("[kmain] kernel heap: %s at 0x%x\n", m.Config.HeapSize, heapBase)
	return m, nil
}

// reserveHeapArena marks the frames backing the heap arena as used. Every
// frame must be free beforehand; an arena that extends into a memory hole or
// past the end of usable memory is rejected.
func reserveHeapArena(frames *allocator.BitmapAllocator, base uintptr, size mem.Size) *kernel.Error {
	if uint64(base)+uint64(size) > uint64(mem.PhysAddrLimit) {
		return errHeapArenaUnavailable
	}

	first := pmm.FrameFromAddress(base)
	for frame := first; frame < first+pmm.Frame(size.Pages()); frame++ {
		if frames.IsReserved(frame) {
			return errHeapArenaUnavailable
		}
	}

	frames.ReserveRange(base, size)
	return nil
}

// mapHeapArena identity maps the heap arena pages that are not covered by
// the identity mapping established by SetupKernelSpace.
func mapHeapArena(vm *vmm.Manager, base uintptr, size mem.Size) *kernel.Error {
	pdt, _ := vm.KernelPDT()

	for addr := base; addr < base+uintptr(size); addr += uintptr(mem.PageSize) {
		if addr < uintptr(vmm.IdentityMapLimit) {
			continue
		}

		if err := vm.Map(pdt, vmm.PageFromAddress(addr), pmm.FrameFromAddress(addr), vmm.FlagRW); err != nil {
			return err
		}
	}

	return nil
}
