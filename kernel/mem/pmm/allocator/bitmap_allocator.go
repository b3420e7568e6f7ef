// Package allocator implements the physical frame allocator used by the
// kernel.
package allocator

import (
	"geeos/kernel"
	"geeos/kernel/kfmt"
	"geeos/kernel/mem"
	"geeos/kernel/mem/pmm"
)

var (
	// ErrOutOfFrames is returned by AllocFrame when every frame is in use.
	ErrOutOfFrames = &kernel.Error{Module: "pmm", Message: "out of physical frames"}

	// ErrInvalidFreeAddress is returned by FreeFrame when the frame lies
	// outside the range tracked by the allocator.
	ErrInvalidFreeAddress = &kernel.Error{Module: "pmm", Message: "frame is not managed by the allocator"}

	errAlreadyInitialized = &kernel.Error{Module: "pmm", Message: "frame allocator already initialized"}
	errNotInitialized     = &kernel.Error{Module: "pmm", Message: "frame allocator not initialized"}
	errNoUsableMemory     = &kernel.Error{Module: "pmm", Message: "no usable memory regions"}
)

type markAs bool

const (
	markReserved markAs = false
	markFree     markAs = true
)

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations with a bitmap stored in physical memory, one bit per frame.
// A set bit marks a frame as used or reserved.
//
// The allocator starts uninitialized and becomes usable after a successful
// call to Init; it cannot be initialized twice. It is not safe for
// concurrent use.
type BitmapAllocator struct {
	initialized bool

	// startFrame is the frame number for the first tracked frame. Each
	// bitmap entry i corresponds to frame (startFrame + i).
	startFrame pmm.Frame

	// totalFrames is the number of frames tracked by the bitmap. It never
	// changes after Init.
	totalFrames uint32

	// reservedFrames tracks the number of frames whose bit is set.
	reservedFrames uint32

	bitmapAddr uintptr
	freeBitmap []byte
}

// Init sets up the allocator for the supplied usable regions. The tracked
// range spans from the lowest region base to the highest region end; frames
// in that range which are not fully covered by a region stay reserved. The
// bitmap is placed in physical memory at the first frame boundary after
// kernelEnd and the frames holding the bitmap and the kernel image
// [kernelStart, kernelEnd) are reserved.
func (alloc *BitmapAllocator) Init(physMem *mem.Memory, regions []mem.Region, kernelStart, kernelEnd uintptr) *kernel.Error {
	if alloc.initialized {
		return errAlreadyInitialized
	}

	startAddr, endAddr, ok := arenaBounds(regions)
	if !ok {
		return errNoUsableMemory
	}

	var (
		totalFrames = uint32((endAddr - startAddr) >> mem.PageShift)
		bitmapSize  = mem.Size((totalFrames + 7) >> 3)
		bitmapAddr  = mem.AlignUp(kernelEnd, mem.PageSize)
	)

	bitmap, err := physMem.Slice(bitmapAddr, bitmapSize)
	if err != nil {
		return err
	}

	alloc.startFrame = pmm.Frame(startAddr >> mem.PageShift)
	alloc.totalFrames = totalFrames
	alloc.reservedFrames = totalFrames
	alloc.bitmapAddr = bitmapAddr
	alloc.freeBitmap = bitmap

	// Start with every frame reserved and release the ones that are
	// fully covered by a usable region.
	for i := range alloc.freeBitmap {
		alloc.freeBitmap[i] = 0xff
	}

	for _, region := range regions {
		first, last, ok := regionFrames(region)
		if !ok {
			continue
		}
		for frame := first; frame <= last; frame++ {
			alloc.markFrame(frame, markFree)
		}
	}

	// Make sure the allocator never hands out its own bitmap or the
	// running kernel image.
	alloc.ReserveRange(bitmapAddr, bitmapSize)
	if kernelEnd > kernelStart {
		alloc.ReserveRange(kernelStart, mem.Size(kernelEnd-kernelStart))
	}

	alloc.initialized = true

	kfmt.Printf("[pmm] tracking %d frames at 0x%x; %d free, %d reserved\n",
		alloc.totalFrames, alloc.ArenaBase(), alloc.FreeFrames(), alloc.reservedFrames)
	kfmt.Printf("[pmm] frame bitmap: %d bytes at 0x%x\n", bitmapSize, bitmapAddr)
	return nil
}

// AllocFrame reserves the first free frame. It returns ErrOutOfFrames if all
// frames are in use.
func (alloc *BitmapAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	if !alloc.initialized {
		return pmm.InvalidFrame, errNotInitialized
	}

	for blockIndex, block := range alloc.freeBitmap {
		if block == 0xff {
			continue
		}

		for bit := uint32(0); bit < 8; bit++ {
			index := uint32(blockIndex)<<3 + bit
			if index >= alloc.totalFrames {
				return pmm.InvalidFrame, ErrOutOfFrames
			}

			if block&(1<<bit) == 0 {
				frame := alloc.startFrame + pmm.Frame(index)
				alloc.markFrame(frame, markReserved)
				return frame, nil
			}
		}
	}

	return pmm.InvalidFrame, ErrOutOfFrames
}

// FreeFrame releases a frame previously returned by AllocFrame. Releasing an
// already free frame has no effect. Frames outside the tracked range are left
// untouched and ErrInvalidFreeAddress is returned.
func (alloc *BitmapAllocator) FreeFrame(frame pmm.Frame) *kernel.Error {
	if !alloc.initialized || !alloc.tracks(frame) {
		return ErrInvalidFreeAddress
	}

	alloc.markFrame(frame, markFree)
	return nil
}

// ReserveRange marks every tracked frame that overlaps the physical range
// [base, base+size) as reserved. Frames outside the tracked range are
// ignored.
func (alloc *BitmapAllocator) ReserveRange(base uintptr, size mem.Size) {
	if size == 0 {
		return
	}

	first := pmm.FrameFromAddress(base)
	last := pmm.FrameFromAddress(base + uintptr(size-1))
	for frame := first; frame <= last; frame++ {
		alloc.markFrame(frame, markReserved)
	}
}

// IsReserved returns true if the frame is in use. Frames outside the tracked
// range are always reported as reserved.
func (alloc *BitmapAllocator) IsReserved(frame pmm.Frame) bool {
	if !alloc.tracks(frame) {
		return true
	}

	index := uint32(frame - alloc.startFrame)
	return alloc.freeBitmap[index>>3]&(1<<(index&7)) != 0
}

// TotalFrames returns the number of frames tracked by the allocator.
func (alloc *BitmapAllocator) TotalFrames() uint32 { return alloc.totalFrames }

// ReservedFrames returns the number of frames currently in use.
func (alloc *BitmapAllocator) ReservedFrames() uint32 { return alloc.reservedFrames }

// FreeFrames returns the number of frames available for allocation.
func (alloc *BitmapAllocator) FreeFrames() uint32 { return alloc.totalFrames - alloc.reservedFrames }

// ArenaBase returns the physical address of the first tracked frame.
func (alloc *BitmapAllocator) ArenaBase() uintptr { return alloc.startFrame.Address() }

// BitmapAddress returns the physical address of the frame bitmap.
func (alloc *BitmapAllocator) BitmapAddress() uintptr { return alloc.bitmapAddr }

// BitmapSize returns the size of the frame bitmap in bytes.
func (alloc *BitmapAllocator) BitmapSize() mem.Size { return mem.Size(len(alloc.freeBitmap)) }

// tracks returns true if the frame is covered by the bitmap.
func (alloc *BitmapAllocator) tracks(frame pmm.Frame) bool {
	return frame >= alloc.startFrame && frame-alloc.startFrame < pmm.Frame(alloc.totalFrames)
}

// markFrame updates the bitmap entry for frame and keeps the reserved frame
// counter in sync. Calls with a frame outside the tracked range are a no-op.
func (alloc *BitmapAllocator) markFrame(frame pmm.Frame, flag markAs) {
	if !alloc.tracks(frame) {
		return
	}

	var (
		index = uint32(frame - alloc.startFrame)
		mask  = byte(1 << (index & 7))
		block = &alloc.freeBitmap[index>>3]
	)

	switch {
	case flag == markFree && *block&mask != 0:
		*block &^= mask
		alloc.reservedFrames--
	case flag == markReserved && *block&mask == 0:
		*block |= mask
		alloc.reservedFrames++
	}
}

// arenaBounds returns the frame-aligned physical range spanned by the
// supplied regions after clipping them to the 32-bit physical address space.
func arenaBounds(regions []mem.Region) (uintptr, uintptr, bool) {
	var (
		start = uint64(mem.PhysAddrLimit)
		end   uint64
	)

	for _, region := range regions {
		base, regionEnd, ok := clipRegion(region)
		if !ok {
			continue
		}

		if base < start {
			start = base
		}
		if regionEnd > end {
			end = regionEnd
		}
	}

	pageMask := uint64(mem.PageSize - 1)
	start &^= pageMask
	end &^= pageMask
	if end <= start {
		return 0, 0, false
	}

	return uintptr(start), uintptr(end), true
}

// regionFrames returns the first and last frame that are fully contained in
// the region. Reported addresses may not be page-aligned; the start is rounded
// up and the end is rounded down.
func regionFrames(region mem.Region) (pmm.Frame, pmm.Frame, bool) {
	base, end, ok := clipRegion(region)
	if !ok {
		return 0, 0, false
	}

	pageMask := uint64(mem.PageSize - 1)
	first := (base + pageMask) &^ pageMask
	end &^= pageMask
	if end <= first {
		return 0, 0, false
	}

	return pmm.Frame(first >> mem.PageShift), pmm.Frame((end >> mem.PageShift) - 1), true
}

// clipRegion returns the part of the region that lies below PhysAddrLimit.
func clipRegion(region mem.Region) (uint64, uint64, bool) {
	base, end := region.Base, region.End()
	if end < base || end > uint64(mem.PhysAddrLimit) {
		end = uint64(mem.PhysAddrLimit)
	}
	if region.Length == 0 || base >= end {
		return 0, 0, false
	}

	return base, end, true
}
