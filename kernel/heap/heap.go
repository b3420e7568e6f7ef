// Package heap implements the kernel's first-fit heap allocator.
//
// The heap carves blocks out of a fixed arena. Every block is preceded by an
// 8-byte header stored in the arena itself:
//
//	offset 0: payload size in bytes (uint32, little-endian)
//	offset 4: virtual address of the next free block payload, 0 terminates
//	          the free list (uint32, little-endian)
//
// Released blocks are pushed onto a singly linked free list and reused whole
// by later allocations; blocks are never split or coalesced.
package heap

import (
	"encoding/binary"

	"geeos/kernel"
)

const (
	// headerSize is the size of the header that precedes every block.
	headerSize = 8

	// blockAlign is the alignment of block sizes and payload addresses.
	blockAlign = 8

	// maxAllocSize is the largest request that can be aligned without
	// overflowing a uint32.
	maxAllocSize = ^uint32(0) - (blockAlign - 1)
)

var (
	// ErrOutOfHeapMemory is returned by Alloc when the arena cannot hold
	// the requested block.
	ErrOutOfHeapMemory = &kernel.Error{Module: "heap", Message: "out of heap memory"}
)

// Heap is a first-fit allocator over a contiguous virtual address range.
// Addresses returned by Alloc are virtual addresses inside
// [base, base+len(arena)); arena is the memory backing that range.
//
// Heap is not safe for concurrent use.
type Heap struct {
	base  uintptr
	arena []byte

	// cursor is the arena offset where the next block will be carved.
	cursor uint32

	// freeList is the payload address of the most recently freed block.
	freeList uintptr
}

// Stats describes the state of a Heap.
type Stats struct {
	// ArenaSize is the total size of the heap arena in bytes.
	ArenaSize uint32

	// Carved is the number of arena bytes used by blocks and their headers.
	Carved uint32

	// FreeBlocks is the length of the free list.
	FreeBlocks uint32

	// FreeBytes is the total payload size of the blocks in the free list.
	FreeBytes uint32
}

// New returns a Heap that hands out addresses starting at base and stores
// its blocks in arena. The range [base, base+len(arena)) must lie within the
// 32-bit address space and base must be 8-byte aligned.
func New(base uintptr, arena []byte) *Heap {
	if uint64(len(arena)) > uint64(^uint32(0)) {
		arena = arena[:^uint32(0)]
	}

	return &Heap{base: base, arena: arena}
}

// Base returns the virtual address of the start of the arena.
func (h *Heap) Base() uintptr { return h.base }

// Alloc reserves a block of at least size bytes and returns the address of
// its payload. The size is rounded up to a multiple of 8 bytes. The first
// free block large enough to hold the request is reused as a whole; if there
// is none a new block is carved from the end of the arena. Alloc returns
// ErrOutOfHeapMemory if the arena is exhausted.
func (h *Heap) Alloc(size uint32) (uintptr, *kernel.Error) {
	if size > maxAllocSize {
		return 0, ErrOutOfHeapMemory
	}
	size = (size + blockAlign - 1) &^ (blockAlign - 1)

	var prev uintptr
	for cur := h.freeList; cur != 0; {
		curSize, next := h.readHeader(cur)
		if curSize >= size {
			if prev == 0 {
				h.freeList = next
			} else {
				h.setNext(prev, next)
			}
			h.setNext(cur, 0)
			return cur, nil
		}

		prev, cur = cur, next
	}

	total := uint64(headerSize) + uint64(size)
	if uint64(h.cursor)+total > uint64(len(h.arena)) {
		return 0, ErrOutOfHeapMemory
	}

	offset := h.cursor
	binary.LittleEndian.PutUint32(h.arena[offset:], size)
	binary.LittleEndian.PutUint32(h.arena[offset+4:], 0)
	h.cursor += uint32(total)

	return h.base + uintptr(offset) + headerSize, nil
}

// Free returns a block obtained from Alloc to the heap. Free(0) is a no-op
// and so is releasing an address that does not belong to a block carved
// from the arena. Releasing the same block twice corrupts the free list.
func (h *Heap) Free(ptr uintptr) {
	if _, ok := h.headerOffset(ptr); !ok {
		return
	}

	h.setNext(ptr, h.freeList)
	h.freeList = ptr
}

// BlockSize returns the payload size of the block at ptr or 0 if ptr does
// not point to a block carved from the arena.
func (h *Heap) BlockSize(ptr uintptr) uint32 {
	if _, ok := h.headerOffset(ptr); !ok {
		return 0
	}

	size, _ := h.readHeader(ptr)
	return size
}

// Bytes returns the payload of the block at ptr as a slice backed by the
// arena, or nil if ptr does not point to a block carved from the arena.
func (h *Heap) Bytes(ptr uintptr) []byte {
	offset, ok := h.headerOffset(ptr)
	if !ok {
		return nil
	}

	size, _ := h.readHeader(ptr)
	start := offset + headerSize
	end := start + size
	return h.arena[start:end:end]
}

// Stats returns the current arena usage.
func (h *Heap) Stats() Stats {
	stats := Stats{
		ArenaSize: uint32(len(h.arena)),
		Carved:    h.cursor,
	}

	for cur := h.freeList; cur != 0; {
		size, next := h.readHeader(cur)
		stats.FreeBlocks++
		stats.FreeBytes += size
		cur = next
	}

	return stats
}

// headerOffset returns the arena offset of the header belonging to the block
// whose payload starts at ptr. It returns false if ptr is not the payload
// address of a carved block.
func (h *Heap) headerOffset(ptr uintptr) (uint32, bool) {
	if ptr < h.base+headerSize {
		return 0, false
	}

	offset := uint64(ptr - h.base - headerSize)
	if offset%blockAlign != 0 || offset+headerSize > uint64(h.cursor) {
		return 0, false
	}

	return uint32(offset), true
}

// readHeader returns the size and next fields of the header belonging to the
// block at ptr. The caller must have validated ptr.
func (h *Heap) readHeader(ptr uintptr) (uint32, uintptr) {
	offset := uint32(ptr - h.base - headerSize)
	size := binary.LittleEndian.Uint32(h.arena[offset:])
	next := binary.LittleEndian.Uint32(h.arena[offset+4:])
	return size, uintptr(next)
}

// setNext updates the free list link of the block at ptr.
func (h *Heap) setNext(ptr, next uintptr) {
	offset := uint32(ptr - h.base - headerSize)
	binary.LittleEndian.PutUint32(h.arena[offset+4:], uint32(next))
}
