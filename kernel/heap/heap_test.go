package heap

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

const testBase = uintptr(0x00500000)

func newTestHeap(size int) (*Heap, []byte) {
	arena := make([]byte, size)
	return New(testBase, arena), arena
}

func TestAllocAlignsSizes(t *testing.T) {
	specs := []struct {
		size    uint32
		expSize uint32
	}{
		{0, 0},
		{1, 8},
		{7, 8},
		{8, 8},
		{9, 16},
		{100, 104},
	}

	for specIndex, spec := range specs {
		h, arena := newTestHeap(4096)

		ptr, err := h.Alloc(spec.size)
		require.Nil(t, err, "[spec %d]", specIndex)
		require.Equal(t, testBase+headerSize, ptr, "[spec %d]", specIndex)
		require.Equal(t, spec.expSize, h.BlockSize(ptr), "[spec %d]", specIndex)
		require.Equal(t, spec.expSize, binary.LittleEndian.Uint32(arena), "[spec %d]", specIndex)
		require.Equal(t, headerSize+spec.expSize, h.Stats().Carved, "[spec %d]", specIndex)
	}
}

func TestAllocCarvesConsecutiveBlocks(t *testing.T) {
	h, _ := newTestHeap(4096)

	a, err := h.Alloc(24)
	require.Nil(t, err)
	b, err := h.Alloc(5)
	require.Nil(t, err)
	c, err := h.Alloc(64)
	require.Nil(t, err)

	require.Equal(t, testBase+8, a)
	require.Equal(t, a+24+8, b)
	require.Equal(t, b+8+8, c)

	for _, ptr := range []uintptr{a, b, c} {
		require.Zero(t, ptr%8)
	}

	// Payloads do not overlap
	copy(h.Bytes(a), []byte("aaaaaaaaaaaaaaaaaaaaaaaa"))
	copy(h.Bytes(b), []byte("bbbbbbbb"))
	require.Equal(t, []byte("aaaaaaaaaaaaaaaaaaaaaaaa"), h.Bytes(a))
	require.Len(t, h.Bytes(c), 64)
}

func TestAllocReusesFreedBlock(t *testing.T) {
	h, _ := newTestHeap(4096)

	a, _ := h.Alloc(32)
	_, _ = h.Alloc(16)
	carved := h.Stats().Carved

	h.Free(a)
	require.Equal(t, Stats{ArenaSize: 4096, Carved: carved, FreeBlocks: 1, FreeBytes: 32}, h.Stats())

	// A smaller request reuses the whole block without splitting it
	ptr, err := h.Alloc(10)
	require.Nil(t, err)
	require.Equal(t, a, ptr)
	require.Equal(t, uint32(32), h.BlockSize(ptr))
	require.Equal(t, carved, h.Stats().Carved)
	require.Zero(t, h.Stats().FreeBlocks)
}

func TestAllocFirstFit(t *testing.T) {
	h, _ := newTestHeap(4096)

	small, _ := h.Alloc(8)
	large, _ := h.Alloc(128)
	medium, _ := h.Alloc(64)

	// Free list: medium -> large -> small
	h.Free(small)
	h.Free(large)
	h.Free(medium)

	// The first block in list order that fits wins even if a tighter fit
	// exists further down.
	ptr, err := h.Alloc(40)
	require.Nil(t, err)
	require.Equal(t, medium, ptr)

	ptr, err = h.Alloc(100)
	require.Nil(t, err)
	require.Equal(t, large, ptr)

	ptr, err = h.Alloc(8)
	require.Nil(t, err)
	require.Equal(t, small, ptr)

	// Free list is empty; a new block is carved
	carved := h.Stats().Carved
	ptr, err = h.Alloc(8)
	require.Nil(t, err)
	require.Equal(t, testBase+uintptr(carved)+headerSize, ptr)
}

func TestAllocUnlinksFromMiddleOfFreeList(t *testing.T) {
	h, _ := newTestHeap(4096)

	a, _ := h.Alloc(8)
	b, _ := h.Alloc(32)
	c, _ := h.Alloc(8)

	// Free list: c -> b -> a
	h.Free(a)
	h.Free(b)
	h.Free(c)

	ptr, err := h.Alloc(32)
	require.Nil(t, err)
	require.Equal(t, b, ptr)

	// c -> a remains
	require.Equal(t, uint32(2), h.Stats().FreeBlocks)
	first, _ := h.Alloc(8)
	second, _ := h.Alloc(8)
	require.Equal(t, c, first)
	require.Equal(t, a, second)
}

func TestAllocOutOfMemory(t *testing.T) {
	h, _ := newTestHeap(64)

	ptr, err := h.Alloc(48)
	require.Nil(t, err)
	require.NotZero(t, ptr)

	// 8 bytes left: not enough for a header plus a payload
	ptr, err = h.Alloc(1)
	require.Equal(t, ErrOutOfHeapMemory, err)
	require.Zero(t, ptr)

	// A zero-sized block fits exactly
	_, err = h.Alloc(0)
	require.Nil(t, err)
	require.Equal(t, uint32(64), h.Stats().Carved)

	_, err = h.Alloc(0)
	require.Equal(t, ErrOutOfHeapMemory, err)

	// Requests that would overflow when aligned
	for _, size := range []uint32{^uint32(0), ^uint32(0) - 6, maxAllocSize} {
		_, err = h.Alloc(size)
		require.Equal(t, ErrOutOfHeapMemory, err, "size %d", size)
	}
}

func TestFreeIgnoresForeignPointers(t *testing.T) {
	h, _ := newTestHeap(4096)

	ptr, _ := h.Alloc(16)

	for _, foreign := range []uintptr{0, testBase, testBase + 4, ptr + 4, ptr + 1024, testBase - 16, testBase + 8192} {
		h.Free(foreign)
		require.Zero(t, h.Stats().FreeBlocks, "pointer 0x%x", foreign)
		require.Zero(t, h.BlockSize(foreign), "pointer 0x%x", foreign)
		require.Nil(t, h.Bytes(foreign), "pointer 0x%x", foreign)
	}

	h.Free(ptr)
	require.Equal(t, uint32(1), h.Stats().FreeBlocks)
}

func TestFreeListLinksStoredInArena(t *testing.T) {
	h, arena := newTestHeap(4096)

	a, _ := h.Alloc(8)
	b, _ := h.Alloc(8)

	h.Free(a)
	h.Free(b)

	// b's header links to a; a terminates the list
	bHeader := b - testBase - headerSize
	aHeader := a - testBase - headerSize
	require.Equal(t, uint32(a), binary.LittleEndian.Uint32(arena[bHeader+4:]))
	require.Zero(t, binary.LittleEndian.Uint32(arena[aHeader+4:]))
}
