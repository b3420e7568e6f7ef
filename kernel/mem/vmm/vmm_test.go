package vmm

import (
	"encoding/binary"
	"testing"

	"geeos/kernel"
	"geeos/kernel/mem"
	"geeos/kernel/mem/pmm"

	"github.com/stretchr/testify/require"
)

var errTestOutOfFrames = &kernel.Error{Module: "test", Message: "out of frames"}

// fakeMMU records the calls issued by the Manager.
type fakeMMU struct {
	activePDT    uintptr
	loaded       bool
	paging       bool
	pagingErr    *kernel.Error
	switchCalls  []uintptr
	flushedPages []uintptr
}

func (f *fakeMMU) SwitchPDT(pdtPhysAddr uintptr) {
	f.activePDT = pdtPhysAddr
	f.loaded = true
	f.switchCalls = append(f.switchCalls, pdtPhysAddr)
}

func (f *fakeMMU) ActivePDT() uintptr { return f.activePDT }

func (f *fakeMMU) EnablePaging() *kernel.Error {
	if f.pagingErr != nil {
		return f.pagingErr
	}
	if !f.loaded {
		return &kernel.Error{Module: "test", Message: "paging enabled before CR3 was loaded"}
	}
	f.paging = true
	return nil
}

func (f *fakeMMU) PagingEnabled() bool { return f.paging }

func (f *fakeMMU) FlushTLBEntry(virtAddr uintptr) {
	f.flushedPages = append(f.flushedPages, virtAddr)
}

// frameSource hands out consecutive frames starting at next and fails once
// limit frames have been handed out.
type frameSource struct {
	next      pmm.Frame
	limit     int
	allocated []pmm.Frame
}

func (s *frameSource) alloc() (pmm.Frame, *kernel.Error) {
	if len(s.allocated) == s.limit {
		return pmm.InvalidFrame, errTestOutOfFrames
	}

	frame := s.next
	s.next++
	s.allocated = append(s.allocated, frame)
	return frame, nil
}

func newTestManager(t *testing.T, frameLimit int) (*Manager, *mem.Memory, *frameSource, *fakeMMU) {
	t.Helper()

	physMem, err := mem.NewMemory(8 * mem.Mb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = physMem.Close() })

	// Fill memory with garbage so tests catch tables that are not cleared
	require.Nil(t, physMem.Memset(0, 0xaa, physMem.Size()))

	var (
		frames = &frameSource{next: pmm.Frame(0x400), limit: frameLimit}
		mmu    = &fakeMMU{}
	)
	return NewManager(physMem, frames.alloc, mmu), physMem, frames, mmu
}

// newTestPDT allocates and clears a page directory outside the kernel space
// machinery.
func newTestPDT(t *testing.T, m *Manager) PageDirectoryTable {
	t.Helper()

	frame, err := m.newTable()
	require.Nil(t, err)
	return PageDirectoryTable{pdtFrame: frame}
}

// readEntry decodes the raw little-endian entry at index of the table stored
// in frame.
func readEntry(t *testing.T, physMem *mem.Memory, frame pmm.Frame, index int) uint32 {
	t.Helper()

	data, err := physMem.Slice(frame.Address()+uintptr(index*pteSize), pteSize)
	require.Nil(t, err)
	return binary.LittleEndian.Uint32(data)
}

func TestManagerTableOutsidePhysicalMemory(t *testing.T) {
	m, _, _, _ := newTestManager(t, 10)

	pdt := PageDirectoryTable{pdtFrame: pmm.Frame(0x10000)}
	require.Equal(t, mem.ErrAddressOutOfRange, m.Map(pdt, Page(1), pmm.Frame(1), FlagRW))

	_, err := m.Translate(pdt, 0x1000)
	require.Equal(t, mem.ErrAddressOutOfRange, err)
}

func TestWalk(t *testing.T) {
	m, physMem, _, _ := newTestManager(t, 10)
	pdt := newTestPDT(t, m)
	require.Nil(t, m.Map(pdt, PageFromAddress(0xc0401000), pmm.Frame(0x42), FlagRW))

	// 0xc0401234 breaks down to:
	// directory index: 769
	// table index    : 1
	// offset         : 0x234
	var visited []uint32
	require.Nil(t, m.walk(pdt, 0xc0401234, func(level uint8, pte *pageTableEntry) bool {
		require.Equal(t, uint8(len(visited)), level)
		visited = append(visited, uint32(*pte))
		return true
	}))

	require.Len(t, visited, pageLevels)
	require.Equal(t, readEntry(t, physMem, pdt.Frame(), 769), visited[0])
	require.Equal(t, uint32(0x42<<12)|uint32(FlagPresent|FlagRW), visited[1])

	// Aborting the walk stops at the first level
	calls := 0
	require.Nil(t, m.walk(pdt, 0xc0401234, func(uint8, *pageTableEntry) bool {
		calls++
		return false
	}))
	require.Equal(t, 1, calls)
}
