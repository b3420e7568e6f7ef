package vmm

import (
	"testing"

	"geeos/kernel/mem/pmm"

	"github.com/stretchr/testify/require"
)

func TestPageTableEntryFlags(t *testing.T) {
	var (
		pte   pageTableEntry
		flag1 = PageTableEntryFlag(1 << 9)
		flag2 = FlagDirty
	)

	require.False(t, pte.HasAnyFlag(flag1|flag2))

	pte.SetFlags(flag1 | flag2)
	require.True(t, pte.HasAnyFlag(flag1|flag2))
	require.True(t, pte.HasFlags(flag1|flag2))

	pte.ClearFlags(flag1)
	require.True(t, pte.HasAnyFlag(flag1|flag2))
	require.False(t, pte.HasFlags(flag1|flag2))

	pte.ClearFlags(flag1 | flag2)
	require.False(t, pte.HasAnyFlag(flag1|flag2))
	require.False(t, pte.HasFlags(flag1|flag2))
}

func TestPageTableEntryFlagValues(t *testing.T) {
	specs := []struct {
		flag PageTableEntryFlag
		exp  uint32
	}{
		{FlagPresent, 0x1},
		{FlagRW, 0x2},
		{FlagUserAccessible, 0x4},
		{FlagWriteThroughCaching, 0x8},
		{FlagDoNotCache, 0x10},
		{FlagAccessed, 0x20},
		{FlagDirty, 0x40},
		{FlagHugePage, 0x80},
		{FlagGlobal, 0x100},
	}

	for specIndex, spec := range specs {
		require.Equal(t, spec.exp, uint32(spec.flag), "[spec %d]", specIndex)
	}
}

func TestPageTableEntryFrameEncoding(t *testing.T) {
	var (
		pte       pageTableEntry
		physFrame = pmm.Frame(123)
	)

	pte.SetFlags(FlagPresent | FlagRW)
	pte.SetFrame(physFrame)
	require.Equal(t, physFrame, pte.Frame())
	require.Equal(t, pageTableEntry(123<<12|0x3), pte)
	require.Equal(t, FlagPresent|FlagRW, pte.Flags())

	// Updating the frame leaves the flags untouched
	pte.SetFrame(pmm.Frame(0xfffff))
	require.Equal(t, pageTableEntry(0xfffff003), pte)
}
