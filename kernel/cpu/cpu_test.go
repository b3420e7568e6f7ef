package cpu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnablePaging(t *testing.T) {
	t.Run("without a page directory", func(t *testing.T) {
		var c CPU
		require.Equal(t, errNoActivePDT, c.EnablePaging())
		require.False(t, c.PagingEnabled())
	})

	t.Run("page directory at address 0", func(t *testing.T) {
		var c CPU
		c.SwitchPDT(0)
		require.Nil(t, c.EnablePaging())
		require.True(t, c.PagingEnabled())
		require.Equal(t, uintptr(0), c.ActivePDT())
	})

	t.Run("halted", func(t *testing.T) {
		var c CPU
		c.SwitchPDT(0x1000)
		c.Halt()
		require.Equal(t, errHalted, c.EnablePaging())
		require.False(t, c.PagingEnabled())
	})
}

func TestSwitchPDTFlushesTLB(t *testing.T) {
	var c CPU

	c.SwitchPDT(0x1000)
	c.FlushTLBEntry(0x400000)
	c.FlushTLBEntry(0x401000)
	c.SwitchPDT(0x2000)

	entries, full := c.TLBFlushes()
	require.Equal(t, uint64(2), entries)
	require.Equal(t, uint64(2), full)
	require.Equal(t, uintptr(0x2000), c.ActivePDT())
}

func TestHalt(t *testing.T) {
	var c CPU

	c.EnableInterrupts()
	require.True(t, c.InterruptsEnabled())
	require.False(t, c.Halted())

	c.Halt()
	require.True(t, c.Halted())
	require.False(t, c.InterruptsEnabled())
}
