package hal

import (
	"bytes"
	"testing"

	"geeos/kernel/hal/multiboot"
	"geeos/kernel/kfmt"
	"geeos/kernel/mem"

	"github.com/stretchr/testify/require"
)

func TestPCMemoryMap(t *testing.T) {
	entries, err := PCMemoryMap(128 * mem.Mb)
	require.Nil(t, err)
	require.Len(t, entries, 6)

	buf, err := PCBootInfo(128*mem.Mb, "GRUB 2.02", "kheap=2M")
	require.Nil(t, err)

	info := multiboot.NewInfo(buf)
	require.Equal(t, []mem.Region{
		{Base: 0, Length: 654336},
		{Base: 1048576, Length: 133038080},
	}, info.AvailableRegions())
	require.Equal(t, "GRUB 2.02", info.BootLoaderName())
	require.Equal(t, "2M", info.BootCmdLine()["kheap"])

	_, err = PCMemoryMap(MinRAM - 1)
	require.Equal(t, errRAMTooSmall, err)

	_, err = PCBootInfo(mem.Mb, "", "")
	require.Equal(t, errRAMTooSmall, err)
}

func TestMachine(t *testing.T) {
	m, err := NewMachine(4*mem.Mb, []byte{1, 2, 3})
	require.NoError(t, err)

	require.Equal(t, 4*mem.Mb, m.Memory.Size())
	require.False(t, m.CPU.PagingEnabled())
	require.Equal(t, []byte{1, 2, 3}, m.BootInfo)
	require.NoError(t, m.Close())
}

func TestInitTerminal(t *testing.T) {
	defer kfmt.SetOutputSink(nil)

	var buf bytes.Buffer
	InitTerminal(&buf)
	kfmt.Printf("hello %d\n", 42)
	require.Contains(t, buf.String(), "hello 42\n")
}
