// Package hal provides the machine the kernel boots on: installed physical
// memory, the processor and the boot information a multiboot2 boot loader
// hands over.
package hal

import (
	"io"

	"geeos/kernel"
	"geeos/kernel/cpu"
	"geeos/kernel/hal/multiboot"
	"geeos/kernel/kfmt"
	"geeos/kernel/mem"
)

const (
	// lowMemEnd is the end of conventional memory below the EBDA.
	lowMemEnd = 0x9fc00

	// highMemStart is the start of extended memory.
	highMemStart = 0x100000

	// firmwareReserved is the amount of memory the firmware keeps at the
	// top of RAM for ACPI tables.
	firmwareReserved = 0x20000

	// MinRAM is the smallest amount of RAM a machine can be configured
	// with.
	MinRAM = 2 * mem.Mb
)

var errRAMTooSmall = &kernel.Error{Module: "hal", Message: "machine needs at least 2M of RAM"}

// Machine bundles the hardware the kernel is started on.
type Machine struct {
	Memory *mem.Memory
	CPU    *cpu.CPU

	// BootInfo is the multiboot2 information buffer passed to the kernel.
	BootInfo []byte
}

// NewMachine installs ram bytes of physical memory and returns a machine
// with a freshly reset CPU.
func NewMachine(ram mem.Size, bootInfo []byte) (*Machine, error) {
	physMem, err := mem.NewMemory(ram)
	if err != nil {
		return nil, err
	}

	return &Machine{
		Memory:   physMem,
		CPU:      &cpu.CPU{},
		BootInfo: bootInfo,
	}, nil
}

// Close releases the machine's physical memory.
func (m *Machine) Close() error {
	return m.Memory.Close()
}

// PCMemoryMap returns the memory map a PC firmware reports for a machine with
// the given amount of RAM: conventional memory up to 639K, the EBDA, VGA and
// BIOS holes, extended memory from 1M and ACPI data at the top of RAM.
func PCMemoryMap(ram mem.Size) ([]multiboot.MemoryMapEntry, *kernel.Error) {
	if ram < MinRAM {
		return nil, errRAMTooSmall
	}

	top := uint64(ram)
	return []multiboot.MemoryMapEntry{
		{PhysAddress: 0, Length: lowMemEnd, Type: multiboot.MemAvailable},
		{PhysAddress: lowMemEnd, Length: 0xa0000 - lowMemEnd, Type: multiboot.MemReserved},
		{PhysAddress: 0xf0000, Length: 0x10000, Type: multiboot.MemReserved},
		{PhysAddress: highMemStart, Length: top - firmwareReserved - highMemStart, Type: multiboot.MemAvailable},
		{PhysAddress: top - firmwareReserved, Length: firmwareReserved, Type: multiboot.MemAcpiReclaimable},
		{PhysAddress: 0xfffc0000, Length: 0x40000, Type: multiboot.MemReserved},
	}, nil
}

// PCBootInfo builds the multiboot2 information buffer a boot loader would
// pass to the kernel on a PC with the given amount of RAM.
func PCBootInfo(ram mem.Size, bootLoader, cmdLine string) ([]byte, *kernel.Error) {
	entries, err := PCMemoryMap(ram)
	if err != nil {
		return nil, err
	}

	b := multiboot.NewBuilder()
	if cmdLine != "" {
		b.AddCmdLine(cmdLine)
	}
	if bootLoader != "" {
		b.AddBootLoaderName(bootLoader)
	}
	return b.AddMemoryMap(entries...).Build(), nil
}

// InitTerminal directs kernel output to w. Output produced before this call
// is flushed to w first.
func InitTerminal(w io.Writer) {
	kfmt.SetOutputSink(w)
}
