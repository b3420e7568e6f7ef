package kmain

import (
	"geeos/kernel/kfmt"
	"geeos/kernel/mem"
)

const (
	// DefaultHeapSize is the kernel heap size used when the boot command
	// line does not specify one.
	DefaultHeapSize = 1 * mem.Mb

	// cmdLineHeapSize is the boot command line key that sets the kernel
	// heap size, e.g. kheap=4M.
	cmdLineHeapSize = "kheap"
)

// Config holds the memory subsystem settings taken from the boot command line.
type Config struct {
	// HeapSize is the size of the kernel heap arena. It is always a
	// multiple of the page size.
	HeapSize mem.Size
}

// ConfigFromCmdLine builds a Config from the parsed boot command line.
// Invalid values are reported and replaced by their default.
func ConfigFromCmdLine(cmdLine map[string]string) Config {
	cfg := Config{HeapSize: DefaultHeapSize}

	if v, ok := cmdLine[cmdLineHeapSize]; ok {
		size, valid := mem.ParseSize(v)
		if !valid || size == 0 || size > mem.PhysAddrLimit/2 {
			kfmt.Printf("[kmain] ignoring invalid %s value %q; using %s\n", cmdLineHeapSize, v, DefaultHeapSize)
		} else {
			cfg.HeapSize = size
		}
	}

	cfg.HeapSize = mem.Size(mem.AlignUp(uintptr(cfg.HeapSize), mem.PageSize))
	return cfg
}
