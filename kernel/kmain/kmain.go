// Package kmain contains the kernel boot sequence.
package kmain

import (
	"geeos/kernel/cpu"
	"geeos/kernel/hal/multiboot"
	"geeos/kernel/kfmt"
	"geeos/kernel/mem"
)

// Kmain is the entry point invoked by the boot stub once the CPU runs in
// 32-bit protected mode with paging disabled. The stub passes the multiboot
// information buffer provided by the boot loader and the physical addresses
// for the kernel start/end.
//
// Kmain brings up the memory subsystem and returns it so the rest of the
// kernel can be started. If memory initialization fails the error is printed
// and the CPU is halted; Kmain then returns nil.
func Kmain(multibootInfo []byte, physMem *mem.Memory, c *cpu.CPU, kernelStart, kernelEnd uintptr) *Memory {
	kfmt.Printf("Starting GeeOS\n")

	m, err := InitMemory(multiboot.NewInfo(multibootInfo), physMem, c, kernelStart, kernelEnd)
	if err != nil {
		kfmt.Panic(err, c)
		return nil
	}

	return m
}
