package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"geeos/kernel/hal"
	"geeos/kernel/kfmt"
	"geeos/kernel/kmain"
	"geeos/kernel/mem"
)

var errKernelHalted = errors.Errorf("kernel halted during memory initialization")

type bootOptions struct {
	infoFile    string
	ram         sizeValue
	cmdLine     string
	kernelStart uint64
	kernelEnd   uint64
	console     bool
}

type frameReport struct {
	Total         uint32 `json:"total"`
	Free          uint32 `json:"free"`
	Reserved      uint32 `json:"reserved"`
	ArenaBase     uint64 `json:"arena_base"`
	BitmapAddress uint64 `json:"bitmap_address"`
	BitmapSize    uint64 `json:"bitmap_size"`
}

type heapReport struct {
	Base       uint64 `json:"base"`
	Size       uint32 `json:"size"`
	Carved     uint32 `json:"carved"`
	FreeBlocks uint32 `json:"free_blocks"`
}

type bootReport struct {
	RAM           uint64       `json:"ram"`
	Regions       []mem.Region `json:"regions"`
	Frames        frameReport  `json:"frames"`
	PagingEnabled bool         `json:"paging_enabled"`
	KernelPDT     uint64       `json:"kernel_pdt"`
	IdentityOK    bool         `json:"identity_ok"`
	Heap          heapReport   `json:"heap"`
	HeapCheckOK   bool         `json:"heap_check_ok"`
}

func newBootCmd(global *globalOptions) *cobra.Command {
	opts := &bootOptions{
		ram:         sizeValue(128 * mem.Mb),
		kernelStart: 0x100000,
		kernelEnd:   0x200000,
	}

	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Run the memory initialization sequence on a simulated PC",
		Long: `The boot command installs simulated physical memory, hands the boot
information to the kernel entry point and reports the state of the frame
allocator, the kernel address space and the kernel heap.

Example:
  memsim boot --ram 64M --cmdline "kheap=8M"
  memsim boot --info info.bin --ram 128M --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBoot(cmd.OutOrStdout(), global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.infoFile, "info", "", "Multiboot2 information file (generated for --ram if omitted)")
	cmd.Flags().Var(&opts.ram, "ram", "Installed RAM (e.g. 64M, 1G)")
	cmd.Flags().StringVar(&opts.cmdLine, "cmdline", "", "Kernel command line when generating boot information")
	cmd.Flags().Uint64Var(&opts.kernelStart, "kernel-start", opts.kernelStart, "Physical address of the kernel image start")
	cmd.Flags().Uint64Var(&opts.kernelEnd, "kernel-end", opts.kernelEnd, "Physical address of the kernel image end")
	cmd.Flags().BoolVar(&opts.console, "console", false, "Print the kernel console to stdout")
	return cmd
}

func runBoot(w io.Writer, global *globalOptions, opts *bootOptions) error {
	if opts.kernelEnd < opts.kernelStart {
		return wrap(fmt.Errorf("kernel end 0x%x is below kernel start 0x%x", opts.kernelEnd, opts.kernelStart))
	}

	bootInfo, err := loadBootInfo(opts)
	if err != nil {
		return err
	}

	machine, merr := hal.NewMachine(mem.Size(opts.ram), bootInfo)
	if merr != nil {
		return wrap(merr)
	}
	defer func() { _ = machine.Close() }()

	var console io.Writer = &kfmt.PrefixWriter{Sink: w, Prefix: []byte("console: ")}
	if !opts.console {
		sink := newLogSink(global.logger)
		defer sink.Flush()
		console = sink
	}
	hal.InitTerminal(console)
	defer hal.InitTerminal(nil)

	global.logger.WithFields(log.Fields{
		"ram":          mem.Size(opts.ram).String(),
		"kernel_start": fmt.Sprintf("0x%x", opts.kernelStart),
		"kernel_end":   fmt.Sprintf("0x%x", opts.kernelEnd),
	}).Debug("booting")

	memory := kmain.Kmain(machine.BootInfo, machine.Memory, machine.CPU, uintptr(opts.kernelStart), uintptr(opts.kernelEnd))
	if memory == nil {
		return wrap(errKernelHalted)
	}

	report := buildBootReport(machine, memory, uintptr(opts.kernelStart))
	if global.jsonOut {
		return printJSON(w, report)
	}

	printBootReport(w, report)
	return nil
}

func loadBootInfo(opts *bootOptions) ([]byte, error) {
	if opts.infoFile != "" {
		data, err := os.ReadFile(opts.infoFile)
		if err != nil {
			return nil, wrap(err)
		}
		return data, nil
	}

	data, kerr := hal.PCBootInfo(mem.Size(opts.ram), "memsim", opts.cmdLine)
	if kerr != nil {
		return nil, wrap(kerr)
	}
	return data, nil
}

func buildBootReport(machine *hal.Machine, memory *kmain.Memory, kernelStart uintptr) bootReport {
	pdt, _ := memory.VMM.KernelPDT()
	heapStats := memory.Heap.Stats()

	report := bootReport{
		RAM:     uint64(machine.Memory.Size()),
		Regions: memory.Regions,
		Frames: frameReport{
			Total:         memory.Frames.TotalFrames(),
			Free:          memory.Frames.FreeFrames(),
			Reserved:      memory.Frames.ReservedFrames(),
			ArenaBase:     uint64(memory.Frames.ArenaBase()),
			BitmapAddress: uint64(memory.Frames.BitmapAddress()),
			BitmapSize:    uint64(memory.Frames.BitmapSize()),
		},
		PagingEnabled: machine.CPU.PagingEnabled(),
		KernelPDT:     uint64(pdt.Address()),
		IdentityOK:    true,
		Heap: heapReport{
			Base:       uint64(memory.Heap.Base()),
			Size:       heapStats.ArenaSize,
			Carved:     heapStats.Carved,
			FreeBlocks: heapStats.FreeBlocks,
		},
	}

	for _, addr := range []uintptr{0, kernelStart, memory.Heap.Base()} {
		if physAddr, err := memory.VMM.Translate(pdt, addr); err != nil || physAddr != addr {
			report.IdentityOK = false
		}
	}

	report.HeapCheckOK = checkHeap(memory)
	return report
}

// checkHeap allocates and releases a few blocks and verifies that freed
// blocks are reused.
func checkHeap(memory *kmain.Memory) bool {
	first, err := memory.Heap.Alloc(24)
	if err != nil {
		return false
	}
	copy(memory.Heap.Bytes(first), "memsim")

	second, err := memory.Heap.Alloc(100)
	if err != nil {
		return false
	}

	memory.Heap.Free(first)
	reused, err := memory.Heap.Alloc(16)
	memory.Heap.Free(second)
	memory.Heap.Free(reused)

	return err == nil && reused == first && bytes.HasPrefix(memory.Heap.Bytes(reused), []byte("memsim"))
}

func printBootReport(w io.Writer, report bootReport) {
	fmt.Fprintf(w, "RAM: %s\n", mem.Size(report.RAM))
	fmt.Fprintf(w, "Usable regions:\n")
	for _, region := range report.Regions {
		fmt.Fprintf(w, "  [0x%08x - 0x%08x] %s\n", region.Base, region.End()-1, mem.Size(region.Length))
	}

	fmt.Fprintf(w, "Frames:\n")
	fmt.Fprintf(w, "  total:    %d\n", report.Frames.Total)
	fmt.Fprintf(w, "  free:     %d\n", report.Frames.Free)
	fmt.Fprintf(w, "  reserved: %d\n", report.Frames.Reserved)
	fmt.Fprintf(w, "  bitmap:   %d bytes at 0x%x\n", report.Frames.BitmapSize, report.Frames.BitmapAddress)

	fmt.Fprintf(w, "Paging:\n")
	fmt.Fprintf(w, "  enabled:        %t\n", report.PagingEnabled)
	fmt.Fprintf(w, "  kernel PDT:     0x%x\n", report.KernelPDT)
	fmt.Fprintf(w, "  identity map:   %s\n", status(report.IdentityOK))

	fmt.Fprintf(w, "Heap:\n")
	fmt.Fprintf(w, "  arena:  %s at 0x%x\n", mem.Size(report.Heap.Size), report.Heap.Base)
	fmt.Fprintf(w, "  check:  %s\n", status(report.HeapCheckOK))
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAILED"
}

// logSink forwards complete lines of kernel output to a logger.
type logSink struct {
	logger *log.Logger
	buf    []byte
}

func newLogSink(logger *log.Logger) *logSink {
	return &logSink{logger: logger}
}

func (s *logSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		s.emit(s.buf[:i])
		s.buf = s.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (s *logSink) Flush() {
	if len(s.buf) != 0 {
		s.emit(s.buf)
		s.buf = nil
	}
}

func (s *logSink) emit(line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	s.logger.WithField("src", "kernel").Debug(string(line))
}
