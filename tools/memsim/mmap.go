package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/OneOfOne/xxhash"
	"github.com/spf13/cobra"

	"geeos/kernel/hal/multiboot"
	"geeos/kernel/mem"
)

type mmapEntry struct {
	Base   uint64 `json:"base"`
	Length uint64 `json:"length"`
	Type   string `json:"type"`
}

type mmapReport struct {
	Checksum   string            `json:"checksum"`
	BootLoader string            `json:"boot_loader,omitempty"`
	CmdLine    map[string]string `json:"cmdline,omitempty"`
	Entries    []mmapEntry       `json:"entries"`
	Available  []mem.Region      `json:"available"`
}

func newMmapCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mmap <info.bin>",
		Short: "Print the memory map stored in a multiboot2 information buffer",
		Long: `The mmap command decodes a multiboot2 information buffer and lists every
memory map entry followed by the regions the kernel considers usable.

Example:
  memsim mmap info.bin
  memsim mmap info.bin --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return wrap(err)
			}

			global.logger.WithField("file", args[0]).Debug("decoding boot information")

			report := buildMmapReport(multiboot.NewInfo(data))
			report.Checksum = fmt.Sprintf("%016x", xxhash.Checksum64(data))
			if global.jsonOut {
				return printJSON(cmd.OutOrStdout(), report)
			}

			printMmapReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func buildMmapReport(info *multiboot.Info) mmapReport {
	report := mmapReport{
		BootLoader: info.BootLoaderName(),
		CmdLine:    info.BootCmdLine(),
		Entries:    []mmapEntry{},
		Available:  info.AvailableRegions(),
	}

	info.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		report.Entries = append(report.Entries, mmapEntry{
			Base:   entry.PhysAddress,
			Length: entry.Length,
			Type:   entry.Type.String(),
		})
		return true
	})

	if report.Available == nil {
		report.Available = []mem.Region{}
	}
	return report
}

func printMmapReport(w io.Writer, report mmapReport) {
	fmt.Fprintf(w, "Checksum: %s\n", report.Checksum)
	if report.BootLoader != "" {
		fmt.Fprintf(w, "Boot loader: %s\n", report.BootLoader)
	}
	if len(report.CmdLine) != 0 {
		keys := make([]string, 0, len(report.CmdLine))
		for k := range report.CmdLine {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(w, "Command line:\n")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s=%s\n", k, report.CmdLine[k])
		}
	}

	fmt.Fprintf(w, "Memory map:\n")
	for _, entry := range report.Entries {
		fmt.Fprintf(w, "  [0x%010x - 0x%010x] %-8s %s\n", entry.Base, entry.Base+entry.Length-1, mem.Size(entry.Length), entry.Type)
	}

	var total uint64
	fmt.Fprintf(w, "Usable regions:\n")
	for _, region := range report.Available {
		fmt.Fprintf(w, "  [0x%010x - 0x%010x] %s\n", region.Base, region.End()-1, mem.Size(region.Length))
		total += region.Length
	}
	fmt.Fprintf(w, "Usable memory: %s\n", mem.Size(total))
}
