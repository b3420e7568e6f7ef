package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"geeos/kernel/hal"
	"geeos/kernel/mem"
)

type genOptions struct {
	ram        sizeValue
	cmdLine    string
	bootLoader string
	output     string
}

func newGenCmd(global *globalOptions) *cobra.Command {
	opts := &genOptions{ram: sizeValue(128 * mem.Mb), bootLoader: "memsim"}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Write the multiboot2 boot information for a simulated PC",
		Long: `The gen command writes the multiboot2 information buffer a boot loader
would pass to the kernel on a PC with the requested amount of RAM.

Example:
  memsim gen --ram 128M --cmdline "kheap=4M" -o info.bin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGen(global, opts)
		},
	}

	cmd.Flags().Var(&opts.ram, "ram", "Installed RAM (e.g. 64M, 1G)")
	cmd.Flags().StringVar(&opts.cmdLine, "cmdline", "", "Kernel command line")
	cmd.Flags().StringVar(&opts.bootLoader, "bootloader", opts.bootLoader, "Boot loader name")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runGen(global *globalOptions, opts *genOptions) error {
	buf, kerr := hal.PCBootInfo(mem.Size(opts.ram), opts.bootLoader, opts.cmdLine)
	if kerr != nil {
		return wrap(kerr)
	}

	if err := os.WriteFile(opts.output, buf, 0o644); err != nil {
		return wrap(err)
	}

	global.logger.WithFields(log.Fields{
		"file": opts.output,
		"ram":  mem.Size(opts.ram).String(),
		"size": len(buf),
	}).Info("wrote boot information")
	return nil
}
