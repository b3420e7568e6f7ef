package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"geeos/kernel/mem"
)

// globalOptions holds the flags shared by all commands.
type globalOptions struct {
	verbose bool
	jsonOut bool
	logger  *log.Logger
}

func newRootCmd() (*cobra.Command, *globalOptions) {
	opts := &globalOptions{logger: log.New()}

	cmd := &cobra.Command{
		Use:   "memsim",
		Short: "Boot the GeeOS memory subsystem on a simulated PC",
		Long: `memsim builds multiboot2 boot information, inspects memory maps and runs
the GeeOS memory initialization sequence against simulated physical memory
and a simulated CPU.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.logger.SetOutput(cmd.ErrOrStderr())
			opts.logger.SetLevel(log.InfoLevel)
			if opts.verbose {
				opts.logger.SetLevel(log.DebugLevel)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Output in JSON format")

	cmd.AddCommand(
		newGenCmd(opts),
		newMmapCmd(opts),
		newBootCmd(opts),
	)
	return cmd, opts
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		logger := log.New()
		logger.SetOutput(stderr)

		fields := log.Fields{"error": err.Error()}
		if wrapped, ok := err.(*errors.Error); ok && opts.verbose {
			fields["stack"] = wrapped.ErrorStack()
		}
		logger.WithFields(fields).Error("memsim failed")
		return 1
	}

	return 0
}

// wrap attaches a stack trace to err.
func wrap(err error) *errors.Error {
	if err != nil {
		return errors.Wrap(err, 1)
	}
	return nil
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// sizeValue is a pflag.Value that accepts sizes such as 512K or 128M.
type sizeValue mem.Size

func (s *sizeValue) String() string { return mem.Size(*s).String() }

func (s *sizeValue) Set(v string) error {
	size, ok := mem.ParseSize(v)
	if !ok {
		return fmt.Errorf("invalid size %q", v)
	}
	*s = sizeValue(size)
	return nil
}

func (s *sizeValue) Type() string { return "size" }

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
