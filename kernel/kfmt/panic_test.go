package kfmt

import (
	"bytes"
	"errors"
	"testing"

	"geeos/kernel"

	"github.com/stretchr/testify/require"
)

type haltRecorder struct {
	halted bool
}

func (h *haltRecorder) Halt() { h.halted = true }

func TestPanic(t *testing.T) {
	specs := []struct {
		name  string
		input interface{}
		exp   string
	}{
		{
			"with *kernel.Error",
			&kernel.Error{Module: "test", Message: "panic test"},
			"\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with error",
			errors.New("go error"),
			"\n-----------------------------------\n[rt] unrecoverable error: go error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with string",
			"string error",
			"\n-----------------------------------\n[rt] unrecoverable error: string error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with unsupported type",
			42,
			"\n-----------------------------------\n[rt] unrecoverable error: unknown cause\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"without error",
			nil,
			"\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			resetSink(t)

			var (
				buf bytes.Buffer
				cpu haltRecorder
			)
			SetOutputSink(&buf)

			Panic(spec.input, &cpu)

			require.Equal(t, spec.exp, buf.String())
			require.True(t, cpu.halted, "expected Panic to halt the CPU")
		})
	}
}
