package kfmt

import (
	"geeos/kernel"
)

var errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}

// Halter is implemented by processors that can stop executing instructions.
type Halter interface {
	Halt()
}

// Panic outputs the supplied error (if not nil) and halts the CPU. It is the
// only way the memory subsystem reports an unrecoverable condition.
func Panic(e interface{}, cpu Halter) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t}
	case error:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t.Error()}
	case nil:
	default:
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpu.Halt()
}
