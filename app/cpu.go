package app

import (
	"fmt"

	"rhombus/kernel"
)

// instr is one instruction of a user program. It runs on behalf of the
// running thread and may enter the kernel through the context; whichever
// thread the kernel leaves running executes the next instruction.
type instr func(c *kernel.Context)

// cpu fetches the instruction at the running thread's EIP and executes it.
type cpu struct {
	k    *kernel.Kernel
	text map[uint32]instr
	log  func(format string, args ...any)

	retired uint64
}

func newCPU(k *kernel.Kernel, log func(string, ...any)) *cpu {
	return &cpu{k: k, text: make(map[uint32]instr), log: log}
}

// load places code at addr.
func (c *cpu) load(addr uint32, code instr) {
	if _, dup := c.text[addr]; dup {
		panic(fmt.Sprintf("cpu: code already loaded at %#x", addr))
	}
	c.text[addr] = code
}

// step executes one instruction. It reports false when no thread runs.
// A thread jumping to an address without code is terminated with its
// process.
func (c *cpu) step() bool {
	t := c.k.Running()
	if t == nil {
		return false
	}
	pc := t.Image().EIP
	code, ok := c.text[pc]
	if !ok {
		c.log("cpu: pid %d: no code at %#08x, terminating", t.Process().PID(), pc)
		c.k.Exit(t.Process())
		return true
	}
	code(c.k.Context(t))
	c.retired++
	return true
}
