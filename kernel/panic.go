package kernel

import (
	"fmt"
	"sync"
)

// Fault is a fatal kernel invariant violation: frame exhaustion, state stack
// overflow or underflow, a corrupt call chain. It travels as a panic value and
// is never returned as an error; there is no recovery above the core.
type Fault struct {
	Reason string
	Stack  []byte
}

func (f *Fault) Error() string { return "kernel halt: " + f.Reason }

func fault(format string, args ...any) {
	panic(&Fault{Reason: fmt.Sprintf(format, args...)})
}

type haltState struct {
	once    sync.Once
	halted  bool
	handler func(*Fault)
}

// SetHaltHandler installs the handler invoked on the first fault.
//
// The handler is invoked at most once. It must not panic.
func (k *Kernel) SetHaltHandler(fn func(*Fault)) {
	k.halt.handler = fn
}

// Halted reports whether the kernel has faulted.
func (k *Kernel) Halted() bool {
	return k.halt.halted
}

// catch runs deferred at every kernel entry point. A fault is reported once
// through the halt handler and then continues unwinding.
func (k *Kernel) catch() {
	r := recover()
	if r == nil {
		return
	}
	f, ok := r.(*Fault)
	if !ok {
		panic(r)
	}
	k.halt.once.Do(func() {
		k.halt.halted = true
		f.Stack = captureStack()
		k.logf("kernel: halt: %s", f.Reason)
		if k.halt.handler != nil {
			k.halt.handler(f)
		}
	})
	panic(f)
}
