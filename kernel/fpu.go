package kernel

// fpuState models the floating-point unit: its registers and the
// task-switched flag that traps the first FPU use after a switch.
type fpuState struct {
	ts   bool
	regs [FXSize]byte
}

// fpuTrap runs on the first FPU use after a switch: it clears the
// task-switched flag and restores t's saved context, if any.
func (k *Kernel) fpuTrap(t *Thread) {
	if !k.fpu.ts {
		return
	}
	k.fpu.ts = false
	if t.fx != nil {
		k.fpu.regs = *t.fx
	}
}

// WriteFPU stores p into the FPU registers at off on behalf of t.
func (k *Kernel) WriteFPU(t *Thread, off int, p []byte) {
	k.fpuTrap(t)
	copy(k.fpu.regs[off:], p)
}

// ReadFPU loads the FPU registers at off into p on behalf of t.
func (k *Kernel) ReadFPU(t *Thread, off int, p []byte) {
	k.fpuTrap(t)
	copy(p, k.fpu.regs[off:])
}
