package kernel

import "errors"

// ErrOutOfThreads is returned by Bind when a process thread table is full.
var ErrOutOfThreads = errors.New("out of threads")

const eflagsDefault = 0x202

// Thread is a schedulable execution context bound to one process.
type Thread struct {
	proc    *Process
	slot    int
	stack   uint32
	state   stateStack
	blocked bool
	dead    bool
	fx      *[FXSize]byte

	// Delivery values of the event that spawned this thread.
	signal Signal
	grant  Frame
	source PID
}

// Process returns the owning process, or nil for an unbound thread.
func (t *Thread) Process() *Process { return t.proc }

// Slot returns the thread's index in its process thread table.
func (t *Thread) Slot() int { return t.slot }

// Stack returns the base of the thread's stack segment; 0 when unbound.
func (t *Thread) Stack() uint32 { return t.stack }

// Image returns the active image, the top of the state stack.
func (t *Thread) Image() *Image { return t.state.top() }

// Depth returns the number of images on the state stack.
func (t *Thread) Depth() int { return t.state.depth() }

// Blocked reports whether the thread is excluded from scheduling.
func (t *Thread) Blocked() bool { return t.blocked }

// Dead reports whether the thread has been freed.
func (t *Thread) Dead() bool { return t.dead }

// Event returns the signal, granted frame and source of the delivery that
// spawned the thread.
func (t *Thread) Event() (Signal, Frame, PID) { return t.signal, t.grant, t.source }

// FXSaved reports whether a floating-point save area has been allocated.
func (t *Thread) FXSaved() bool { return t.fx != nil }

func (t *Thread) pid() PID {
	if t == nil || t.proc == nil {
		return 0
	}
	return t.proc.pid
}

// AllocThread allocates an unbound thread structure. It returns nil when the
// thread object budget is spent.
func (k *Kernel) AllocThread() *Thread {
	return k.allocThread()
}

func (k *Kernel) allocThread() *Thread {
	if k.objects >= k.cfg.ThreadObjects {
		return nil
	}
	k.objects++
	return &Thread{grant: NoFrame}
}

// Bind places t in a free slot of p, maps the top StackPages pages of the
// slot's stack segment and returns the segment base.
func (k *Kernel) Bind(t *Thread, p *Process) (uint32, error) {
	defer k.catch()
	return k.bind(t, p)
}

func (k *Kernel) bind(t *Thread, p *Process) (uint32, error) {
	if t.proc != nil {
		fault("bind of thread already bound to pid %d", t.proc.pid)
	}
	slot := -1
	for i, bound := range p.threads {
		if bound == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, ErrOutOfThreads
	}

	base := stackBase(slot)
	k.mapTemp(p.space)
	tmp := k.tmp()
	for va := base + StackSegment - StackPages*PageSize; va < base+StackSegment; va += PageSize {
		// A cloned parent may have left a stack here.
		if old := tmp.get(va); old.Present() {
			k.releasePage(old)
		}
		tmp.set(va, MakePage(k.frameNew(OwnerPage), PagePresent|PageWritable|PageUser))
	}

	k.attach(t, p, slot)
	t.state = newStateStack(k.cfg.StateDepth, Image{Regs: Regs{
		ESP:    base + StackSegment,
		EFLAGS: eflagsDefault,
	}})
	return base, nil
}

func (k *Kernel) attach(t *Thread, p *Process, slot int) {
	p.threads[slot] = t
	t.proc = p
	t.slot = slot
	t.stack = stackBase(slot)
}

// Switch makes to the running thread. The floating-point context of from is
// saved only if from used the FPU since the last switch; the address space
// changes only when the threads belong to different processes.
func (k *Kernel) Switch(from, to *Thread) *Thread {
	defer k.catch()
	return k.switchThread(from, to)
}

func (k *Kernel) switchThread(from, to *Thread) *Thread {
	if from != nil && !k.fpu.ts {
		if from.fx == nil {
			from.fx = new([FXSize]byte)
		}
		*from.fx = k.fpu.regs
	}

	switch {
	case to == nil:
		if k.root != k.kspace {
			k.loadSpace(k.kspace)
		}
	case from == nil || from.proc != to.proc:
		if k.root != to.proc.space {
			k.loadSpace(to.proc.space)
		}
	}

	k.fpu.ts = true
	k.running = to
	return to
}

// Drop removes t from scheduling, switches to the next runnable thread and
// then frees t. The switch happens first so t's stack is never used after
// its frames are released.
func (k *Kernel) Drop(t *Thread) *Thread {
	defer k.catch()

	k.sched.Remove(t)
	next := k.switchThread(t, k.sched.Next())
	k.freeThread(t)
	return next
}

// FreeThread unmaps and frees t's stack segment, clears its slot and
// releases the structure. Freeing the last thread of a process destroys it.
func (k *Kernel) FreeThread(t *Thread) {
	defer k.catch()
	k.freeThread(t)
}

func (k *Kernel) freeThread(t *Thread) {
	if t.dead {
		return
	}
	t.dead = true
	k.objects--

	if t.stack == 0 {
		return
	}
	p := t.proc
	p.threads[t.slot] = nil
	if k.running == t {
		k.running = nil
	}

	k.mapTemp(p.space)
	tmp := k.tmp()
	for va := t.stack; va < t.stack+StackSegment; va += PageSize {
		if e := tmp.get(va); e.Present() {
			k.releasePage(e)
			tmp.set(va, 0)
		}
	}
	if t.grant != NoFrame && k.held[t.grant] == t {
		delete(k.held, t.grant)
		k.frameFree(t.grant)
	}

	if p.main() == nil {
		k.reap(p)
	}
}
