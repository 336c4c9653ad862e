package kernel

// CallFlags modify a synchronous call.
type CallFlags uint8

const (
	// FlagNoErr turns a missing target or handler into a silent no-op.
	FlagNoErr CallFlags = 1 << iota
	// FlagKill terminates a target that has no handler for the signal.
	FlagKill
	// FlagBlock marks the caller blocked.
	FlagBlock
	// FlagUnblock clears the target's blocked mark.
	FlagUnblock
	// FlagSuper marks a state stack overflow escalation.
	FlagSuper
)

// RetUnblock, set in a return value, unblocks the caller.
const RetUnblock uint32 = 1 << 30

// Errno is a recoverable protocol error, delivered in the caller's EAX.
type Errno uint32

const (
	ErrNoTask   Errno = ^Errno(0)
	ErrNoSignal Errno = ^Errno(1)
)

func (e Errno) Error() string {
	switch e {
	case ErrNoTask:
		return "no such task"
	case ErrNoSignal:
		return "no such signal"
	default:
		return "unknown error"
	}
}

// Call performs a synchronous call of signal sig into process pid on behalf
// of from. On success an image is pushed on the target's state stack,
// resuming at the registered handler with args in EAX..EDX, the caller's
// pid in ESI and sig in EDI, and the target becomes the running thread.
//
// A missing target or handler writes an Errno into from's EAX and returns
// from; FlagNoErr suppresses the error.
func (k *Kernel) Call(from *Thread, pid PID, sig Signal, args [4]uint32, flags CallFlags) (*Thread, error) {
	defer k.catch()
	return k.call(from, pid, sig, args, flags)
}

func (k *Kernel) call(from *Thread, pid PID, sig Signal, args [4]uint32, flags CallFlags) (*Thread, error) {
	var t *Thread
	p := k.procs[pid]
	if p != nil {
		t = p.main()
	}
	if t == nil {
		return k.callFail(from, ErrNoTask, flags)
	}

	entry := p.handlers[sig]
	if entry == 0 {
		if flags&FlagKill != 0 {
			k.tracef("kernel: call pid=%d sig=%d: no handler, killing", pid, sig)
			return k.exit(p), nil
		}
		return k.callFail(from, ErrNoSignal, flags)
	}

	if flags&FlagBlock != 0 {
		from.blocked = true
	}
	if flags&FlagUnblock != 0 {
		t.blocked = false
	}

	img, err := t.state.push()
	if err != nil {
		fault("%v (pid %d, depth %d)", err, pid, t.state.depth())
	}
	img.Caller = from
	img.EAX = args[0]
	img.EBX = args[1]
	img.ECX = args[2]
	img.EDX = args[3]
	img.ESI = uint32(from.pid())
	img.EDI = uint32(sig)
	img.EIP = entry

	if from != t {
		k.switchThread(from, t)
	} else {
		k.running = t
	}
	k.tracef("kernel: call pid=%d -> pid=%d sig=%d depth=%d", from.pid(), pid, sig, t.state.depth())

	if t.state.free() < stateReserve && flags&FlagSuper == 0 {
		k.call(t, pid, SigImage, [4]uint32{}, FlagSuper|FlagNoErr)
	}
	return t, nil
}

func (k *Kernel) callFail(from *Thread, e Errno, flags CallFlags) (*Thread, error) {
	if flags&FlagNoErr != 0 {
		return from, nil
	}
	from.Image().EAX = uint32(e)
	return from, e
}

// Ret pops the active image of t and resumes its caller. When the popped
// image's EAX carries RetUnblock the caller is unblocked. The caller's own
// image is left exactly as it was before the call.
func (k *Kernel) Ret(t *Thread) *Thread {
	defer k.catch()
	return k.ret(t)
}

func (k *Kernel) ret(t *Thread) *Thread {
	top := *t.Image()
	if err := t.state.pop(); err != nil {
		fault("%v (pid %d)", err, t.pid())
	}
	caller := top.Caller
	if caller == nil || caller.dead {
		fault("invalid caller (pid %d)", t.pid())
	}

	if top.EAX&RetUnblock != 0 {
		caller.blocked = false
	}
	if caller != t {
		k.switchThread(t, caller)
	}
	k.tracef("kernel: ret pid=%d -> pid=%d", t.pid(), caller.pid())
	return caller
}
