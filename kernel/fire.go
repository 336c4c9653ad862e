package kernel

// Fire delivers sig asynchronously from thread from to process pid. When
// grant is non-zero, the page at that address in from's space is handed to
// the receiver: from keeps a fresh frame with the same permissions, the
// receiver gets the original frame.
//
// The target's policy for sig decides the delivery: EVENT spawns a handler
// thread and returns it, QUEUE appends to the mailbox and returns from,
// ABORT terminates the target and returns the thread that runs next.
// EVENT without a handler, or without room for a new thread, queues.
func (k *Kernel) Fire(from *Thread, pid PID, sig Signal, grant uint32) (*Thread, error) {
	defer k.catch()

	p := k.procs[pid]
	if p == nil {
		return from, ErrNoTask
	}

	frame := NoFrame
	if grant != 0 {
		if from == nil {
			fault("grant of %#08x without a sending thread", grant)
		}
		frame = k.takeGrant(from, grant)
	}
	source := from.pid()

	switch p.policy[sig] {
	case PolicyEvent:
		if t := k.spawnHandler(p, sig, frame, source); t != nil {
			k.tracef("kernel: fire pid=%d -> pid=%d sig=%d: event slot %d", source, pid, sig, t.slot)
			return t, nil
		}
		fallthrough
	case PolicyQueue:
		p.mail[sig].push(&Mail{Signal: sig, Grant: frame, Source: source})
		k.tracef("kernel: fire pid=%d -> pid=%d sig=%d: queued (%d)", source, pid, sig, p.mail[sig].len())
		return from, nil
	default:
		k.tracef("kernel: fire pid=%d -> pid=%d sig=%d: abort", source, pid, sig)
		if frame != NoFrame {
			k.frameFree(frame)
		}
		return k.exit(p), nil
	}
}

// takeGrant replaces the sender's page at va with a fresh frame carrying the
// same permissions and returns the original frame, now owned by the grant.
// The entry is rewritten in the same step the frame changes hands.
func (k *Kernel) takeGrant(from *Thread, va uint32) Frame {
	va = pageAlign(va)
	k.mapTemp(from.proc.space)
	tmp := k.tmp()

	e := tmp.get(va)
	if !e.Present() || e.Flags()&(PageLinked|PageReal) != 0 {
		return NoFrame
	}
	f := k.frameNew(OwnerPage)
	k.mem.clear(f)
	tmp.set(va, MakePage(f, e.Flags()))
	k.mem.tag(e.Frame(), OwnerGrant)
	return e.Frame()
}

// spawnHandler binds a new thread in p resuming at the handler for sig with
// the signal in EDI, the grant in EBX and the source in ESI.
func (k *Kernel) spawnHandler(p *Process, sig Signal, grant Frame, source PID) *Thread {
	entry := p.handlers[sig]
	if entry == 0 {
		return nil
	}
	t := k.allocThread()
	if t == nil {
		return nil
	}
	if _, err := k.bind(t, p); err != nil {
		k.objects--
		return nil
	}

	eflags := uint32(eflagsDefault)
	if m := p.main(); m != nil && m != t {
		eflags = m.state.images[0].EFLAGS
	}

	img := t.Image()
	img.EFLAGS = eflags | 0x3000
	img.EIP = entry
	img.EBX = uint32(grant)
	img.ESI = uint32(source)
	img.EDI = uint32(sig)
	t.signal = sig
	t.grant = grant
	t.source = source
	if grant != NoFrame {
		k.held[grant] = t
	}

	k.sched.Insert(t)
	return t
}

// Recv drains the oldest queued delivery of sig for p.
func (k *Kernel) Recv(p *Process, sig Signal) (Mail, bool) {
	return p.mail[sig].pop()
}

// Accept installs a granted frame at va in t's address space. The frame
// becomes an ordinary page of that space.
func (k *Kernel) Accept(t *Thread, f Frame, va uint32, flags PageFlags) {
	defer k.catch()

	if k.mem.Owner(f) != OwnerGrant {
		fault("accept of frame %05x not in transit", uint32(f))
	}
	va = pageAlign(va)
	k.mapTemp(t.proc.space)
	tmp := k.tmp()
	if old := tmp.get(va); old.Present() {
		k.releasePage(old)
	}
	delete(k.held, f)
	k.mem.tag(f, OwnerPage)
	tmp.set(va, MakePage(f, flags|PagePresent))
}

// Discard frees a granted frame the receiver does not keep.
func (k *Kernel) Discard(f Frame) {
	defer k.catch()

	if k.mem.Owner(f) != OwnerGrant {
		fault("discard of frame %05x not in transit", uint32(f))
	}
	delete(k.held, f)
	k.frameFree(f)
}
