package kernel

import (
	"errors"
	"fmt"
)

// PID identifies a process.
type PID uint16

// Signal is a signal number: both a synchronous call type and an
// asynchronous notification type.
type Signal uint8

const NumSignals = 256

// SigImage is raised on a thread whose state stack enters its reserve.
const SigImage Signal = 0x1F

// Policy selects how asynchronous delivery of a signal is handled.
type Policy uint8

const (
	PolicyAbort Policy = iota
	PolicyEvent
	PolicyQueue
)

func (p Policy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	case PolicyEvent:
		return "event"
	case PolicyQueue:
		return "queue"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

var (
	ErrProcessTable = errors.New("process table full")
	ErrNoMemory     = errors.New("thread allocation failed")
)

const maxPID = 0xFFFF

// Process owns an address space, a thread table, and per-signal handler,
// policy and mailbox tables.
type Process struct {
	pid      PID
	space    Space
	threads  [MaxThreads]*Thread
	handlers [NumSignals]uint32
	policy   [NumSignals]Policy
	mail     [NumSignals]mailbox
}

func (p *Process) PID() PID             { return p.pid }
func (p *Process) Space() Space         { return p.space }
func (p *Process) Thread(i int) *Thread { return p.threads[i] }

// Handler returns the entry point registered for sig, or 0.
func (p *Process) Handler(sig Signal) uint32 { return p.handlers[sig] }

// Policy returns the delivery policy of sig.
func (p *Process) Policy(sig Signal) Policy { return p.policy[sig] }

// Pending returns the number of queued deliveries of sig.
func (p *Process) Pending(sig Signal) int { return p.mail[sig].len() }

// Threads returns the bound threads in slot order.
func (p *Process) Threads() []*Thread {
	var out []*Thread
	for _, t := range p.threads {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// main returns the thread in the lowest bound slot.
func (p *Process) main() *Thread {
	for _, t := range p.threads {
		if t != nil {
			return t
		}
	}
	return nil
}

func (k *Kernel) newPID() (PID, bool) {
	for i := 0; i < maxPID; i++ {
		k.lastPID++
		if k.lastPID == 0 {
			k.lastPID = 1
		}
		if _, used := k.procs[k.lastPID]; !used {
			return k.lastPID, true
		}
	}
	return 0, false
}

func (k *Kernel) newProcess(s Space) (*Process, error) {
	pid, ok := k.newPID()
	if !ok {
		return nil, ErrProcessTable
	}
	p := &Process{pid: pid, space: s}
	k.procs[pid] = p
	return p, nil
}

// Spawn creates a process with an empty user range and one thread resuming
// at entry. The thread is handed to the scheduler.
func (k *Kernel) Spawn(entry uint32) (*Thread, error) {
	defer k.catch()

	t := k.allocThread()
	if t == nil {
		return nil, ErrNoMemory
	}
	s := k.allocSpace()
	k.linkShared(k.tmp())

	p, err := k.newProcess(s)
	if err != nil {
		k.freeSpace(s)
		k.objects--
		return nil, err
	}
	if _, err := k.bind(t, p); err != nil {
		return nil, fmt.Errorf("spawn pid %d: %w", p.pid, err)
	}
	t.Image().EIP = entry
	k.sched.Insert(t)

	k.tracef("kernel: spawn pid=%d entry=%#x", p.pid, entry)
	return t, nil
}

// Fork clones the process of t into a new process whose single thread
// resumes where t is. The child sees EAX=0; t sees the child's pid.
func (k *Kernel) Fork(t *Thread) (*Thread, error) {
	defer k.catch()

	parent := t.proc
	ct := k.allocThread()
	if ct == nil {
		return nil, ErrNoMemory
	}
	if k.root != parent.space {
		k.loadSpace(parent.space)
	}
	s := k.cloneSpace()

	p, err := k.newProcess(s)
	if err != nil {
		k.cleanSpace(s)
		k.freeSpace(s)
		k.objects--
		return nil, err
	}
	p.handlers = parent.handlers
	p.policy = parent.policy

	// The cloned stack segment of t already backs the child thread.
	k.attach(ct, p, t.slot)
	img := *t.Image()
	img.Caller = nil
	img.EAX = 0
	ct.state = newStateStack(k.cfg.StateDepth, img)
	t.Image().EAX = uint32(p.pid)

	k.sched.Insert(ct)
	k.tracef("kernel: fork pid=%d -> pid=%d", parent.pid, p.pid)
	return ct, nil
}

// Exit terminates every thread of p and returns the thread that runs next.
func (k *Kernel) Exit(p *Process) *Thread {
	defer k.catch()
	return k.exit(p)
}

func (k *Kernel) exit(p *Process) *Thread {
	k.tracef("kernel: exit pid=%d", p.pid)

	threads := p.Threads()
	if len(threads) == 0 {
		k.reap(p)
		return k.running
	}
	for _, t := range threads {
		k.sched.Remove(t)
	}

	next := k.running
	if next == nil || next.proc == p {
		next = k.switchThread(k.running, k.sched.Next())
	}
	for _, t := range threads {
		k.freeThread(t)
	}
	return next
}

// reap destroys a process whose last thread is gone.
func (k *Kernel) reap(p *Process) {
	for sig := range p.mail {
		for {
			m, ok := p.mail[sig].pop()
			if !ok {
				break
			}
			if m.Grant != NoFrame {
				k.frameFree(m.Grant)
			}
		}
	}

	if k.running != nil && k.running.proc == p {
		k.running = nil
	}
	if k.root == p.space {
		k.loadSpace(k.kspace)
	}
	k.cleanSpace(p.space)
	k.freeSpace(p.space)
	delete(k.procs, p.pid)
	k.tracef("kernel: reap pid=%d", p.pid)
}

// Register sets the entry point for sig in p; 0 removes it.
func (k *Kernel) Register(p *Process, sig Signal, entry uint32) {
	p.handlers[sig] = entry
}

// SetPolicy sets the asynchronous delivery policy for sig in p.
func (k *Kernel) SetPolicy(p *Process, sig Signal, pol Policy) {
	p.policy[sig] = pol
}
