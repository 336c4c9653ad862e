package kernel

import (
	"errors"
	"fmt"
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
}

// Config describes the simulated machine and the kernel's limits.
type Config struct {
	// Frames is the size of physical memory in 4 KiB frames.
	Frames uint32

	// StateDepth is the number of images a thread state stack holds.
	StateDepth int

	// ThreadObjects caps the number of live thread structures.
	ThreadObjects int

	Trace bool
	Log   Logger
	Sched Scheduler
}

const (
	DefaultFrames        = 4096
	DefaultStateDepth    = 32
	DefaultThreadObjects = 1024

	minFrames     = 64
	minStateDepth = stateReserve + 2

	kernImagePages = 4
	libSysPages    = 2
)

var ErrConfig = errors.New("invalid kernel config")

// Kernel is the kernel core: the frame pool, physical memory, the address
// space manager, the process table and the signal transport. It is not safe
// for concurrent use; one goroutine plays the single CPU.
type Kernel struct {
	cfg   Config
	pool  *Pool
	mem   *Memory
	sched Scheduler

	root   Space // hardware translation root
	kspace Space // boot address space, never freed
	tlb    map[uint32]Page
	fpu    fpuState

	procs   map[PID]*Process
	lastPID PID
	running *Thread
	objects int

	// held maps a grant delivered with an event to its handler thread
	// until the grant is accepted or discarded.
	held map[Frame]*Thread

	halt haltState
}

// New boots a kernel: it sizes the frame pool, builds the boot address space
// and maps the kernel and library images into the shared range.
func New(cfg Config) (*Kernel, error) {
	if cfg.Frames == 0 {
		cfg.Frames = DefaultFrames
	}
	if cfg.StateDepth == 0 {
		cfg.StateDepth = DefaultStateDepth
	}
	if cfg.ThreadObjects == 0 {
		cfg.ThreadObjects = DefaultThreadObjects
	}
	if cfg.Frames < minFrames {
		return nil, fmt.Errorf("%w: %d frames, need at least %d", ErrConfig, cfg.Frames, minFrames)
	}
	if cfg.StateDepth < minStateDepth {
		return nil, fmt.Errorf("%w: state depth %d, need at least %d", ErrConfig, cfg.StateDepth, minStateDepth)
	}
	if cfg.Sched == nil {
		cfg.Sched = &RunQueue{}
	}

	k := &Kernel{
		cfg:   cfg,
		pool:  NewPool(cfg.Frames),
		mem:   newMemory(cfg.Frames),
		sched: cfg.Sched,
		root:  Space(NoFrame),
		tlb:   make(map[uint32]Page),
		procs: make(map[PID]*Process),
		held:  make(map[Frame]*Thread),
	}
	k.fpu.ts = true

	k.kspace = k.newDirectory()
	k.loadSpace(k.kspace)

	cur := k.cur()
	for i := uint32(0); i < kernImagePages; i++ {
		cur.set(KernImage+i*PageSize, MakePage(k.frameNew(OwnerKernel), PagePresent|PageWritable|PageReal))
	}
	for i := uint32(0); i < libSysPages; i++ {
		cur.set(LibSysBase+i*PageSize, MakePage(k.frameNew(OwnerKernel), PagePresent|PageUser|PageReal))
	}

	k.logf("kernel: boot: %d frames, %d in use", k.pool.Capacity(), k.pool.Query())
	return k, nil
}

// Pool returns the physical frame pool.
func (k *Kernel) Pool() *Pool { return k.pool }

// Memory returns the physical memory arena.
func (k *Kernel) Memory() *Memory { return k.mem }

// Running returns the thread currently executing, or nil when idle.
func (k *Kernel) Running() *Thread { return k.running }

// Active returns the address space installed in the translation root.
func (k *Kernel) Active() Space { return k.root }

// BootSpace returns the kernel's boot address space.
func (k *Kernel) BootSpace() Space { return k.kspace }

// Process returns the process with the given pid.
func (k *Kernel) Process(pid PID) *Process { return k.procs[pid] }

// Processes returns the number of live processes.
func (k *Kernel) Processes() int { return len(k.procs) }

// Scheduler returns the run-queue collaborator.
func (k *Kernel) Scheduler() Scheduler { return k.sched }

func (k *Kernel) frameNew(o Owner) Frame {
	f := k.pool.Alloc()
	k.mem.tag(f, o)
	return f
}

func (k *Kernel) frameFree(f Frame) {
	k.mem.release(f)
	k.pool.Free(f)
}

func (k *Kernel) logf(format string, args ...any) {
	if k.cfg.Log == nil {
		return
	}
	k.cfg.Log.WriteLineString(fmt.Sprintf(format, args...))
}

func (k *Kernel) tracef(format string, args ...any) {
	if !k.cfg.Trace {
		return
	}
	k.logf(format, args...)
}
