package app

import (
	"errors"
	"fmt"

	"rhombus/hal"
	"rhombus/internal/buildinfo"
	"rhombus/internal/cmdline"
	"rhombus/kernel"
)

const (
	defaultQuantum = 5
	defaultSteps   = 4
)

// ErrShutdown is returned by the step function once every process has exited.
var ErrShutdown = errors.New("all processes exited")

type Config struct {
	// Cmdline is the boot command line, see package cmdline.
	Cmdline string

	// Quantum is the number of timer ticks between preemptions.
	Quantum int

	// Steps is the number of instructions executed per host step.
	Steps int

	// ExitOnHalt makes the step function fail once the kernel halts.
	// Otherwise the system freezes with the halt screen up.
	ExitOnHalt bool
}

type system struct {
	h   hal.HAL
	cfg Config
	k   *kernel.Kernel
	con *console
	cpu *cpu

	ticks   <-chan uint64
	elapsed uint64
	fault   *kernel.Fault
}

// New boots the kernel on h and returns the function that advances the
// system by one host step.
func New(h hal.HAL, cfg Config) (func() error, error) {
	s, err := newSystem(h, cfg)
	if err != nil {
		return nil, err
	}
	return s.step, nil
}

func newSystem(h hal.HAL, cfg Config) (*system, error) {
	opts, err := cmdline.Parse(cfg.Cmdline)
	if err != nil {
		return nil, err
	}
	if cfg.Quantum <= 0 {
		cfg.Quantum = defaultQuantum
	}
	if cfg.Steps <= 0 {
		cfg.Steps = defaultSteps
	}
	if opts.Rounds == 0 {
		opts.Rounds = defaultRounds
	}

	s := &system{h: h, cfg: cfg, con: newConsole(h)}
	kcfg := opts.Kernel
	kcfg.Log = s.con
	k, err := kernel.New(kcfg)
	if err != nil {
		return nil, fmt.Errorf("boot: %w", err)
	}
	s.k = k
	k.SetHaltHandler(func(f *kernel.Fault) { haltScreen(h, k, f) })
	s.logf("rhombus %s", buildinfo.String())
	if cfg.Cmdline != "" {
		s.logf("cmdline: %s", cfg.Cmdline)
	}

	s.cpu = newCPU(k, s.logf)
	w := &workload{k: k, logf: s.logf, rounds: uint32(opts.Rounds)}
	w.load(s.cpu)
	if err := s.guard(func() error { return w.start(opts.Overflow) }); err != nil {
		return nil, fmt.Errorf("boot: %w", err)
	}

	if t := h.Time(); t != nil {
		s.ticks = t.Ticks()
	}
	s.con.flush()
	return s, nil
}

func (s *system) logf(format string, args ...any) {
	s.con.WriteLineString(fmt.Sprintf(format, args...))
}

func (s *system) step() error {
	if s.fault != nil {
		if s.cfg.ExitOnHalt {
			return s.fault
		}
		return nil
	}

	err := s.guard(s.run)
	s.con.flush()
	if s.fault != nil && !s.cfg.ExitOnHalt {
		return nil
	}
	return err
}

// run delivers pending timer ticks and executes up to cfg.Steps
// instructions.
func (s *system) run() error {
	s.drainTicks()
	for i := 0; i < s.cfg.Steps; i++ {
		if !s.cpu.step() && s.k.Tick() == nil {
			break
		}
	}

	if s.k.Processes() == 0 {
		s.logf("rhombus: %v: %d instructions, %d frames in use",
			ErrShutdown, s.cpu.retired, s.k.Pool().Query())
		return ErrShutdown
	}
	return nil
}

func (s *system) drainTicks() {
	for {
		select {
		case <-s.ticks:
			s.elapsed++
			if s.elapsed%uint64(s.cfg.Quantum) == 0 {
				s.k.Tick()
			}
		default:
			return
		}
	}
}

// guard runs fn and turns a kernel halt into its *kernel.Fault error.
func (s *system) guard(fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f, ok := r.(*kernel.Fault)
		if !ok {
			panic(r)
		}
		s.fault = f
		err = f
	}()
	return fn()
}
