package app

import (
	"bytes"
	"fmt"

	"rhombus/kernel"
)

// Signals used by the demo programs.
const (
	sigEcho kernel.Signal = 0x10 // synchronous request
	sigLog  kernel.Signal = 0x11 // queued, carries a granted page
	sigNote kernel.Signal = 0x12 // event, runs on a fresh thread
	sigQuit kernel.Signal = 0x13 // default policy: terminates the receiver
	sigDeep kernel.Signal = 0x14 // recursive self call
)

// Code addresses of the demo programs.
const (
	textServer     = kernel.ImageBase + 0x000
	textServe      = kernel.ImageBase + 0x010
	textEcho       = kernel.ImageBase + 0x020
	textNote       = kernel.ImageBase + 0x030
	textClient     = kernel.ImageBase + 0x100
	textClientLoop = kernel.ImageBase + 0x110
	textForker     = kernel.ImageBase + 0x200
	textForked     = kernel.ImageBase + 0x210
	textDeep       = kernel.ImageBase + 0x300
	textRecurse    = kernel.ImageBase + 0x310
	textReserve    = kernel.ImageBase + 0x320
)

const (
	bufVA  = 0x00400000 // client and forker scratch page
	mailVA = 0x00800000 // where the server maps granted pages

	defaultRounds = 9
)

// workload is a set of user programs exercising the kernel transport: an
// echo server, a client driving calls, queued grants and events against it,
// a process that forks, and optionally a process that recurses until its
// state stack overflows.
type workload struct {
	k      *kernel.Kernel
	logf   func(format string, args ...any)
	rounds uint32
}

func (w *workload) load(c *cpu) {
	c.load(textServer, w.server)
	c.load(textServe, w.serve)
	c.load(textEcho, w.echo)
	c.load(textNote, w.note)
	c.load(textClient, w.client)
	c.load(textClientLoop, w.clientLoop)
	c.load(textForker, w.forker)
	c.load(textForked, w.forked)
	c.load(textDeep, w.deep)
	c.load(textRecurse, w.recurse)
	c.load(textReserve, w.reserve)
}

// start spawns the demo processes.
func (w *workload) start(overflow bool) error {
	server, err := w.k.Spawn(textServer)
	if err != nil {
		return fmt.Errorf("spawn server: %w", err)
	}
	client, err := w.k.Spawn(textClient)
	if err != nil {
		return fmt.Errorf("spawn client: %w", err)
	}
	client.Image().ECX = uint32(server.Process().PID())

	if _, err := w.k.Spawn(textForker); err != nil {
		return fmt.Errorf("spawn forker: %w", err)
	}
	if overflow {
		if _, err := w.k.Spawn(textDeep); err != nil {
			return fmt.Errorf("spawn deep: %w", err)
		}
	}
	return nil
}

func (w *workload) server(c *kernel.Context) {
	c.Register(sigEcho, textEcho)
	c.SetPolicy(sigLog, kernel.PolicyQueue)
	c.Register(sigNote, textNote)
	c.SetPolicy(sigNote, kernel.PolicyEvent)
	c.Regs().EIP = textServe
	w.logf("server: pid %d ready", c.PID())
}

// serve drains one queued log message per instruction.
func (w *workload) serve(c *kernel.Context) {
	m, ok := c.Recv(sigLog)
	if !ok {
		return
	}
	if m.Grant == kernel.NoFrame {
		w.logf("server: empty message from pid %d", m.Source)
		return
	}

	c.Accept(m.Grant, mailVA, kernel.PageWritable)
	buf := make([]byte, 48)
	if err := c.Read(mailVA, buf); err != nil {
		w.logf("server: read message: %v", err)
	}
	c.Unmap(mailVA)
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	w.logf("server: message from pid %d: %q", m.Source, buf)
}

func (w *workload) echo(c *kernel.Context) {
	r := c.Regs()
	w.logf("server: echo %d from pid %d", r.EAX, r.ESI)
	c.Return(kernel.RetUnblock)
}

func (w *workload) note(c *kernel.Context) {
	sig, _, src := c.Thread().Event()
	w.logf("server: note %#x from pid %d on slot %d", uint8(sig), src, c.Thread().Slot())
	c.Drop()
}

func (w *workload) client(c *kernel.Context) {
	c.Map(bufVA, kernel.PageWritable)
	r := c.Regs()
	r.EBX = 0
	r.EIP = textClientLoop
}

// clientLoop runs one request round per instruction: EBX counts rounds and
// ECX holds the server pid.
func (w *workload) clientLoop(c *kernel.Context) {
	r := c.Regs()
	n, server := r.EBX, kernel.PID(r.ECX)
	if n >= w.rounds {
		w.logf("client: done after %d rounds", n)
		if _, err := c.Fire(server, sigQuit, 0); err != nil {
			w.logf("client: quit: %v", err)
		}
		c.Exit()
		return
	}
	r.EBX++

	var err error
	switch n % 3 {
	case 0:
		_, err = c.Call(server, sigEcho, [4]uint32{n}, kernel.FlagBlock)
	case 1:
		msg := fmt.Sprintf("round %d from pid %d", n, c.PID())
		if err = c.Write(bufVA, append([]byte(msg), 0)); err == nil {
			_, err = c.Fire(server, sigLog, bufVA)
		}
	case 2:
		_, err = c.Fire(server, sigNote, 0)
	}
	if err != nil {
		w.logf("client: round %d: %v", n, err)
	}
}

func (w *workload) forker(c *kernel.Context) {
	c.Map(bufVA, kernel.PageWritable)
	msg := fmt.Sprintf("written by pid %d", c.PID())
	if err := c.Write(bufVA, append([]byte(msg), 0)); err != nil {
		w.logf("forker: %v", err)
	}
	c.Regs().EIP = textForked
	if _, err := c.Fork(); err != nil {
		w.logf("forker: fork: %v", err)
		c.Exit()
	}
}

func (w *workload) forked(c *kernel.Context) {
	if child := c.Regs().EAX; child != 0 {
		w.logf("forker: pid %d forked pid %d", c.PID(), child)
		c.Exit()
		return
	}

	buf := make([]byte, 32)
	if err := c.Read(bufVA, buf); err != nil {
		w.logf("forker: child read: %v", err)
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	w.logf("forker: child pid %d sees %q", c.PID(), buf)
	c.Exit()
}

func (w *workload) deep(c *kernel.Context) {
	c.Register(sigDeep, textRecurse)
	c.Register(kernel.SigImage, textReserve)
	w.logf("deep: pid %d recursing", c.PID())
	w.recurse(c)
}

func (w *workload) recurse(c *kernel.Context) {
	c.Call(c.PID(), sigDeep, [4]uint32{uint32(c.Thread().Depth())}, kernel.FlagNoErr)
}

func (w *workload) reserve(c *kernel.Context) {
	w.logf("deep: state stack reserve entered at depth %d", c.Thread().Depth())
	w.recurse(c)
}
