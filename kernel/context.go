package kernel

// Context provides thread-local access to kernel operations: the system
// call surface seen by the running thread.
type Context struct {
	k *Kernel
	t *Thread
}

// Context returns the system call context of t.
func (k *Kernel) Context(t *Thread) *Context {
	return &Context{k: k, t: t}
}

// Thread returns the calling thread.
func (c *Context) Thread() *Thread { return c.t }

// PID returns the calling thread's process id.
func (c *Context) PID() PID { return c.t.pid() }

// Regs returns the registers of the calling thread's active image.
func (c *Context) Regs() *Regs { return &c.t.Image().Regs }

// Call performs a synchronous signal call and returns the thread that runs next.
func (c *Context) Call(pid PID, sig Signal, args [4]uint32, flags CallFlags) (*Thread, error) {
	return c.k.Call(c.t, pid, sig, args, flags)
}

// Return sets the return value and returns to the caller of the active image.
func (c *Context) Return(value uint32) *Thread {
	c.t.Image().EAX = value
	return c.k.Ret(c.t)
}

// Fire delivers sig asynchronously, granting the page at grant when non-zero.
func (c *Context) Fire(pid PID, sig Signal, grant uint32) (*Thread, error) {
	return c.k.Fire(c.t, pid, sig, grant)
}

// Recv drains the oldest queued delivery of sig for the calling process.
func (c *Context) Recv(sig Signal) (Mail, bool) {
	return c.k.Recv(c.t.proc, sig)
}

// Accept maps a granted frame at va as a user page.
func (c *Context) Accept(f Frame, va uint32, flags PageFlags) {
	c.k.Accept(c.t, f, va, flags|PageUser)
}

// Register sets the handler entry for sig in the calling process.
func (c *Context) Register(sig Signal, entry uint32) {
	c.k.Register(c.t.proc, sig, entry)
}

// SetPolicy sets the delivery policy for sig in the calling process.
func (c *Context) SetPolicy(sig Signal, pol Policy) {
	c.k.SetPolicy(c.t.proc, sig, pol)
}

// Map backs va with a fresh user page.
func (c *Context) Map(va uint32, flags PageFlags) Frame {
	return c.k.MapPage(va, flags|PageUser)
}

// Unmap releases the page at va.
func (c *Context) Unmap(va uint32) {
	c.k.UnmapPage(va)
}

// Read copies user memory at va into p.
func (c *Context) Read(va uint32, p []byte) error {
	return c.k.ReadVirt(va, p)
}

// Write copies p into user memory at va.
func (c *Context) Write(va uint32, p []byte) error {
	return c.k.WriteVirt(va, p)
}

// Fork clones the calling process.
func (c *Context) Fork() (*Thread, error) {
	return c.k.Fork(c.t)
}

// Drop ends the calling thread.
func (c *Context) Drop() *Thread {
	return c.k.Drop(c.t)
}

// Exit ends the calling process.
func (c *Context) Exit() *Thread {
	return c.k.Exit(c.t.proc)
}
