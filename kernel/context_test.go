package kernel

import "testing"

func TestContextForkCopiesMemory(t *testing.T) {
	k := newTestKernel(t, 1024)
	parent := spawn(t, k, ImageBase)
	k.Switch(nil, parent)

	ctx := k.Context(parent)
	ctx.Register(sigPing, pingAddr)
	ctx.SetPolicy(sigNote, PolicyQueue)
	ctx.Map(ImageBase, PageWritable)
	if err := ctx.Write(ImageBase, []byte("fork")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	parent.Image().EIP = 0x1234

	child, err := ctx.Fork()
	if err != nil {
		t.Fatalf("Fork() error = %v", err)
	}
	cp := child.Process()
	if cp == parent.Process() || cp.Space() == parent.Process().Space() {
		t.Fatalf("Fork() child shares the parent process or space")
	}
	if got := parent.Image().EAX; got != uint32(cp.PID()) {
		t.Fatalf("parent EAX = %d, want child pid %d", got, cp.PID())
	}
	if img := child.Image(); img.EAX != 0 || img.EIP != 0x1234 || child.Depth() != 1 {
		t.Fatalf("child image = %+v depth %d, want EAX 0 at parent EIP", img.Regs, child.Depth())
	}
	if cp.Handler(sigPing) != pingAddr || cp.Policy(sigNote) != PolicyQueue {
		t.Fatalf("child signal tables not inherited")
	}
	if child.Slot() != parent.Slot() || child.Stack() != parent.Stack() {
		t.Fatalf("child slot %d stack %#x, want parent's", child.Slot(), child.Stack())
	}

	top := parent.Stack() + StackSegment - PageSize
	parentStack := k.PageGet(top).Frame()

	k.Switch(parent, child)
	buf := make([]byte, 4)
	if err := k.Context(child).Read(ImageBase, buf); err != nil || string(buf) != "fork" {
		t.Fatalf("child Read() = %q, %v, want %q", buf, err, "fork")
	}
	if e := k.PageGet(top); !e.Present() || e.Frame() == parentStack {
		t.Fatalf("child stack page = %v, want a private copy", e)
	}
}

func TestContextExitAndDrop(t *testing.T) {
	k := newTestKernel(t, 1024)
	a := spawn(t, k, ImageBase)
	b := spawn(t, k, ImageBase)
	k.Switch(nil, a)

	helper := k.AllocThread()
	if _, err := k.Bind(helper, a.Process()); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	k.Scheduler().Insert(helper)

	pid := a.Process().PID()
	next := k.Context(a).Exit()
	if next != b || k.Running() != b {
		t.Fatalf("Exit() = %p, want b", next)
	}
	if k.Process(pid) != nil || !a.Dead() || !helper.Dead() {
		t.Fatalf("Exit() left threads or the process alive")
	}

	if next := k.Context(b).Drop(); next != nil {
		t.Fatalf("Drop() of the last thread = %p, want nil", next)
	}
	if k.Processes() != 0 || k.Active() != k.BootSpace() {
		t.Fatalf("processes %d active %05x, want none and the boot space", k.Processes(), uint32(k.Active()))
	}
	if got := k.Pool().Query(); got != 9 {
		t.Fatalf("Query() after all processes ended = %d, want the 9 boot frames", got)
	}
}

func TestContextUnmap(t *testing.T) {
	k := newTestKernel(t, 512)
	a := spawn(t, k, ImageBase)
	k.Switch(nil, a)
	ctx := k.Context(a)

	ctx.Map(0x8000, PageWritable)
	ctx.Unmap(0x8000)
	if err := ctx.Write(0x8000, []byte{1}); err != ErrPageFault {
		t.Fatalf("Write() after Unmap error = %v, want ErrPageFault", err)
	}
	if ctx.PID() != a.Process().PID() || ctx.Thread() != a {
		t.Fatalf("context does not name its thread")
	}
}
