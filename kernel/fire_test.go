package kernel

import (
	"bytes"
	"errors"
	"testing"
)

const (
	sigNote Signal = 5
	sigData Signal = 6
)

const (
	noteAddr = 0x5000
	grantVA  = 0x10000
)

func TestMailboxFIFO(t *testing.T) {
	var mb mailbox
	if _, ok := mb.pop(); ok {
		t.Fatalf("pop() on empty mailbox ok = true, want false")
	}
	for i := 1; i <= 3; i++ {
		mb.push(&Mail{Signal: sigNote, Source: PID(i), Grant: NoFrame})
	}
	if got := mb.len(); got != 3 {
		t.Fatalf("len() = %d, want 3", got)
	}
	for i := 1; i <= 3; i++ {
		m, ok := mb.pop()
		if !ok || m.Source != PID(i) {
			t.Fatalf("pop() #%d = %+v, %v, want source %d", i, m, ok, i)
		}
	}
	if mb.head != nil || mb.tail != nil || mb.len() != 0 {
		t.Fatalf("drained mailbox not empty")
	}
}

func TestFireQueuePreservesOrder(t *testing.T) {
	k, server, client := pair(t, Config{})
	other := spawn(t, k, ImageBase)
	p := server.Process()
	k.SetPolicy(p, sigNote, PolicyQueue)

	for _, from := range []*Thread{client, other, client} {
		next, err := k.Fire(from, p.PID(), sigNote, 0)
		if err != nil || next != from {
			t.Fatalf("Fire() = %p, %v, want sender, nil", next, err)
		}
	}
	if got := p.Pending(sigNote); got != 3 {
		t.Fatalf("Pending() = %d, want 3", got)
	}

	want := []PID{client.Process().PID(), other.Process().PID(), client.Process().PID()}
	for i, src := range want {
		m, ok := k.Recv(p, sigNote)
		if !ok || m.Source != src || m.Signal != sigNote || m.Grant != NoFrame {
			t.Fatalf("Recv() #%d = %+v, %v, want source %d", i, m, ok, src)
		}
	}
	if _, ok := k.Recv(p, sigNote); ok {
		t.Fatalf("Recv() on drained mailbox ok = true")
	}
}

func TestFireEventSpawnsHandler(t *testing.T) {
	k, server, client := pair(t, Config{})
	p := server.Process()
	k.Register(p, sigNote, noteAddr)
	k.SetPolicy(p, sigNote, PolicyEvent)
	rq := k.Scheduler().(*RunQueue)
	queued := rq.Len()

	nt, err := k.Fire(client, p.PID(), sigNote, 0)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if nt == client || nt.Process() != p || nt.Slot() != 1 {
		t.Fatalf("Fire() = %p, want a new thread in slot 1 of the target", nt)
	}

	img := nt.Image()
	if img.EIP != noteAddr || img.EDI != uint32(sigNote) || img.ESI != uint32(client.Process().PID()) {
		t.Fatalf("handler image = %+v, want entry %#x sig %d", img.Regs, noteAddr, sigNote)
	}
	if img.EBX != uint32(NoFrame) {
		t.Fatalf("handler EBX = %#x, want no grant", img.EBX)
	}
	if img.EFLAGS&0x3000 != 0x3000 {
		t.Fatalf("handler EFLAGS = %#x, want I/O privilege bits set", img.EFLAGS)
	}
	if got := rq.Len(); got != queued+1 {
		t.Fatalf("run queue length = %d, want %d", got, queued+1)
	}
	if sig, g, src := nt.Event(); sig != sigNote || g != NoFrame || src != client.Process().PID() {
		t.Fatalf("Event() = %d, %v, %d", sig, g, src)
	}
	if got := p.Pending(sigNote); got != 0 {
		t.Fatalf("Pending() = %d, want 0", got)
	}
}

func TestFireEventWithoutHandlerQueues(t *testing.T) {
	k, server, client := pair(t, Config{})
	p := server.Process()
	k.SetPolicy(p, sigNote, PolicyEvent)

	next, err := k.Fire(client, p.PID(), sigNote, 0)
	if err != nil || next != client {
		t.Fatalf("Fire() = %p, %v, want client, nil", next, err)
	}
	if got := p.Pending(sigNote); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}
	if got := len(p.Threads()); got != 1 {
		t.Fatalf("target threads = %d, want 1", got)
	}
}

func TestFireEventWithoutThreadsQueues(t *testing.T) {
	k, server, client := pair(t, Config{ThreadObjects: 2})
	p := server.Process()
	k.Register(p, sigNote, noteAddr)
	k.SetPolicy(p, sigNote, PolicyEvent)

	if next, _ := k.Fire(client, p.PID(), sigNote, 0); next != client {
		t.Fatalf("Fire() = %p, want client", next)
	}
	if got := p.Pending(sigNote); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}
}

func TestFireAbortTerminatesTarget(t *testing.T) {
	k, server, client := pair(t, Config{})
	spid := server.Process().PID()
	orig := k.Context(client).Map(grantVA, PageWritable)

	next, err := k.Fire(client, spid, sigNote, grantVA)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if next != client || k.Running() != client {
		t.Fatalf("Fire() = %p, want client to keep running", next)
	}
	if k.Process(spid) != nil {
		t.Fatalf("target survived an aborting delivery")
	}
	if got := k.Memory().Owner(orig); got != OwnerFree {
		t.Fatalf("Owner(granted frame) = %v, want free", got)
	}
}

func TestFireUnknownTarget(t *testing.T) {
	k, _, client := pair(t, Config{})
	orig := k.Context(client).Map(grantVA, PageWritable)

	if _, err := k.Fire(client, 999, sigNote, grantVA); !errors.Is(err, ErrNoTask) {
		t.Fatalf("Fire() error = %v, want ErrNoTask", err)
	}
	if got := k.PageGet(grantVA).Frame(); got != orig {
		t.Fatalf("sender page = %05x, want untouched %05x", uint32(got), uint32(orig))
	}
}

func TestFireGrantTransfersFrame(t *testing.T) {
	k, server, client := pair(t, Config{})
	p := server.Process()
	k.SetPolicy(p, sigData, PolicyQueue)

	ctx := k.Context(client)
	ctx.Map(grantVA, PageWritable)
	if err := ctx.Write(grantVA, []byte("secret")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	orig := k.PageGet(grantVA).Frame()
	used := k.Pool().Query()

	if _, err := ctx.Fire(p.PID(), sigData, grantVA+0x123); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}

	e := k.PageGet(grantVA)
	if e.Frame() == orig || !e.Has(PagePresent|PageWritable|PageUser) {
		t.Fatalf("sender entry = %v, want a fresh writable user page", e)
	}
	if got := k.Memory().Owner(orig); got != OwnerGrant {
		t.Fatalf("Owner(granted frame) = %v, want grant", got)
	}
	if got := k.Pool().Query(); got != used+1 {
		t.Fatalf("Query() = %d, want %d", got, used+1)
	}
	buf := make([]byte, 6)
	if err := ctx.Read(grantVA, buf); err != nil || !bytes.Equal(buf, make([]byte, 6)) {
		t.Fatalf("sender Read() = %q, %v, want zeroed page", buf, err)
	}

	m, ok := k.Recv(p, sigData)
	if !ok || m.Grant != orig || m.Source != client.Process().PID() {
		t.Fatalf("Recv() = %+v, %v, want grant %05x", m, ok, uint32(orig))
	}
	k.Accept(server, m.Grant, 0x20000, PageWritable|PageUser)
	if got := k.Memory().Owner(orig); got != OwnerPage {
		t.Fatalf("Owner(accepted frame) = %v, want page", got)
	}

	k.Switch(client, server)
	if err := k.ReadVirt(0x20000, buf); err != nil || string(buf) != "secret" {
		t.Fatalf("receiver ReadVirt() = %q, %v, want %q", buf, err, "secret")
	}
}

func TestFireGrantFreedWithHandler(t *testing.T) {
	k, server, client := pair(t, Config{})
	p := server.Process()
	k.Register(p, sigData, noteAddr)
	k.SetPolicy(p, sigData, PolicyEvent)
	orig := k.Context(client).Map(grantVA, PageWritable)

	nt, err := k.Fire(client, p.PID(), sigData, grantVA)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if got := nt.Image().EBX; got != uint32(orig) {
		t.Fatalf("handler EBX = %#x, want granted frame %#x", got, uint32(orig))
	}

	k.FreeThread(nt)
	if got := k.Memory().Owner(orig); got != OwnerFree {
		t.Fatalf("Owner(unaccepted grant) = %v, want free", got)
	}
}

func TestExitFreesQueuedGrants(t *testing.T) {
	k, server, client := pair(t, Config{})
	p := server.Process()
	k.SetPolicy(p, sigData, PolicyQueue)
	orig := k.Context(client).Map(grantVA, PageWritable)

	if _, err := k.Fire(client, p.PID(), sigData, grantVA); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	k.Exit(p)
	if got := k.Memory().Owner(orig); got != OwnerFree {
		t.Fatalf("Owner(queued grant) = %v, want free", got)
	}
}

func TestDiscardAndAcceptRequireGrant(t *testing.T) {
	k, server, client := pair(t, Config{})
	p := server.Process()
	k.SetPolicy(p, sigData, PolicyQueue)
	orig := k.Context(client).Map(grantVA, PageWritable)

	if _, err := k.Fire(client, p.PID(), sigData, grantVA); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	m, _ := k.Recv(p, sigData)
	k.Discard(m.Grant)
	if got := k.Memory().Owner(orig); got != OwnerFree {
		t.Fatalf("Owner(discarded grant) = %v, want free", got)
	}

	page := k.PageGet(grantVA).Frame()
	expectHalt(t, "not in transit", func() { k.Accept(server, page, 0x20000, PageUser) })
}

func TestResolvedGrantNotFreedWithHandler(t *testing.T) {
	k, server, client := pair(t, Config{})
	p := server.Process()
	k.Register(p, sigData, noteAddr)
	k.SetPolicy(p, sigData, PolicyEvent)
	ctx := k.Context(client)
	ctx.Map(grantVA, PageWritable)

	h, err := ctx.Fire(p.PID(), sigData, grantVA)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	_, f, _ := h.Event()
	k.Discard(f)

	// The pool hands the discarded frame out again; it travels as a new
	// grant and waits in a mailbox.
	if got := ctx.Map(grantVA+PageSize, PageWritable); got != f {
		t.Fatalf("Map() = %05x, want the discarded frame %05x", uint32(got), uint32(f))
	}
	k.SetPolicy(p, sigData, PolicyQueue)
	if _, err := ctx.Fire(p.PID(), sigData, grantVA+PageSize); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}

	k.FreeThread(h)
	if got := k.Memory().Owner(f); got != OwnerGrant {
		t.Fatalf("Owner(queued grant) after handler freed = %v, want grant", got)
	}
	m, ok := k.Recv(p, sigData)
	if !ok || m.Grant != f {
		t.Fatalf("Recv() = %+v, %v, want grant %05x", m, ok, uint32(f))
	}
	k.Accept(server, m.Grant, 0x20000, PageWritable|PageUser)
	if got := k.Memory().Owner(f); got != OwnerPage {
		t.Fatalf("Owner(accepted frame) = %v, want page", got)
	}
}

func TestGrantAcceptedByOtherThread(t *testing.T) {
	k, server, client := pair(t, Config{})
	p := server.Process()
	k.Register(p, sigData, noteAddr)
	k.SetPolicy(p, sigData, PolicyEvent)
	orig := k.Context(client).Map(grantVA, PageWritable)

	h, err := k.Fire(client, p.PID(), sigData, grantVA)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	k.Accept(server, orig, 0x20000, PageWritable|PageUser)
	k.FreeThread(h)
	if got := k.Memory().Owner(orig); got != OwnerPage {
		t.Fatalf("Owner(frame accepted by slot 0) after handler freed = %v, want page", got)
	}
}

func TestFireGrantWithoutSenderHalts(t *testing.T) {
	k, server, _ := pair(t, Config{})
	k.SetPolicy(server.Process(), sigData, PolicyQueue)

	if next, err := k.Fire(nil, server.Process().PID(), sigData, 0); err != nil || next != nil {
		t.Fatalf("Fire(nil) without grant = %p, %v, want nil, nil", next, err)
	}
	expectHalt(t, "without a sending thread", func() {
		k.Fire(nil, server.Process().PID(), sigData, grantVA)
	})
}
