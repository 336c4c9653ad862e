package kernel

import (
	"bytes"
	"errors"
	"testing"
)

func TestAllocSpaceSelfMap(t *testing.T) {
	k := newTestKernel(t, 256)
	s := k.AllocSpace()

	if got := k.Memory().Owner(s.Root()); got != OwnerDirectory {
		t.Fatalf("Owner(root) = %v, want directory", got)
	}
	self := Page(k.mem.word(s.Root(), selfSlot))
	if self.Frame() != s.Root() || !self.Present() {
		t.Fatalf("self map entry = %v, want present entry for %05x", self, uint32(s.Root()))
	}
	temp := Page(k.mem.word(k.Active().Root(), tempSlot))
	if temp.Frame() != s.Root() {
		t.Fatalf("temporary window = %v, want %05x", temp, uint32(s.Root()))
	}
	for i := uint32(0); i < tempSlot; i++ {
		if e := k.mem.word(s.Root(), i); e != 0 {
			t.Fatalf("directory slot %d = %#x, want empty", i, e)
		}
	}
}

func TestTempWindowEditsInactiveSpace(t *testing.T) {
	k := newTestKernel(t, 256)
	s := k.AllocSpace()
	f := k.pool.Alloc()

	k.TempSet(0x2000, MakePage(f, PagePresent|PageUser))
	if got := k.TempGet(0x2000); got.Frame() != f {
		t.Fatalf("TempGet() = %v, want frame %05x", got, uint32(f))
	}
	if got := k.PageGet(0x2000); got != 0 {
		t.Fatalf("PageGet() in boot space = %v, want none", got)
	}

	k.LoadSpace(s)
	if got := k.PageGet(0x2000); got.Frame() != f || !got.Present() {
		t.Fatalf("PageGet() after LoadSpace = %v, want frame %05x", got, uint32(f))
	}
}

func TestMapTempInvalidatesWindow(t *testing.T) {
	k := newTestKernel(t, 256)
	a := k.AllocSpace()
	b := k.AllocSpace()

	// The directory's self entry seen through the window names the
	// directory installed there.
	va := uint32(TempMap + selfSlot*PageSize + selfSlot*4)
	read := func() Frame {
		var buf [4]byte
		if err := k.ReadVirt(va, buf[:]); err != nil {
			t.Fatalf("ReadVirt(%#x) error = %v", va, err)
		}
		return Page(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24).Frame()
	}

	k.MapTemp(a)
	if got := read(); got != a.Root() {
		t.Fatalf("window self entry = %05x, want %05x", uint32(got), uint32(a.Root()))
	}
	k.MapTemp(b)
	if got := read(); got != b.Root() {
		t.Fatalf("window self entry after remap = %05x, want %05x", uint32(got), uint32(b.Root()))
	}
}

func TestCloneSpaceIndependentCopy(t *testing.T) {
	k := newTestKernel(t, 512)
	th, err := k.Spawn(ImageBase)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	parent := th.Process().Space()
	k.LoadSpace(parent)

	const va = 0x00400000
	k.MapPage(va, PageWritable|PageUser)
	if err := k.WriteVirt(va, []byte("parent")); err != nil {
		t.Fatalf("WriteVirt() error = %v", err)
	}

	child := k.CloneSpace()
	if k.TempGet(va).Frame() == k.PageGet(va).Frame() {
		t.Fatalf("clone shares the user frame at %#x", va)
	}

	k.LoadSpace(child)
	buf := make([]byte, 6)
	if err := k.ReadVirt(va, buf); err != nil || string(buf) != "parent" {
		t.Fatalf("child ReadVirt() = %q, %v, want %q", buf, err, "parent")
	}
	if err := k.WriteVirt(va, []byte("child!")); err != nil {
		t.Fatalf("child WriteVirt() error = %v", err)
	}

	k.LoadSpace(parent)
	if err := k.ReadVirt(va, buf); err != nil || string(buf) != "parent" {
		t.Fatalf("parent ReadVirt() after child write = %q, %v, want %q", buf, err, "parent")
	}
	if err := k.WriteVirt(va, []byte("PARENT")); err != nil {
		t.Fatalf("parent WriteVirt() error = %v", err)
	}

	k.LoadSpace(child)
	if err := k.ReadVirt(va, buf); err != nil || string(buf) != "child!" {
		t.Fatalf("child ReadVirt() after parent write = %q, %v, want %q", buf, err, "child!")
	}
}

func TestCloneSpaceLinksSharedRange(t *testing.T) {
	k := newTestKernel(t, 512)
	th, err := k.Spawn(ImageBase)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	parent := th.Process().Space()
	k.LoadSpace(parent)
	child := k.CloneSpace()

	for i := uint32(userSlots); i < tempSlot; i++ {
		pe, ce := k.mem.word(parent.Root(), i), k.mem.word(child.Root(), i)
		if pe != ce {
			t.Fatalf("shared slot %d: parent %#x, child %#x", i, pe, ce)
		}
	}
	self := Page(k.mem.word(child.Root(), selfSlot))
	if self.Frame() != child.Root() {
		t.Fatalf("child self map = %v, want %05x", self, uint32(child.Root()))
	}

	kernParent := k.PageGet(KernImage)
	k.LoadSpace(child)
	if got := k.PageGet(KernImage); got != kernParent {
		t.Fatalf("child kernel image entry = %v, want %v", got, kernParent)
	}
}

func TestCloneStripsLinkedAndReal(t *testing.T) {
	k := newTestKernel(t, 512)
	s := k.AllocSpace()
	k.LoadSpace(s)

	dev := k.frameNew(OwnerKernel)
	k.PageSet(0x5000, MakePage(dev, PagePresent|PageUser|PageReal))
	k.CloneSpace()

	e := k.TempGet(0x5000)
	if e.Frame() == dev || e.Flags()&(PageReal|PageLinked) != 0 {
		t.Fatalf("cloned entry = %v, want private copy without linked or real", e)
	}
	if got := k.Memory().Owner(e.Frame()); got != OwnerPage {
		t.Fatalf("Owner(cloned frame) = %v, want page", got)
	}
}

func TestCleanSpaceReleasesUserMemory(t *testing.T) {
	k := newTestKernel(t, 512)
	before := k.Pool().Query()

	th, err := k.Spawn(ImageBase)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	s := th.Process().Space()
	k.LoadSpace(s)
	k.MapPage(0x1000, PageWritable|PageUser)
	k.MapPage(0x2000, PageWritable|PageUser)
	k.MapPage(0x00800000, PageWritable|PageUser)

	dev := k.frameNew(OwnerKernel)
	k.PageSet(0x3000, MakePage(dev, PagePresent|PageUser|PageReal))

	k.CleanSpace(s)
	if got := k.Pool().Query(); got != before+2 {
		t.Fatalf("Query() after CleanSpace = %d, want %d", got, before+2)
	}
	if got := k.Memory().Owner(dev); got != OwnerKernel {
		t.Fatalf("Owner(real frame) = %v, want kernel", got)
	}
	if got := k.PageGet(0x1000); got != 0 {
		t.Fatalf("PageGet() after CleanSpace = %v, want none", got)
	}
	if got := k.PageGet(KernImage); !got.Present() {
		t.Fatalf("kernel image unmapped by CleanSpace")
	}

	k.LoadSpace(k.BootSpace())
	k.FreeSpace(s)
	if got := k.Pool().Query(); got != before+1 {
		t.Fatalf("Query() after FreeSpace = %d, want %d", got, before+1)
	}
}

func TestFreeSpaceRefusesActive(t *testing.T) {
	k := newTestKernel(t, 256)
	s := k.AllocSpace()
	k.LoadSpace(s)
	expectHalt(t, "active address space", func() { k.FreeSpace(s) })
}

func TestFreeSpaceRefusesBoot(t *testing.T) {
	k := newTestKernel(t, 256)
	s := k.AllocSpace()
	k.LoadSpace(s)
	expectHalt(t, "boot address space", func() { k.FreeSpace(k.BootSpace()) })
}

func TestMapPageReplacesAndUnmaps(t *testing.T) {
	k := newTestKernel(t, 256)
	s := k.AllocSpace()
	k.LoadSpace(s)
	used := k.Pool().Query()

	k.MapPage(0x7000, PageWritable|PageUser)
	f := k.MapPage(0x7000, PageWritable|PageUser)
	if got := k.PageGet(0x7000); got.Frame() != f {
		t.Fatalf("PageGet() = %v, want frame %05x", got, uint32(f))
	}
	// One table plus one page; the first page was released.
	if got := k.Pool().Query(); got != used+2 {
		t.Fatalf("Query() = %d, want %d", got, used+2)
	}

	k.UnmapPage(0x7000)
	if got := k.PageGet(0x7000); got != 0 {
		t.Fatalf("PageGet() after UnmapPage = %v, want none", got)
	}
	if got := k.Pool().Query(); got != used+1 {
		t.Fatalf("Query() after UnmapPage = %d, want %d", got, used+1)
	}
}

func TestVirtualAccess(t *testing.T) {
	k := newTestKernel(t, 256)
	s := k.AllocSpace()
	k.LoadSpace(s)

	var buf [8]byte
	if err := k.ReadVirt(0x9000, buf[:]); !errors.Is(err, ErrPageFault) {
		t.Fatalf("ReadVirt(unmapped) error = %v, want ErrPageFault", err)
	}

	k.MapPage(0x9000, PageUser)
	if err := k.WriteVirt(0x9000, []byte("x")); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("WriteVirt(read-only) error = %v, want ErrReadOnly", err)
	}

	// A write straddling two pages.
	k.MapPage(0xA000, PageWritable|PageUser)
	k.MapPage(0xB000, PageWritable|PageUser)
	msg := []byte("straddle")
	if err := k.WriteVirt(0xB000-4, msg); err != nil {
		t.Fatalf("WriteVirt() error = %v", err)
	}
	if err := k.ReadVirt(0xB000-4, buf[:]); err != nil || !bytes.Equal(buf[:], msg) {
		t.Fatalf("ReadVirt() = %q, %v, want %q", buf, err, msg)
	}
	if e := k.PageGet(0xB000); !e.Has(PageAccessed | PageDirty) {
		t.Fatalf("PageGet() after write = %v, want accessed and dirty", e)
	}
	if e := k.PageGet(0x9000); e.Has(PageDirty) {
		t.Fatalf("PageGet() of read-only page = %v, want clean", e)
	}
}

func TestLoadSpaceEmptiesTempWindow(t *testing.T) {
	k := newTestKernel(t, 256)
	a := k.AllocSpace()
	stale := k.AllocSpace()

	// The boot directory's window names stale when it is freed from a.
	k.LoadSpace(a)
	k.FreeSpace(stale)
	k.LoadSpace(k.BootSpace())

	expectHalt(t, "temporary map not installed", func() { k.TempGet(0x1000) })
}
