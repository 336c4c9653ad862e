package kernel

import "errors"

// Space is an address space, named by the frame holding its page directory.
type Space Frame

// Root returns the frame of the space's page directory.
func (s Space) Root() Frame { return Frame(s) }

var (
	ErrPageFault = errors.New("page fault")
	ErrReadOnly  = errors.New("write to read-only page")
)

// tables addresses the paging structures of the active space, or of the
// space installed in the temporary window.
type tables struct {
	k    *Kernel
	temp bool
}

func (k *Kernel) cur() tables { return tables{k: k} }
func (k *Kernel) tmp() tables { return tables{k: k, temp: true} }

func (v tables) root() Frame {
	if !v.temp {
		return v.k.root.Root()
	}
	e := Page(v.k.mem.word(v.k.root.Root(), tempSlot))
	if !e.Present() {
		fault("temporary map not installed")
	}
	return e.Frame()
}

func (v tables) dir(slot uint32) Page {
	return Page(v.k.mem.word(v.root(), slot))
}

func (v tables) setDir(slot uint32, p Page) {
	v.k.mem.setWord(v.root(), slot, uint32(p))
}

func (v tables) get(va uint32) Page {
	d := v.dir(va >> 22)
	if !d.Present() {
		return 0
	}
	return Page(v.k.mem.word(d.Frame(), (va>>12)%entriesPerTable))
}

// set writes the entry for va, creating its second-level table on demand.
func (v tables) set(va uint32, p Page) {
	slot := va >> 22
	d := v.dir(slot)
	if !d.Present() {
		if p == 0 {
			return
		}
		t := v.k.frameNew(OwnerTable)
		v.k.mem.clear(t)
		flags := PagePresent | PageWritable
		if slot < KernSpace>>22 {
			flags |= PageUser
		}
		d = MakePage(t, flags)
		v.setDir(slot, d)
	}
	v.k.mem.setWord(d.Frame(), (va>>12)%entriesPerTable, uint32(p))
	if !v.temp || v.root() == v.k.root.Root() {
		v.k.invlpg(va)
	}
}

// newDirectory allocates a zeroed page directory with its self map.
func (k *Kernel) newDirectory() Space {
	f := k.frameNew(OwnerDirectory)
	k.mem.clear(f)
	k.mem.setWord(f, selfSlot, uint32(MakePage(f, PagePresent|PageWritable)))
	return Space(f)
}

// AllocSpace allocates an empty address space and maps it into the
// temporary window.
func (k *Kernel) AllocSpace() Space {
	defer k.catch()
	return k.allocSpace()
}

func (k *Kernel) allocSpace() Space {
	s := k.newDirectory()
	k.mapTemp(s)
	return s
}

// MapTemp installs s in the temporary window so its tables can be edited
// without switching the active space.
func (k *Kernel) MapTemp(s Space) {
	defer k.catch()
	k.mapTemp(s)
}

func (k *Kernel) mapTemp(s Space) {
	k.mem.setWord(k.root.Root(), tempSlot, uint32(MakePage(s.Root(), PagePresent|PageWritable)))
	for i := uint32(0); i < entriesPerTable; i++ {
		k.invlpg(TempMap + i*PageSize)
	}
}

// CloneSpace copies the user range of the active space into a new space and
// links its shared range. The new space is left in the temporary window.
func (k *Kernel) CloneSpace() Space {
	defer k.catch()
	return k.cloneSpace()
}

func (k *Kernel) cloneSpace() Space {
	dst := k.allocSpace()
	cur, tmp := k.cur(), k.tmp()

	for i := uint32(0); i < userSlots; i++ {
		if !cur.dir(i).Present() {
			continue
		}
		t := k.frameNew(OwnerTable)
		k.mem.clear(t)
		tmp.setDir(i, MakePage(t, PagePresent|PageUser|PageWritable))

		for j := uint32(0); j < entriesPerTable; j++ {
			va := i<<22 | j<<12
			e := cur.get(va)
			if !e.Present() {
				continue
			}
			f := k.frameNew(OwnerPage)
			k.mem.copyFrame(f, e.Frame())
			tmp.set(va, MakePage(f, e.Flags()&^(PageLinked|PageReal)))
		}
	}

	k.linkShared(tmp)
	k.tracef("kernel: clone %05x -> %05x", uint32(k.root), uint32(dst))
	return dst
}

// linkShared links the active space's shared range (except the temporary
// and self maps) into the space in the temporary window.
func (k *Kernel) linkShared(tmp tables) {
	cur := k.cur()
	for i := uint32(userSlots); i < tempSlot; i++ {
		if d := cur.dir(i); d.Present() {
			tmp.setDir(i, d)
		}
	}
}

// CleanSpace frees all user memory of s. The shared range is untouched.
func (k *Kernel) CleanSpace(s Space) {
	defer k.catch()
	k.cleanSpace(s)
}

func (k *Kernel) cleanSpace(s Space) {
	k.mapTemp(s)
	tmp := k.tmp()
	for i := uint32(0); i < userSlots; i++ {
		d := tmp.dir(i)
		if !d.Present() {
			continue
		}
		for j := uint32(0); j < entriesPerTable; j++ {
			if e := Page(k.mem.word(d.Frame(), j)); e.Present() {
				k.releasePage(e)
			}
		}
		k.frameFree(d.Frame())
		tmp.setDir(i, 0)
	}
	if s == k.root {
		k.flush()
	}
}

// FreeSpace releases the directory of s. User memory must already be clean.
func (k *Kernel) FreeSpace(s Space) {
	defer k.catch()
	k.freeSpace(s)
}

func (k *Kernel) freeSpace(s Space) {
	if s == k.root {
		fault("free of active address space %05x", uint32(s))
	}
	if s == k.kspace {
		fault("free of boot address space")
	}
	if Page(k.mem.word(k.root.Root(), tempSlot)).Frame() == s.Root() {
		k.mem.setWord(k.root.Root(), tempSlot, 0)
		k.flush()
	}
	k.frameFree(s.Root())
}

// LoadSpace makes s the active address space.
func (k *Kernel) LoadSpace(s Space) {
	defer k.catch()
	k.loadSpace(s)
}

func (k *Kernel) loadSpace(s Space) {
	// The window may still name a directory freed while s was inactive.
	k.mem.setWord(s.Root(), tempSlot, 0)
	k.root = s
	k.flush()
}

// releasePage frees the frame behind e unless it is linked or real.
func (k *Kernel) releasePage(e Page) {
	if e.Flags()&(PageLinked|PageReal) != 0 {
		return
	}
	k.frameFree(e.Frame())
}

// PageGet returns the active space's entry for va.
func (k *Kernel) PageGet(va uint32) Page {
	defer k.catch()
	return k.cur().get(va)
}

// PageSet writes the active space's entry for va.
func (k *Kernel) PageSet(va uint32, p Page) {
	defer k.catch()
	k.cur().set(va, p)
}

// TempGet returns the entry for va of the space in the temporary window.
// The window is emptied by every LoadSpace; using it before the next MapTemp
// halts.
func (k *Kernel) TempGet(va uint32) Page {
	defer k.catch()
	return k.tmp().get(va)
}

// TempSet writes the entry for va of the space in the temporary window.
// Like TempGet it needs a MapTemp since the last LoadSpace.
func (k *Kernel) TempSet(va uint32, p Page) {
	defer k.catch()
	k.tmp().set(va, p)
}

// MapPage backs va in the active space with a fresh frame.
func (k *Kernel) MapPage(va uint32, flags PageFlags) Frame {
	defer k.catch()
	return k.mapPage(va, flags)
}

func (k *Kernel) mapPage(va uint32, flags PageFlags) Frame {
	cur := k.cur()
	if old := cur.get(va); old.Present() {
		k.releasePage(old)
	}
	f := k.frameNew(OwnerPage)
	k.mem.clear(f)
	cur.set(va, MakePage(f, flags|PagePresent))
	return f
}

// UnmapPage removes the mapping of va from the active space.
func (k *Kernel) UnmapPage(va uint32) {
	defer k.catch()
	cur := k.cur()
	if e := cur.get(va); e.Present() {
		k.releasePage(e)
		cur.set(va, 0)
	}
}

func (k *Kernel) invlpg(va uint32) {
	delete(k.tlb, va>>12)
}

func (k *Kernel) flush() {
	clear(k.tlb)
}

// translate resolves va through the TLB, walking the active tables on a miss.
func (k *Kernel) translate(va uint32) Page {
	if e, ok := k.tlb[va>>12]; ok {
		return e
	}
	e := k.cur().get(va)
	if e.Present() {
		k.tlb[va>>12] = e
	}
	return e
}

// ReadVirt copies memory at va in the active space into p.
func (k *Kernel) ReadVirt(va uint32, p []byte) error {
	defer k.catch()
	return k.access(va, p, false)
}

// WriteVirt copies p into memory at va in the active space.
func (k *Kernel) WriteVirt(va uint32, p []byte) error {
	defer k.catch()
	return k.access(va, p, true)
}

func (k *Kernel) access(va uint32, p []byte, write bool) error {
	for len(p) > 0 {
		e := k.translate(va)
		if !e.Present() {
			return ErrPageFault
		}
		if write && !e.Has(PageWritable) {
			return ErrReadOnly
		}

		mark := PageAccessed
		if write {
			mark |= PageDirty
		}
		if !e.Has(mark) {
			k.cur().set(va, e|Page(mark))
		}

		off := va % PageSize
		buf := k.mem.Bytes(e.Frame())[off:]
		var n int
		if write {
			n = copy(buf, p)
		} else {
			n = copy(p, buf)
		}
		p = p[n:]
		va += uint32(n)
	}
	return nil
}
