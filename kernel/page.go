package kernel

import "fmt"

// Frame is the index of a 4 KiB unit of physical memory.
type Frame uint32

// NoFrame marks the absence of a frame (no grant, unmapped).
const NoFrame Frame = ^Frame(0)

// PageFlags are the permission and status bits of a page entry.
type PageFlags uint32

const (
	PagePresent  PageFlags = 0x001
	PageWritable PageFlags = 0x002
	PageUser     PageFlags = 0x004
	PageDirty    PageFlags = 0x020
	PageAccessed PageFlags = 0x040

	// PageLinked marks a frame shared with another space; teardown unmaps it
	// without freeing it.
	PageLinked PageFlags = 0x200

	// PageReal marks a frame that must never be freed (hardware mapped).
	PageReal PageFlags = 0x400

	// PageSwapped is reserved; no eviction is implemented.
	PageSwapped PageFlags = 0x800

	pageMask PageFlags = 0xC67
)

func (f PageFlags) String() string {
	b := []byte("--------")
	set := func(i int, bit PageFlags, c byte) {
		if f&bit != 0 {
			b[i] = c
		}
	}
	set(0, PagePresent, 'p')
	set(1, PageWritable, 'w')
	set(2, PageUser, 'u')
	set(3, PageDirty, 'd')
	set(4, PageAccessed, 'a')
	set(5, PageLinked, 'l')
	set(6, PageReal, 'r')
	set(7, PageSwapped, 's')
	return string(b)
}

// Page is a page-table entry: frame<<12 | flags.
type Page uint32

// MakePage formats a page entry, dropping flags outside the usable mask.
func MakePage(f Frame, flags PageFlags) Page {
	return Page(uint32(f)<<12 | uint32(flags&pageMask))
}

func (p Page) Frame() Frame         { return Frame(uint32(p) >> 12) }
func (p Page) Flags() PageFlags     { return PageFlags(p) & pageMask }
func (p Page) Present() bool        { return PageFlags(p)&PagePresent != 0 }
func (p Page) Has(f PageFlags) bool { return PageFlags(p)&f == f }

func (p Page) String() string {
	if p == 0 {
		return "<none>"
	}
	return fmt.Sprintf("%05x:%s", uint32(p.Frame()), p.Flags())
}

// pageAlign rounds va down to its page boundary.
func pageAlign(va uint32) uint32 {
	return va &^ (PageSize - 1)
}
