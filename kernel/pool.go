package kernel

import "math/bits"

const (
	poolBlockSlots = 1024
	poolWords      = poolBlockSlots / 32
)

type poolBlock struct {
	word  [poolWords]uint32
	first uint32 // never above the lowest free slot
	free  uint32
	upper uint32
}

// Pool is a bitmap allocator over frame indices, grouped in blocks of 1024
// slots. Allocation is first-fit by index.
type Pool struct {
	blocks []poolBlock
}

// NewPool creates a pool covering size frames.
func NewPool(size uint32) *Pool {
	p := &Pool{}
	if size == 0 {
		return p
	}

	n := (size-1)/poolBlockSlots + 1
	extra := size - (n-1)*poolBlockSlots
	p.blocks = make([]poolBlock, n)
	for i := range p.blocks {
		b := &p.blocks[i]
		b.upper = poolBlockSlots
		if uint32(i) == n-1 {
			b.upper = extra
		}
		b.free = b.upper

		// Slots past the block's capacity are permanently used.
		for s := b.upper; s < poolBlockSlots; s++ {
			b.word[s/32] |= 1 << (s % 32)
		}
	}
	return p
}

// Alloc returns the lowest free frame. Exhaustion is fatal.
func (p *Pool) Alloc() Frame {
	for i := range p.blocks {
		b := &p.blocks[i]
		if b.free == 0 {
			continue
		}

		for w := b.first / 32; w < poolWords; w++ {
			if b.word[w] == ^uint32(0) {
				continue
			}

			bit := uint32(bits.TrailingZeros32(^b.word[w]))
			slot := w<<5 | bit
			b.word[w] |= 1 << bit
			b.free--
			if b.first == slot {
				b.first++
			}
			return Frame(uint32(i)<<10 | slot)
		}
	}

	fault("pool allocator full (%d frames in use)", p.Query())
	return NoFrame
}

// Free returns f to the pool. Freeing a free frame is not detected.
func (p *Pool) Free(f Frame) {
	i := uint32(f) >> 10
	if i >= uint32(len(p.blocks)) {
		fault("pool free of frame %#x outside pool", uint32(f))
	}
	slot := uint32(f) % poolBlockSlots

	b := &p.blocks[i]
	b.word[slot/32] &^= 1 << (slot % 32)
	b.first = min(b.first, slot)
	b.free++
}

// Query returns the number of frames in use.
func (p *Pool) Query() uint32 {
	var used uint32
	for i := range p.blocks {
		used += p.blocks[i].upper - p.blocks[i].free
	}
	return used
}

// Capacity returns the number of frames the pool covers.
func (p *Pool) Capacity() uint32 {
	var n uint32
	for i := range p.blocks {
		n += p.blocks[i].upper
	}
	return n
}
