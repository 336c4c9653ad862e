package kernel

import "encoding/binary"

// Owner tags what a physical frame currently backs. Every frame has exactly
// one owner; ownership only moves through allocation, free or a grant.
type Owner uint8

const (
	OwnerFree Owner = iota
	OwnerDirectory
	OwnerTable
	OwnerPage
	OwnerGrant
	OwnerKernel
)

func (o Owner) String() string {
	switch o {
	case OwnerFree:
		return "free"
	case OwnerDirectory:
		return "directory"
	case OwnerTable:
		return "table"
	case OwnerPage:
		return "page"
	case OwnerGrant:
		return "grant"
	case OwnerKernel:
		return "kernel"
	default:
		return "unknown"
	}
}

// Memory is the physical memory arena, addressed by frame index. Frame
// contents are materialized on first touch and dropped when freed.
type Memory struct {
	frames []*[PageSize]byte
	owner  []Owner
}

func newMemory(n uint32) *Memory {
	return &Memory{
		frames: make([]*[PageSize]byte, n),
		owner:  make([]Owner, n),
	}
}

// Owner returns the ownership tag of f.
func (m *Memory) Owner(f Frame) Owner {
	m.check(f)
	return m.owner[f]
}

// Count returns the number of frames carrying tag o.
func (m *Memory) Count(o Owner) int {
	n := 0
	for _, t := range m.owner {
		if t == o {
			n++
		}
	}
	return n
}

// Bytes returns the contents of f.
func (m *Memory) Bytes(f Frame) []byte {
	return m.frame(f)[:]
}

func (m *Memory) check(f Frame) {
	if uint64(f) >= uint64(len(m.frames)) {
		fault("physical access to frame %#x outside memory", uint32(f))
	}
}

func (m *Memory) frame(f Frame) *[PageSize]byte {
	m.check(f)
	if m.frames[f] == nil {
		m.frames[f] = new([PageSize]byte)
	}
	return m.frames[f]
}

func (m *Memory) tag(f Frame, o Owner) {
	m.check(f)
	m.owner[f] = o
}

func (m *Memory) release(f Frame) {
	m.check(f)
	m.frames[f] = nil
	m.owner[f] = OwnerFree
}

func (m *Memory) clear(f Frame) {
	*m.frame(f) = [PageSize]byte{}
}

func (m *Memory) copyFrame(dst, src Frame) {
	*m.frame(dst) = *m.frame(src)
}

func (m *Memory) word(f Frame, i uint32) uint32 {
	return binary.LittleEndian.Uint32(m.frame(f)[i*4:])
}

func (m *Memory) setWord(f Frame, i uint32, v uint32) {
	binary.LittleEndian.PutUint32(m.frame(f)[i*4:], v)
}
