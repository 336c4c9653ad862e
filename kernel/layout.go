package kernel

// Virtual memory layout of every address space.
//
//	0x00000000 - 0xF7FFFFFF: userspace   (user, read-write, cloned)
//	    0x00001000: process image
//	    0xF0000000: thread stack segments
//	0xF8000000 - 0xFEFFFFFF: libspace    (user, readonly, linked)
//	    0xFC000000: libsys image
//	0xFF000000 - 0xFFFFFFFF: kernelspace (kernel, linked)
//	    0xFF100000: kernel image
//	    0xFF800000: temporary map
//	    0xFFC00000: resident (self) map
const (
	PageSize  = 0x1000
	TableSpan = 0x400000 // bytes covered by one second-level table

	entriesPerTable = 1024

	ImageBase  = 0x00001000
	StackSpace = 0xF0000000
	LibSpace   = 0xF8000000
	LibSysBase = 0xFC000000
	KernSpace  = 0xFF000000
	KernImage  = 0xFF100000
	TempMap    = 0xFF800000
	SelfMap    = 0xFFC00000

	tempSlot  = TempMap >> 22
	selfSlot  = SelfMap >> 22
	userSlots = LibSpace >> 22
)

const (
	// MaxThreads is the size of a process thread table.
	MaxThreads = 128

	// StackSegment is the virtual span reserved for one thread stack.
	StackSegment = 0x20000

	// StackPages is the number of pages mapped at the top of a segment by Bind.
	StackPages = 16

	// FXSize is the size of a saved floating-point context.
	FXSize = 512
)

// stackBase returns the base of the stack segment for thread slot i.
func stackBase(i int) uint32 {
	return StackSpace + uint32(i)*StackSegment
}
