package kernel

import "errors"

// Regs is a saved register snapshot.
type Regs struct {
	EAX, EBX, ECX, EDX uint32
	ESI, EDI, EBP, ESP uint32
	EIP, EFLAGS        uint32
}

// Image is one level of a thread's nested synchronous calls: the registers
// to resume with and the thread that called into this level.
type Image struct {
	Regs
	Caller *Thread
}

// stateReserve is the number of images kept free for overflow escalation.
const stateReserve = 2

var (
	errStateOverflow  = errors.New("task state stack overflow")
	errStateUnderflow = errors.New("task state stack underflow")
)

// stateStack is a bounded LIFO of images. The bottom image is the thread's
// own context and is never popped.
type stateStack struct {
	images []Image
}

func newStateStack(depth int, base Image) stateStack {
	s := stateStack{images: make([]Image, 1, depth)}
	s.images[0] = base
	return s
}

func (s *stateStack) top() *Image {
	return &s.images[len(s.images)-1]
}

func (s *stateStack) depth() int { return len(s.images) }

// free returns the number of images that can still be pushed.
func (s *stateStack) free() int { return cap(s.images) - len(s.images) }

// push copies the top image one level up and returns the new top.
func (s *stateStack) push() (*Image, error) {
	if s.free() == 0 {
		return nil, errStateOverflow
	}
	s.images = append(s.images, *s.top())
	return s.top(), nil
}

func (s *stateStack) pop() error {
	if len(s.images) <= 1 {
		return errStateUnderflow
	}
	s.images[len(s.images)-1] = Image{}
	s.images = s.images[:len(s.images)-1]
	return nil
}
