package kernel

// Mail is a queued asynchronous delivery.
type Mail struct {
	Signal Signal
	Grant  Frame
	Source PID

	next *Mail
}

// mailbox is an unbounded FIFO: appended at the tail, drained from the head.
type mailbox struct {
	head *Mail
	tail *Mail
	n    int
}

func (mb *mailbox) push(m *Mail) {
	m.next = nil
	if mb.head == nil {
		mb.head = m
	} else {
		mb.tail.next = m
	}
	mb.tail = m
	mb.n++
}

func (mb *mailbox) pop() (Mail, bool) {
	m := mb.head
	if m == nil {
		return Mail{}, false
	}
	mb.head = m.next
	if mb.head == nil {
		mb.tail = nil
	}
	mb.n--
	out := *m
	out.next = nil
	return out, true
}

func (mb *mailbox) len() int { return mb.n }
