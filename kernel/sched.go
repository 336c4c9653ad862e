package kernel

// Scheduler is the run-queue collaborator. The kernel never inspects its
// policy.
type Scheduler interface {
	Insert(t *Thread)
	Remove(t *Thread)
	Next() *Thread
}

// RunQueue is a round-robin Scheduler that skips blocked threads.
type RunQueue struct {
	q []*Thread
}

func (r *RunQueue) Insert(t *Thread) {
	for _, x := range r.q {
		if x == t {
			return
		}
	}
	r.q = append(r.q, t)
}

func (r *RunQueue) Remove(t *Thread) {
	for i, x := range r.q {
		if x == t {
			r.q = append(r.q[:i], r.q[i+1:]...)
			return
		}
	}
}

// Next rotates the queue and returns the first runnable thread, or nil.
func (r *RunQueue) Next() *Thread {
	for range r.q {
		t := r.q[0]
		r.q = append(r.q[1:], t)
		if !t.blocked {
			return t
		}
	}
	return nil
}

// Len returns the number of queued threads.
func (r *RunQueue) Len() int { return len(r.q) }

// Tick is the timer interrupt: the running thread is preempted in favour of
// the scheduler's next choice. It returns the thread that runs next.
func (k *Kernel) Tick() *Thread {
	defer k.catch()

	next := k.sched.Next()
	if next == nil || next == k.running {
		return k.running
	}
	return k.switchThread(k.running, next)
}
