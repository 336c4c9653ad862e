//go:build !tinygo

package hal

import "time"

// hostTime turns wall-clock progress, sampled by the runner, into timer
// ticks of a fixed period.
type hostTime struct {
	ch     chan uint64
	seq    uint64
	period time.Duration

	last time.Time
	acc  time.Duration
}

func newHostTime(period time.Duration) *hostTime {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	return &hostTime{ch: make(chan uint64, 1024), period: period}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// advance emits one tick per whole period elapsed since the previous call.
// The first call emits a single tick.
func (t *hostTime) advance(now time.Time) {
	if t.last.IsZero() {
		t.last = now
		t.emit(1)
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now
	n := uint64(t.acc / t.period)
	if n == 0 {
		return
	}
	t.acc %= t.period
	t.emit(n)
}

func (t *hostTime) emit(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
