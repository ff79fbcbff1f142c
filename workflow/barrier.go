package workflow

import "sync"

// Barrier releases once the processed count reaches the document total.
type Barrier struct {
	total int
	once  sync.Once
	done  chan struct{}
}

// NewBarrier returns a barrier for total documents. A zero total is
// released immediately.
func NewBarrier(total int) *Barrier {
	b := &Barrier{total: total, done: make(chan struct{})}
	if total <= 0 {
		b.release()
	}
	return b
}

// Observe reports the current processed count.
func (b *Barrier) Observe(processed int) {
	if processed >= b.total {
		b.release()
	}
}

// Done is closed when every document is processed.
func (b *Barrier) Done() <-chan struct{} { return b.done }

// Released reports whether the barrier has fired.
func (b *Barrier) Released() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Total is the number of documents the barrier waits for.
func (b *Barrier) Total() int { return b.total }

func (b *Barrier) release() {
	b.once.Do(func() { close(b.done) })
}
