package syncprim

import (
	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
	"github.com/rvos/rvkernel/pkg/kernel/waitqueue"
)

// Completion is a count of pending completions plus a wait queue.
type Completion struct {
	spin  *spinlock.SpinLock
	count atomic.Word
	tq    waitqueue.TQ
}

// NewCompletion returns a completion with zero pending completions.
func NewCompletion() *Completion {
	return &Completion{spin: spinlock.New("completion")}
}

// Complete increments the counter and wakes one waiter.
func (c *Completion) Complete(h *spinlock.Hart) {
	c.spin.Lock(h)
	atomic.FetchAdd(&c.count, 1)
	c.tq.Wakeup()
	c.spin.Unlock(h)
}

// completeAllSaturate is the sentinel count CompleteAll saturates to.
const completeAllSaturate atomic.Word = 1 << 30

// CompleteAll saturates the counter and wakes every waiter. Waiters are
// moved to a temporary queue in one bulk transfer *before* the internal
// lock is released, then woken outside the lock, avoiding a lock convoy
// when many threads race to reacquire c's lock from within their own
// sleep callback.
func (c *Completion) CompleteAll(h *spinlock.Hart) {
	var tmp waitqueue.TQ
	c.spin.Lock(h)
	atomic.StoreRelease(&c.count, completeAllSaturate)
	c.tq.BulkMove(&tmp)
	c.spin.Unlock(h)
	tmp.WakeupAll()
}

// Wait consumes one unit of completion, blocking w if none is pending.
func (c *Completion) Wait(h *spinlock.Hart, w waitqueue.Waiter, state int) int {
	spinlock.AssertNoSpinlock(h)
	for {
		c.spin.Lock(h)
		if atomic.LoadAcquire(&c.count) > 0 {
			atomic.FetchAdd(&c.count, -1)
			c.spin.Unlock(h)
			return 0
		}
		errc, _ := waitqueue.WaitInStateCB(&c.tq, w,
			spinlock.SleepCB(c.spin, h), spinlock.WakeCB(c.spin, h), nil, state)
		c.spin.Unlock(h)
		if errc != 0 {
			return errc
		}
		// Woken: either Complete decremented nothing for us (raced) or
		// CompleteAll saturated the counter; loop to consume our unit.
	}
}

// Count returns the current pending-completion count, for tests.
func (c *Completion) Count() atomic.Word { return atomic.LoadAcquire(&c.count) }
