package syncprim

import (
	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
	"github.com/rvos/rvkernel/pkg/kernel/waitqueue"
)

// Semaphore is a POSIX-style counting semaphore: trywait/wait/post on a
// spinlock plus a tq, like its siblings in this package. Post may raise
// the count above the initial value — the count is unbounded upward,
// which is what distinguishes a counting semaphore from a
// capacity-bounded one.
type Semaphore struct {
	spin  *spinlock.SpinLock
	count atomic.Word
	tq    waitqueue.TQ
}

// NewSemaphore returns a semaphore initialized to count.
func NewSemaphore(count int64) *Semaphore {
	s := &Semaphore{spin: spinlock.New("semaphore")}
	atomic.StoreRelease(&s.count, count)
	return s
}

// TryWait consumes one unit without blocking, reporting success.
func (s *Semaphore) TryWait() bool {
	return atomic.OperCond(&s.count,
		func(old atomic.Word) bool { return old > 0 },
		func(old atomic.Word) atomic.Word { return old - 1 })
}

// Wait consumes one unit, blocking w if none is available. Returns 0, or
// -EINTR if the wait was interrupted before a unit could be taken.
func (s *Semaphore) Wait(h *spinlock.Hart, w waitqueue.Waiter, state int) int {
	spinlock.AssertNoSpinlock(h)
	for {
		s.spin.Lock(h)
		if atomic.LoadAcquire(&s.count) > 0 {
			atomic.FetchAdd(&s.count, -1)
			s.spin.Unlock(h)
			return 0
		}
		errc, _ := waitqueue.WaitInStateCB(&s.tq, w,
			spinlock.SleepCB(s.spin, h), spinlock.WakeCB(s.spin, h), nil, state)
		s.spin.Unlock(h)
		if errc != 0 {
			return errc
		}
		// Woken by Post; loop to consume the unit it added.
	}
}

// Post returns one unit to the semaphore and wakes one waiter.
func (s *Semaphore) Post(h *spinlock.Hart) {
	s.spin.Lock(h)
	atomic.FetchAdd(&s.count, 1)
	s.tq.Wakeup()
	s.spin.Unlock(h)
}

// Count reports the currently available units, for tests.
func (s *Semaphore) Count() int64 {
	return int64(atomic.LoadAcquire(&s.count))
}
