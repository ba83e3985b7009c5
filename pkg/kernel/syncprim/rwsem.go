package syncprim

import (
	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/errno"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
	"github.com/rvos/rvkernel/pkg/kernel/waitqueue"
)

// RWSem is the sleeping read-write semaphore: unlike RWLock it queues
// contended waiters in a tq instead of spinning, and keeps a separate
// writer wait queue so a pending writer is not starved by a steady
// stream of readers (writer-priority wake policy).
type RWSem struct {
	spin    *spinlock.SpinLock
	readers atomic.Word // count of held read locks
	writer  atomic.Word // holder's PID, or 0
	rtq     waitqueue.TQ
	wtq     waitqueue.TQ
}

// NewRWSem returns an unlocked rwsem.
func NewRWSem() *RWSem {
	return &RWSem{spin: spinlock.New("rwsem")}
}

// RLock acquires a read hold, blocking w behind any waiting writer.
func (s *RWSem) RLock(h *spinlock.Hart, w waitqueue.Waiter, state int) int {
	spinlock.AssertNoSpinlock(h)
	for {
		s.spin.Lock(h)
		if atomic.LoadAcquire(&s.writer) == noOwner && s.wtq.Len() == 0 {
			atomic.FetchAdd(&s.readers, 1)
			s.spin.Unlock(h)
			return 0
		}
		errc, _ := waitqueue.WaitInStateCB(&s.rtq, w,
			spinlock.SleepCB(s.spin, h), spinlock.WakeCB(s.spin, h), nil, state)
		s.spin.Unlock(h)
		if errc != 0 {
			return errc
		}
	}
}

// RUnlock releases a read hold. If this was the last reader and a writer
// is waiting, it is woken.
func (s *RWSem) RUnlock(h *spinlock.Hart) {
	s.spin.Lock(h)
	remaining := atomic.FetchAdd(&s.readers, -1)
	if remaining < 0 {
		errno.Fatal("rwsem: reader count underflow")
	}
	if remaining == 0 {
		s.wtq.Wakeup()
	}
	s.spin.Unlock(h)
}

// Lock acquires the write hold for pid, blocking w behind any readers or
// another writer.
func (s *RWSem) Lock(h *spinlock.Hart, w waitqueue.Waiter, pid int, state int) int {
	spinlock.AssertNoSpinlock(h)
	for {
		s.spin.Lock(h)
		if atomic.LoadAcquire(&s.readers) == 0 && atomic.LoadAcquire(&s.writer) == noOwner {
			atomic.StoreRelease(&s.writer, atomic.Word(pid))
			s.spin.Unlock(h)
			return 0
		}
		errc, _ := waitqueue.WaitInStateCB(&s.wtq, w,
			spinlock.SleepCB(s.spin, h), spinlock.WakeCB(s.spin, h), pid, state)
		s.spin.Unlock(h)
		if errc != 0 {
			return errc
		}
		if atomic.LoadAcquire(&s.writer) == atomic.Word(pid) {
			return 0
		}
	}
}

// Unlock releases the write hold, favoring a waiting writer over queued
// readers, matching s.wtq's writer-priority policy.
func (s *RWSem) Unlock(h *spinlock.Hart, pid int) {
	if atomic.LoadAcquire(&s.writer) != atomic.Word(pid) {
		errno.Fatal("rwsem: Unlock by non-owner")
	}
	s.spin.Lock(h)
	atomic.StoreRelease(&s.writer, noOwner)
	if n := s.wtq.First(); n != nil {
		nextPID, _ := n.Data.(int)
		atomic.StoreRelease(&s.writer, atomic.Word(nextPID))
		s.wtq.Wakeup()
	} else {
		s.rtq.WakeupAll()
	}
	s.spin.Unlock(h)
}
