package syncprim

import (
	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/errno"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
	"github.com/rvos/rvkernel/pkg/kernel/waitqueue"
)

const noOwner atomic.Word = 0

// Mutex is an owner-PID field plus a tq wait queue. Lock takes a
// try-set-owner CAS fast path; on contention it falls back to the
// internal spinlock, enqueues, and sleeps.
type Mutex struct {
	owner atomic.Word // holder's PID, or noOwner
	spin  *spinlock.SpinLock
	tq    waitqueue.TQ
}

// NewMutex returns an unlocked mutex.
func NewMutex() *Mutex {
	return &Mutex{spin: spinlock.New("mutex")}
}

// Owner returns the PID of the current holder, or 0 if unlocked.
func (m *Mutex) Owner() int { return int(atomic.LoadAcquire(&m.owner)) }

// Lock acquires the mutex for pid, blocking w if contended. The caller
// must have interrupts enabled and hold no spinlock — asserted via h.
func (m *Mutex) Lock(h *spinlock.Hart, w waitqueue.Waiter, pid int, state int) int {
	spinlock.AssertNoSpinlock(h)
	if m.Owner() == pid {
		errno.Fatal("mutex: self-deadlock: pid already holds this mutex")
	}
	if atomic.CAS(&m.owner, noOwner, atomic.Word(pid)) {
		return 0
	}
	for {
		m.spin.Lock(h)
		if atomic.CAS(&m.owner, noOwner, atomic.Word(pid)) {
			m.spin.Unlock(h)
			return 0
		}
		errc, _ := waitqueue.WaitInStateCB(&m.tq, w,
			spinlock.SleepCB(m.spin, h), spinlock.WakeCB(m.spin, h), pid, state)
		m.spin.Unlock(h)
		if errc != 0 {
			return errc
		}
		if m.Owner() == pid {
			return 0
		}
		// Woken but raced with another acquirer; loop and retry.
	}
}

// Unlock releases the mutex, handing ownership directly to the woken
// waiter (if any) before waking it: the unlocker assigns the new owner it
// read off the head waiter's Tnode.Data, so the wakee never races other
// acquirers for the lock it was promised.
func (m *Mutex) Unlock(h *spinlock.Hart, pid int) {
	if m.Owner() != pid {
		errno.Fatal("mutex: Unlock by non-owner")
	}
	m.spin.Lock(h)
	n := m.tq.First()
	if n == nil {
		atomic.StoreRelease(&m.owner, noOwner)
		m.spin.Unlock(h)
		return
	}
	nextPID, _ := n.Data.(int)
	atomic.StoreRelease(&m.owner, atomic.Word(nextPID))
	m.tq.Wakeup()
	m.spin.Unlock(h)
}
