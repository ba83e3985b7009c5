// Package spinlock implements a test-and-set spinlock with an owner-hart
// field for debugging, plus the push_off/pop_off interrupt-nesting
// discipline that every blocking primitive in this module asserts
// against before it is allowed to sleep.
//
// "Interrupts" here are the simulated per-hart interrupt-enable flag that
// stands in for the real riscv sstatus.SIE bit; there is no hardware to
// disable, so push_off/pop_off toggle a per-hart software flag, reported
// by InterruptsEnabled; the scheduler and IPI delivery do not consult it.
package spinlock

import (
	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/errno"
)

const (
	unlocked atomic.Word = 0
	locked   atomic.Word = 1
)

// SpinLock is a locked word plus an owner-hart field for diagnostics.
type SpinLock struct {
	state   atomic.Word
	ownerID atomic.Word // hart id of the holder, -1 when free
	name    string
}

// New returns an unlocked spinlock, named for owner-mismatch diagnostics.
func New(name string) *SpinLock {
	l := &SpinLock{name: name}
	l.ownerID = -1
	return l
}

// Lock acquires the lock: intr_off_save, then a test-and-set loop,
// recording the owner hart on success. Lock calls PushOff itself before
// touching lock state, and Unlock makes the matching PopOff call, so the
// caller does not wrap the call in PushOff/PopOff.
func (l *SpinLock) Lock(h *Hart) {
	PushOff(h)
	for !atomic.CAS(&l.state, unlocked, locked) {
		atomic.Relax()
	}
	atomic.StoreRelease(&l.ownerID, atomic.Word(h.ID))
}

// TryLock attempts a non-blocking acquire.
func (l *SpinLock) TryLock(h *Hart) bool {
	PushOff(h)
	if atomic.CAS(&l.state, unlocked, locked) {
		atomic.StoreRelease(&l.ownerID, atomic.Word(h.ID))
		return true
	}
	PopOff(h)
	return false
}

// Unlock releases the lock: clear owner, release-store 0, intr_restore.
func (l *SpinLock) Unlock(h *Hart) {
	if atomic.LoadAcquire(&l.ownerID) != atomic.Word(h.ID) {
		errno.Fatal("spinlock " + l.name + " released by non-owner hart")
	}
	atomic.StoreRelease(&l.ownerID, -1)
	atomic.StoreRelease(&l.state, unlocked)
	PopOff(h)
}

// Held reports whether the lock is currently held by h. Used by assertions
// ("no spinlock beyond the caller's own is held") rather than for control
// flow racing with other harts.
func (l *SpinLock) Held(h *Hart) bool {
	return atomic.LoadAcquire(&l.ownerID) == atomic.Word(h.ID)
}

// Hart is the per-hart bookkeeping spinlocks and the scheduler need: an
// identity and the interrupt-nesting counter. The
// counters are atomic because, unlike real per-CPU state, more than one
// goroutine can legitimately operate against the same hart's bookkeeping
// (the timer-tick driver waking a thread pinned to a hart, a cross-hart
// signal sender) — the nesting discipline stays per-hart, only the
// counter updates need to not lose increments.
type Hart struct {
	ID        int
	spinDepth atomic.Word // outermost push_off re-enables interrupts at depth 0
	intrWasOn atomic.Word // interrupt-enable state saved by the outermost push_off
	intrOn    atomic.Word // current simulated interrupt-enable state, 1 = enabled
}

// NewHart creates hart bookkeeping with interrupts enabled, as a hart
// starts after boot.
func NewHart(id int) *Hart {
	h := &Hart{ID: id}
	atomic.StoreRelease(&h.intrOn, 1)
	return h
}

// PushOff disables interrupts and increments spin_depth; it is idempotent
// under nesting.
func PushOff(h *Hart) {
	wasOn := atomic.LoadAcquire(&h.intrOn)
	atomic.StoreRelease(&h.intrOn, 0)
	if atomic.FetchAdd(&h.spinDepth, 1) == 1 {
		atomic.StoreRelease(&h.intrWasOn, wasOn)
	}
}

// PopOff decrements spin_depth and restores interrupts only when it
// reaches zero.
func PopOff(h *Hart) {
	if atomic.LoadAcquire(&h.intrOn) != 0 {
		errno.Fatal("pop_off: interrupts already enabled")
	}
	depth := atomic.FetchAdd(&h.spinDepth, -1)
	if depth < 0 {
		errno.Fatal("pop_off: unbalanced push_off")
	}
	if depth == 0 && atomic.LoadAcquire(&h.intrWasOn) != 0 {
		atomic.StoreRelease(&h.intrOn, 1)
	}
}

// InterruptsEnabled reports h's simulated interrupt-enable state.
func InterruptsEnabled(h *Hart) bool {
	return atomic.LoadAcquire(&h.intrOn) != 0
}

// AssertNoSpinlock panics if h is inside a push_off/pop_off region,
// enforcing "holding any spinlock forbids sleeping" at the entry point of
// every blocking primitive.
func AssertNoSpinlock(h *Hart) {
	if atomic.LoadAcquire(&h.spinDepth) != 0 {
		errno.Fatal("blocking call made while holding a spinlock")
	}
}

// SleepCB and WakeCB are the default release/reacquire callbacks handed to
// wait-queue sleeps (spin_sleep_cb / spin_wake_cb): SleepCB
// releases the caller-supplied spinlock after the waiter is on the queue,
// WakeCB reacquires it on resume so the waiter's self-detach (and its own
// re-check of the guarded condition) runs back under the lock.
func SleepCB(l *SpinLock, h *Hart) func() any {
	return func() any {
		l.Unlock(h)
		return nil
	}
}

// WakeCB is SleepCB's counterpart: reacquire l once the waiter resumes.
func WakeCB(l *SpinLock, h *Hart) func(any, any) {
	return func(any, any) {
		l.Lock(h)
	}
}
