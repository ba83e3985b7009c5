// Package waitqueue implements the thread-queue primitive every blocking
// subsystem in this kernel is built on, in both its list (tq) and tree
// (ttree) forms.
package waitqueue

import (
	"github.com/rvos/rvkernel/pkg/kernel/errno"
	"github.com/rvos/rvkernel/pkg/kernel/list"
)

// Waiter is the minimal view of a thread the wait queue needs: something
// that can be put to sleep in a given state and resumed. pkg/kernel/proc
// implements this; tests use a fake.
//
// The sleep is split in two so the sleeping state is published before the
// Tnode becomes visible on the queue: once PrepareSleep has run, a waker
// that finds the node and calls Resume must reliably wake the eventual
// CommitSleep, even if it races ahead of the waiter actually parking.
type Waiter interface {
	// PrepareSleep records that the calling thread is entering the given
	// sleeping state. It must be called before the waiter is linked onto
	// any queue, and must not itself block.
	PrepareSleep(state int)
	// CommitSleep blocks the calling goroutine until Resume is called for
	// it, simulating scheduler_yield into the prepared state and back.
	CommitSleep()
	// Resume wakes a thread between PrepareSleep and the end of
	// CommitSleep, simulating the scheduler observing WAKENING and
	// re-enqueuing the thread as RUNNING. Idempotent: concurrent callers
	// coalesce to at most one resumption.
	Resume()
}

// Tnode is an entry embedded in a wait queue linking a thread's wait
// state to the queue. It is designed to be stack-allocated by the waiter,
// not heap-allocated by the queue.
type Tnode struct {
	link    list.Link[*Tnode]
	Waiter  Waiter
	ErrorNo int // -EINTR by default; 0 if a normal waker removed it
	Data    any // slot for the waker to pass a value to the waiter
}

// Link implements list.Linker.
func (n *Tnode) Link() *list.Link[*Tnode] { return &n.link }

// TQ is the list-flavored wait queue: a doubly-linked list of Tnode.
type TQ struct {
	q list.List[*Tnode]
}

// Len returns the number of waiters.
func (tq *TQ) Len() int { return tq.q.Len() }

// Push enqueues n at the tail (FIFO order for ordinary sleepers).
func (tq *TQ) Push(n *Tnode) { tq.q.PushBack(n) }

// First returns the head Tnode without removing it, or nil if empty.
func (tq *TQ) First() *Tnode {
	if tq.q.Empty() {
		return nil
	}
	return tq.q.Front()
}

// Pop removes and returns the head Tnode, or nil if empty.
func (tq *TQ) Pop() *Tnode {
	if tq.q.Empty() {
		return nil
	}
	return tq.q.Pop()
}

// Remove detaches n from the queue if it is currently linked.
func (tq *TQ) Remove(n *Tnode) {
	tq.q.Detach(n)
}

// BulkMove transfers every waiter of tq onto dst in O(1), letting a waker
// move waiters out from under its lock before waking them, which avoids a
// lock convoy.
func (tq *TQ) BulkMove(dst *TQ) {
	tq.q.BulkMove(&dst.q)
}

// Wakeup pops the head waiter (if any) and resumes it with error 0.
func (tq *TQ) Wakeup() bool {
	n := tq.Pop()
	if n == nil {
		return false
	}
	n.ErrorNo = 0
	n.Waiter.Resume()
	return true
}

// WakeupAll drains the queue, resuming every waiter with error 0.
func (tq *TQ) WakeupAll() int {
	count := 0
	for {
		n := tq.Pop()
		if n == nil {
			return count
		}
		n.ErrorNo = 0
		n.Waiter.Resume()
		count++
	}
}

// SleepFunc and WakeFunc are the sleep_cb / wake_cb halves of the
// blocking contract: release the caller's lock after enqueue, reacquire
// it after resume.
type SleepFunc func() any
type WakeFunc func(data any, status any)

// WaitInStateCB parks w in state on tq, invoking sleepCB before yielding
// and wakeCB after resuming, returning 0 or -EINTR and the data the
// waker left in the Tnode.
//
// The queue push happens while the caller still holds whatever lock
// guards tq; sleepCB is where that lock is released (spin_sleep_cb), and
// wakeCB is where it is reacquired (spin_wake_cb) — the self-detach on
// the asynchronous wakeup path therefore runs with the queue lock held
// again, never racing a concurrent Wakeup.
//
// Preconditions asserted by the caller (not re-checked here, since that
// would require the Hart handle this package deliberately does not take
// a dependency on): interrupts enabled, no spinlock beyond the caller's
// own held.
func WaitInStateCB(tq *TQ, w Waiter, sleepCB SleepFunc, wakeCB WakeFunc, data any, state int) (int, any) {
	w.PrepareSleep(state)

	n := &Tnode{Waiter: w, ErrorNo: int(errno.EINTR), Data: data}
	tq.Push(n)

	var status any
	if sleepCB != nil {
		status = sleepCB()
	}

	w.CommitSleep()

	if wakeCB != nil {
		wakeCB(data, status)
	}

	// Asynchronous wakeup path (signal or timeout): the waiter was never
	// popped by a tq_wakeup, so it is still linked. Self-detach.
	if list.Linked(n) {
		tq.Remove(n)
	}

	return n.ErrorNo, n.Data
}
