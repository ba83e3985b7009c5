package proc

import (
	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/errno"
	"github.com/rvos/rvkernel/pkg/kernel/list"
	"github.com/rvos/rvkernel/pkg/kernel/rcu"
	"github.com/rvos/rvkernel/pkg/kernel/sched"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
	"github.com/rvos/rvkernel/pkg/kernel/syncprim"
	"github.com/rvos/rvkernel/pkg/kernel/trapframe"
	"github.com/rvos/rvkernel/pkg/kernel/waitqueue"
)

// Thread is the atomic unit of execution. One Thread is one goroutine;
// TCBLock, together with the owning run/wait queue's lock, guards State
// transitions.
type Thread struct {
	pid   int
	state atomic.Word // State, accessed via State()/setState() — see TCBLock below
	flags atomic.Flag

	// TCBLock guards state transitions jointly with whichever queue lock
	// (run queue or wait queue) the transition also touches.
	TCBLock *spinlock.SpinLock
	piLock  *spinlock.SpinLock // priority-inheritance lock, held briefly during wakeup

	Group  *ThreadGroup // ref-counted; released on Exit
	Parent *Thread      // non-owning; the parent's children list owns
	Harts  *Hart        // hart this thread is pinned to

	children     list.List[*Thread]
	siblingLink  list.Link[*Thread] // this thread's membership in Parent.children

	SE *sched.Entity

	RCU rcu.ReadSide

	Frame *trapframe.Frame
	Ctx   trapframe.Context

	ExitCode   int
	ExitSignal int // esignal: delivered to parent on exit, 0 = none

	sigacts *Sigacts        // shared if CLONE_SIGHAND
	pending *PendingSignals // per-thread pending queue
	sigStack []sigFrame     // LIFO of saved ucontexts, pushed by runSignalFrame

	signalsDelivered atomic.Word // count of signals consumed via HandleSignal

	runGate  chan struct{} // scheduler grants the CPU by sending here
	yieldSig chan struct{} // thread reports "I stopped running" here

	ChildWaitQ *waitqueue.TQ // this thread's wait(2) channel, as a parent

	vforkDone *syncprim.Completion // non-nil iff a CLONE_VFORK parent is blocked on this child

	heapBrk uint64 // simulated program break, adjusted by Sbrk
}

// Link implements list.Linker for a thread's membership in its parent's
// children list.
func (t *Thread) Link() *list.Link[*Thread] { return &t.siblingLink }

// PID returns the thread's unique TID.
func (t *Thread) PID() int { return t.pid }

// TGID returns the thread's thread-group id (the leader's TID).
func (t *Thread) TGID() int { return t.Group.TGID() }

// PPID returns the parent's TGID, or 0 if the thread has no parent.
func (t *Thread) PPID() int {
	if t.Parent == nil {
		return 0
	}
	return t.Parent.TGID()
}

// State returns the thread's current lifecycle state.
func (t *Thread) State() State {
	return State(atomic.LoadAcquire(&t.state))
}

// setState overwrites the state. Callers must hold TCBLock (and, for
// run/wait-queue-crossing transitions, the relevant queue lock too).
func (t *Thread) setState(s State) {
	atomic.StoreRelease(&t.state, atomic.Word(s))
}

// Killed reports whether THREAD_FLAG_KILLED is set.
func (t *Thread) Killed() bool { return t.flags.Test(FlagKilled) }

// SetKilled sets THREAD_FLAG_KILLED.
func (t *Thread) SetKilled() { t.flags.Set(FlagKilled) }

// SigPending reports whether THREAD_FLAG_SIGPENDING is set — the flag
// the trap-return path tests before returning to user space.
func (t *Thread) SigPending() bool { return t.flags.Test(FlagSigPending) }

// Sigacts returns the thread's (possibly shared) sigacts.
func (t *Thread) Sigacts() *Sigacts { return t.sigacts }

// Pending returns the thread's per-thread pending-signal queue.
func (t *Thread) Pending() *PendingSignals { return t.pending }

// SignalsDelivered reports how many signals this thread has consumed via
// HandleSignal — a diagnostics counter, safe to read from outside the
// thread's own goroutine since it's atomic.
func (t *Thread) SignalsDelivered() int64 {
	return int64(atomic.LoadAcquire(&t.signalsDelivered))
}

// --- waitqueue.Waiter ---

// PrepareSleep publishes the sleeping state before the thread's wait-queue
// node becomes visible to wakers, implementing waitqueue.Waiter. It is a
// bare atomic store rather than a TCBLock'd transition because the caller
// may already hold the lock guarding the wait queue (wait(2) holds its own
// TCBLock across the zombie scan and the enqueue), and because a waker
// racing in immediately after the store only ever observes "sleeping" a
// moment early — Resume's PI-lock serializes the actual transition out.
func (t *Thread) PrepareSleep(state int) {
	t.setState(State(state))
}

// CommitSleep blocks the calling goroutine (this thread) until Resume
// wakes it, implementing waitqueue.Waiter. The caller must have already
// asserted (via spinlock.AssertNoSpinlock) that no spinlock is held, and
// released the queue lock via the sleep callback.
func (t *Thread) CommitSleep() {
	t.yieldSig <- struct{}{} // tell the CPU loop this thread is off-CPU
	<-t.runGate              // block until rescheduled

	t.TCBLock.Lock(t.hart())
	t.setState(StateRunning)
	t.TCBLock.Unlock(t.hart())
}

// Park is PrepareSleep+CommitSleep for callers that sleep without a wait
// queue (timed sleep arms its timer between the two halves itself).
func (t *Thread) Park(state int) {
	t.PrepareSleep(state)
	t.CommitSleep()
}

// Resume implements waitqueue.Waiter.Resume, the scheduler_wakeup path.
// It transitions a sleeping thread to WAKENING under the PI-lock so
// concurrent wakers coalesce to exactly one resumption, then hands the
// thread to its pinned CPU's run queue.
func (t *Thread) Resume() {
	t.piLock.Lock(t.hart())
	cur := t.State()
	if !cur.Sleeping() {
		t.piLock.Unlock(t.hart())
		return // already woken by a racing waker; idempotent no-op
	}
	t.setState(StateWakening)
	t.piLock.Unlock(t.hart())

	t.Group.Kernel.wakeThread(t)
}

// hart returns the spinlock.Hart bookkeeping for whichever CPU is
// currently executing this thread's goroutine. Valid only while the
// thread itself is running — exactly the contexts TCBLock/piLock are
// taken from.
func (t *Thread) hart() *spinlock.Hart {
	return t.Harts.SpinHart
}

// HartHandle is the exported form of hart, for demo/test code running a
// thread's own Entry closure and needing a *spinlock.Hart to pass into
// blocking primitives.
func (t *Thread) HartHandle() *spinlock.Hart {
	return t.hart()
}

// Sbrk grows or shrinks the simulated heap break, returning the old
// break. The actual VMA/pagetable work belongs to an external
// collaborator; the core only validates and tracks the break itself.
func (t *Thread) Sbrk(n int64) (uint64, error) {
	old := t.heapBrk
	if n < 0 && uint64(-n) > t.heapBrk {
		return 0, errno.EINVAL
	}
	t.heapBrk = uint64(int64(t.heapBrk) + n)
	return old, nil
}

// Yield is scheduler_yield: voluntarily give up the
// remaining slice, stay RUNNING, and let the CPU's run queue pick the
// next-highest-priority ready thread (possibly this one again, if
// nothing else is ready).
func (t *Thread) Yield() {
	t.yieldSig <- struct{}{}
	<-t.runGate
}
