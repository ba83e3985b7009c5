// Package sched implements the per-CPU run queue and the pluggable
// scheduling class contract: pick_next_task / put_prev_task and friends.
// FIFO is the only non-idle class for now.
package sched

// Entity is the minimal scheduling-relevant view of a thread:
// on_rq/on_cpu, current CPU, priority, and the context switch hooks.
// Separated from the thread itself so scheduling code never touches
// unrelated thread state.
type Entity struct {
	OnRQ     bool
	OnCPU    bool
	CPU      int
	Affinity uint64 // bitmask of eligible CPUs, up to 64
	Priority int    // major priority: 0..63, lower is more eager to run
	Minor    int    // minor priority within the major level: 0..3

	Class Class

	// SwitchIn is the CPU grant: Hart.Run calls it to let this entity's
	// goroutine start running, standing in for the context switch's
	// register restore. SwitchOut is a hook slot that no code path in
	// this module calls.
	SwitchOut func()
	SwitchIn  func()

	// AwaitStop blocks the calling CPU loop until this entity's goroutine
	// reports it has stopped running (parked or yielded) — the other half
	// of SwitchIn's "grant the CPU" signal. Set alongside SwitchIn by
	// whatever constructs the owning thread.
	AwaitStop func()

	// StillRunnable reports, immediately after AwaitStop returns, whether
	// the entity merely yielded (true) or blocked/exited (false) — the
	// run queue's cue for whether PutPrevTask should re-admit it.
	StillRunnable func() bool
}

// Class is the per-scheduling-class callback set. FIFO and Idle both
// implement it; a new class could be added without touching rq.go.
type Class interface {
	// EnqueueTask adds e to rq, making it eligible to run.
	EnqueueTask(rq *RunQueue, e *Entity)
	// DequeueTask removes e from rq.
	DequeueTask(rq *RunQueue, e *Entity)
	// PickNextTask selects the next entity to run, or nil if none is
	// ready in this class.
	PickNextTask(rq *RunQueue) *Entity
	// PutPrevTask re-admits prev to rq if it is still runnable.
	PutPrevTask(rq *RunQueue, prev *Entity, stillRunnable bool)
	// SetNextTask marks e as the entity about to run on rq's CPU.
	SetNextTask(rq *RunQueue, e *Entity)
	// TaskTick is called once per timer tick for the currently running
	// entity of this class; it may request a reschedule.
	TaskTick(rq *RunQueue, e *Entity) (needsResched bool)
	// TaskFork initializes a child's scheduling state from its parent.
	TaskFork(parent, child *Entity)
	// TaskDead releases any class-specific bookkeeping for e.
	TaskDead(e *Entity)
	// YieldTask voluntarily gives up e's remaining slice.
	YieldTask(rq *RunQueue, e *Entity)
	// SelectTaskRQ picks a target CPU for e respecting its affinity mask,
	// given the identity of the CPU that is waking it.
	SelectTaskRQ(e *Entity, wakingCPU int, numCPU int) int
}
