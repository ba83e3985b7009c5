package sched

// IdleClass is the fallback scheduling class,
// run on a CPU with nothing else ready. There is exactly one idle
// entity per CPU; it is never enqueued/dequeued in the ordinary sense —
// PickNextTask just hands it back unconditionally as the class of last
// resort, invoked by the run queue only once every real Class reports
// nothing ready.
type IdleClass struct {
	Entity *Entity
}

var _ Class = (*IdleClass)(nil)

// EnqueueTask implements Class; the idle entity is always "ready".
func (c *IdleClass) EnqueueTask(rq *RunQueue, e *Entity) { e.OnRQ = true }

// DequeueTask implements Class.
func (c *IdleClass) DequeueTask(rq *RunQueue, e *Entity) { e.OnRQ = false }

// PickNextTask implements Class: hands back the idle entity.
func (c *IdleClass) PickNextTask(rq *RunQueue) *Entity { return c.Entity }

// PutPrevTask implements Class; idle is always re-admitted.
func (c *IdleClass) PutPrevTask(rq *RunQueue, prev *Entity, stillRunnable bool) {}

// SetNextTask implements Class.
func (c *IdleClass) SetNextTask(rq *RunQueue, e *Entity) {
	e.OnCPU = true
	rq.Current = e
}

// TaskTick implements Class; idle never needs rescheduling on its own.
func (c *IdleClass) TaskTick(rq *RunQueue, e *Entity) bool { return false }

// TaskFork implements Class; idle entities are never forked.
func (c *IdleClass) TaskFork(parent, child *Entity) {}

// TaskDead implements Class.
func (c *IdleClass) TaskDead(e *Entity) {}

// YieldTask implements Class.
func (c *IdleClass) YieldTask(rq *RunQueue, e *Entity) {}

// SelectTaskRQ implements Class: the idle entity is pinned to its CPU.
func (c *IdleClass) SelectTaskRQ(e *Entity, wakingCPU int, numCPU int) int {
	return e.CPU
}
