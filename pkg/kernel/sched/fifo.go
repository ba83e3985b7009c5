package sched

// FIFOClass is the default scheduling class: 64 major levels times 4
// minor levels, strict FIFO order within a bucket, no time slicing
// beyond "yield or trap-return with needs_resched".
type FIFOClass struct{}

var _ Class = FIFOClass{}

// EnqueueTask implements Class.
func (FIFOClass) EnqueueTask(rq *RunQueue, e *Entity) {
	rq.enqueueFIFO(e)
}

// DequeueTask implements Class.
func (FIFOClass) DequeueTask(rq *RunQueue, e *Entity) {
	rq.dequeueFIFO(e)
}

// PickNextTask implements Class.
func (FIFOClass) PickNextTask(rq *RunQueue) *Entity {
	return rq.popHighest()
}

// PutPrevTask implements Class.
func (FIFOClass) PutPrevTask(rq *RunQueue, prev *Entity, stillRunnable bool) {
	if stillRunnable {
		rq.enqueueFIFO(prev)
	}
}

// SetNextTask implements Class.
func (FIFOClass) SetNextTask(rq *RunQueue, e *Entity) {
	e.OnCPU = true
	rq.Current = e
}

// TaskTick implements Class. A FIFO thread never expires on its own;
// needs_resched is only set by an explicit yield or an incoming wakeup of
// an equal/higher-priority thread, handled elsewhere.
func (FIFOClass) TaskTick(rq *RunQueue, e *Entity) bool {
	return false
}

// TaskFork implements Class: the child inherits the parent's priority.
func (FIFOClass) TaskFork(parent, child *Entity) {
	child.Priority = parent.Priority
	child.Minor = parent.Minor
	child.Affinity = parent.Affinity
	child.Class = parent.Class
}

// TaskDead implements Class; FIFO keeps no class-private state per entity.
func (FIFOClass) TaskDead(e *Entity) {}

// YieldTask implements Class: re-admit at the tail of the same bucket.
func (FIFOClass) YieldTask(rq *RunQueue, e *Entity) {
	rq.enqueueFIFO(e)
}

// SelectTaskRQ implements Class: prefer the waking CPU if e's affinity
// allows it (cheap, cache-friendly), else the lowest-numbered eligible
// CPU.
func (FIFOClass) SelectTaskRQ(e *Entity, wakingCPU int, numCPU int) int {
	if e.Affinity&(1<<uint(wakingCPU)) != 0 {
		return wakingCPU
	}
	for cpu := 0; cpu < numCPU; cpu++ {
		if e.Affinity&(1<<uint(cpu)) != 0 {
			return cpu
		}
	}
	return wakingCPU
}
