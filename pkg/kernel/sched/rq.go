package sched

import (
	"math/bits"

	"github.com/rvos/rvkernel/pkg/kernel/errno"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
)

// NumMajor is the number of major priority levels; NumMinor is the FIFO
// class's minor levels within each major level.
const (
	NumMajor = 64
	NumMinor = 4
)

// subQueue is one (major, minor) bucket: a plain FIFO ring of entities,
// since within a bucket FIFO order is all the scheduling class promises.
type subQueue struct {
	items []*Entity
}

func (q *subQueue) push(e *Entity)  { q.items = append(q.items, e) }
func (q *subQueue) empty() bool     { return len(q.items) == 0 }
func (q *subQueue) pop() *Entity {
	e := q.items[0]
	q.items = q.items[1:]
	return e
}
func (q *subQueue) remove(e *Entity) {
	for i, x := range q.items {
		if x == e {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// RunQueue is one CPU's ready state: sub-queues indexed by major
// priority, two bitmasks for O(1) highest-ready-priority lookup, a
// spinlock, a cross-hart wake-list, and the currently running entity.
type RunQueue struct {
	CPUID int
	Lock  *spinlock.SpinLock

	buckets  [NumMajor][NumMinor]subQueue
	majorBM  uint64              // bit i set iff some minor bucket at major i is non-empty
	minorBM  [NumMajor]uint64    // bit j set iff buckets[i][j] is non-empty (low 4 bits used)
	Current  *Entity             // entity presently running on this CPU, or nil (idle)
	NeedsResched bool

	wake *wakeList // spinlock-guarded (not lock-free) cross-hart wakeup postings

	idle Class // the idle class, always eligible as a fallback
}

// NewRunQueue creates an empty run queue for the given CPU id.
func NewRunQueue(cpuID int, idle Class) *RunQueue {
	return &RunQueue{
		CPUID: cpuID,
		Lock:  spinlock.New("rq"),
		wake:  newWakeList(),
		idle:  idle,
	}
}

func (rq *RunQueue) bucket(e *Entity) *subQueue {
	return &rq.buckets[e.Priority][e.Minor]
}

// enqueueFIFO is the shared bucket-management logic FIFO's EnqueueTask
// calls into; factored out so idle.go's trivial class doesn't duplicate
// bitmap bookkeeping.
func (rq *RunQueue) enqueueFIFO(e *Entity) {
	rq.bucket(e).push(e)
	rq.minorBM[e.Priority] |= 1 << uint(e.Minor)
	rq.majorBM |= 1 << uint(e.Priority)
	e.OnRQ = true
}

func (rq *RunQueue) dequeueFIFO(e *Entity) {
	b := rq.bucket(e)
	b.remove(e)
	if b.empty() {
		rq.minorBM[e.Priority] &^= 1 << uint(e.Minor)
		if rq.minorBM[e.Priority] == 0 {
			rq.majorBM &^= 1 << uint(e.Priority)
		}
	}
	e.OnRQ = false
}

// highestReady returns the highest-priority (lowest-numbered) non-empty
// bucket in O(1) via bits.TrailingZeros64.
func (rq *RunQueue) highestReady() (major, minor int, ok bool) {
	if rq.majorBM == 0 {
		return 0, 0, false
	}
	major = bits.TrailingZeros64(rq.majorBM)
	mm := rq.minorBM[major]
	if mm == 0 {
		errno.Fatal("run queue major bitmap set with empty minor bitmap")
	}
	minor = bits.TrailingZeros64(mm)
	return major, minor, true
}

// popHighest removes and returns the entity at the head of the highest-
// ready bucket, or nil if the FIFO class has nothing ready.
func (rq *RunQueue) popHighest() *Entity {
	major, minor, ok := rq.highestReady()
	if !ok {
		return nil
	}
	b := &rq.buckets[major][minor]
	e := b.pop()
	if b.empty() {
		rq.minorBM[major] &^= 1 << uint(minor)
		if rq.minorBM[major] == 0 {
			rq.majorBM &^= 1 << uint(major)
		}
	}
	e.OnRQ = false
	return e
}

// wakeList collects entities posted by other harts' wakeups, drained
// locally by the owning CPU.
type wakeList struct {
	mu    spinlock.SpinLock // guards the slice for posters and the draining CPU alike
	items []*Entity
}

func newWakeList() *wakeList { return &wakeList{mu: *spinlock.New("wakelist")} }

// Post enqueues e onto the wake list from any hart.
func (w *wakeList) Post(h *spinlock.Hart, e *Entity) {
	w.mu.Lock(h)
	w.items = append(w.items, e)
	w.mu.Unlock(h)
}

// Drain removes and returns every posted entity, for the owning CPU to
// enqueue onto its own run queue.
func (w *wakeList) Drain(h *spinlock.Hart) []*Entity {
	w.mu.Lock(h)
	items := w.items
	w.items = nil
	w.mu.Unlock(h)
	return items
}

// PostWake posts e to rq's wake list for later local draining, used by
// cross-hart wakeup instead of touching rq's buckets directly from a
// foreign hart.
func (rq *RunQueue) PostWake(h *spinlock.Hart, e *Entity) {
	rq.wake.Post(h, e)
}

// DrainWakes enqueues every entity posted to rq's wake list. Called by
// the owning CPU at a safe point (e.g. before PickNextTask).
func (rq *RunQueue) DrainWakes(h *spinlock.Hart) {
	for _, e := range rq.wake.Drain(h) {
		e.Class.EnqueueTask(rq, e)
	}
}
