package proc

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/ipi"
	"github.com/rvos/rvkernel/pkg/kernel/sched"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
)

// Hart is the per-CPU driver: the cpu struct plus the goroutine
// machinery that stands in for real hardware context switching. Exactly
// one Hart.Run loop runs per simulated CPU, and it is the only goroutine
// that mutates this Hart's RunQueue buckets, apart from PostWake's
// wake-list handoff and Kernel.admit, which enqueues a newly cloned
// thread from the cloning goroutine under RQ.Lock.
type Hart struct {
	ID     int
	Kernel *Kernel

	SpinHart *spinlock.Hart // this hart's spinlock/interrupt-nesting bookkeeping
	RQ       *sched.RunQueue
	Inbox    *ipi.Inbox

	idle *sched.IdleClass
	fifo sched.FIFOClass

	stop chan struct{}
	log  *logrus.Entry
}

// Stop requests the Run loop exit at its next scheduling point.
func (h *Hart) Stop() {
	close(h.stop)
}

// Run drives h's scheduler loop until Stop is called: poll the IPI
// inbox, drain cross-hart wakeups onto the local run queue, pick the
// highest-priority ready entity (falling back to idle), grant it the CPU
// by signaling its SwitchIn hook, and block until it reports it has
// stopped running again. This is the schedule()/context_switch pair,
// with "context switch" realized as a channel handoff between goroutines
// instead of a register save/restore.
func (h *Hart) Run() {
	h.log.Info("hart online")
	for {
		select {
		case <-h.stop:
			h.log.Info("hart offline")
			return
		default:
		}

		resched := h.Inbox.Poll()

		h.RQ.Lock.Lock(h.SpinHart)
		if resched {
			h.RQ.NeedsResched = true
		}
		h.RQ.DrainWakes(h.SpinHart)
		e := h.pickNext()
		h.RQ.NeedsResched = false
		h.RQ.Lock.Unlock(h.SpinHart)

		if e == h.idle.Entity {
			// Nothing runnable: nap briefly instead of spinning the host
			// CPU; a posted wake or IPI is noticed on the next iteration.
			atomic.Relax()
			time.Sleep(50 * time.Microsecond)
			continue
		}

		e.Class.SetNextTask(h.RQ, e)
		e.SwitchIn()
		e.AwaitStop()

		h.RQ.Lock.Lock(h.SpinHart)
		h.requeuePrev(e)
		h.RQ.Lock.Unlock(h.SpinHart)
	}
}

// pickNext tries FIFO first, then falls back to the idle class.
func (h *Hart) pickNext() *sched.Entity {
	if e := h.fifo.PickNextTask(h.RQ); e != nil {
		return e
	}
	return h.idle.PickNextTask(h.RQ)
}

// requeuePrev re-admits e to its own class's run queue if it is still
// runnable (i.e. it merely yielded, rather than blocking or exiting).
func (h *Hart) requeuePrev(e *sched.Entity) {
	e.OnCPU = false
	if h.RQ.Current == e {
		h.RQ.Current = nil
	}
	stillRunnable := e.StillRunnable != nil && e.StillRunnable()
	e.Class.PutPrevTask(h.RQ, e, stillRunnable)
}
