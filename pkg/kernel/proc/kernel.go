package proc

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rvos/rvkernel/internal/config"
	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/ipi"
	"github.com/rvos/rvkernel/pkg/kernel/rcu"
	"github.com/rvos/rvkernel/pkg/kernel/sched"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
	"github.com/rvos/rvkernel/pkg/kernel/timer"
	"github.com/rvos/rvkernel/pkg/kernel/trapframe"
	"github.com/rvos/rvkernel/pkg/kernel/waitqueue"
)

// Kernel is the singleton owning every hart, the global PID table, and
// the RCU domain shared across them — everything below a single "boot"
// that isn't per-thread or per-CPU.
type Kernel struct {
	Config *config.Config

	RCU    *rcu.State
	Harts  []*Hart
	Timers *timer.Wheel

	pids *pidTable

	nextCPU atomic.Word // round-robin admission cursor for affinity-free threads

	log *logrus.Entry

	tickStop chan struct{}
}

// NewKernel brings up cfg.NumCPU harts (not yet running — callers start
// each with Hart.Run) and the shared RCU/PID state.
func NewKernel(cfg *config.Config) *Kernel {
	k := &Kernel{
		Config: cfg,
		RCU:    rcu.New(cfg.NumCPU),
		Timers: timer.New(),
		pids:   newPidTable(),
		log:    logrus.WithField("subsystem", "kernel"),
	}
	k.Harts = make([]*Hart, cfg.NumCPU)
	for i := range k.Harts {
		k.Harts[i] = newHart(k, i)
	}
	k.log.WithField("num_cpu", cfg.NumCPU).Info("kernel initialized")
	return k
}

// Hart looks up one of the kernel's per-CPU drivers by id.
func (k *Kernel) Hart(id int) *Hart { return k.Harts[id] }

// Start launches every hart's scheduler loop in its own goroutine, plus
// the single timer-wheel driver goroutine standing in for the timer
// interrupt that sleep(ms)/uptime() are built on.
func (k *Kernel) Start() {
	for _, h := range k.Harts {
		go h.Run()
	}
	k.tickStop = make(chan struct{})
	go k.tickTimers(k.tickStop)
}

// Stop requests every hart's scheduler loop, and the timer driver, exit.
func (k *Kernel) Stop() {
	for _, h := range k.Harts {
		h.Stop()
	}
	if k.tickStop != nil {
		close(k.tickStop)
	}
}

// tickTimers is the kernel's one wall-clock tick source: each jiffy it
// advances the sleep(ms)/uptime() timer wheel and every hart's RCU
// segmented-callback list — the two timing-driven subsystems share this
// one driver rather than each running its own ticker.
func (k *Kernel) tickTimers(stop chan struct{}) {
	interval := k.Config.JiffyInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			k.Timers.Tick()
			for i := range k.Harts {
				k.RCU.Tick(i)
			}
		}
	}
}

// Boot creates the first thread in the system, the analogue of PID 1:
// no parent, a fresh thread group and sigacts, admitted onto whichever
// CPU admission picks. Every other thread descends from it via Clone.
func (k *Kernel) Boot(entry Entry) *Thread {
	t := &Thread{
		TCBLock:    spinlock.New("thread.tcb"),
		piLock:     spinlock.New("thread.pi"),
		SE:         &sched.Entity{Class: sched.FIFOClass{}, Priority: sched.NumMajor / 2},
		Frame:      &trapframe.Frame{},
		sigacts:    NewSigacts(),
		runGate:    make(chan struct{}),
		yieldSig:   make(chan struct{}),
		ChildWaitQ: &waitqueue.TQ{},
	}
	t.flags.Set(FlagValid)
	t.setState(StateUsed)
	wireEntity(t)
	t.pending = newPendingSignals(k.Config.MaxSiginfoPerSignal)

	// PID first: the fresh group's TGID is this thread's PID.
	k.pids.allocAndAddThread(t)
	t.Group = NewThreadGroup(k, t)
	k.allocGroup(t.Group)

	k.admit(t)
	t.Group.addMember(t.Harts.SpinHart, t)

	go t.runLoop(entry)

	k.log.WithField("tid", t.pid).Info("init thread booted")
	return t
}

// wakeThread is scheduler_wakeup's continuation: pick a target CPU via
// the thread's scheduling class, post the entity to that CPU's wake
// list, and send it a reschedule IPI when the target differs from the
// thread's own last CPU (t.SE.CPU) so the target notices the new work at
// its next poll point. The waker's own hart is not consulted.
func (k *Kernel) wakeThread(t *Thread) {
	numCPU := len(k.Harts)
	target := t.SE.Class.SelectTaskRQ(t.SE, t.SE.CPU, numCPU)
	h := k.Harts[target]

	h.RQ.PostWake(h.SpinHart, t.SE)
	if target != t.SE.CPU {
		h.Inbox.SendReschedule()
	}
	k.log.WithFields(logrus.Fields{"tid": t.PID(), "cpu": target}).Debug("thread woken")
}

// ExpediteRCU requests an expedited grace period: a reschedule IPI to
// every hart, so each one reaches a quiescent state at its next poll
// point instead of waiting out natural scheduling.
func (k *Kernel) ExpediteRCU() {
	k.RCU.ExpeditedGP()
	for _, h := range k.Harts {
		h.Inbox.SendReschedule()
	}
}

// NewPendingSignals allocates a bounded per-signal pending-signal queue,
// sized per Config.MaxSiginfoPerSignal.
func NewPendingSignals(maxPerSignal int) *PendingSignals {
	return newPendingSignals(maxPerSignal)
}

func (k *Kernel) allocGroup(g *ThreadGroup) {
	k.pids.addGroup(g)
}

// LookupThread finds a thread by PID across the whole kernel.
func (k *Kernel) LookupThread(pid int) *Thread { return k.pids.Lookup(pid) }

// LookupGroup finds a thread group by TGID across the whole kernel.
func (k *Kernel) LookupGroup(tgid int) *ThreadGroup { return k.pids.LookupGroup(tgid) }

// newHart constructs hart id's run queue, idle entity, and IPI inbox.
func newHart(k *Kernel, id int) *Hart {
	idleEntity := &sched.Entity{CPU: id, Priority: sched.NumMajor - 1}
	idleClass := &sched.IdleClass{Entity: idleEntity}
	idleEntity.Class = idleClass

	h := &Hart{
		ID:       id,
		Kernel:   k,
		SpinHart: spinlock.NewHart(id),
		Inbox:    ipi.NewInbox(32),
		idle:     idleClass,
		stop:     make(chan struct{}),
		log:      logrus.WithField("cpu", id),
	}
	h.RQ = sched.NewRunQueue(id, idleClass)
	return h
}
