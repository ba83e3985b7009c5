package proc

import (
	"github.com/sirupsen/logrus"

	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/errno"
	"github.com/rvos/rvkernel/pkg/kernel/list"
	"github.com/rvos/rvkernel/pkg/kernel/sched"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
	"github.com/rvos/rvkernel/pkg/kernel/syncprim"
	"github.com/rvos/rvkernel/pkg/kernel/trapframe"
	"github.com/rvos/rvkernel/pkg/kernel/waitqueue"
)

// Clone flag bits. The values match the wire ABI exactly.
const (
	CloneVM             = 0x8000000000
	CloneFS             = 0x0020_0000
	CloneFiles          = 0x0010_0000
	CloneSighand        = 0x0200_000000
	CloneThread         = 0x1000_000000
	CloneVfork          = 0x4000_000000
	CloneChildSetTID    = 0x0002_0000
	CloneChildClearTID  = 0x0001_0000
	CloneParentSetTID   = 0x0010_000000
	CloneSetTLS         = 0x0100_000000
	cloneExitSignalMask = 0xFF // low 8 bits of flags carry the exit signal
)

// Entry is a thread's simulated user-space program: the CLONE_VM
// contract's "stack + stack_size + entry" reduced to a plain Go closure,
// since this simulation has no separate address space to map a stack
// into.
type Entry func(t *Thread)

// CloneArgs is the clone_args argument block.
type CloneArgs struct {
	Flags      uint64
	Entry      Entry
	ExitSignal int // esignal: delivered to parent on child exit, 0 = none
}

// Clone is the superset of fork. The child returns 0 (by simply
// beginning to execute Entry); Clone itself returns the new thread to
// the caller, or an error if a precondition is violated.
func (k *Kernel) Clone(h *spinlock.Hart, parent *Thread, args CloneArgs) (*Thread, error) {
	if args.Flags&CloneThread != 0 && args.Flags&CloneSighand == 0 {
		return nil, errno.EINVAL
	}

	exitSignal := args.ExitSignal
	if exitSignal == 0 {
		// Real clone(2) packs the exit signal into the low byte of flags
		// (CSIGNAL) rather than a separate argument; fall back to that
		// encoding when a caller sets it there instead of ExitSignal.
		exitSignal = int(args.Flags & cloneExitSignalMask)
	}

	child := &Thread{
		TCBLock:    spinlock.New("thread.tcb"),
		piLock:     spinlock.New("thread.pi"),
		Parent:     parent,
		SE:         &sched.Entity{Priority: parent.SE.Priority, Minor: parent.SE.Minor, Affinity: parent.SE.Affinity},
		Frame:      &trapframe.Frame{},
		ExitSignal: exitSignal,
		runGate:    make(chan struct{}),
		yieldSig:   make(chan struct{}),
		ChildWaitQ: &waitqueue.TQ{},
	}
	child.flags.Set(FlagValid)
	child.setState(StateUsed)
	child.SE.Class = sched.FIFOClass{}
	sched.FIFOClass{}.TaskFork(parent.SE, child.SE)
	wireEntity(child)

	if args.Flags&CloneSighand != 0 {
		child.sigacts = parent.sigacts
		child.sigacts.IncRef()
	} else {
		child.sigacts = parent.sigacts.Clone(h)
	}
	child.pending = newPendingSignals(k.Config.MaxSiginfoPerSignal)

	// PID before group: a fresh group's TGID is its leader's PID, so the
	// child must already have one when NewThreadGroup reads it.
	pid := k.pids.allocAndAddThread(child)

	if args.Flags&CloneThread != 0 {
		child.Group = parent.Group
		child.Group.IncRef()
	} else {
		child.Group = NewThreadGroup(k, child)
		k.allocGroup(child.Group)
	}

	parent.TCBLock.Lock(h)
	parent.children.PushBack(child)
	parent.TCBLock.Unlock(h)

	child.Group.addMember(h, child)

	if args.Flags&CloneVfork != 0 {
		// Armed before the child is runnable: Exit must always find it.
		child.vforkDone = syncprim.NewCompletion()
	}

	k.admit(child)

	go child.runLoop(args.Entry)

	k.log.WithFields(logrus.Fields{"parent": parent.PID(), "child": pid, "flags": args.Flags}).
		Debug("thread cloned")

	if args.Flags&CloneVfork != 0 {
		// CLONE_VFORK: parent blocks until the child execs or exits. The
		// child signals vforkDone from Exit, or would from exec, if this
		// simulation had one.
		child.vforkDone.Wait(h, parent, int(StateUninterruptible))
	}
	return child, nil
}

// Fork implements fork(2): clone with flags = SIGCHLD, so the parent is
// notified with SIGCHLD when the child exits.
func (k *Kernel) Fork(h *spinlock.Hart, parent *Thread, entry Entry) (*Thread, error) {
	return k.Clone(h, parent, CloneArgs{Flags: uint64(SIGCHLD), Entry: entry})
}

// Vfork implements vfork(2): CLONE_VM | CLONE_VFORK | SIGCHLD.
// The caller does not return until the child has exited (or exec'd, had
// this simulation an exec).
func (k *Kernel) Vfork(h *spinlock.Hart, parent *Thread, entry Entry) (*Thread, error) {
	return k.Clone(h, parent, CloneArgs{Flags: CloneVM | CloneVfork | uint64(SIGCHLD), Entry: entry})
}

// wireEntity connects t's scheduling entity back to the goroutine
// machinery in cpu.go: SwitchIn grants the CPU, AwaitStop blocks until
// the goroutine reports it stopped running, StillRunnable consults the
// thread's own lifecycle state.
func wireEntity(t *Thread) {
	t.SE.SwitchIn = func() { t.runGate <- struct{}{} }
	t.SE.AwaitStop = func() { <-t.yieldSig }
	t.SE.StillRunnable = func() bool { return t.State() == StateRunning }
}

// admit places t's entity onto a chosen hart's run queue for the first
// time, pinning t.Harts so Park/Resume/hart() have a valid spinlock.Hart
// to acquire immediately. Affinity-free threads are spread round-robin so
// a parent and its children land on different harts and actually run in
// parallel; a thread with an affinity mask goes through its class's
// select_task_rq instead.
func (k *Kernel) admit(t *Thread) {
	numCPU := len(k.Harts)
	var cpu int
	if t.SE.Affinity != 0 {
		cpu = t.SE.Class.SelectTaskRQ(t.SE, 0, numCPU)
	} else {
		cpu = int(atomic.FetchAdd(&k.nextCPU, 1)-1) % numCPU
	}
	t.SE.CPU = cpu
	h := k.Harts[cpu]
	t.Harts = h

	h.RQ.Lock.Lock(h.SpinHart)
	t.SE.Class.EnqueueTask(h.RQ, t.SE)
	h.RQ.Lock.Unlock(h.SpinHart)
}

// runLoop is the goroutine body standing in for a thread's trap-return
// loop: block for the scheduler's first grant, run the simulated
// user-space entry point, then exit if it returns without calling Exit
// itself.
func (t *Thread) runLoop(entry Entry) {
	<-t.runGate
	t.TCBLock.Lock(t.hart())
	t.setState(StateRunning)
	t.TCBLock.Unlock(t.hart())

	if entry != nil {
		entry(t)
	}

	if t.State() != StateZombie && t.State() != StateExiting {
		t.Group.Kernel.Exit(t, 0)
	}
}

// groupLink/children list instantiation helpers live alongside
// ThreadGroup.addMember in threadgroup.go; Clone only needs the Link
// method, already satisfied by list.Linker[*Thread] via Thread.Link.
var _ list.Linker[*Thread] = (*Thread)(nil)
