package proc

import (
	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/list"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
)

// ThreadGroup is the POSIX-process abstraction: a refcounted TGID,
// member list, shared pending-signal queue, and group-exit code.
type ThreadGroup struct {
	Kernel *Kernel

	tgid int // == leader's PID

	refcount atomic.Word

	mu      *spinlock.SpinLock      // guards members, below
	members list.List[*groupMember] // wrapper nodes, not Thread.siblingLink

	Leader *Thread

	SharedPending *PendingSignals // process-directed signal queue
	Sigacts       *Sigacts        // shared when members have CLONE_SIGHAND

	groupExit     atomic.Word // 0/1, sticky — set once exit_group is called
	groupExitCode atomic.Word

	stopCount atomic.Word // members currently in STOPPED
}

// groupLink is the embedded link used for ThreadGroup.members, distinct
// from Thread.siblingLink (parent-child graph) because a thread is a
// member of exactly one group and a child of exactly one parent
// simultaneously, and those are unrelated relationships.
type groupMember struct {
	link list.Link[*groupMember]
	t    *Thread
}

func (g *groupMember) Link() *list.Link[*groupMember] { return &g.link }

// NewThreadGroup creates a new group of size 1, led by leader.
func NewThreadGroup(k *Kernel, leader *Thread) *ThreadGroup {
	g := &ThreadGroup{
		Kernel:        k,
		tgid:          leader.PID(),
		mu:            spinlock.New("tg.members"),
		Leader:        leader,
		SharedPending: NewPendingSignals(k.Config.MaxSiginfoPerSignal),
		Sigacts:       leader.sigacts,
	}
	g.refcount = 1
	return g
}

// TGID returns the leader's PID.
func (g *ThreadGroup) TGID() int { return g.tgid }

// IncRef bumps the group's refcount. Every member thread holds one, so
// refcount >= live threads; enqueued shared signals do not take one.
func (g *ThreadGroup) IncRef() { atomic.FetchAdd(&g.refcount, 1) }

// DecRef releases a reference, returning true if it was the last one.
func (g *ThreadGroup) DecRef() bool {
	return atomic.FetchAdd(&g.refcount, -1) == 0
}

// RefCount reports the current refcount, for tests.
func (g *ThreadGroup) RefCount() atomic.Word { return atomic.LoadAcquire(&g.refcount) }

// Members calls fn for every live member thread.
func (g *ThreadGroup) Members(h *spinlock.Hart, fn func(*Thread)) {
	g.mu.Lock(h)
	defer g.mu.Unlock(h)
	// members is populated with *groupMember wrappers; iterate and unwrap.
	g.forEachMemberLocked(fn)
}

func (g *ThreadGroup) forEachMemberLocked(fn func(*Thread)) {
	for _, gm := range g.snapshot() {
		fn(gm.t)
	}
}

func (g *ThreadGroup) snapshot() []*groupMember {
	out := make([]*groupMember, 0, g.members.Len())
	g.members.Foreach(func(gm *groupMember) { out = append(out, gm) })
	return out
}

// addMember links t into the group, taking g.mu itself.
func (g *ThreadGroup) addMember(h *spinlock.Hart, t *Thread) {
	g.mu.Lock(h)
	g.members.PushBack(&groupMember{t: t})
	g.mu.Unlock(h)
}

// removeMember unlinks t from the group, returning the member count that
// remains.
func (g *ThreadGroup) removeMember(h *spinlock.Hart, t *Thread) int {
	g.mu.Lock(h)
	for _, gm := range g.snapshot() {
		if gm.t == t {
			g.members.Detach(gm)
		}
	}
	remaining := g.members.Len()
	g.mu.Unlock(h)
	return remaining
}

// LiveCount returns the number of currently-linked members.
func (g *ThreadGroup) LiveCount(h *spinlock.Hart) int {
	g.mu.Lock(h)
	defer g.mu.Unlock(h)
	return g.members.Len()
}

// enterStop/leaveStop maintain the group-stop counter around a member's
// STOPPED parking in handle_signal.
func (g *ThreadGroup) enterStop() { atomic.FetchAdd(&g.stopCount, 1) }
func (g *ThreadGroup) leaveStop() { atomic.FetchAdd(&g.stopCount, -1) }

// StoppedCount reports how many members are currently stopped.
func (g *ThreadGroup) StoppedCount() int {
	return int(atomic.LoadAcquire(&g.stopCount))
}

// SetGroupExit records exit_group's sticky flag and code. Lock-free like
// the thread flags: group_exit is written once and only ever read
// afterward, so there is nothing for a mutex to order.
func (g *ThreadGroup) SetGroupExit(code int) {
	atomic.StoreRelease(&g.groupExitCode, atomic.Word(code))
	atomic.StoreRelease(&g.groupExit, 1)
}

// GroupExiting reports whether exit_group has been called for this group.
// Safe to call with no hart context at all (unlike the rest of this
// package), which is exactly why it is lock-free: a harness asserting on a
// thread group after its threads have already exited has no live hart to
// borrow.
func (g *ThreadGroup) GroupExiting() bool {
	return atomic.LoadAcquire(&g.groupExit) != 0
}

// GroupExitCode returns the recorded exit_group status.
func (g *ThreadGroup) GroupExitCode() int {
	return int(atomic.LoadAcquire(&g.groupExitCode))
}
