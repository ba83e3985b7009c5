package proc

import (
	"github.com/sirupsen/logrus"

	"github.com/rvos/rvkernel/pkg/kernel/errno"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
)

// Kill implements kill(pid, sig): process-directed if pid == tgid of
// some group, thread-directed (== tkill) otherwise.
func (k *Kernel) Kill(h *spinlock.Hart, sig int, pid int) error {
	if g := k.LookupGroup(pid); g != nil {
		return k.sendGroup(h, g, sig, Siginfo{Signo: sig})
	}
	if t := k.LookupThread(pid); t != nil {
		return k.Send(h, t, sig, Siginfo{Signo: sig})
	}
	return errno.ESRCH
}

// Tkill implements tkill(tid, sig): always thread-directed.
func (k *Kernel) Tkill(h *spinlock.Hart, sig int, tid int) error {
	t := k.LookupThread(tid)
	if t == nil {
		return errno.ESRCH
	}
	return k.Send(h, t, sig, Siginfo{Signo: sig})
}

// Tgkill implements tgkill(tgid, tid, sig): thread-directed, verifying
// group membership.
func (k *Kernel) Tgkill(h *spinlock.Hart, sig int, tgid int, tid int) error {
	t := k.LookupThread(tid)
	if t == nil || t.TGID() != tgid {
		return errno.ESRCH
	}
	return k.Send(h, t, sig, Siginfo{Signo: sig})
}

// sendGroup delivers a process-directed signal into the thread group's
// shared pending queue: one eligible thread — the leader if unblocked,
// else any member with sig unmasked — is chosen to own the delivery
// side-effects (wake/IPI/KILLED); SIGCONT instead wakes every stopped
// member.
func (k *Kernel) sendGroup(h *spinlock.Hart, g *ThreadGroup, sig int, info Siginfo) error {
	g.Sigacts.lock.Lock(h)
	if g.Sigacts.saIgnore&sigmask(sig) != 0 {
		g.Sigacts.lock.Unlock(h)
		return nil
	}
	g.SharedPending.Enqueue(sig, info, g.Sigacts.actions[sig].Flags&SASigInfo != 0)
	if g.Sigacts.saStop&sigmask(sig) != 0 {
		g.SharedPending.ClearConts()
	}
	if sig == SIGCONT {
		g.SharedPending.ClearStops(g.Sigacts.saStop)
	}
	blocked := g.Sigacts.blocked
	g.Sigacts.lock.Unlock(h)

	var chosen *Thread
	g.Members(h, func(m *Thread) {
		if chosen != nil {
			return
		}
		if m == g.Leader && blocked&sigmask(sig) == 0 {
			chosen = m
			return
		}
		if m.Sigacts().Blocked(h)&sigmask(sig) == 0 {
			chosen = m
		}
	})

	if sig == SIGCONT {
		g.Members(h, func(m *Thread) {
			if m.State() == StateStopped {
				k.deliverWakeEffects(h, m, sig)
			}
		})
		return nil
	}

	if chosen == nil {
		return nil
	}
	chosen.flags.Set(FlagSigPending)
	k.deliverWakeEffects(h, chosen, sig)
	return nil
}

// Send is __signal_send: deliver one signal to a single target thread.
func (k *Kernel) Send(h *spinlock.Hart, t *Thread, sig int, info Siginfo) error {
	st := t.State()
	if st == StateUnused || st == StateZombie || t.Killed() {
		return errno.ESRCH
	}

	sa := t.sigacts
	sa.lock.Lock(h)
	if sa.saIgnore&sigmask(sig) != 0 && t.sigacts.actions[sig].Handler == nil {
		sa.lock.Unlock(h)
		return nil
	}
	t.pending.Enqueue(sig, info, sa.actions[sig].Flags&SASigInfo != 0)
	// Stop/cont antagonism applies at send time, on the queue the signal
	// landed in: a stop cancels any pending SIGCONT and vice versa.
	if sa.saStop&sigmask(sig) != 0 {
		t.pending.ClearConts()
	}
	if sig == SIGCONT {
		t.pending.ClearStops(sa.saStop)
	}
	blocked := sa.blocked
	t.recalcSigPending(h)
	sa.lock.Unlock(h)

	unblocked := blocked&sigmask(sig) == 0

	if sa.saTerm&sigmask(sig) != 0 && unblocked {
		t.SetKilled()
	}

	if unblocked {
		k.deliverWakeEffects(h, t, sig)
	}

	k.log.WithFields(logrus.Fields{"tid": t.pid, "sig": sig}).Debug("signal sent")
	return nil
}

// deliverWakeEffects implements steps 3/4/6 of __signal_send: wake an
// interruptible sleeper for any unblocked signal, a stopped thread for
// SIGCONT (scheduler_wakeup_stopped) or SIGKILL, and a killable-only
// sleeper for SIGKILL alone — any other signal leaves an uninterruptible
// or killable wait undisturbed until its own wakeup arrives.
func (k *Kernel) deliverWakeEffects(h *spinlock.Hart, t *Thread, sig int) {
	st := t.State()
	switch {
	case st == StateStopped:
		if sig == SIGCONT || sig == SIGKILL {
			t.Resume()
		}
	case st.Interruptible():
		t.Resume()
	case st.Killable() && sig == SIGKILL:
		t.Resume()
	}
}

// recalcSigPending implements recalc_sigpending_tsk: sets
// THREAD_FLAG_SIGPENDING iff (pending|shared_pending) & ~blocked != 0.
// Caller holds t.sigacts.lock.
func (t *Thread) recalcSigPending(h *spinlock.Hart) {
	shared := sigset(0)
	if t.Group != nil && t.Group.SharedPending != nil {
		shared = t.Group.SharedPending.Pending()
	}
	if (t.pending.Pending()|shared)&^t.sigacts.blocked != 0 {
		t.flags.Set(FlagSigPending)
	} else {
		t.flags.Clear(FlagSigPending)
	}
}

// How values for Sigprocmask, mirroring POSIX
// SIG_BLOCK/SIG_UNBLOCK/SIG_SETMASK.
const (
	SigBlock   = 0
	SigUnblock = 1
	SigSetmask = 2
)

// Sigprocmask updates both the effective blocked mask and
// sa_original_mask in lockstep: the latter is what Sigreturn ORs back
// in, so a mask change made here persists across a handler's eventual
// sigreturn even though handle_signal's own act.Mask adjustments to
// blocked do not touch originalMask.
func (t *Thread) Sigprocmask(h *spinlock.Hart, how int, set sigset, hasSet bool) sigset {
	t.sigacts.lock.Lock(h)
	old := t.sigacts.originalMask
	if hasSet {
		switch how {
		case SigBlock:
			t.sigacts.blocked |= set
			t.sigacts.originalMask |= set
		case SigUnblock:
			t.sigacts.blocked &^= set
			t.sigacts.originalMask &^= set
		case SigSetmask:
			t.sigacts.blocked = set
			t.sigacts.originalMask = set
		}
		t.sigacts.blocked &^= sigmask(SIGKILL) | sigmask(SIGSTOP)
		t.sigacts.originalMask &^= sigmask(SIGKILL) | sigmask(SIGSTOP)
		t.recalcSigPending(h)
	}
	t.sigacts.lock.Unlock(h)
	return old
}

// Sigpending implements sigpending(2): the OR of per-thread and
// shared-pending masks, deliverable or not.
func (t *Thread) Sigpending() sigset {
	shared := sigset(0)
	if t.Group != nil && t.Group.SharedPending != nil {
		shared = t.Group.SharedPending.Pending()
	}
	return t.pending.Pending() | shared
}
