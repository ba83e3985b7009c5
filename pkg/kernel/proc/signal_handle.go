package proc

import (
	"math/bits"

	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
)

// lowestBit returns the lowest-numbered set signal in m, or 0 if m == 0.
func lowestBit(m sigset) int {
	if m == 0 {
		return 0
	}
	return bits.TrailingZeros32(uint32(m)) + 1
}

// HandleSignal is handle_signal: run only on return to user space,
// looping until no unmasked pending signal remains. In this simulation
// "return to user space" is simply the point where a thread's entry
// closure checks SigPending and calls this.
func (k *Kernel) HandleSignal(h *spinlock.Hart, t *Thread) {
	for {
		t.sigacts.lock.Lock(h)
		shared := t.Group.SharedPending.Pending()
		localPending := t.pending.Pending()
		blocked := t.sigacts.blocked
		deliverable := (localPending | shared) &^ blocked

		if deliverable == 0 {
			t.flags.Clear(FlagSigPending)
			t.sigacts.lock.Unlock(h)
			return
		}

		// group_exit is a sticky flag checked here every loop iteration,
		// ahead of the stop/cont logic below, so a sibling still waiting
		// out a blocked terminal signal exits as soon as exit_group has
		// been set for its group, rather than lingering until its own
		// SIGKILL is individually dequeued.
		if t.Group.GroupExiting() {
			t.sigacts.lock.Unlock(h)
			k.Exit(t, t.Group.GroupExitCode())
			return
		}

		if deliverable&t.sigacts.saTerm != 0 {
			sig := lowestBit(deliverable & t.sigacts.saTerm)
			atomic.FetchAdd(&t.signalsDelivered, 1)
			t.sigacts.lock.Unlock(h)
			// The default action for a terminal signal brings down the
			// whole thread group, not just this thread; ExitGroup chases
			// down every sibling with SIGKILL.
			k.ExitGroup(t, 128+sig)
			return
		}

		if deliverable&sigmask(SIGCONT) != 0 && t.sigacts.actions[SIGCONT].Handler == nil {
			t.pending.ClearStops(t.sigacts.saStop)
			t.pending.mask &^= sigmask(SIGCONT)
			t.Group.SharedPending.ClearStops(t.sigacts.saStop)
			t.Group.SharedPending.mask &^= sigmask(SIGCONT)
			t.recalcSigPending(h)
			t.sigacts.lock.Unlock(h)
			continue
		}

		if deliverable&t.sigacts.saStop != 0 && deliverable&sigmask(SIGCONT) == 0 {
			t.pending.ClearStops(t.sigacts.saStop)
			t.Group.SharedPending.ClearStops(t.sigacts.saStop)
			t.recalcSigPending(h)
			t.sigacts.lock.Unlock(h)

			t.Group.enterStop()
			t.Park(int(StateStopped))
			t.Group.leaveStop()
			continue
		}

		sig := lowestBit(deliverable)
		var info Siginfo
		if localPending&sigmask(sig) != 0 {
			info = t.pending.DequeueExact(sig)
		} else {
			info = t.Group.SharedPending.DequeueExact(sig)
		}

		atomic.FetchAdd(&t.signalsDelivered, 1)
		act := t.sigacts.actions[sig]
		oldMask := t.sigacts.blocked
		if act.Flags&SANoDefer == 0 {
			t.sigacts.blocked |= sigmask(sig)
		}
		t.sigacts.blocked |= act.Mask
		t.sigacts.blocked &^= sigmask(SIGKILL) | sigmask(SIGSTOP)
		if act.Flags&SAResetHand != 0 {
			t.sigacts.actions[sig] = sigaction{}
			t.sigacts.recompute()
		}
		t.recalcSigPending(h)
		handler := act.Handler
		t.sigacts.lock.Unlock(h)

		if handler != nil {
			k.runSignalFrame(t, sig, info, handler, oldMask)
		}
		// SIGCONT/stop bookkeeping aside, a signal with no installed
		// handler and a non-terminal default action (e.g. SIGCHLD) is
		// simply consumed here with no further effect.
	}
}
