package proc

import (
	"github.com/rvos/rvkernel/pkg/kernel/errno"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
	"github.com/rvos/rvkernel/pkg/kernel/waitqueue"
)

// Wait implements wait(status_out): reap one ZOMBIE child (the group
// leader of some child thread group), or sleep on the caller's
// ChildWaitQ until exit(2) wakes it. Returns -ECHILD immediately if the
// caller has no living children at all.
func (k *Kernel) Wait(h *spinlock.Hart, parent *Thread) (tgid int, status int, err error) {
	for {
		parent.TCBLock.Lock(h)
		var zombie *Thread
		hasChildren := parent.children.Len() > 0
		parent.children.Foreach(func(c *Thread) {
			if zombie != nil {
				return
			}
			// A zombie leader is reapable only once the rest of its group
			// has exited; until then the process as a whole still lives.
			if c.State() == StateZombie && c.Group.Leader == c && c.Group.LiveCount(h) == 0 {
				zombie = c
			}
		})
		if zombie != nil {
			parent.children.Detach(zombie)
			parent.TCBLock.Unlock(h)
			rtgid, rstatus := k.reapZombie(zombie)
			return rtgid, rstatus, nil
		}
		if !hasChildren {
			parent.TCBLock.Unlock(h)
			return -1, 0, errno.ECHILD
		}

		// TCBLock is held from the scan through the enqueue; exit(2)'s
		// notifyParent takes the same lock before waking ChildWaitQ, so a
		// child exiting between the scan and the sleep cannot slip by.
		errc, _ := waitqueue.WaitInStateCB(parent.ChildWaitQ, parent,
			spinlock.SleepCB(parent.TCBLock, h),
			spinlock.WakeCB(parent.TCBLock, h),
			nil, int(StateInterruptible))
		parent.TCBLock.Unlock(h)
		if errc != 0 {
			return -1, 0, errno.EINTR
		}
		// Woken by exit(2)'s notifyParent; loop and rescan for the zombie.
	}
}

// reapZombie finalizes a reaped child: drops it from the PID table and
// schedules its structure for RCU-deferred reclamation.
func (k *Kernel) reapZombie(zombie *Thread) (int, int) {
	tgid := zombie.TGID()
	status := zombie.ExitCode
	k.pids.removeThread(zombie.pid)
	cpu := 0
	if zombie.Harts != nil {
		cpu = zombie.Harts.ID
	}
	k.RCU.CallRCU(cpu, func() {
		// zombie becomes unreachable once this runs; Go's GC reclaims the
		// struct itself once the grace period has passed.
	})
	return tgid, status
}
