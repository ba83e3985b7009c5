package proc

// Exit implements exit(n): the current thread exits with status code.
// Non-leader threads of a CLONE_THREAD group self-reap immediately; the
// leader becomes a ZOMBIE and waits for wait(2).
func (k *Kernel) Exit(t *Thread, code int) {
	h := t.hart()
	t.ExitCode = code

	t.TCBLock.Lock(h)
	t.setState(StateExiting)
	t.TCBLock.Unlock(h)

	leader := t.Group.Leader == t
	remaining := t.Group.removeMember(h, t) // returns live member count after removal

	// Drop the sigacts reference; the table is reclaimed with the last one.
	t.sigacts.DecRef()

	if t.vforkDone != nil {
		t.vforkDone.Complete(h)
	}

	if !leader && t.Group.Kernel == k {
		// CLONE_THREAD non-leader: self-reap, per THREAD_FLAG_SELF_REAP.
		t.flags.Set(FlagSelfReap)
		t.TCBLock.Lock(h)
		t.setState(StateZombie)
		t.TCBLock.Unlock(h)
		t.Group.DecRef()
		k.pids.removeThread(t.pid)
		k.log.WithField("tid", t.pid).Debug("thread self-reaped")
	} else {
		t.TCBLock.Lock(h)
		t.setState(StateZombie)
		t.TCBLock.Unlock(h)
		k.notifyParent(t)
		k.log.WithField("tid", t.pid).Debug("leader thread became zombie")
	}

	if remaining == 0 {
		if !leader {
			// The last member just left a group whose leader is already a
			// zombie; the leader only now became reapable, so the parent's
			// wait(2) must be woken again.
			k.wakeParent(t.Group.Leader)
		}
		k.reapGroup(t.Group)
	}

	t.yieldSig <- struct{}{}
}

// ExitGroup implements exit_group(n): the whole thread group exits.
// Sets the group's sticky exit flag and code, then delivers SIGKILL to
// every member but the caller — each one's own Exit call drives it the
// rest of the way to ZOMBIE/self-reap. A member parked in an
// uninterruptible wait acts on the SIGKILL only once that wait ends.
func (k *Kernel) ExitGroup(t *Thread, code int) {
	h := t.hart()
	t.Group.SetGroupExit(code)
	t.Group.Members(h, func(m *Thread) {
		if m != t {
			k.Send(h, m, SIGKILL, Siginfo{Signo: SIGKILL})
		}
	})
	k.Exit(t, code)
}

// wakeParent wakes t's parent's ChildWaitQ, the per-parent channel
// wait(2) sleeps on.
func (k *Kernel) wakeParent(t *Thread) {
	if t.Parent == nil {
		return
	}
	t.Parent.TCBLock.Lock(t.hart())
	t.Parent.ChildWaitQ.WakeupAll()
	t.Parent.TCBLock.Unlock(t.hart())
}

// notifyParent is wakeParent plus delivery of the thread's exit signal
// (clone's esignal, 0 = none).
func (k *Kernel) notifyParent(t *Thread) {
	if t.Parent == nil {
		return
	}
	k.wakeParent(t)

	if t.ExitSignal != 0 {
		k.Send(t.hart(), t.Parent, t.ExitSignal, Siginfo{Signo: t.ExitSignal, Sender: t.PID()})
	}
}

// reapGroup drops the kernel's PID-table entry for a thread group once
// its last member has exited.
func (k *Kernel) reapGroup(g *ThreadGroup) {
	if !g.DecRef() {
		return
	}
	k.pids.removeGroup(g.tgid)
	k.log.WithField("tgid", g.tgid).Debug("thread group reaped")
}
