package proc

import (
	"time"

	"github.com/rvos/rvkernel/pkg/kernel/errno"
)

// jiffiesFor converts a millisecond duration to a jiffy count at the
// kernel's configured tick rate, rounding up so a sleep never returns
// early because of truncation.
func (k *Kernel) jiffiesFor(ms int) uint64 {
	interval := k.Config.JiffyInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	d := time.Duration(ms) * time.Millisecond
	n := uint64(d / interval)
	if d%interval != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}

// SleepMS implements sleep(ms): an interruptible timed sleep built on
// the timer wheel. The expiry continuation is simply Thread.Resume,
// already idempotent against a racing signal-delivery wakeup — whichever
// of the timer or a signal calls it first wins, the other is a no-op.
//
// Returns nil once the full duration has elapsed, or -EINTR if woken
// early by an unblocked signal.
func (k *Kernel) SleepMS(t *Thread, ms int) error {
	// Sleeping state first, then arm: if the wheel fires between Add and
	// CommitSleep, Resume already observes a sleeper and the wake is kept.
	t.PrepareSleep(int(StateTimer))
	node := k.Timers.Add(k.jiffiesFor(ms), t.Resume)

	t.CommitSleep()

	if k.Timers.Remove(node) {
		// Still pending: something other than the timer woke us first.
		return errno.EINTR
	}
	return nil
}

// Uptime implements uptime(): jiffies elapsed since Start.
func (k *Kernel) Uptime() uint64 {
	return k.Timers.Jiffies()
}
