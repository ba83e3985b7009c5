package syncprim

// fakeWaiter is a minimal waitqueue.Waiter backed by channels, used by
// every primitive's test in this package in place of a real
// pkg/kernel/proc.Thread.
type fakeWaiter struct {
	resume chan struct{}
	parked chan struct{}
}

func newFakeWaiter() *fakeWaiter {
	return &fakeWaiter{resume: make(chan struct{}), parked: make(chan struct{}, 1)}
}

func (w *fakeWaiter) PrepareSleep(state int) {}

func (w *fakeWaiter) CommitSleep() {
	w.parked <- struct{}{}
	<-w.resume
}

func (w *fakeWaiter) Resume() {
	w.resume <- struct{}{}
}
