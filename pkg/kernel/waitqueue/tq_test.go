package waitqueue

import (
	"testing"
	"time"
)

// fakeWaiter is a minimal Waiter backed by a channel, standing in for
// pkg/kernel/proc.Thread the way the package doc promises.
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

func TestWakeupFIFOOrder(t *testing.T) {
	var tq TQ
	w1, w2 := newFakeWaiter(), newFakeWaiter()
	done := make(chan int, 2)

	go func() {
		errc, _ := WaitInStateCB(&tq, w1, nil, nil, 1, 0)
		done <- errc
	}()
	<-w1.parked

	go func() {
		errc, _ := WaitInStateCB(&tq, w2, nil, nil, 2, 0)
		done <- errc
	}()
	<-w2.parked

	if tq.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tq.Len())
	}

	if !tq.Wakeup() {
		t.Fatal("Wakeup() = false, want true (a waiter is queued)")
	}
	select {
	case errc := <-done:
		if errc != 0 {
			t.Fatalf("woken waiter errno = %d, want 0", errc)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first wakeup")
	}
	if tq.Len() != 1 {
		t.Fatalf("Len() = %d after one Wakeup, want 1", tq.Len())
	}
}

func TestWakeupAllDrainsQueue(t *testing.T) {
	var tq TQ
	waiters := []*fakeWaiter{newFakeWaiter(), newFakeWaiter(), newFakeWaiter()}
	done := make(chan struct{}, len(waiters))
	for i, w := range waiters {
		w := w
		i := i
		go func() {
			WaitInStateCB(&tq, w, nil, nil, i, 0)
			done <- struct{}{}
		}()
		<-w.parked
	}
	if n := tq.WakeupAll(); n != len(waiters) {
		t.Fatalf("WakeupAll() = %d, want %d", n, len(waiters))
	}
	for range waiters {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for a waiter to wake")
		}
	}
	if tq.Len() != 0 {
		t.Fatalf("Len() = %d after WakeupAll, want 0", tq.Len())
	}
}

func TestAsyncWakeupLeavesEINTR(t *testing.T) {
	var tq TQ
	w := newFakeWaiter()
	done := make(chan int, 1)
	go func() {
		errc, _ := WaitInStateCB(&tq, w, nil, nil, nil, 0)
		done <- errc
	}()
	<-w.parked

	// Simulate an async wake (signal interruption) bypassing tq.Wakeup:
	// resume the goroutine directly without popping its Tnode.
	w.Resume()

	select {
	case errc := <-done:
		if errc != -4 { // errno.EINTR
			t.Fatalf("errno = %d, want -4 (EINTR)", errc)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	if tq.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after self-detach", tq.Len())
	}
}

func TestSleepAndWakeCallbacksInvoked(t *testing.T) {
	var tq TQ
	w := newFakeWaiter()
	var sleepCalled, wakeCalled bool
	sleepCB := func() any {
		sleepCalled = true
		return "sleep-status"
	}
	var gotStatus any
	wakeCB := func(data any, status any) {
		wakeCalled = true
		gotStatus = status
	}

	done := make(chan struct{})
	go func() {
		WaitInStateCB(&tq, w, sleepCB, wakeCB, "payload", 0)
		close(done)
	}()
	<-w.parked
	tq.Wakeup()
	<-done

	if !sleepCalled || !wakeCalled {
		t.Fatalf("sleepCalled=%v wakeCalled=%v, want both true", sleepCalled, wakeCalled)
	}
	if gotStatus != "sleep-status" {
		t.Fatalf("wakeCB status = %v, want %q", gotStatus, "sleep-status")
	}
}
