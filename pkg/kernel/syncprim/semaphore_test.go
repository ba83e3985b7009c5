package syncprim

import (
	"testing"
	"time"

	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
)

func TestSemaphoreTryWaitRespectsCount(t *testing.T) {
	h := spinlock.NewHart(0)
	s := NewSemaphore(2)
	if !s.TryWait() {
		t.Fatal("first TryWait should succeed")
	}
	if !s.TryWait() {
		t.Fatal("second TryWait should succeed")
	}
	if s.TryWait() {
		t.Fatal("third TryWait should fail, count exhausted")
	}
	s.Post(h)
	if !s.TryWait() {
		t.Fatal("TryWait should succeed again after a Post")
	}
}

func TestSemaphorePostFromZeroWakesWaiter(t *testing.T) {
	h := spinlock.NewHart(0)
	s := NewSemaphore(0)

	w := newFakeWaiter()
	done := make(chan int, 1)
	go func() { done <- s.Wait(h, w, 0) }()
	<-w.parked

	// Posting above the initial value is the whole point of a counting
	// semaphore; the parked waiter consumes the unit.
	s.Post(h)

	select {
	case errc := <-done:
		if errc != 0 {
			t.Fatalf("Wait() = %d, want 0", errc)
		}
	case <-time.After(time.Second):
		t.Fatal("Post never woke the waiter")
	}
	if s.Count() != 0 {
		t.Fatalf("Count() = %d after post+wait from zero, want 0", s.Count())
	}
}

func TestSemaphorePostAboveInitialAccumulates(t *testing.T) {
	h := spinlock.NewHart(0)
	s := NewSemaphore(0)
	s.Post(h)
	s.Post(h)
	if s.Count() != 2 {
		t.Fatalf("Count() = %d after two posts from zero, want 2", s.Count())
	}
	if !s.TryWait() || !s.TryWait() {
		t.Fatal("both banked units should be consumable")
	}
	if s.TryWait() {
		t.Fatal("no units should remain")
	}
}

func TestSemaphoreWaitInterruptedReturnsEINTR(t *testing.T) {
	h := spinlock.NewHart(0)
	s := NewSemaphore(0)

	w := newFakeWaiter()
	done := make(chan int, 1)
	go func() { done <- s.Wait(h, w, 0) }()
	<-w.parked

	// Async wakeup (signal path): resume the waiter without a Post.
	w.Resume()

	select {
	case errc := <-done:
		if errc != -4 { // errno.EINTR
			t.Fatalf("interrupted Wait() = %d, want -4 (EINTR)", errc)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	if s.Count() != 0 {
		t.Fatalf("Count() = %d, an interrupted wait must not consume a unit", s.Count())
	}
}
