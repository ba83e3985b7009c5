package syncprim

import (
	"testing"
	"time"

	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
)

func TestRWSemReadersDontBlockEachOther(t *testing.T) {
	h := spinlock.NewHart(0)
	s := NewRWSem()
	if errc := s.RLock(h, newFakeWaiter(), 0); errc != 0 {
		t.Fatalf("RLock() = %d, want 0", errc)
	}
	if errc := s.RLock(h, newFakeWaiter(), 0); errc != 0 {
		t.Fatalf("second RLock() = %d, want 0", errc)
	}
	s.RUnlock(h)
	s.RUnlock(h)
}

func TestRWSemWriterWaitsForReaders(t *testing.T) {
	h := spinlock.NewHart(0)
	s := NewRWSem()
	s.RLock(h, newFakeWaiter(), 0)

	w := newFakeWaiter()
	done := make(chan int, 1)
	go func() { done <- s.Lock(h, w, 42, 0) }()
	<-w.parked

	s.RUnlock(h)

	select {
	case errc := <-done:
		if errc != 0 {
			t.Fatalf("Lock() = %d, want 0", errc)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for writer to acquire after last reader left")
	}
	s.Unlock(h, 42)
}

func TestRWSemWriterPriorityOverNewReaders(t *testing.T) {
	h := spinlock.NewHart(0)
	s := NewRWSem()
	s.RLock(h, newFakeWaiter(), 0) // hold one reader so the writer below queues

	writerW := newFakeWaiter()
	writerDone := make(chan int, 1)
	go func() { writerDone <- s.Lock(h, writerW, 1, 0) }()
	<-writerW.parked

	readerW := newFakeWaiter()
	readerDone := make(chan int, 1)
	go func() { readerDone <- s.RLock(h, readerW, 0) }()
	<-readerW.parked

	s.RUnlock(h) // release the original reader; writer should go next, not the new reader

	select {
	case errc := <-writerDone:
		if errc != 0 {
			t.Fatalf("writer Lock() = %d, want 0", errc)
		}
	case <-time.After(time.Second):
		t.Fatal("writer never acquired")
	}

	select {
	case <-readerDone:
		t.Fatal("new reader acquired before the waiting writer")
	case <-time.After(50 * time.Millisecond):
	}

	s.Unlock(h, 1)
	select {
	case errc := <-readerDone:
		if errc != 0 {
			t.Fatalf("reader RLock() = %d, want 0", errc)
		}
	case <-time.After(time.Second):
		t.Fatal("reader never acquired after writer released")
	}
}

func TestRWSemUnlockByNonOwnerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	h := spinlock.NewHart(0)
	s := NewRWSem()
	s.Lock(h, newFakeWaiter(), 1, 0)
	s.Unlock(h, 2)
}
