package syncprim

import (
	"testing"
	"time"

	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
)

func TestMutexUncontendedLockUnlock(t *testing.T) {
	h := spinlock.NewHart(0)
	m := NewMutex()
	if errc := m.Lock(h, newFakeWaiter(), 1, 0); errc != 0 {
		t.Fatalf("Lock() = %d, want 0", errc)
	}
	if m.Owner() != 1 {
		t.Fatalf("Owner() = %d, want 1", m.Owner())
	}
	m.Unlock(h, 1)
	if m.Owner() != 0 {
		t.Fatalf("Owner() = %d after Unlock, want 0", m.Owner())
	}
}

func TestMutexContendedHandsOffOwnership(t *testing.T) {
	h := spinlock.NewHart(0)
	m := NewMutex()
	m.Lock(h, newFakeWaiter(), 1, 0)

	w2 := newFakeWaiter()
	done := make(chan int, 1)
	go func() {
		errc := m.Lock(h, w2, 2, 0)
		done <- errc
	}()
	<-w2.parked

	m.Unlock(h, 1)

	select {
	case errc := <-done:
		if errc != 0 {
			t.Fatalf("contended Lock() = %d, want 0", errc)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for contended locker")
	}
	if m.Owner() != 2 {
		t.Fatalf("Owner() = %d, want 2 (handed off)", m.Owner())
	}
}

func TestMutexSelfDeadlockPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on self-deadlock")
		}
	}()
	h := spinlock.NewHart(0)
	m := NewMutex()
	m.Lock(h, newFakeWaiter(), 1, 0)
	m.Lock(h, newFakeWaiter(), 1, 0)
}

func TestMutexUnlockByNonOwnerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic unlocking from a non-owner pid")
		}
	}()
	h := spinlock.NewHart(0)
	m := NewMutex()
	m.Lock(h, newFakeWaiter(), 1, 0)
	m.Unlock(h, 2)
}
