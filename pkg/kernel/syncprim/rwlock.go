// Package syncprim implements the higher-level blocking primitives —
// mutex, rwsem, rwlock, completion, semaphore. All but rwlock are built
// on pkg/kernel/waitqueue, which parks every blocked caller; rwlock is a
// spin lock and never parks.
package syncprim

import (
	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/errno"
)

// writerHeld, waiterBit and the reader-count shift carve up the 64-bit
// rwlock state word: bits 0-7 writer-holding (0xFF held), bit 8
// writer-waiting hint, bits 9-63 reader count.
const (
	writerHeld   atomic.Word = 0xFF
	waiterBit    atomic.Word = 1 << 8
	readerShift              = 9
	readerUnit   atomic.Word = 1 << readerShift

	// expediteThreshold bounds how long a writer spins before setting the
	// waiter hint bit.
	expediteThreshold = 1000
)

// RWLock is the spin rwlock variant: used for short, CPU-local critical
// sections (e.g. the global pid table) where blocking in a wait queue
// would be overkill. It never sleeps — contended acquire spins, exactly
// like SpinLock, but allows concurrent readers.
type RWLock struct {
	state atomic.Word
}

// NewRWLock returns an unlocked rwlock.
func NewRWLock() *RWLock { return &RWLock{} }

// The writer-holding bits, when non-zero, always equal writerHeld (0xFF);
// there is no separate writer-identity field in the spin variant, unlike
// rwsem's writer PID (see rwsem.go). A writer that needs to re-enter on
// the read side keeps using its write hold directly, so write->read
// recursion never touches the reader count.

// RLock acquires a read hold.
func (l *RWLock) RLock() {
	for {
		old := atomic.LoadAcquire(&l.state)
		if old&writerHeld == writerHeld {
			atomic.Relax()
			continue
		}
		if atomic.CAS(&l.state, old, old+readerUnit) {
			return
		}
		atomic.Relax()
	}
}

// RUnlock releases a read hold.
func (l *RWLock) RUnlock() {
	if atomic.FetchAdd(&l.state, -readerUnit) < 0 {
		errno.Fatal("rwlock: reader count underflow")
	}
}

// Lock acquires a write hold, expediting (ignoring the waiter-backoff
// hint) after spinning past expediteThreshold iterations.
func (l *RWLock) Lock() {
	spins := 0
	for {
		old := atomic.LoadAcquire(&l.state)
		noReaders := old>>readerShift == 0
		noWriter := old&writerHeld == 0
		expedited := spins > expediteThreshold
		if noReaders && noWriter && (old&waiterBit == 0 || expedited) {
			if atomic.CAS(&l.state, old, writerHeld) {
				return
			}
		} else if !noReaders || !noWriter {
			if spins == expediteThreshold {
				atomic.FetchOr(&l.state, waiterBit)
			}
		}
		spins++
		atomic.Relax()
	}
}

// Unlock releases a write hold.
func (l *RWLock) Unlock() {
	if atomic.LoadAcquire(&l.state)&writerHeld != writerHeld {
		errno.Fatal("rwlock: Unlock without writer held")
	}
	atomic.StoreRelease(&l.state, 0)
}
