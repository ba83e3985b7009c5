// Package atomic wraps the standard library's sync/atomic with the typed
// acquire/release vocabulary the rest of the kernel is written against,
// plus a CAS-loop helper.
package atomic

import (
	"runtime"
	"sync/atomic"
)

// Word is the machine-word sized value every primitive in this package
// operates on.
type Word = int64

// LoadAcquire performs an acquire load: no later memory operation in this
// goroutine is allowed to be reordered before it.
func LoadAcquire(addr *Word) Word {
	return atomic.LoadInt64(addr)
}

// StoreRelease performs a release store: no earlier memory operation in
// this goroutine is allowed to be reordered after it.
func StoreRelease(addr *Word, val Word) {
	atomic.StoreInt64(addr, val)
}

// CAS performs a compare-and-swap.
func CAS(addr *Word, old, new Word) bool {
	return atomic.CompareAndSwapInt64(addr, old, new)
}

// FetchAdd atomically adds delta and returns the new value.
func FetchAdd(addr *Word, delta Word) Word {
	return atomic.AddInt64(addr, delta)
}

// FetchOr atomically ORs mask into *addr and returns the previous value.
func FetchOr(addr *Word, mask Word) Word {
	for {
		old := atomic.LoadInt64(addr)
		if atomic.CompareAndSwapInt64(addr, old, old|mask) {
			return old
		}
	}
}

// FetchAnd atomically ANDs mask into *addr and returns the previous value.
func FetchAnd(addr *Word, mask Word) Word {
	for {
		old := atomic.LoadInt64(addr)
		if atomic.CompareAndSwapInt64(addr, old, old&mask) {
			return old
		}
	}
}

// Fence is a sequentially consistent fence, the smp_mb equivalent. Go's
// memory model gives atomic operations acquire/release semantics already;
// Fence exists so call sites that want to document "a full barrier
// belongs here" have something to call instead of relying on a
// coincidental atomic op for its side effect.
func Fence() {
	var x int32
	atomic.AddInt32(&x, 0)
}

// Relax is the spin-loop relaxation hint:
// yield the goroutine's time slice back to the Go scheduler instead of
// busy-looping the hart, which on a real multi-hart machine would be a
// WFE/PAUSE instruction and on goroutines-over-OS-threads is a
// runtime.Gosched.
func Relax() {
	runtime.Gosched()
}

// OperCond performs the classic atomic_oper_cond(ptr, new_expr,
// cond_expr) CAS-loop construct: newFn and condFn both see the
// most recently observed value of *addr. OperCond retries until either the
// CAS succeeds or condFn rejects the observed value, in which case it
// returns false without modifying *addr.
func OperCond(addr *Word, condFn func(old Word) bool, newFn func(old Word) Word) bool {
	for {
		old := atomic.LoadInt64(addr)
		if !condFn(old) {
			return false
		}
		if atomic.CompareAndSwapInt64(addr, old, newFn(old)) {
			return true
		}
		Relax()
	}
}

// Flag is a bitmask manipulated with atomic fetch-or/fetch-and, so
// read-modify-write never needs a lock.
type Flag struct {
	bits Word
}

// Set sets bit and reports whether it was already set.
func (f *Flag) Set(bit Word) bool {
	return FetchOr(&f.bits, bit)&bit != 0
}

// Clear clears bit and reports whether it was set.
func (f *Flag) Clear(bit Word) bool {
	return FetchAnd(&f.bits, ^bit)&bit != 0
}

// Test reports whether bit is set.
func (f *Flag) Test(bit Word) bool {
	return LoadAcquire(&f.bits)&bit != 0
}

// Load returns the full bitmask.
func (f *Flag) Load() Word {
	return LoadAcquire(&f.bits)
}
