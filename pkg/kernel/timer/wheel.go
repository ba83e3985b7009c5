// Package timer implements the backing store for sleep(ms) and uptime():
// a jiffy counter plus an ordered set of pending callbacks due at some
// future jiffy. Pending timers are keyed into an ordered tree rather
// than a literal array of buckets — the same ordered role
// pkg/kernel/waitqueue gives to github.com/google/btree, reused here
// rather than hand-rolling a second tree type.
package timer

import (
	"sync"

	"github.com/google/btree"
)

// Node is one scheduled callback. The zero value is not usable; obtain
// one from Wheel.Add.
type Node struct {
	expires uint64
	seq     uint64
	fn      func()
}

// Less implements btree.Item: order by expiry, ties broken by insertion
// sequence so same-jiffy timers fire in the order they were armed.
func (n *Node) Less(than btree.Item) bool {
	o := than.(*Node)
	if n.expires != o.expires {
		return n.expires < o.expires
	}
	return n.seq < o.seq
}

// Wheel is the current jiffy count plus the tree of pending nodes. One
// Wheel per kernel, ticked by a single driver goroutine standing in for
// the timer interrupt.
type Wheel struct {
	mu      sync.Mutex
	tree    *btree.BTree
	nextSeq uint64
	jiffies uint64
}

// New returns an empty wheel at jiffy 0.
func New() *Wheel {
	return &Wheel{tree: btree.New(32)}
}

// Jiffies returns the current tick count.
func (w *Wheel) Jiffies() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jiffies
}

// Add arms fn to run once the wheel has advanced by delay jiffies from
// now.
func (w *Wheel) Add(delay uint64, fn func()) *Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := &Node{expires: w.jiffies + delay, seq: w.nextSeq, fn: fn}
	w.nextSeq++
	w.tree.ReplaceOrInsert(n)
	return n
}

// Remove cancels n if it has not yet fired, reporting whether it found
// (and removed) a still-pending node. A caller uses the
// return value to tell a natural timeout apart from cancellation: once
// Tick has already fired and dropped n, Remove is a no-op and reports
// false.
func (w *Wheel) Remove(n *Node) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tree.Delete(n) != nil
}

// Tick advances the wheel by one jiffy and fires every node whose expiry
// has now been reached, in expiry then insertion order. Callbacks run
// after the wheel's own lock is released, so a callback is free to Add a
// new timer without deadlocking.
func (w *Wheel) Tick() {
	w.mu.Lock()
	w.jiffies++
	pivot := &Node{expires: w.jiffies + 1}
	var due []*Node
	w.tree.AscendLessThan(pivot, func(i btree.Item) bool {
		due = append(due, i.(*Node))
		return true
	})
	for _, n := range due {
		w.tree.Delete(n)
	}
	w.mu.Unlock()

	for _, n := range due {
		n.fn()
	}
}

// Pending reports how many timers are currently armed, for tests.
func (w *Wheel) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tree.Len()
}
