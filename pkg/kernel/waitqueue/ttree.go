package waitqueue

import (
	"github.com/google/btree"

	"github.com/rvos/rvkernel/pkg/kernel/errno"
)

// TtreeNode is the keyed counterpart of Tnode for the tree-flavored wait
// queue. A pointer-tagged parent/color rb-node encoding doesn't translate
// to Go, so the ordered-tree role is played by github.com/google/btree,
// keyed by (Key, sequence): ties break deterministically by insertion
// order, since Go gives no stable node address to break them on.
type TtreeNode struct {
	Key     int64
	seq     uint64
	Waiter  Waiter
	ErrorNo int
	Data    any
}

// Less implements btree.Item: order by key, then by insertion sequence.
func (n *TtreeNode) Less(than btree.Item) bool {
	o := than.(*TtreeNode)
	if n.Key != o.Key {
		return n.Key < o.Key
	}
	return n.seq < o.seq
}

// Ttree is the tree-flavored wait queue: waiters ordered by an integer
// sort key, used when wakeup order must follow a priority (e.g. waiters
// ordered by deadline).
type Ttree struct {
	t       *btree.BTree
	nextSeq uint64
	count   int
}

// NewTtree creates an empty tree wait queue. degree 32 matches the
// B-tree's own recommended default for in-memory use.
func NewTtree() *Ttree {
	return &Ttree{t: btree.New(32)}
}

// Len returns the number of waiters.
func (tt *Ttree) Len() int { return tt.count }

// Insert adds a waiter keyed by key and returns the node so the caller
// may later identify it for removal.
func (tt *Ttree) Insert(key int64, w Waiter, data any) *TtreeNode {
	n := &TtreeNode{Key: key, seq: tt.nextSeq, Waiter: w, ErrorNo: int(errno.EINTR), Data: data}
	tt.nextSeq++
	tt.t.ReplaceOrInsert(n)
	tt.count++
	return n
}

// Remove detaches n if present.
func (tt *Ttree) Remove(n *TtreeNode) {
	if tt.t.Delete(n) != nil {
		tt.count--
	}
}

// First returns the smallest-keyed node, or nil if empty.
func (tt *Ttree) First() *TtreeNode {
	var found *TtreeNode
	tt.t.Ascend(func(i btree.Item) bool {
		found = i.(*TtreeNode)
		return false
	})
	return found
}

// WakeupOne wakes the earliest-inserted node with exactly key.
func (tt *Ttree) WakeupOne(key int64) bool {
	var target *TtreeNode
	tt.t.AscendGreaterOrEqual(&TtreeNode{Key: key, seq: 0}, func(i btree.Item) bool {
		n := i.(*TtreeNode)
		if n.Key != key {
			return false
		}
		target = n
		return false
	})
	if target == nil {
		return false
	}
	tt.Remove(target)
	target.ErrorNo = 0
	target.Waiter.Resume()
	return true
}

// WakeupKey wakes every node with exactly key.
func (tt *Ttree) WakeupKey(key int64) int {
	var matches []*TtreeNode
	tt.t.AscendGreaterOrEqual(&TtreeNode{Key: key, seq: 0}, func(i btree.Item) bool {
		n := i.(*TtreeNode)
		if n.Key != key {
			return false
		}
		matches = append(matches, n)
		return true
	})
	for _, n := range matches {
		tt.Remove(n)
		n.ErrorNo = 0
		n.Waiter.Resume()
	}
	return len(matches)
}

// WakeupAll drains the tree, waking every node regardless of key.
func (tt *Ttree) WakeupAll() int {
	count := 0
	for {
		n := tt.First()
		if n == nil {
			return count
		}
		tt.Remove(n)
		n.ErrorNo = 0
		n.Waiter.Resume()
		count++
	}
}

// RoundUp returns the smallest node with Key >= key, or nil.
func (tt *Ttree) RoundUp(key int64) *TtreeNode {
	var found *TtreeNode
	tt.t.AscendGreaterOrEqual(&TtreeNode{Key: key, seq: 0}, func(i btree.Item) bool {
		found = i.(*TtreeNode)
		return false
	})
	return found
}

// RoundDown returns the largest node with Key <= key, or nil.
func (tt *Ttree) RoundDown(key int64) *TtreeNode {
	var found *TtreeNode
	tt.t.DescendLessOrEqual(&TtreeNode{Key: key, seq: ^uint64(0)}, func(i btree.Item) bool {
		found = i.(*TtreeNode)
		return false
	})
	return found
}

// WaitInStateCB is the tree-wait-queue counterpart of tq's
// WaitInStateCB: park w keyed by key, running sleepCB/wakeCB around the
// park exactly as the list variant does.
func (tt *Ttree) WaitInStateCB(key int64, w Waiter, sleepCB SleepFunc, wakeCB WakeFunc, data any, state int) (int, any) {
	w.PrepareSleep(state)

	n := tt.Insert(key, w, data)

	var status any
	if sleepCB != nil {
		status = sleepCB()
	}

	w.CommitSleep()

	if wakeCB != nil {
		wakeCB(data, status)
	}

	// Self-detach on the asynchronous wakeup path, same as tq.
	tt.Remove(n)

	return n.ErrorNo, n.Data
}
