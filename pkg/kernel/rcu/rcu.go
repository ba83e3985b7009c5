// Package rcu implements read-copy-update: grace-period detection across
// harts, segmented per-hart callback lists, and deferred freeing. Readers
// never block writers; writers wait for a grace period before reclaiming.
//
// Grace-period polling rides github.com/cenkalti/backoff: synchronize_rcu
// is exactly a bounded retry loop waiting for a condition some other
// goroutine will eventually make true.
package rcu

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rvos/rvkernel/pkg/kernel/atomic"
)

// segment identifies one of the four stages a callback passes through:
// NEXT_READY -> NEXT -> WAIT -> DONE.
type segment int

const (
	segDone segment = iota
	segWait
	segNext
	segNextReady
	numSegments
)

// Callback is an RCU callback: call_rcu(head, fn) enqueues fn for
// invocation after the next grace period.
type Callback struct {
	fn   func()
	next *Callback
}

// perCPU holds one hart's segmented callback lists; each simulated hart
// owns exactly one.
type perCPU struct {
	heads [numSegments]*Callback
	tails [numSegments]**Callback
	qseq  int64 // grace-period sequence this hart last reported quiescent for
}

func newPerCPU() *perCPU {
	p := &perCPU{}
	for s := segment(0); s < numSegments; s++ {
		p.tails[s] = &p.heads[s]
	}
	return p
}

func (p *perCPU) enqueue(seg segment, cb *Callback) {
	cb.next = nil
	*p.tails[seg] = cb
	p.tails[seg] = &cb.next
}

// advance shifts every segment down one stage, then invokes the callbacks
// that have just reached DONE. Called from the per-hart "softirq" tick.
func (p *perCPU) advance() {
	p.heads[segDone], p.tails[segDone] = p.heads[segWait], p.tails[segWait]
	if p.heads[segDone] == nil {
		p.tails[segDone] = &p.heads[segDone]
	}
	p.heads[segWait], p.tails[segWait] = p.heads[segNext], p.tails[segNext]
	if p.heads[segWait] == nil {
		p.tails[segWait] = &p.heads[segWait]
	}
	p.heads[segNext], p.tails[segNext] = p.heads[segNextReady], p.tails[segNextReady]
	if p.heads[segNext] == nil {
		p.tails[segNext] = &p.heads[segNext]
	}
	p.heads[segNextReady] = nil
	p.tails[segNextReady] = &p.heads[segNextReady]

	for cb := p.heads[segDone]; cb != nil; {
		next := cb.next
		cb.fn()
		cb = next
	}
	p.heads[segDone] = nil
	p.tails[segDone] = &p.heads[segDone]
}

// State is the global RCU state: one perCPU per hart plus the grace-period
// sequence counters.
type State struct {
	cpus      []*perCPU
	gpSeq     atomic.Word
	gpStart   atomic.Word
	expedited atomic.Word
}

// New creates RCU state for nHarts harts.
func New(nHarts int) *State {
	s := &State{cpus: make([]*perCPU, nHarts)}
	for i := range s.cpus {
		s.cpus[i] = newPerCPU()
	}
	return s
}

// ReadSide is a per-thread RCU nesting counter. It lives on the thread,
// not the hart, which is what lets read-side critical sections survive
// migration and yielding: ReadLock/ReadUnlock follow the goroutine, not
// the OS thread it happens to be running on.
type ReadSide struct {
	nesting atomic.Word
}

// ReadLock enters a read-side critical section.
func (r *ReadSide) ReadLock() {
	atomic.FetchAdd(&r.nesting, 1)
}

// ReadUnlock exits a read-side critical section.
func (r *ReadSide) ReadUnlock() {
	n := atomic.FetchAdd(&r.nesting, -1)
	if n < 0 {
		panic("rcu: ReadUnlock without matching ReadLock")
	}
}

// Nesting reports the current nesting depth, used by quiescent-state
// detection: a hart is quiescent once every ReadSide it has scheduled has
// nesting == 0.
func (r *ReadSide) Nesting() atomic.Word {
	return atomic.LoadAcquire(&r.nesting)
}

// CallRCU enqueues fn on hart's NEXT_READY segment for deferred
// invocation after the grace period in progress (if any) completes and
// one more begins and completes.
func (s *State) CallRCU(hart int, fn func()) {
	s.cpus[hart].enqueue(segNextReady, &Callback{fn: fn})
}

// Tick advances hart's segmented callback list one stage; the caller
// drives this from its per-hart timer/softirq loop.
func (s *State) Tick(hart int) {
	s.cpus[hart].advance()
}

// QuiescentFunc reports, for a given hart, whether it currently has no
// active reader. SynchronizeRCU calls this repeatedly (via backoff) until
// every hart reports true.
type QuiescentFunc func(hart int) bool

// SynchronizeRCU blocks until every hart has passed through a quiescent
// state after the call began. quiescent(h) must report whether hart h
// currently has no active reader.
func (s *State) SynchronizeRCU(ctx context.Context, quiescent QuiescentFunc) error {
	atomic.FetchAdd(&s.gpStart, 1)
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	op := func() error {
		for h := range s.cpus {
			if !quiescent(h) {
				return errNotQuiescentYet
			}
		}
		return nil
	}
	if err := backoff.Retry(op, b); err != nil {
		return err
	}
	atomic.FetchAdd(&s.gpSeq, 1)
	return nil
}

// SynchronizeRCUTimeout is a convenience wrapper bounding SynchronizeRCU
// by a wall-clock timeout instead of an explicit context.
func (s *State) SynchronizeRCUTimeout(timeout time.Duration, quiescent QuiescentFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.SynchronizeRCU(ctx, quiescent)
}

// ExpeditedGP marks an expedited grace period request, realized by
// sending a reschedule IPI to every hart so each one reaches a quiescent
// state sooner than it would by natural scheduling.
// The actual IPI send is the caller's responsibility (package ipi); this
// only sets the expedited flag, which Tick and SynchronizeRCU do not read.
func (s *State) ExpeditedGP() {
	atomic.FetchOr(&s.expedited, 1)
}

// GPSeq returns the current grace-period sequence number.
func (s *State) GPSeq() atomic.Word {
	return atomic.LoadAcquire(&s.gpSeq)
}

type notQuiescentYetError struct{}

func (notQuiescentYetError) Error() string { return "rcu: grace period not yet complete" }

var errNotQuiescentYet error = notQuiescentYetError{}
