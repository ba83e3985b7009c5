// Package workqueue implements a named worker pool with
// min_active/max_active bounds, an idle-worker wait channel, a manager
// goroutine that grows the pool toward max_active while work is pending,
// and a FIFO of work items. The pool never shrinks while running:
// workers exit only when Stop is called. The manager's convergence loop is a bounded
// backoff retry, and golang.org/x/time/rate paces worker spin-up so a
// submission burst doesn't overshoot max_active before idle workers have
// a chance to report in.
package workqueue

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Work is one queued work item: a bare function, since Go needs no
// embeddable struct-offset trick to find the owner.
type Work func()

// Pool is a named worker pool.
type Pool struct {
	name       string
	minActive  int
	maxActive  int
	spinUpRate *rate.Limiter

	mu     sync.Mutex
	queue  []Work
	active int
	idle   int

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	log *logrus.Entry
}

// New creates a pool named name and starts minActive workers plus the
// manager goroutine.
func New(name string, minActive, maxActive int) *Pool {
	if maxActive < minActive {
		maxActive = minActive
	}
	p := &Pool{
		name:       name,
		minActive:  minActive,
		maxActive:  maxActive,
		spinUpRate: rate.NewLimiter(rate.Limit(20), 4),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		log:        logrus.WithField("workqueue", name),
	}
	for i := 0; i < minActive; i++ {
		p.spawnWorkerLocked()
	}
	go p.manage()
	return p
}

// Submit enqueues fn and wakes an idle worker, or the manager if more
// capacity may be needed.
func (p *Pool) Submit(fn Work) {
	p.mu.Lock()
	p.queue = append(p.queue, fn)
	p.mu.Unlock()
	p.poke()
}

func (p *Pool) poke() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// spawnWorkerLocked starts one worker goroutine. Caller holds p.mu.
func (p *Pool) spawnWorkerLocked() {
	p.active++
	go p.workerLoop()
}

func (p *Pool) workerLoop() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 {
			p.idle++
			p.mu.Unlock()
			select {
			case <-p.wake:
			case <-p.stop:
				p.mu.Lock()
				p.idle--
				p.active--
				p.mu.Unlock()
				return
			}
			p.mu.Lock()
			p.idle--
		}
		w := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()
		w()
	}
}

// manage grows the pool toward maxActive while a backlog persists, using
// a bounded backoff retry per growth attempt so a burst of submissions
// converges smoothly instead of spinning up max_active workers in one
// tick.
func (p *Pool) manage() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
		}

		op := func() error {
			p.mu.Lock()
			pending, idle, active := len(p.queue), p.idle, p.active
			p.mu.Unlock()
			if pending <= idle || active >= p.maxActive {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			if err := p.spinUpRate.Wait(ctx); err != nil {
				return err
			}
			p.mu.Lock()
			p.spawnWorkerLocked()
			p.mu.Unlock()
			p.log.WithField("active", p.active).Debug("workqueue grew")
			return errStillBehind
		}

		b := backoff.NewConstantBackOff(5 * time.Millisecond)
		bctx := backoff.WithMaxRetries(b, 8)
		_ = backoff.Retry(op, bctx)

		// The wake this manager consumed may have been meant for an idle
		// worker; forward it if a backlog remains.
		p.mu.Lock()
		backlog := len(p.queue) > 0 && p.idle > 0
		p.mu.Unlock()
		if backlog {
			p.poke()
		}
	}
}

type stillBehindError struct{}

func (stillBehindError) Error() string { return "workqueue: backlog persists, retry growth" }

var errStillBehind error = stillBehindError{}

// Stop tears down every worker and the manager, blocking until they have
// all exited.
func (p *Pool) Stop() {
	close(p.stop)
	p.poke()
	<-p.done
	for p.Active() > 0 {
		time.Sleep(time.Millisecond)
	}
}

// Len reports the current backlog depth, for tests/diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Active reports the current live worker count.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
