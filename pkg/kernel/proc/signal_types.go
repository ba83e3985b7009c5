package proc

import (
	"golang.org/x/sys/unix"

	"github.com/rvos/rvkernel/pkg/kernel/atomic"
	"github.com/rvos/rvkernel/pkg/kernel/errno"
	"github.com/rvos/rvkernel/pkg/kernel/spinlock"
)

// NumSignals bounds the POSIX 1..31 signal range, 1-indexed.
const NumSignals = 32

// Action classifies a signal's default disposition.
type Action int

const (
	ActionTerm Action = iota
	ActionIgn
	ActionCore
	ActionStop
	ActionCont
	ActionInvalid
)

// defaultAction is signo_default_action: the POSIX default disposition
// table.
var defaultAction = [NumSignals]Action{
	SIGHUP: ActionTerm, SIGINT: ActionTerm, SIGQUIT: ActionCore,
	SIGILL: ActionCore, SIGTRAP: ActionCore, SIGABRT: ActionCore,
	SIGBUS: ActionCore, SIGFPE: ActionCore, SIGKILL: ActionTerm,
	SIGUSR1: ActionTerm, SIGSEGV: ActionCore, SIGUSR2: ActionTerm,
	SIGPIPE: ActionTerm, SIGALRM: ActionTerm, SIGTERM: ActionTerm,
	SIGCHLD: ActionIgn, SIGCONT: ActionCont, SIGSTOP: ActionStop,
	SIGTSTP: ActionStop, SIGTTIN: ActionStop, SIGTTOU: ActionStop,
}

// Signal numbers, aliased from golang.org/x/sys/unix's canonical
// constants rather than hand-rolled.
const (
	SIGHUP  = int(unix.SIGHUP)
	SIGINT  = int(unix.SIGINT)
	SIGQUIT = int(unix.SIGQUIT)
	SIGILL  = int(unix.SIGILL)
	SIGTRAP = int(unix.SIGTRAP)
	SIGABRT = int(unix.SIGABRT)
	SIGBUS  = int(unix.SIGBUS)
	SIGFPE  = int(unix.SIGFPE)
	SIGKILL = int(unix.SIGKILL)
	SIGUSR1 = int(unix.SIGUSR1)
	SIGSEGV = int(unix.SIGSEGV)
	SIGUSR2 = int(unix.SIGUSR2)
	SIGPIPE = int(unix.SIGPIPE)
	SIGALRM = int(unix.SIGALRM)
	SIGTERM = int(unix.SIGTERM)
	SIGCHLD = int(unix.SIGCHLD)
	SIGCONT = int(unix.SIGCONT)
	SIGSTOP = int(unix.SIGSTOP)
	SIGTSTP = int(unix.SIGTSTP)
	SIGTTIN = int(unix.SIGTTIN)
	SIGTTOU = int(unix.SIGTTOU)
)

// sigset is a 32-bit signal set (bit n-1 represents signal n).
type sigset uint32

func sigmask(sig int) sigset { return 1 << uint(sig-1) }

// Sigaction flags: SA_SIGINFO (queued ksiginfo), SA_NODEFER (do not add
// the delivered signal to the blocked mask), SA_RESETHAND (revert to
// default after one delivery).
const (
	SANoDefer   = 1 << 0
	SAResetHand = 1 << 1
	SASigInfo   = 1 << 2
)

// sigaction is one of sigacts' 32 per-signal dispositions.
type sigaction struct {
	Handler func(sig int, info *Siginfo)
	Flags   int
	Mask    sigset
}

// Siginfo is the queued ksiginfo payload for SA_SIGINFO signals.
type Siginfo struct {
	Signo int
	Code  int
	Value int64
	Sender int // sending thread's PID, 0 if kernel-generated
}

// Sigacts is the refcounted sigaction table: 32 dispositions plus
// derived bitmasks and the blocked mask. Shared by reference when a
// thread is created with CLONE_SIGHAND, cloned (copied) otherwise.
type Sigacts struct {
	lock *spinlock.SpinLock

	refcount atomic.Word

	actions [NumSignals]sigaction

	saTerm   sigset
	saStop   sigset
	saCont   sigset
	saIgnore sigset

	blocked sigset

	// originalMask is sa_original_mask: the mask sigprocmask(2) last set
	// directly, independent of whatever handle_signal temporarily ORs into
	// blocked for the duration of a handler. sigreturn restores blocked as
	// savedMask | originalMask rather than a plain overwrite, so a
	// sigprocmask call made from inside the handler itself survives the
	// return.
	originalMask sigset
}

// NewSigacts returns a fresh sigacts table with every signal at its
// default disposition and nothing blocked.
func NewSigacts() *Sigacts {
	s := &Sigacts{lock: spinlock.New("sigacts"), refcount: 1}
	s.recompute()
	return s
}

// Clone returns an independent copy of s's dispositions (not its
// refcount) — used when CLONE_SIGHAND is absent.
func (s *Sigacts) Clone(h *spinlock.Hart) *Sigacts {
	s.lock.Lock(h)
	defer s.lock.Unlock(h)
	c := &Sigacts{lock: spinlock.New("sigacts"), refcount: 1}
	c.actions = s.actions
	c.blocked = s.blocked
	c.originalMask = s.originalMask
	c.recompute()
	return c
}

// IncRef bumps the refcount, for a CLONE_SIGHAND child.
func (s *Sigacts) IncRef() { atomic.FetchAdd(&s.refcount, 1) }

// DecRef releases a reference, reporting whether it was the last.
func (s *Sigacts) DecRef() bool { return atomic.FetchAdd(&s.refcount, -1) == 0 }

// recompute derives saTerm/saStop/saCont/saIgnore from the action table.
// Caller holds s.lock.
func (s *Sigacts) recompute() {
	s.saTerm, s.saStop, s.saCont, s.saIgnore = 0, 0, 0, 0
	for sig := 1; sig < NumSignals; sig++ {
		act := s.dispositionLocked(sig)
		switch act {
		case ActionTerm, ActionCore:
			s.saTerm |= sigmask(sig)
		case ActionStop:
			s.saStop |= sigmask(sig)
		case ActionCont:
			s.saCont |= sigmask(sig)
		case ActionIgn:
			s.saIgnore |= sigmask(sig)
		}
	}
}

// dispositionLocked reports sig's effective action: an installed handler
// beats the default table (reported as ActionInvalid); with no handler
// the default table applies. There is no separate explicit-ignore
// disposition. SIGKILL/SIGSTOP
// are pinned to their default regardless of actions[]; callers may never
// install a handler for them (enforced in SetAction).
func (s *Sigacts) dispositionLocked(sig int) Action {
	if sig == SIGKILL {
		return ActionTerm
	}
	if sig == SIGSTOP {
		return ActionStop
	}
	a := s.actions[sig]
	if a.Handler == nil {
		return defaultAction[sig]
	}
	return ActionInvalid // has a user handler; not a default-action signal
}

// SetAction installs act for sig (sigaction(2)'s core) and returns the
// previously installed action, POSIX's oldact — handing it back to a
// later SetAction restores the original disposition. SIGKILL/SIGSTOP are
// rejected; they can never be caught.
func (s *Sigacts) SetAction(h *spinlock.Hart, sig int, act sigaction) (sigaction, error) {
	if sig == SIGKILL || sig == SIGSTOP {
		return sigaction{}, errInvalidSignalAction
	}
	s.lock.Lock(h)
	old := s.actions[sig]
	s.actions[sig] = act
	s.recompute()
	s.lock.Unlock(h)
	return old, nil
}

// Action returns sig's currently installed sigaction record, sigaction(2)
// with a nil act pointer.
func (s *Sigacts) Action(h *spinlock.Hart, sig int) sigaction {
	s.lock.Lock(h)
	defer s.lock.Unlock(h)
	return s.actions[sig]
}

// Blocked returns the currently-blocked mask.
func (s *Sigacts) Blocked(h *spinlock.Hart) sigset {
	s.lock.Lock(h)
	defer s.lock.Unlock(h)
	return s.blocked
}

// SetBlocked overwrites the blocked mask, stripping the always-
// unblockable SIGKILL/SIGSTOP. Also resets originalMask, matching
// sigprocmask(SIG_SETMASK)'s dual update of sa_sigmask/sa_original_mask.
func (s *Sigacts) SetBlocked(h *spinlock.Hart, m sigset) {
	s.lock.Lock(h)
	m &^= sigmask(SIGKILL) | sigmask(SIGSTOP)
	s.blocked = m
	s.originalMask = m
	s.lock.Unlock(h)
}

// errInvalidSignalAction is SetAction's rejection of SIGKILL/SIGSTOP.
var errInvalidSignalAction error = errno.EINVAL

// PendingSignals is a per-signal FIFO of Siginfo records plus a pending
// bitmask, bounded to maxPerSignal entries per signal
// (Config.MaxSiginfoPerSignal).
type PendingSignals struct {
	maxPerSignal int
	mask         sigset
	queues       [NumSignals][]Siginfo
}

func newPendingSignals(maxPerSignal int) *PendingSignals {
	return &PendingSignals{maxPerSignal: maxPerSignal}
}

// Enqueue adds info for sig, dropping the oldest queued entry for sig if
// already at capacity with SA_SIGINFO. Non-SA_SIGINFO signals only ever
// need the bit.
func (p *PendingSignals) Enqueue(sig int, info Siginfo, sigInfoClass bool) {
	p.mask |= sigmask(sig)
	if !sigInfoClass {
		return
	}
	q := p.queues[sig]
	if len(q) >= p.maxPerSignal {
		q = q[1:]
	}
	p.queues[sig] = append(q, info)
}

// Pending reports the current pending bitmask.
func (p *PendingSignals) Pending() sigset { return p.mask }

// Dequeue removes and returns the lowest-numbered pending, unmasked
// signal, or ok=false if none is deliverable.
func (p *PendingSignals) Dequeue(blocked sigset) (sig int, info Siginfo, ok bool) {
	deliverable := p.mask &^ blocked
	if deliverable == 0 {
		return 0, Siginfo{}, false
	}
	for s := 1; s < NumSignals; s++ {
		if deliverable&sigmask(s) == 0 {
			continue
		}
		sig = s
		break
	}
	if q := p.queues[sig]; len(q) > 0 {
		info = q[0]
		p.queues[sig] = q[1:]
		if len(p.queues[sig]) == 0 {
			p.mask &^= sigmask(sig)
		}
	} else {
		info = Siginfo{Signo: sig}
		p.mask &^= sigmask(sig)
	}
	return sig, info, true
}

// DequeueExact removes and returns the queued Siginfo for sig (already
// known deliverable by the caller), used by handle_signal once it has
// picked sig from the merged thread/shared mask and determined which
// queue actually owns it.
func (p *PendingSignals) DequeueExact(sig int) Siginfo {
	if q := p.queues[sig]; len(q) > 0 {
		info := q[0]
		p.queues[sig] = q[1:]
		if len(p.queues[sig]) == 0 {
			p.mask &^= sigmask(sig)
		}
		return info
	}
	p.mask &^= sigmask(sig)
	return Siginfo{Signo: sig}
}

// ClearStops clears every pending stop-class signal bit. sigStop is the
// sigacts' derived saStop mask.
func (p *PendingSignals) ClearStops(sigStop sigset) {
	p.mask &^= sigStop
}

// ClearConts clears every pending SIGCONT bit, SIGSTOP's side effect.
func (p *PendingSignals) ClearConts() {
	p.mask &^= sigmask(SIGCONT)
}

// Has reports whether sig is pending.
func (p *PendingSignals) Has(sig int) bool { return p.mask&sigmask(sig) != 0 }
