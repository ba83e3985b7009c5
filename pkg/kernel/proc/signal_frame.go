package proc

import "github.com/rvos/rvkernel/pkg/kernel/trapframe"

// sigFrame is the user-space signal frame: a saved ucontext (blocked
// mask plus machine context) and an implicit link to the previous frame
// via sigStack's LIFO order.
type sigFrame struct {
	savedMask sigset
	savedCtx  trapframe.Context
	valid     bool
}

// runSignalFrame is the frame-building half of handle_signal: push a
// frame saving the pre-delivery blocked mask and machine context, then invoke
// the handler. In this simulation there is no separate trap return, so
// the handler runs synchronously on the delivering thread's own
// goroutine; Sigreturn (called explicitly by a handler wrapper, or
// implicitly here once the handler returns normally) restores the saved
// frame.
func (k *Kernel) runSignalFrame(t *Thread, sig int, info Siginfo, handler func(int, *Siginfo), oldMask sigset) {
	t.sigStack = append(t.sigStack, sigFrame{savedMask: oldMask, savedCtx: t.Ctx, valid: true})

	handler(sig, &info)

	if len(t.sigStack) > 0 && t.sigStack[len(t.sigStack)-1].valid {
		k.Sigreturn(t)
	}
}

// Sigreturn implements sigreturn(2): pops the most recent signal frame,
// restoring the blocked mask and machine context it saved. An empty
// frame stack (no signal frame was ever pushed, or a prior sigreturn
// already consumed it) is an invalid ucontext and terminates the thread.
func (k *Kernel) Sigreturn(t *Thread) {
	if len(t.sigStack) == 0 {
		k.Exit(t, 128+SIGSEGV)
		return
	}
	frame := t.sigStack[len(t.sigStack)-1]
	t.sigStack = t.sigStack[:len(t.sigStack)-1]

	h := t.hart()
	t.sigacts.lock.Lock(h)
	// OR, not overwrite: a sigprocmask call made from inside the handler
	// updated originalMask, and that update must survive the return.
	t.sigacts.blocked = (frame.savedMask | t.sigacts.originalMask) &^ (sigmask(SIGKILL) | sigmask(SIGSTOP))
	t.recalcSigPending(h)
	t.sigacts.lock.Unlock(h)

	t.Ctx = frame.savedCtx
}
