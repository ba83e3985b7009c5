// Package ipi implements inter-processor-interrupt reason codes and
// delivery. On real hardware this is an SBI IPI extension call
// received as a software interrupt; here each hart is a goroutine with an
// inbox channel, and "sending an IPI" is a non-blocking send to that
// channel — the receiving hart observes it the next time it polls between
// instructions, which is this simulation's analogue of "software
// interrupt pending".
package ipi

// Reason is an IPI reason code.
type Reason int

const (
	Generic     Reason = 0
	Reschedule  Reason = 1
	CallFunc    Reason = 2
	TLBFlush    Reason = 3
)

// Func is the payload of a CallFunc IPI.
type Func func()

// Message is what one hart posts to another's inbox.
type Message struct {
	Reason Reason
	Fn     Func
}

// Inbox is one hart's IPI mailbox: bounded, mirroring a real IPI's
// hardware-limited pending-interrupt depth. When it is full, Send drops
// the message instead of blocking the sender.
type Inbox struct {
	ch chan Message
}

// NewInbox creates a hart's inbox with the given backlog depth.
func NewInbox(depth int) *Inbox {
	return &Inbox{ch: make(chan Message, depth)}
}

// Send posts msg to the inbox without blocking the sender if there is
// room; a full inbox means the target is already going to notice a
// pending reschedule/call, so a duplicate Reschedule is dropped rather
// than blocking the sender hart.
func (b *Inbox) Send(msg Message) {
	select {
	case b.ch <- msg:
	default:
	}
}

// SendReschedule is the common case: sent when a wakeup targets a
// different CPU than the waker's.
func (b *Inbox) SendReschedule() {
	b.Send(Message{Reason: Reschedule})
}

// SendCallFunc posts fn for the target hart to run at its next poll
// point.
func (b *Inbox) SendCallFunc(fn Func) {
	b.Send(Message{Reason: CallFunc, Fn: fn})
}

// Poll drains pending messages without blocking, dispatching CallFunc
// payloads and reporting whether a Reschedule was observed. The caller's
// trap-return path calls this to decide whether to set needs_resched.
func (b *Inbox) Poll() (rescheduleRequested bool) {
	for {
		select {
		case msg := <-b.ch:
			switch msg.Reason {
			case Reschedule:
				rescheduleRequested = true
			case CallFunc:
				if msg.Fn != nil {
					msg.Fn()
				}
			case TLBFlush, Generic:
				// MMU/pagetable shootdown belongs to an external
				// collaborator; acknowledged and dropped here.
			}
		default:
			return rescheduleRequested
		}
	}
}
