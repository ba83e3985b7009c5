package proc

import (
	"testing"
	"time"

	"github.com/rvos/rvkernel/pkg/kernel/errno"
)

func TestWaitReapsExitedChild(t *testing.T) {
	k := NewKernel(testConfig())
	k.Start()
	defer k.Stop()

	done := make(chan struct{})
	var tgid, status int
	var childTGID int
	var err error

	k.Boot(func(parent *Thread) {
		h := parent.HartHandle()
		child, cerr := k.Clone(h, parent, CloneArgs{
			Entry: func(c *Thread) { k.Exit(c, 42) },
		})
		if cerr != nil {
			err = cerr
			close(done)
			return
		}
		childTGID = child.TGID()
		tgid, status, err = k.Wait(h, parent)
		k.Exit(parent, 0)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if tgid != childTGID {
		t.Fatalf("tgid = %d, want %d", tgid, childTGID)
	}
	if status != 42 {
		t.Fatalf("status = %d, want 42", status)
	}
	if k.LookupThread(childTGID) != nil {
		t.Fatal("reaped child should be gone from the PID table")
	}
}

func TestWaitReturnsECHILDWithNoChildren(t *testing.T) {
	k := NewKernel(testConfig())
	k.Start()
	defer k.Stop()

	done := make(chan struct{})
	var err error

	k.Boot(func(parent *Thread) {
		_, _, err = k.Wait(parent.HartHandle(), parent)
		k.Exit(parent, 0)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	if err != errno.ECHILD {
		t.Fatalf("err = %v, want errno.ECHILD", err)
	}
}

func TestWaitBlocksUntilChildExits(t *testing.T) {
	k := NewKernel(testConfig())
	k.Start()
	defer k.Stop()

	done := make(chan struct{})
	reaped := make(chan struct{})
	var tgid int
	var err error

	k.Boot(func(parent *Thread) {
		h := parent.HartHandle()
		child, cerr := k.Clone(h, parent, CloneArgs{
			Entry: func(c *Thread) {
				time.Sleep(30 * time.Millisecond)
				k.Exit(c, 7)
			},
		})
		if cerr != nil {
			err = cerr
			close(done)
			return
		}
		go func() {
			tgid, _, err = k.Wait(h, parent)
			close(reaped)
		}()
		_ = child
		select {
		case <-reaped:
		case <-time.After(2 * time.Second):
		}
		k.Exit(parent, 0)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}

	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if tgid == 0 {
		t.Fatal("Wait should have reaped the child once it exited")
	}
}

func TestExitGroupTerminatesEveryMember(t *testing.T) {
	k := NewKernel(testConfig())
	k.Start()
	defer k.Stop()

	done := make(chan struct{})
	siblingDone := make(chan struct{})
	var leaderGroup *ThreadGroup

	k.Boot(func(root *Thread) {
		h := root.HartHandle()
		leader, err := k.Clone(h, root, CloneArgs{
			Entry: func(l *Thread) {
				lh := l.HartHandle()
				leaderGroup = l.Group
				_, cerr := k.Clone(lh, l, CloneArgs{
					Flags: CloneThread | CloneVM | CloneFS | CloneFiles | CloneSighand,
					Entry: func(s *Thread) {
						sh := s.HartHandle()
						for !s.Group.GroupExiting() {
							time.Sleep(time.Millisecond)
						}
						k.HandleSignal(sh, s)
						close(siblingDone)
					},
				})
				if cerr != nil {
					close(done)
					return
				}
				time.Sleep(10 * time.Millisecond)
				k.ExitGroup(l, 9)
			},
		})
		if err != nil {
			close(done)
			return
		}
		_, _, _ = k.Wait(h, root)
		_ = leader
		k.Exit(root, 0)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
	select {
	case <-siblingDone:
	case <-time.After(3 * time.Second):
		t.Fatal("sibling was never brought down by exit_group")
	}

	if leaderGroup == nil || !leaderGroup.GroupExiting() {
		t.Fatal("group_exit should have been recorded")
	}
	if leaderGroup.GroupExitCode() != 9 {
		t.Fatalf("GroupExitCode() = %d, want 9", leaderGroup.GroupExitCode())
	}
}
