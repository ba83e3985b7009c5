package proc

import (
	"testing"
	"time"

	"github.com/rvos/rvkernel/internal/config"
	"github.com/rvos/rvkernel/pkg/kernel/errno"
)

// testConfig is the shared small-footprint config every proc package test
// boots a kernel with, mirroring demo package's own testConfig.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.NumCPU = 2
	return cfg
}

func TestSbrkGrowAndShrink(t *testing.T) {
	th := &Thread{}
	old, err := th.Sbrk(4096)
	if err != nil || old != 0 {
		t.Fatalf("Sbrk(4096) = (%d, %v), want (0, nil)", old, err)
	}
	old, err = th.Sbrk(-1024)
	if err != nil || old != 4096 {
		t.Fatalf("Sbrk(-1024) = (%d, %v), want (4096, nil)", old, err)
	}
	if _, err = th.Sbrk(-8192); err != errno.EINVAL {
		t.Fatalf("Sbrk shrinking below zero = %v, want errno.EINVAL", err)
	}
	if cur, _ := th.Sbrk(0); cur != 3072 {
		t.Fatalf("break = %d after grow+shrink, want 3072", cur)
	}
}

func TestYieldLetsSameCPUPeerRun(t *testing.T) {
	cfg := testConfig()
	cfg.NumCPU = 1 // force both threads onto one hart so Yield is what interleaves them
	k := NewKernel(cfg)
	k.Start()
	defer k.Stop()

	done := make(chan struct{})
	peerRan := make(chan struct{})

	k.Boot(func(root *Thread) {
		h := root.HartHandle()
		_, err := k.Clone(h, root, CloneArgs{
			Entry: func(c *Thread) {
				close(peerRan)
				k.Exit(c, 0)
			},
		})
		if err != nil {
			close(done)
			return
		}
		for {
			select {
			case <-peerRan:
				_, _, _ = k.Wait(h, root)
				k.Exit(root, 0)
				close(done)
				return
			default:
				root.Yield()
			}
		}
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("yield never let the queued peer thread run")
	}
}

func TestVforkParentBlocksUntilChildExits(t *testing.T) {
	k := NewKernel(testConfig())
	k.Start()
	defer k.Stop()

	done := make(chan struct{})
	var childExited bool
	var observedAfterClone bool

	k.Boot(func(root *Thread) {
		h := root.HartHandle()
		_, err := k.Vfork(h, root, func(c *Thread) {
			time.Sleep(30 * time.Millisecond)
			childExited = true
			k.Exit(c, 0)
		})
		// Vfork returns only once the child has exited.
		observedAfterClone = childExited
		if err != nil {
			close(done)
			return
		}
		_, _, _ = k.Wait(h, root)
		k.Exit(root, 0)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}

	if !observedAfterClone {
		t.Fatal("Vfork returned to the parent before the child exited")
	}
}
