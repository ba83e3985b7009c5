package proc

import (
	"testing"
	"time"
)

func TestSleepMSRunsToCompletion(t *testing.T) {
	k := NewKernel(testConfig())
	k.Start()
	defer k.Stop()

	done := make(chan error, 1)
	k.Boot(func(root *Thread) {
		err := k.SleepMS(root, 20)
		k.Exit(root, 0)
		done <- err
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SleepMS() = %v, want nil on an undisturbed sleep", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestSleepMSInterruptedBySignalReturnsEINTR(t *testing.T) {
	k := NewKernel(testConfig())
	k.Start()
	defer k.Stop()

	done := make(chan struct{})
	var sleepErr error
	var elapsed time.Duration

	k.Boot(func(root *Thread) {
		h := root.HartHandle()
		sleeperTID := make(chan int, 1)
		child, err := k.Clone(h, root, CloneArgs{
			Entry: func(c *Thread) {
				sleeperTID <- c.PID()
				start := time.Now()
				sleepErr = k.SleepMS(c, 500)
				elapsed = time.Since(start)
				k.Exit(c, 0)
			},
		})
		if err != nil {
			close(done)
			return
		}
		tid := <-sleeperTID
		time.Sleep(30 * time.Millisecond) // let the child reach its timed sleep
		_ = k.Tkill(h, SIGUSR1, tid)
		_, _, _ = k.Wait(h, root)
		_ = child
		k.Exit(root, 0)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}

	if sleepErr == nil {
		t.Fatal("SleepMS should have been interrupted by SIGUSR1")
	}
	if elapsed >= 400*time.Millisecond {
		t.Fatalf("sleep lasted %v; the signal should have cut it well short of 500ms", elapsed)
	}
}

func TestUptimeAdvancesWithTicks(t *testing.T) {
	k := NewKernel(testConfig())
	k.Start()
	defer k.Stop()

	before := k.Uptime()
	time.Sleep(20 * time.Millisecond)
	if after := k.Uptime(); after <= before {
		t.Fatalf("Uptime went %d -> %d, want it to advance with the jiffy driver", before, after)
	}
}
