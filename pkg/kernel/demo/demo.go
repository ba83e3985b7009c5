// Package demo implements named end-to-end scenarios exercising the
// kernel core, driven by cmd/rvkernel's "boot" subcommand.
package demo

import (
	"fmt"
	"time"

	"github.com/rvos/rvkernel/internal/config"
	"github.com/rvos/rvkernel/pkg/kernel/proc"
	"github.com/rvos/rvkernel/pkg/kernel/syncprim"
)

// Scenario is a named, runnable demo.
type Scenario struct {
	Name        string
	Description string
	Run         func(cfg *config.Config) (string, error)
}

// Scenarios lists every registered demo, keyed by name for cmd/rvkernel's
// "boot <name>" dispatch.
var Scenarios = []Scenario{
	{Name: "fork-exit-wait", Description: "parent forks a child, child exits 42, parent waits", Run: forkExitWait},
	{Name: "group-signal", Description: "kill(tgid, SIGTERM) reaches exactly one member, group exits once", Run: groupSignal},
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// forkExitWait: parent forks a child, the child exits with status 42,
// and the parent reaps it.
func forkExitWait(cfg *config.Config) (string, error) {
	k := proc.NewKernel(cfg)
	k.Start()
	defer k.Stop()

	done := make(chan struct{})
	var result string
	var resultErr error

	parentEntry := func(t *proc.Thread) {
		h := t.HartHandle()
		child, err := k.Clone(h, t, proc.CloneArgs{
			Entry: func(c *proc.Thread) {
				k.Exit(c, 42)
			},
		})
		if err != nil {
			resultErr = err
			close(done)
			return
		}
		tgid, status, err := k.Wait(h, t)
		if err != nil {
			resultErr = err
		} else if tgid != child.TGID() || status != 42 {
			resultErr = fmt.Errorf("unexpected reap: tgid=%d status=%d", tgid, status)
		} else {
			result = fmt.Sprintf("reaped tgid=%d status=%d", tgid, status)
		}
		close(done)
	}

	k.Boot(parentEntry)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return "", fmt.Errorf("scenario timed out")
	}
	return result, resultErr
}

// groupSignal: a root thread clones a
// leader (a separate process, so the root can wait(2) on it); the leader
// clones a thread-group sibling, then kill(tgid, SIGTERM)s its own group.
// The leader is the chosen recipient, processes SIGTERM's default action
// itself (turning it into exit_group), and the sibling is brought down by
// the SIGKILL exit_group sends rather than by the original signal.
func groupSignal(cfg *config.Config) (string, error) {
	k := proc.NewKernel(cfg)
	k.Start()
	defer k.Stop()

	done := make(chan struct{})
	siblingDone := make(chan struct{})
	var (
		result    string
		resultErr error
		leader    *proc.Thread
		sibling   *proc.Thread
	)

	rootEntry := func(root *proc.Thread) {
		h := root.HartHandle()
		var err error
		leader, err = k.Clone(h, root, proc.CloneArgs{
			Entry: func(t *proc.Thread) {
				lh := t.HartHandle()
				var cerr error
				sibling, cerr = k.Clone(lh, t, proc.CloneArgs{
					Flags: proc.CloneThread | proc.CloneVM | proc.CloneFS | proc.CloneFiles | proc.CloneSighand,
					Entry: func(s *proc.Thread) {
						sh := s.HartHandle()
						c := syncprim.NewCompletion()
						c.Wait(sh, s, int(proc.StateKillable))
						// Woken by the SIGKILL exit_group sends once the
						// leader has observed SIGTERM; HandleSignal finds
						// group_exit already set and exits with its code.
						k.HandleSignal(sh, s)
						close(siblingDone)
					},
				})
				if cerr != nil {
					resultErr = cerr
					close(done)
					return
				}

				time.Sleep(10 * time.Millisecond) // let the sibling reach its blocking wait
				if kerr := k.Kill(lh, proc.SIGTERM, t.TGID()); kerr != nil {
					resultErr = kerr
					close(done)
					return
				}
				// Process the delivery ourselves, as the chosen recipient.
				k.HandleSignal(lh, t)
			},
		})
		if err != nil {
			resultErr = err
			close(done)
			return
		}

		tgid, status, werr := k.Wait(h, root)
		if werr != nil {
			resultErr = werr
		} else if tgid != leader.TGID() {
			resultErr = fmt.Errorf("unexpected reap: tgid=%d", tgid)
		} else {
			result = fmt.Sprintf("group %d exited with status %d", tgid, status)
		}
		close(done)
	}

	k.Boot(rootEntry)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return "", fmt.Errorf("scenario timed out")
	}
	if resultErr != nil {
		return "", resultErr
	}

	select {
	case <-siblingDone:
	case <-time.After(5 * time.Second):
		return "", fmt.Errorf("sibling was never reaped")
	}

	if !leader.Group.GroupExiting() {
		return "", fmt.Errorf("group_exit was never observed")
	}
	if got := leader.SignalsDelivered(); got != 1 {
		return "", fmt.Errorf("want exactly one signal delivered to the leader, got %d", got)
	}
	if k.LookupThread(sibling.PID()) != nil {
		return "", fmt.Errorf("sibling %d was not reaped", sibling.PID())
	}
	if k.LookupGroup(leader.TGID()) != nil {
		return "", fmt.Errorf("thread group %d was not reaped", leader.TGID())
	}

	return result, nil
}
