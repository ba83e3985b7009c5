package timer

import "testing"

func TestTickFiresDueTimersInOrder(t *testing.T) {
	w := New()
	var fired []int
	w.Add(2, func() { fired = append(fired, 2) })
	w.Add(1, func() { fired = append(fired, 1) })
	w.Add(1, func() { fired = append(fired, 10) }) // same jiffy, armed later

	w.Tick()
	if len(fired) != 2 || fired[0] != 1 || fired[1] != 10 {
		t.Fatalf("fired after one tick = %v, want [1 10] in arming order", fired)
	}
	w.Tick()
	if len(fired) != 3 || fired[2] != 2 {
		t.Fatalf("fired after two ticks = %v, want [1 10 2]", fired)
	}
	if w.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0 once everything fired", w.Pending())
	}
}

func TestRemoveCancelsPendingTimer(t *testing.T) {
	w := New()
	fired := false
	n := w.Add(1, func() { fired = true })

	if !w.Remove(n) {
		t.Fatal("Remove of a pending timer should report true")
	}
	w.Tick()
	if fired {
		t.Fatal("a removed timer must not fire")
	}
	if w.Remove(n) {
		t.Fatal("second Remove of the same node should report false")
	}
}

func TestRemoveAfterFireReportsFalse(t *testing.T) {
	w := New()
	n := w.Add(1, func() {})
	w.Tick()
	if w.Remove(n) {
		t.Fatal("Remove after the timer fired should report false — the node is gone")
	}
}

func TestJiffiesCountTicks(t *testing.T) {
	w := New()
	for i := 0; i < 5; i++ {
		w.Tick()
	}
	if w.Jiffies() != 5 {
		t.Fatalf("Jiffies() = %d, want 5", w.Jiffies())
	}
}

func TestCallbackMayRearm(t *testing.T) {
	w := New()
	count := 0
	var rearm func()
	rearm = func() {
		count++
		if count < 3 {
			w.Add(1, rearm)
		}
	}
	w.Add(1, rearm)
	for i := 0; i < 4; i++ {
		w.Tick()
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3 firings from the self-rearming callback", count)
	}
}
