package list

import "testing"

type node struct {
	val  int
	link Link[*node]
}

func (n *node) Link() *Link[*node] { return &n.link }

func newNodes(vals ...int) []*node {
	ns := make([]*node, len(vals))
	for i, v := range vals {
		ns[i] = &node{val: v}
	}
	return ns
}

func collect(l *List[*node]) []int {
	var got []int
	l.Foreach(func(n *node) { got = append(got, n.val) })
	return got
}

func eqInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPushBackOrder(t *testing.T) {
	var l List[*node]
	ns := newNodes(1, 2, 3)
	for _, n := range ns {
		l.PushBack(n)
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	if got := collect(&l); !eqInts(got, []int{1, 2, 3}) {
		t.Fatalf("order = %v, want [1 2 3]", got)
	}
}

func TestPushOrder(t *testing.T) {
	var l List[*node]
	ns := newNodes(1, 2, 3)
	for _, n := range ns {
		l.Push(n)
	}
	if got := collect(&l); !eqInts(got, []int{3, 2, 1}) {
		t.Fatalf("order = %v, want [3 2 1]", got)
	}
}

func TestPopFrontAndBack(t *testing.T) {
	var l List[*node]
	ns := newNodes(1, 2, 3)
	for _, n := range ns {
		l.PushBack(n)
	}
	if n := l.Pop(); n.val != 1 {
		t.Fatalf("Pop() = %d, want 1", n.val)
	}
	if n := l.PopBack(); n.val != 3 {
		t.Fatalf("PopBack() = %d, want 3", n.val)
	}
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
	if l.Front().val != 2 {
		t.Fatalf("remaining element = %d, want 2", l.Front().val)
	}
}

func TestDetachMiddle(t *testing.T) {
	var l List[*node]
	ns := newNodes(1, 2, 3, 4)
	for _, n := range ns {
		l.PushBack(n)
	}
	l.Detach(ns[1]) // detach 2
	l.Detach(ns[2]) // detach 3
	if got := collect(&l); !eqInts(got, []int{1, 4}) {
		t.Fatalf("order after detach = %v, want [1 4]", got)
	}
	if Linked(ns[1]) {
		t.Fatal("detached node still reports linked")
	}
	// Detaching an already-detached node is a no-op, not a panic.
	l.Detach(ns[1])
}

func TestPushBackPanicsOnAlreadyLinked(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic pushing an already-linked node")
		}
	}()
	var l List[*node]
	n := &node{val: 1}
	l.PushBack(n)
	l.PushBack(n)
}

func TestBulkMove(t *testing.T) {
	var src, dst List[*node]
	for _, n := range newNodes(1, 2, 3) {
		src.PushBack(n)
	}
	for _, n := range newNodes(10, 20) {
		dst.PushBack(n)
	}
	src.BulkMove(&dst)
	if !src.Empty() {
		t.Fatalf("src.Len() = %d, want 0 after BulkMove", src.Len())
	}
	if got := collect(&dst); !eqInts(got, []int{10, 20, 1, 2, 3}) {
		t.Fatalf("dst order = %v, want [10 20 1 2 3]", got)
	}
}

func TestBulkMoveIntoEmptyDst(t *testing.T) {
	var src, dst List[*node]
	for _, n := range newNodes(1, 2) {
		src.PushBack(n)
	}
	src.BulkMove(&dst)
	if got := collect(&dst); !eqInts(got, []int{1, 2}) {
		t.Fatalf("dst order = %v, want [1 2]", got)
	}
}

func TestForeachAllowsDetachingCurrent(t *testing.T) {
	var l List[*node]
	ns := newNodes(1, 2, 3)
	for _, n := range ns {
		l.PushBack(n)
	}
	var seen []int
	l.Foreach(func(n *node) {
		seen = append(seen, n.val)
		if n.val == 2 {
			l.Detach(n)
		}
	})
	if !eqInts(seen, []int{1, 2, 3}) {
		t.Fatalf("seen = %v, want [1 2 3]", seen)
	}
	if got := collect(&l); !eqInts(got, []int{1, 3}) {
		t.Fatalf("remaining = %v, want [1 3]", got)
	}
}
