package proc

import (
	"github.com/rvos/rvkernel/pkg/kernel/syncprim"
)

// pidTable is the global pid_lock-guarded PID table: a lookup from PID
// to Thread and from TGID to ThreadGroup, plus the monotonic allocator.
// Lock ordering is pid_lock > sigacts.lock > thread.TCBLock — callers
// must never acquire a Sigacts lock or a Thread.TCBLock while holding
// pt.lock.
type pidTable struct {
	lock    *syncprim.RWLock
	threads map[int]*Thread
	groups  map[int]*ThreadGroup
	next    int
}

func newPidTable() *pidTable {
	return &pidTable{
		lock:    syncprim.NewRWLock(),
		threads: make(map[int]*Thread),
		groups:  make(map[int]*ThreadGroup),
		next:    1,
	}
}

// allocAndAddThread assigns t the next unused PID and inserts it, under a
// single hold of pid_lock's write side, atomically with respect to any
// concurrent allocator.
func (pt *pidTable) allocAndAddThread(t *Thread) int {
	pt.lock.Lock()
	pid := pt.next
	pt.next++
	t.pid = pid
	pt.threads[pid] = t
	pt.lock.Unlock()
	return pid
}

func (pt *pidTable) addThread(t *Thread) {
	pt.lock.Lock()
	pt.threads[t.pid] = t
	pt.lock.Unlock()
}

func (pt *pidTable) addGroup(g *ThreadGroup) {
	pt.lock.Lock()
	pt.groups[g.tgid] = g
	pt.lock.Unlock()
}

// removeThread drops a reaped thread's entry from the table.
func (pt *pidTable) removeThread(pid int) {
	pt.lock.Lock()
	delete(pt.threads, pid)
	pt.lock.Unlock()
}

func (pt *pidTable) removeGroup(tgid int) {
	pt.lock.Lock()
	delete(pt.groups, tgid)
	pt.lock.Unlock()
}

// Lookup finds a thread by PID, or nil.
func (pt *pidTable) Lookup(pid int) *Thread {
	pt.lock.RLock()
	t := pt.threads[pid]
	pt.lock.RUnlock()
	return t
}

// LookupGroup finds a thread group by TGID, or nil.
func (pt *pidTable) LookupGroup(tgid int) *ThreadGroup {
	pt.lock.RLock()
	g := pt.groups[tgid]
	pt.lock.RUnlock()
	return g
}
