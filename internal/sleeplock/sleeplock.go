// Package sleeplock provides the sleep/wakeup primitive spec.md §5 describes:
// atomically release a paired spinlock and block on a channel address; when
// another thread calls wakeup, all sleepers retry acquisition and re-check
// the predicate. A sync.Cond bound to the holder's spinlock is the Go
// substitute the spec explicitly allows ("An implementation may substitute a
// per-inode mutex/condvar for the flag, provided lookups that only need
// identity remain wait-free against long I/O").
package sleeplock

import "sync"

// Cond wraps a sync.Cond to give it spec-shaped names at call sites.
type Cond struct {
	*sync.Cond
}

// NewCond returns a Cond whose sleepers serialize on l, the paired spinlock.
// Callers must hold l before calling WaitWhile or WakeAll.
func NewCond(l sync.Locker) *Cond {
	return &Cond{Cond: sync.NewCond(l)}
}

// WaitWhile blocks, releasing the paired lock, for as long as pred returns
// true, re-checking it each time a wakeup retries this sleeper. The caller
// must hold the paired lock on entry and holds it again on return.
func (c *Cond) WaitWhile(pred func() bool) {
	for pred() {
		c.Wait()
	}
}

// WakeAll retries every sleeper on this address; each re-checks its own
// predicate before proceeding.
func (c *Cond) WakeAll() {
	c.Broadcast()
}
