// Package waitcoord maps blocked-on resources to waiting transactions and
// wakes them on release.
//
// A Waiting Response must return immediately, and the caller blocks
// outside the decision core's critical section, not inside it — a
// Cond-style wait, which must be entered with the lock held, is exactly
// backwards for that. This package instead hands back a Handle wrapping
// a channel: the core signals it without ever blocking itself, and the
// caller ranges over it from outside any lock.
package waitcoord

import (
	"sync"

	"github.com/google/uuid"
)

// Handle is the notification object returned to a blocked caller. The
// caller ranges over Ready (or does a single receive) outside the core's
// mutex; Signal closes Ready exactly once.
type Handle struct {
	ID    uuid.UUID
	Ready chan struct{}

	once sync.Once
}

func newHandle() *Handle {
	return &Handle{ID: uuid.New(), Ready: make(chan struct{})}
}

func (h *Handle) signal() {
	h.once.Do(func() { close(h.Ready) })
}

// Coordinator maintains, for every resource name, the set of
// transactions currently waiting on it and their handles. The waiter map
// is guarded by its own mutex, independent of the lock manager's.
type Coordinator struct {
	mu      sync.Mutex
	waiters map[string]map[int64]*Handle
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{waiters: make(map[string]map[int64]*Handle)}
}

// Register inserts a waiting entry for (tid, name), allocating a fresh
// handle if none exists yet for that pair. Calling Register again for a
// pair that is already registered returns the existing handle unchanged.
func (c *Coordinator) Register(tid int64, name string) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	byTid, ok := c.waiters[name]
	if !ok {
		byTid = make(map[int64]*Handle)
		c.waiters[name] = byTid
	}
	h, ok := byTid[tid]
	if !ok {
		h = newHandle()
		byTid[tid] = h
	}
	return h
}

// Signal wakes every waiter registered on name. It does not remove any
// entry: clearing only happens on successful re-acquisition
// (ClearOnAcquire), which avoids a lost wakeup if a waiter's retry finds
// the lock taken again by someone else and it must re-register. Safe to
// call when name has no waiters.
func (c *Coordinator) Signal(name string) {
	c.mu.Lock()
	byTid := c.waiters[name]
	handles := make([]*Handle, 0, len(byTid))
	for _, h := range byTid {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	for _, h := range handles {
		h.signal()
	}
}

// ClearOnAcquire removes the (tid, name) waiter entry once tid has
// successfully re-acquired the lock it was waiting for. This is the
// "clear-on-acquire" half of the policy: Signal alone never deletes.
func (c *Coordinator) ClearOnAcquire(tid int64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byTid, ok := c.waiters[name]
	if !ok {
		return
	}
	delete(byTid, tid)
	if len(byTid) == 0 {
		delete(c.waiters, name)
	}
}

// PurgeTransaction removes tid's entries from every resource's waiter
// map, e.g. after it has been aborted: an aborted transaction must have
// no wait-for edges and appear in no waiter map.
func (c *Coordinator) PurgeTransaction(tid int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, byTid := range c.waiters {
		if _, ok := byTid[tid]; ok {
			delete(byTid, tid)
			if len(byTid) == 0 {
				delete(c.waiters, name)
			}
		}
	}
}
