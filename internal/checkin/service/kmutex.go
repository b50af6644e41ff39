package service

import "sync"

// childLocks serializes transitions per child: no two concurrent check-in or
// check-out attempts for the same childId may interleave. Entries are
// refcounted so the map does not grow with every child ever seen.
type childLocks struct {
	mu    sync.Mutex
	locks map[string]*childLock
}

type childLock struct {
	mu   sync.Mutex
	refs int
}

func newChildLocks() *childLocks {
	return &childLocks{locks: make(map[string]*childLock)}
}

func (c *childLocks) lock(key string) {
	c.mu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &childLock{}
		c.locks[key] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
}

func (c *childLocks) unlock(key string) {
	c.mu.Lock()
	l := c.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(c.locks, key)
	}
	c.mu.Unlock()

	l.mu.Unlock()
}
