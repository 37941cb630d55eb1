package service

import "sync"

// ownerLocks hands out one mutex per owner and forgets it once unused.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[int64]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[int64]*ownerLock)}
}

// Lock blocks until the owner's lock is held and returns its release func.
func (l *ownerLocks) Lock(ownerID int64) func() {
	l.mu.Lock()
	ol, ok := l.locks[ownerID]
	if !ok {
		ol = &ownerLock{}
		l.locks[ownerID] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.mu.Lock()
	return func() {
		ol.mu.Unlock()
		l.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(l.locks, ownerID)
		}
		l.mu.Unlock()
	}
}

func (l *ownerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
