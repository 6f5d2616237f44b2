package session

import (
	"sync"

	"github.com/google/uuid"
)

// sessionLocks provides the per-session mutual exclusion around the
// read-modify-write cycle of the public operations. Entries are reference
// counted so the map does not grow with dead sessions.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[uuid.UUID]*lockEntry)}
}

func (l *sessionLocks) entry(id uuid.UUID) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	return e
}

// lock blocks until the session lock is held.
func (l *sessionLocks) lock(id uuid.UUID) {
	l.entry(id).mu.Lock()
}

// tryLock attempts to take the session lock without blocking. A false
// return means another mutation of this session is in flight.
func (l *sessionLocks) tryLock(id uuid.UUID) bool {
	e := l.entry(id)
	if e.mu.TryLock() {
		return true
	}
	l.release(id)
	return false
}

func (l *sessionLocks) unlock(id uuid.UUID) {
	l.mu.Lock()
	e := l.locks[id]
	l.mu.Unlock()
	if e != nil {
		e.mu.Unlock()
		l.release(id)
	}
}

func (l *sessionLocks) release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[id]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(l.locks, id)
	}
}
