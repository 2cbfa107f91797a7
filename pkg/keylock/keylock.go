// Package keylock hands out one mutex per string key. Holders of
// different keys never contend, and a key's entry is dropped once nobody
// holds or waits for it.
package keylock

import "sync"

type Table struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func New() *Table {
	return &Table{locks: map[string]*refLock{}}
}

// Lock acquires the lock for key and returns its release func.
func (t *Table) Lock(key string) func() {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &refLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}

// Len is the number of keys currently held or waited on.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
