package keymutex

import (
	"context"
	"sync"
)

// KeyMutex hands out an exclusive section per string key. Entries are
// reference counted and removed when the last holder or waiter departs, so
// the key space stays bounded under high key cardinality.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	// token carries a single permit; holding the permit holds the section.
	token chan struct{}
	refs  int
}

func New() *KeyMutex {
	return &KeyMutex{entries: map[string]*entry{}}
}

// Lock acquires the section for key, waiting until it is free or ctx is
// done. The returned release func must be called exactly once.
func (km *KeyMutex) Lock(ctx context.Context, key string) (release func(), err error) {
	e := km.retain(key)
	select {
	case <-e.token:
		return func() { km.unlock(key, e) }, nil
	case <-ctx.Done():
		km.releaseRef(key, e)
		return nil, ctx.Err()
	}
}

// TryLock acquires the section for key only if it is immediately free.
func (km *KeyMutex) TryLock(key string) (release func(), ok bool) {
	e := km.retain(key)
	select {
	case <-e.token:
		return func() { km.unlock(key, e) }, true
	default:
		km.releaseRef(key, e)
		return nil, false
	}
}

// Len reports the number of live entries; used by tests to verify teardown.
func (km *KeyMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.entries)
}

func (km *KeyMutex) retain(key string) *entry {
	km.mu.Lock()
	defer km.mu.Unlock()
	e, ok := km.entries[key]
	if !ok {
		e = &entry{token: make(chan struct{}, 1)}
		e.token <- struct{}{}
		km.entries[key] = e
	}
	e.refs++
	return e
}

func (km *KeyMutex) unlock(key string, e *entry) {
	e.token <- struct{}{}
	km.releaseRef(key, e)
}

func (km *KeyMutex) releaseRef(key string, e *entry) {
	km.mu.Lock()
	defer km.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(km.entries, key)
	}
}
