package lock

import (
	"sync"

	"github.com/apex/log"
)

type keyMutex struct {
	mu   sync.Mutex
	refs int
}

// KeyLocker serializes work per key. Entries are dropped once nobody holds
// or waits on a key, so the map only grows with the number of keys in use.
type KeyLocker struct {
	mapMutex sync.Mutex
	keys     map[string]*keyMutex
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{
		keys: make(map[string]*keyMutex),
	}
}

func (l *KeyLocker) AcquireLock(key string) {
	l.mapMutex.Lock()
	km, ok := l.keys[key]
	if !ok {
		km = &keyMutex{}
		l.keys[key] = km
	}
	km.refs++
	l.mapMutex.Unlock()

	km.mu.Lock()
}

func (l *KeyLocker) ReleaseLock(key string) {
	l.mapMutex.Lock()
	defer l.mapMutex.Unlock()

	km, ok := l.keys[key]
	if !ok {
		log.Errorf("ReleaseLock called on key (%s) with no mutex", key)
		return
	}

	km.refs--
	if km.refs == 0 {
		delete(l.keys, key)
	}

	km.mu.Unlock()
}

func (l *KeyLocker) WithLock(key string, f func() error) error {
	l.AcquireLock(key)
	defer l.ReleaseLock(key)
	return f()
}

// Len returns the number of keys currently held or waited on.
func (l *KeyLocker) Len() int {
	l.mapMutex.Lock()
	defer l.mapMutex.Unlock()
	return len(l.keys)
}
