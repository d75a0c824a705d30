package lock

import (
	"sync"
	"time"
)

// Lease is an exclusive-mode flag. One owner at a time may hold it. Other
// components either ask whether it is held or take a shared hold for the
// duration of short work that must not overlap the exclusive owner.
type Lease struct {
	mu         sync.Mutex
	drained    *sync.Cond
	owner      string
	acquiredAt time.Time
	shared     int
}

func NewLease() *Lease {
	l := &Lease{}
	l.drained = sync.NewCond(&l.mu)
	return l
}

// TryAcquire takes the lease for owner. It returns false if someone else
// (or owner itself) already holds it. Once taken no new shared holds are
// granted, and TryAcquire waits for the outstanding ones to be released.
func (l *Lease) TryAcquire(owner string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owner != "" {
		return false
	}

	l.owner = owner
	l.acquiredAt = time.Now()
	for l.shared > 0 {
		l.drained.Wait()
	}

	return true
}

// Release gives the lease back. Releasing a lease held by a different owner
// is ignored and reported as false.
func (l *Lease) Release(owner string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owner != owner {
		return false
	}

	l.owner = ""
	l.acquiredAt = time.Time{}
	return true
}

// Share takes a shared hold. It fails while the lease is held exclusively.
// The returned release func must be called exactly once when ok is true.
func (l *Lease) Share() (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owner != "" {
		return nil, false
	}

	l.shared++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()

			l.shared--
			if l.shared == 0 {
				l.drained.Broadcast()
			}
		})
	}, true
}

func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner != ""
}

// Holder returns the current owner and when it took the lease.
func (l *Lease) Holder() (string, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner, l.acquiredAt
}
