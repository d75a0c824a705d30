package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLockerSerializesSameKey(t *testing.T) {
	l := NewKeyLocker()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock("alice:1:download", func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}

	wg.Wait()
	require.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.Len(), "keys should be released once unused")
}

func TestKeyLockerDifferentKeysDoNotBlock(t *testing.T) {
	l := NewKeyLocker()
	l.AcquireLock("a")

	done := make(chan struct{})
	go func() {
		l.AcquireLock("b")
		l.ReleaseLock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on key b blocked behind key a")
	}

	l.ReleaseLock("a")
}

func TestLease(t *testing.T) {
	lease := NewLease()
	require.False(t, lease.Held())

	require.True(t, lease.TryAcquire("migration"))
	require.True(t, lease.Held())
	require.False(t, lease.TryAcquire("other"))

	owner, at := lease.Holder()
	assert.Equal(t, "migration", owner)
	assert.False(t, at.IsZero())

	assert.False(t, lease.Release("other"))
	assert.True(t, lease.Held())

	assert.True(t, lease.Release("migration"))
	assert.False(t, lease.Held())
}

func TestLeaseSharedHoldDelaysExclusiveOwner(t *testing.T) {
	lease := NewLease()

	release, ok := lease.Share()
	require.True(t, ok)

	acquired := make(chan struct{})
	go func() {
		lease.TryAcquire("migration")
		close(acquired)
	}()

	require.Eventually(t, lease.Held, time.Second, time.Millisecond)

	_, ok = lease.Share()
	assert.False(t, ok, "no shared hold while an owner is waiting or holding")

	select {
	case <-acquired:
		t.Fatal("exclusive owner acquired while a shared hold was outstanding")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("exclusive owner never acquired after shared hold was released")
	}

	lease.Release("migration")
	release, ok = lease.Share()
	require.True(t, ok)
	release()
}
