package semaphore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphore_InitialCount(t *testing.T) {
	s := New(2)
	assert.Equal(t, 2, s.Count())
	assert.True(t, s.TryAcquire())
	assert.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire(), "count exhausted")
	assert.Equal(t, 0, s.Count())
}

func TestSemaphore_NegativeInitialClamped(t *testing.T) {
	assert.Equal(t, 0, New(-3).Count())
}

func TestSemaphore_ReleaseBeforeAcquire(t *testing.T) {
	s := New(0)
	s.Release()
	s.Release()
	assert.Equal(t, 2, s.Count())

	done := make(chan struct{})
	go func() {
		s.Acquire()
		s.Acquire()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire blocked despite available permits")
	}
	assert.Equal(t, 0, s.Count())
}

func TestSemaphore_AcquireBlocksUntilRelease(t *testing.T) {
	s := New(0)
	var acquired atomic.Bool

	done := make(chan struct{})
	go func() {
		s.Acquire()
		acquired.Store(true)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Waiters() == 1 }, time.Second, time.Millisecond)
	assert.False(t, acquired.Load(), "must block while count is 0")

	s.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("release did not wake the waiter")
	}
	assert.Equal(t, 0, s.Count(), "permit handed to the waiter, not banked")
}

func TestSemaphore_FIFOWaiters(t *testing.T) {
	s := New(0)
	const n = 5
	order := make(chan int, n)

	for i := 0; i < n; i++ {
		go func(id int) {
			s.Acquire()
			order <- id
		}(i)
		require.Eventually(t, func() bool { return s.Waiters() == i+1 }, time.Second, time.Millisecond)
	}

	for i := 0; i < n; i++ {
		s.Release()
		assert.Equal(t, i, <-order)
	}
}

func TestSemaphore_ReleaseN(t *testing.T) {
	s := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Acquire()
		}()
	}
	require.Eventually(t, func() bool { return s.Waiters() == 3 }, time.Second, time.Millisecond)

	s.ReleaseN(5)
	wg.Wait()
	assert.Equal(t, 2, s.Count(), "surplus permits are banked")
}

func TestSemaphore_AcquireContextCancelled(t *testing.T) {
	s := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.AcquireContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, s.Waiters(), "cancelled waiter removed")

	s.Release()
	assert.Equal(t, 1, s.Count(), "release after cancellation is banked")
}

func TestSemaphore_AcquireContextSucceeds(t *testing.T) {
	s := New(1)
	require.NoError(t, s.AcquireContext(context.Background()))
	assert.Equal(t, 0, s.Count())
}

func TestSemaphore_Concurrent(t *testing.T) {
	s := New(0)
	const goroutines = 50
	const rounds = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				s.Release()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				s.Acquire()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 0, s.Waiters())
}

func TestNewPool(t *testing.T) {
	pool := NewPool(3)
	require.Len(t, pool, 3)
	for _, s := range pool {
		assert.Equal(t, 0, s.Count())
	}
	assert.Empty(t, NewPool(0))
}
