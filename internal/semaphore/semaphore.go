// Package semaphore provides the counting semaphore the scheduler uses for
// Wait/Notify dependency points and for parking idle workers.
//
// Acquire blocks until the count is positive and decrements it; Release
// increments it or hands the permit directly to the oldest waiter. Waiters
// are served in FIFO order. There is no upper bound on the count.
package semaphore

import (
	"context"
	"sync"
)

// Semaphore is a counting semaphore. The zero value has count 0 and is
// ready to use.
type Semaphore struct {
	mu      sync.Mutex
	count   int
	waiters []chan struct{}
}

// New creates a semaphore with the given initial count.
func New(initial int) *Semaphore {
	if initial < 0 {
		initial = 0
	}
	return &Semaphore{count: initial}
}

// Acquire blocks until a permit is available and takes it.
func (s *Semaphore) Acquire() {
	ready, ok := s.enqueue()
	if ok {
		return
	}
	<-ready
}

// AcquireContext is Acquire with cancellation. On cancellation it returns
// ctx.Err() and leaves the count unchanged.
func (s *Semaphore) AcquireContext(ctx context.Context) error {
	ready, ok := s.enqueue()
	if ok {
		return nil
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == ready {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// Granted concurrently with cancellation: hand the permit back.
		<-ready
		s.Release()
		return ctx.Err()
	}
}

// TryAcquire takes a permit without blocking. Reports whether it succeeded.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count > 0 && len(s.waiters) == 0 {
		s.count--
		return true
	}
	return false
}

// enqueue takes a permit if one is free, otherwise registers a waiter.
func (s *Semaphore) enqueue() (chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count > 0 && len(s.waiters) == 0 {
		s.count--
		return nil, true
	}
	ready := make(chan struct{})
	s.waiters = append(s.waiters, ready)
	return ready, false
}

// Release returns one permit, waking the oldest waiter if any. Never blocks.
func (s *Semaphore) Release() {
	s.ReleaseN(1)
}

// ReleaseN returns n permits.
func (s *Semaphore) ReleaseN(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ; n > 0; n-- {
		if len(s.waiters) > 0 {
			w := s.waiters[0]
			s.waiters[0] = nil
			s.waiters = s.waiters[1:]
			close(w)
			continue
		}
		s.count++
	}
}

// Count returns the number of free permits.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Waiters returns the number of blocked acquirers.
func (s *Semaphore) Waiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

// NewPool allocates n semaphores, each with count 0.
func NewPool(n int) []*Semaphore {
	pool := make([]*Semaphore, n)
	for i := range pool {
		pool[i] = New(0)
	}
	return pool
}
