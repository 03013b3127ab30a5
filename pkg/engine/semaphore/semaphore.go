// Package semaphore implements the Dynamic Semaphore: a permit-based
// concurrency cap whose capacity can be reduced or increased while permits
// are outstanding. Unlike a standard counting semaphore, shrinking capacity
// below the number of permits currently in use does not revoke those
// permits; it instead causes future releases to be "forgotten" until the
// in-use count converges back down to capacity.
package semaphore

import (
	"errors"
)

// ErrClosed is returned by Acquire/TryAcquire once the semaphore has been
// closed, and is delivered to every blocked waiter at close time.
var ErrClosed = errors.New("semaphore: closed")

// ErrWouldBlock is returned by TryAcquire when no permit is immediately
// available.
var ErrWouldBlock = errors.New("semaphore: would block")

// Permit is the token returned by a successful acquire. Callers must call
// Release exactly once per Permit.
type Permit struct {
	sem *Semaphore
}

// Release returns the permit to the semaphore it was acquired from. It is
// safe to call from any goroutine, and safe to call even if the semaphore
// has since been closed.
func (p *Permit) Release() {
	p.sem.release()
}

// Semaphore is a runtime-resizable counting semaphore. The zero value is
// not usable; construct one with New.
type Semaphore struct {
	// guard is a buffered (size 1) channel used as a mutex over the
	// semaphore's plain state: holding its single token is holding the
	// lock.
	guard chan struct{}

	capacity int
	inUse    int
	available int
	closed   bool

	// waiters is the set of blocked acquirers to notify when a permit
	// becomes available or the semaphore closes. Each channel is buffered
	// with size 1 so a notify never blocks the notifier.
	waiters map[chan struct{}]bool
}

// New creates a Semaphore with the given initial capacity. All permits
// start available.
func New(capacity int) *Semaphore {
	s := &Semaphore{
		guard:     make(chan struct{}, 1),
		capacity:  capacity,
		available: capacity,
		waiters:   make(map[chan struct{}]bool),
	}
	s.guard <- struct{}{}
	return s
}

func (s *Semaphore) lock() {
	<-s.guard
}

func (s *Semaphore) unlock() {
	s.guard <- struct{}{}
}

// broadcast wakes every blocked waiter. Callers must hold the lock.
func (s *Semaphore) broadcast() {
	for w := range s.waiters {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// Acquire blocks until a permit is available or the semaphore is closed.
func (s *Semaphore) Acquire() (*Permit, error) {
	for {
		s.lock()
		if s.closed {
			s.unlock()
			return nil, ErrClosed
		}
		if s.available > 0 {
			s.available--
			s.inUse++
			s.unlock()
			return &Permit{sem: s}, nil
		}

		wake := make(chan struct{}, 1)
		s.waiters[wake] = true
		s.unlock()

		<-wake

		s.lock()
		delete(s.waiters, wake)
		s.unlock()
	}
}

// TryAcquire returns immediately: a Permit if one is available, ErrClosed if
// the semaphore has been closed, or ErrWouldBlock otherwise.
func (s *Semaphore) TryAcquire() (*Permit, error) {
	s.lock()
	defer s.unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.available > 0 {
		s.available--
		s.inUse++
		return &Permit{sem: s}, nil
	}
	return nil, ErrWouldBlock
}

// release returns a permit. If the semaphore is currently over-capacity
// (more permits in use than its current capacity allows), the permit is
// forgotten instead of being returned to the pool, so that the available
// count converges toward capacity rather than overshooting it.
func (s *Semaphore) release() {
	s.lock()
	defer s.unlock()

	s.inUse--
	if s.inUse+s.available < s.capacity {
		s.available++
		s.broadcast()
	}
}

// ReduceCapacity lowers the semaphore's capacity to newCapacity and returns
// the previous capacity. If more permits are currently in use than the new
// capacity allows, the semaphore enters an over-capacity state: available
// drops to zero and acquires block until enough permits are released to
// converge back under the new capacity.
func (s *Semaphore) ReduceCapacity(newCapacity int) int {
	s.lock()
	defer s.unlock()

	old := s.capacity
	s.capacity = newCapacity

	if s.inUse > newCapacity {
		s.available = 0
	} else {
		s.available = newCapacity - s.inUse
	}

	return old
}

// IncreaseCapacity raises the semaphore's capacity to newCapacity and
// returns the previous capacity. The available count grows by exactly the
// size of the increase, and any blocked acquirers are woken.
func (s *Semaphore) IncreaseCapacity(newCapacity int) int {
	s.lock()
	defer s.unlock()

	old := s.capacity
	delta := newCapacity - old
	s.capacity = newCapacity
	s.available += delta
	s.broadcast()

	return old
}

// Close causes every blocked and future Acquire/TryAcquire call to return
// ErrClosed.
func (s *Semaphore) Close() {
	s.lock()
	defer s.unlock()

	s.closed = true
	s.broadcast()
}

// AvailablePermits reports the number of permits currently available.
func (s *Semaphore) AvailablePermits() int {
	s.lock()
	defer s.unlock()
	return s.available
}

// CurrentCapacity reports the semaphore's configured capacity.
func (s *Semaphore) CurrentCapacity() int {
	s.lock()
	defer s.unlock()
	return s.capacity
}

// PermitsInUse reports the number of permits currently held.
func (s *Semaphore) PermitsInUse() int {
	s.lock()
	defer s.unlock()
	return s.inUse
}
