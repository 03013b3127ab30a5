package requester

import (
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by every Requester working a single
// directory scan. Its refill schedule is derived entirely from the
// configured limit: refill_amount = max(limit/10, 1) tokens per
// refill_interval, capped at limit, seeded at max(limit/2, 1).
type RateLimiter struct {
	mu     sync.Mutex
	tokens int
	max    int
	refill int

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRateLimiter constructs and starts a RateLimiter for the given
// requests/second limit. Callers must call Stop when the limiter is no
// longer needed to release its background refill goroutine.
func NewRateLimiter(limit int) *RateLimiter {
	if limit < 1 {
		limit = 1
	}

	refill := limit / 10
	if refill < 1 {
		refill = 1
	}

	initial := limit / 2
	if initial < 1 {
		initial = 1
	}

	interval := 100 * time.Millisecond
	if refill == 1 {
		interval = 1000 * time.Millisecond
	}

	rl := &RateLimiter{
		tokens: initial,
		max:    limit,
		refill: refill,
		stop:   make(chan struct{}),
	}

	go rl.run(interval)
	return rl
}

func (rl *RateLimiter) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			rl.tokens += rl.refill
			if rl.tokens > rl.max {
				rl.tokens = rl.max
			}
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}

// Acquire blocks until a single token is available.
func (rl *RateLimiter) Acquire() {
	for {
		rl.mu.Lock()
		if rl.tokens > 0 {
			rl.tokens--
			rl.mu.Unlock()
			return
		}
		rl.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
}

// SetLimit adjusts max/refill in place when the Policy Engine's AutoTune
// walks the limit heap to a new candidate rate, without losing currently
// banked tokens beyond the new cap.
func (rl *RateLimiter) SetLimit(limit int) {
	if limit < 1 {
		limit = 1
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.max = limit
	rl.refill = limit / 10
	if rl.refill < 1 {
		rl.refill = 1
	}
	if rl.tokens > rl.max {
		rl.tokens = rl.max
	}
}

// Stop terminates the limiter's background refill goroutine. Safe to call
// more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
