package requester

import "testing"

func TestNewRateLimiterSeedsInitialTokens(t *testing.T) {
	rl := NewRateLimiter(100)
	defer rl.Stop()

	if rl.tokens != 50 {
		t.Fatalf("initial tokens = %d, want 50", rl.tokens)
	}
	if rl.max != 100 {
		t.Fatalf("max = %d, want 100", rl.max)
	}
	if rl.refill != 10 {
		t.Fatalf("refill = %d, want 10", rl.refill)
	}
}

func TestNewRateLimiterFloorsAtOne(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	if rl.tokens != 1 {
		t.Fatalf("initial tokens = %d, want 1", rl.tokens)
	}
	if rl.refill != 1 {
		t.Fatalf("refill = %d, want 1", rl.refill)
	}
}

func TestAcquireDrainsTokens(t *testing.T) {
	rl := NewRateLimiter(100)
	defer rl.Stop()

	for i := 0; i < 50; i++ {
		rl.Acquire()
	}

	rl.mu.Lock()
	tokens := rl.tokens
	rl.mu.Unlock()

	if tokens != 0 {
		t.Fatalf("tokens after draining initial bucket = %d, want 0", tokens)
	}
}

func TestSetLimitCapsExistingTokens(t *testing.T) {
	rl := NewRateLimiter(100)
	defer rl.Stop()

	rl.SetLimit(10)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.tokens > rl.max {
		t.Fatalf("tokens %d exceed new max %d", rl.tokens, rl.max)
	}
	if rl.max != 10 {
		t.Fatalf("max = %d, want 10", rl.max)
	}
}
