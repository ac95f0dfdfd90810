package providers

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled at RPS tokens per second. The bucket
// holds up to max(1, RPS) tokens, so a provider can burst one second's worth
// of requests.
type RateLimiter struct {
	mu sync.Mutex

	rps   float64
	burst float64

	tokens     float64
	lastUpdate time.Time
	blockUntil time.Time

	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	RPS             float64       `json:"rps"`
	TokensAvailable int           `json:"tokens_available"`
	TimeUntilToken  time.Duration `json:"time_until_token"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
	Last429Time     time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter creates a limiter allowing rps requests per second.
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	burst := math.Max(1, rps)
	return &RateLimiter{
		rps:        rps,
		burst:      burst,
		tokens:     burst,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		wait := r.untilToken()
		if wait == 0 {
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			r.mu.Lock()
			r.totalWaited += wait
			r.mu.Unlock()
		}
	}
}

// TryConsume takes a token without blocking.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.untilToken() == 0 {
		r.tokens--
		r.totalConsumed++
		return true
	}
	return false
}

// Record429 drains the bucket and, when retryAfter is set, blocks new
// tokens until it has passed.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last429Time = time.Now()
	r.tokens = 0
	if retryAfter > 0 {
		r.blockUntil = r.last429Time.Add(retryAfter)
	}
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	return RateLimiterStatus{
		RPS:             r.rps,
		TokensAvailable: int(r.tokens),
		TimeUntilToken:  r.untilToken(),
		TotalConsumed:   r.totalConsumed,
		TotalWaited:     r.totalWaited,
		Last429Time:     r.last429Time,
	}
}

// untilToken returns how long until a token can be taken. Lock must be held.
func (r *RateLimiter) untilToken() time.Duration {
	if d := time.Until(r.blockUntil); d > 0 {
		return d
	}
	if r.tokens >= 1 {
		return 0
	}
	need := 1 - r.tokens
	return time.Duration(need / r.rps * float64(time.Second))
}

// refill adds tokens for the elapsed time. Lock must be held.
func (r *RateLimiter) refill() {
	now := time.Now()
	r.tokens = math.Min(r.burst, r.tokens+now.Sub(r.lastUpdate).Seconds()*r.rps)
	r.lastUpdate = now
}
