package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LimiterStore keeps one token bucket per key. Buckets idle for longer than
// expiresIn are dropped on the next lookup.
type LimiterStore struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	r         rate.Limit
	burst     int
	expiresIn time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewLimiterStore(r rate.Limit, burst int, expiresIn time.Duration) *LimiterStore {
	return &LimiterStore{
		visitors:  make(map[string]*visitor),
		r:         r,
		burst:     burst,
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

func (s *LimiterStore) GetLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if v, exists := s.visitors[key]; exists {
		v.lastSeen = now
		return v.limiter
	}
	limiter := rate.NewLimiter(s.r, s.burst)
	s.visitors[key] = &visitor{limiter: limiter, lastSeen: now}
	return limiter
}

// Allow satisfies echo's RateLimiterStore.
func (s *LimiterStore) Allow(identifier string) (bool, error) {
	return s.GetLimiter(identifier).AllowN(s.now(), 1), nil
}

func (s *LimiterStore) sweep(now time.Time) {
	if s.expiresIn <= 0 || now.Sub(s.lastSweep) < s.expiresIn {
		return
	}
	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.expiresIn {
			delete(s.visitors, key)
		}
	}
	s.lastSweep = now
}

func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}
