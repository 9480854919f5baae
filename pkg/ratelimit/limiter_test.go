package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestLimiterStore_BurstPerKey(t *testing.T) {
	s := NewLimiterStore(rate.Limit(1), 2, time.Minute)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	for i := 0; i < 2; i++ {
		ok, err := s.Allow("a")
		assert.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := s.Allow("a")
	assert.False(t, ok)

	ok, _ = s.Allow("b")
	assert.True(t, ok)

	clock = clock.Add(time.Second)
	ok, _ = s.Allow("a")
	assert.True(t, ok)
}

func TestLimiterStore_ExpiresIdleKeys(t *testing.T) {
	s := NewLimiterStore(rate.Limit(1), 1, time.Minute)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.GetLimiter("a")
	s.GetLimiter("b")
	assert.Equal(t, 2, s.Len())

	clock = clock.Add(2 * time.Minute)
	s.GetLimiter("b")
	assert.Equal(t, 1, s.Len())
}
