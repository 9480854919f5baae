package cache

import (
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Cache is a process local key/value store. Do coalesces concurrent loads
// of the same key.
type Cache interface {
	Set(key string, value interface{}, ttl time.Duration)
	Get(key string) (interface{}, bool)
	Do(key string, load func() (interface{}, error)) (interface{}, error)
	ItemCount() int
}

type goCache struct {
	items *cache.Cache
	group singleflight.Group
}

// NewCache builds a go-cache backed Cache. A zero defaultExpiration keeps
// items until they are replaced; a zero cleanupInterval never sweeps.
func NewCache(defaultExpiration, cleanupInterval time.Duration) Cache {
	if defaultExpiration == 0 {
		defaultExpiration = cache.NoExpiration
	}
	return &goCache{items: cache.New(defaultExpiration, cleanupInterval)}
}

func (c *goCache) Set(key string, value interface{}, ttl time.Duration) {
	c.items.Set(key, value, ttl)
}

func (c *goCache) Get(key string) (interface{}, bool) {
	return c.items.Get(key)
}

func (c *goCache) Do(key string, load func() (interface{}, error)) (interface{}, error) {
	v, err, _ := c.group.Do(key, load)
	return v, err
}

func (c *goCache) ItemCount() int {
	return c.items.ItemCount()
}

// GetFromCache returns the cached value when it exists and has type T.
func GetFromCache[T any](c Cache, key string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	val, found := c.Get(key)
	if !found {
		return zero, false
	}
	typed, ok := val.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// GetOrLoad returns the cached T for key, running load at most once across
// concurrent callers on a miss. Only successful loads are stored.
func GetOrLoad[T any](c Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, ok := GetFromCache[T](c, key); ok {
		return v, nil
	}
	if c == nil {
		return load()
	}

	v, err := c.Do(key, func() (interface{}, error) {
		if v, ok := GetFromCache[T](c, key); ok {
			return v, nil
		}
		loaded, err := load()
		if err != nil {
			return nil, err
		}
		c.Set(key, loaded, ttl)
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
