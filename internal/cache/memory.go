package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     any
	counter   int64
	set       map[string]struct{}
	expiresAt time.Time // zero = no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process Cache with lazy expiry. It is the production
// default for single-node deployments and the test double everywhere; a
// networked cache plugs in behind the same interface.
type Memory struct {
	mu  sync.Mutex
	m   map[string]*entry
	now func() time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory constructs an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]*entry), now: time.Now}
}

// NewMemoryWithClock constructs a cache with an injected clock for tests.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{m: make(map[string]*entry), now: now}
}

// live returns the entry at key, dropping it first if expired.
func (c *Memory) live(key string) *entry {
	e, ok := c.m[key]
	if !ok {
		return nil
	}
	if e.expired(c.now()) {
		delete(c.m, key)
		return nil
	}
	return e
}

func (c *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *Memory) Get(_ context.Context, key string) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.live(key)
	if e == nil {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = &entry{value: value, expiresAt: c.deadline(ttl)}
	return nil
}

func (c *Memory) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.m, k)
	}
	return nil
}

func (c *Memory) IncrBy(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.live(key)
	if e == nil {
		e = &entry{expiresAt: c.deadline(ttl)}
		c.m[key] = e
	}
	e.counter += delta
	return e.counter, nil
}

func (c *Memory) GetInt64(_ context.Context, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.live(key)
	if e == nil {
		return 0, false, nil
	}
	return e.counter, true, nil
}

func (c *Memory) SAdd(_ context.Context, key, member string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.live(key)
	if e == nil {
		e = &entry{set: make(map[string]struct{}), expiresAt: c.deadline(ttl)}
		c.m[key] = e
	}
	if e.set == nil {
		e.set = make(map[string]struct{})
	}
	e.set[member] = struct{}{}
	return nil
}

func (c *Memory) SCard(_ context.Context, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.live(key)
	if e == nil {
		return 0, nil
	}
	return len(e.set), nil
}
