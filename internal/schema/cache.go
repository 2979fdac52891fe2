package schema

import (
	"context"
	"sync"
	"time"
)

type Loader func(ctx context.Context) (*Model, error)

type CacheStatus string

const (
	CacheHit         CacheStatus = "hit"
	CacheUnchanged   CacheStatus = "unchanged"
	CacheInvalidated CacheStatus = "invalidated"
	CacheMiss        CacheStatus = "miss"
)

// Cache keeps the latest schema snapshot keyed by its fingerprint. Within
// the TTL the snapshot is served as is; after it the loader runs again and
// the snapshot is replaced only when the fingerprint changed. A zero TTL
// re-introspects on every call.
type Cache struct {
	loader Loader
	ttl    time.Duration
	now    func() time.Time

	mu          sync.Mutex
	model       *Model
	fingerprint string
	checkedAt   time.Time
}

func NewCache(loader Loader, ttl time.Duration) *Cache {
	return &Cache{loader: loader, ttl: ttl, now: time.Now}
}

func (c *Cache) Get(ctx context.Context) (*Model, CacheStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.model != nil && c.ttl > 0 && now.Sub(c.checkedAt) < c.ttl {
		return c.model, CacheHit, nil
	}

	model, err := c.loader(ctx)
	if err != nil {
		return nil, "", err
	}
	fingerprint := model.Fingerprint()
	c.checkedAt = now

	switch {
	case c.model == nil:
		c.model, c.fingerprint = model, fingerprint
		return model, CacheMiss, nil
	case fingerprint == c.fingerprint:
		return c.model, CacheUnchanged, nil
	default:
		c.model, c.fingerprint = model, fingerprint
		return model, CacheInvalidated, nil
	}
}

func (c *Cache) Fingerprint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprint
}

// Invalidate drops the snapshot so the next Get re-introspects.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = nil
	c.fingerprint = ""
	c.checkedAt = time.Time{}
}
