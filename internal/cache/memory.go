package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// MemoryStore is the in-process alternative when no redis is configured.
// Results are lost on restart; follow-ups then get the expired notice.
type MemoryStore struct {
	cache *lru.Cache
	now   func() time.Time
	mu    sync.Mutex
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemory(maxSize int) (*MemoryStore, error) {
	c, err := lru.New(maxSize)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c, now: time.Now}, nil
}

func (c *MemoryStore) Get(_ context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, found := c.cache.Get(key)
	if !found {
		return ErrNotFound
	}
	entry := val.(memEntry)
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.cache.Remove(key)
		return ErrNotFound
	}
	return json.Unmarshal(entry.data, dest)
}

// Set copies value through JSON so callers cannot mutate the stored entry.
func (c *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	entry := memEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, entry)
	return nil
}

func (c *MemoryStore) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.cache.Remove(k)
	}
	return nil
}

func (c *MemoryStore) Ping(context.Context) error { return nil }

// Len reports the number of entries, expired ones included.
func (c *MemoryStore) Len() int { return c.cache.Len() }
