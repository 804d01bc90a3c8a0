package cache

import (
	"context"
	"sync"
	"time"

	"instoreorder/backend/internal/domain"
)

// AvailabilityCache holds short-lived per-product availability results.
type AvailabilityCache interface {
	Get(ctx context.Context, productID string) (*domain.AvailabilityResult, bool, error)
	Set(ctx context.Context, productID string, value *domain.AvailabilityResult, ttl time.Duration) error
}

type memoryEntry struct {
	value     domain.AvailabilityResult
	expiresAt time.Time
}

// MemoryAvailabilityCache is the default in-process cache.
type MemoryAvailabilityCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryAvailabilityCache() *MemoryAvailabilityCache {
	return &MemoryAvailabilityCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryAvailabilityCache) Get(_ context.Context, productID string) (*domain.AvailabilityResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[productID]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, productID)
		return nil, false, nil
	}
	value := entry.value
	return &value, true, nil
}

func (c *MemoryAvailabilityCache) Set(_ context.Context, productID string, value *domain.AvailabilityResult, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	c.entries[productID] = memoryEntry{value: *value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}
