package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	key      string
	data     []byte
	expireAt time.Time
}

// MemoryCache is an LRU cache holding encoded values. Expired entries are
// dropped lazily on access.
type MemoryCache struct {
	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element
	max   int
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{MaxItems: 1000, DefaultTTL: 24 * time.Hour, Now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	return &MemoryCache{
		ll:    list.New(),
		items: make(map[string]*list.Element),
		max:   cfg.MaxItems,
		ttl:   cfg.DefaultTTL,
		now:   cfg.Now,
	}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = mc.ttl
	}
	item := &memoryItem{key: key, data: data}
	if ttl > 0 {
		item.expireAt = mc.now().Add(ttl)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if el, ok := mc.items[key]; ok {
		el.Value = item
		mc.ll.MoveToFront(el)
		return nil
	}
	mc.items[key] = mc.ll.PushFront(item)
	for mc.ll.Len() > mc.max {
		mc.removeElement(mc.ll.Back())
	}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	el, ok := mc.items[key]
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	item := el.Value.(*memoryItem)
	if !item.expireAt.IsZero() && mc.now().After(item.expireAt) {
		mc.removeElement(el)
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.ll.MoveToFront(el)
	data := item.data
	mc.mu.Unlock()
	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if el, ok := mc.items[key]; ok {
			mc.removeElement(el)
		}
	}
	return nil
}

// TryLock sets key if it is absent or expired.
func (mc *MemoryCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	if el, ok := mc.items[key]; ok {
		item := el.Value.(*memoryItem)
		if item.expireAt.IsZero() || !mc.now().After(item.expireAt) {
			mc.mu.Unlock()
			return false, nil
		}
	}
	mc.mu.Unlock()
	return true, mc.Set(ctx, key, "locked", ttl)
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len returns the number of entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.ll.Len()
}

func (mc *MemoryCache) Close() error { return nil }

func (mc *MemoryCache) removeElement(el *list.Element) {
	mc.ll.Remove(el)
	delete(mc.items, el.Value.(*memoryItem).key)
}
