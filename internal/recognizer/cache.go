package recognizer

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/luserve/luserve/internal/config"
	"github.com/luserve/luserve/internal/nlp"
)

// Cache types.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Entry is a cached recognition.
type Entry struct {
	Cats map[string]float64 `json:"cats"`
	Ents []nlp.EntityDetail `json:"ents"`
}

// Cache stores recognitions keyed by model fingerprints and query.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Clear(ctx context.Context) error
	// Len returns the number of entries, or -1 when the backend cannot
	// count them cheaply.
	Len() int
	Type() string
	Close() error
}

// NewCache creates the cache selected by cfg.Type.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	ttl := time.Duration(cfg.TTL) * time.Second

	switch cfg.Type {
	case CacheMemory, "":
		return NewMemoryCache(cfg.Size, ttl), nil
	case CacheRedis:
		return NewRedisCache(cfg.RedisURL, ttl)
	case CacheNone:
		return NoopCache{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

type memoryItem struct {
	key     string
	entry   *Entry
	expires time.Time
}

// MemoryCache is a mutex-guarded LRU with an optional TTL.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front is most recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an LRU holding at most maxSize entries. A zero ttl
// never expires entries.
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryCache{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the entry for key.
func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}

	item := el.Value.(*memoryItem)
	if !item.expires.IsZero() && c.now().After(item.expires) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false, nil
	}

	c.order.MoveToFront(el)
	return copyEntry(item.entry), true, nil
}

// Set stores a copy of entry, evicting the least recently used entry when
// the cache is full.
func (c *MemoryCache) Set(_ context.Context, key string, entry *Entry) error {
	item := &memoryItem{key: key, entry: copyEntry(entry)}
	if c.ttl > 0 {
		item.expires = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value = item
		c.order.MoveToFront(el)
		return nil
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*memoryItem).key)
	}

	c.items[key] = c.order.PushFront(item)
	return nil
}

// Clear drops every entry.
func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Len returns the number of entries, expired ones included until touched.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Type returns "memory".
func (c *MemoryCache) Type() string { return CacheMemory }

// Close is a no-op.
func (c *MemoryCache) Close() error { return nil }

func copyEntry(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	out := &Entry{
		Cats: make(map[string]float64, len(e.Cats)),
		Ents: make([]nlp.EntityDetail, len(e.Ents)),
	}
	for k, v := range e.Cats {
		out.Cats[k] = v
	}
	copy(out.Ents, e.Ents)
	return out
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*Entry, bool, error) { return nil, false, nil }

func (NoopCache) Set(context.Context, string, *Entry) error { return nil }

func (NoopCache) Clear(context.Context) error { return nil }

func (NoopCache) Len() int { return 0 }

func (NoopCache) Type() string { return CacheNone }

func (NoopCache) Close() error { return nil }
