package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process cache backed by patrickmn/go-cache.
type Memory struct {
	store  *gocache.Cache
	prefix string
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
	purged   sync.WaitGroup
}

// NewMemory creates an in-memory cache. Expired items are never returned;
// they are purged every CleanupInterval until Close, or only overwritten when
// CleanupInterval is zero.
func NewMemory(cfg Config) *Memory {
	ttl := cfg.DefaultTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	m := &Memory{
		// go-cache's own janitor cannot be stopped, so purging runs here.
		store:  gocache.New(ttl, 0),
		prefix: cfg.Prefix,
		ttl:    ttl,
		stop:   make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		m.purged.Add(1)
		go m.purge(cfg.CleanupInterval)
	}
	return m
}

func (m *Memory) purge(interval time.Duration) {
	defer m.purged.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.store.DeleteExpired()
		}
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := m.store.Get(m.prefix + key)
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return v.([]byte), true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.store.Set(m.prefix+key, stored, ttl)
	m.sets.Add(1)
}

func (m *Memory) Delete(_ context.Context, key string) {
	m.store.Delete(m.prefix + key)
}

func (m *Memory) Stats() Stats {
	return Stats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
		Sets:   m.sets.Load(),
		Items:  m.store.ItemCount(),
	}
}

// Close stops purging and flushes all items. It is safe to call more than once.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	m.purged.Wait()
	m.store.Flush()
	return nil
}
