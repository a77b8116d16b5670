// Package cache holds the per-URL caches used by the extent calculators.
//
// The default store never evicts and lives for the whole process. A size
// and/or TTL turn it into a bounded LRU or an expiring LRU.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/joeblew999/plat-style/internal/metrics"
)

// Config selects the eviction policy. Zero values mean "keep forever".
type Config struct {
	Size int           `json:"size" yaml:"size"`
	TTL  time.Duration `json:"ttl" yaml:"ttl"`
}

// Store is the minimal cache surface.
type Store[V any] interface {
	Get(key string) (V, bool)
	Add(key string, v V)
	Len() int
}

// NewStore picks an implementation for cfg.
func NewStore[V any](cfg Config) Store[V] {
	switch {
	case cfg.TTL > 0:
		return expiringStore[V]{expirable.NewLRU[string, V](max(cfg.Size, 0), nil, cfg.TTL)}
	case cfg.Size > 0:
		c, err := lru.New[string, V](cfg.Size)
		if err != nil {
			panic(err)
		}
		return lruStore[V]{c}
	default:
		return &mapStore[V]{m: make(map[string]V)}
	}
}

type lruStore[V any] struct{ c *lru.Cache[string, V] }

func (s lruStore[V]) Get(key string) (V, bool) { return s.c.Get(key) }
func (s lruStore[V]) Add(key string, v V)      { s.c.Add(key, v) }
func (s lruStore[V]) Len() int                 { return s.c.Len() }

type expiringStore[V any] struct{ c *expirable.LRU[string, V] }

func (s expiringStore[V]) Get(key string) (V, bool) { return s.c.Get(key) }
func (s expiringStore[V]) Add(key string, v V)      { s.c.Add(key, v) }
func (s expiringStore[V]) Len() int                 { return s.c.Len() }

type mapStore[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

func (s *mapStore[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *mapStore[V]) Add(key string, v V) {
	s.mu.Lock()
	s.m[key] = v
	s.mu.Unlock()
}

func (s *mapStore[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Key builds a compact key for a URL within a namespace.
func Key(namespace, url string) string {
	return fmt.Sprintf("%s:%016x", namespace, xxhash.Sum64String(url))
}

// Loader is a read-through cache. Concurrent loads of the same key share a
// single call of the load function; failed loads are not stored.
type Loader[V any] struct {
	name    string
	store   Store[V]
	group   singleflight.Group
	metrics *metrics.Pipeline
}

// NewLoader creates a named loader. m may be nil.
func NewLoader[V any](name string, cfg Config, m *metrics.Pipeline) *Loader[V] {
	return &Loader[V]{name: name, store: NewStore[V](cfg), metrics: m}
}

// Name returns the loader name used in metrics.
func (l *Loader[V]) Name() string { return l.name }

// Len is the number of cached entries.
func (l *Loader[V]) Len() int { return l.store.Len() }

// Peek returns a cached value without loading.
func (l *Loader[V]) Peek(key string) (V, bool) {
	return l.store.Get(key)
}

// Get returns the cached value for key, or calls load once and caches its
// result. hit reports whether no load was needed by this caller.
func (l *Loader[V]) Get(ctx context.Context, key string, load func(context.Context) (V, error)) (v V, hit bool, err error) {
	if v, ok := l.store.Get(key); ok {
		l.metrics.CacheResult(l.name, "hit")
		return v, true, nil
	}

	res, err, shared := l.group.Do(key, func() (any, error) {
		if v, ok := l.store.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		l.store.Add(key, v)
		return v, nil
	})
	if shared {
		l.metrics.CacheResult(l.name, "shared")
	} else {
		l.metrics.CacheResult(l.name, "miss")
	}
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), shared, nil
}
