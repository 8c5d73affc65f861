// Package memo provides an in-process, time-windowed memoization table keyed
// by operation and normalized arguments. Entries expire after their TTL and are
// refetched transparently; there is no size-based eviction.
package memo

import (
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"
)

const defaultShards = 16

// Fill is what a loader hands back to Do. Present=false records an absent
// result (e.g. a remote 404). TTL <= 0 means the result is returned but not
// remembered.
type Fill[V any] struct {
	Value   V
	Present bool
	TTL     time.Duration
}

type entry[V any] struct {
	value     V
	present   bool
	expiresAt time.Time
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
}

// Cache is safe for concurrent use. Concurrent Do calls for the same key share
// one loader invocation.
type Cache[V any] struct {
	shards []shard[V]
	now    func() time.Time
	group  singleflight.Group
}

// Purpose: Construct a memo table.
// Key aspects: now may be nil (wall clock); tests inject a fake clock.
// Upstream: pota.NewClient.
// Downstream: shard allocation.
func New[V any](now func() time.Time) *Cache[V] {
	if now == nil {
		now = time.Now
	}
	c := &Cache[V]{
		shards: make([]shard[V], defaultShards),
		now:    now,
	}
	for i := range c.shards {
		c.shards[i].items = make(map[string]entry[V])
	}
	return c
}

// Key joins an operation name and its normalized arguments.
func Key(op string, args ...string) string {
	if len(args) == 0 {
		return op
	}
	return op + "|" + strings.Join(args, "|")
}

// Get returns (value, present, found). Expired entries are dropped.
func (c *Cache[V]) Get(key string) (V, bool, bool) {
	var zero V
	if c == nil || key == "" {
		return zero, false, false
	}
	s := c.shardFor(key)
	now := c.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok {
		return zero, false, false
	}
	if now.After(e.expiresAt) {
		delete(s.items, key)
		return zero, false, false
	}
	return e.value, e.present, true
}

// Set stores a value for ttl. Non-positive ttl is ignored.
func (c *Cache[V]) Set(key string, value V, present bool, ttl time.Duration) {
	if c == nil || key == "" || ttl <= 0 {
		return
	}
	s := c.shardFor(key)
	expiresAt := c.now().Add(ttl)
	s.mu.Lock()
	s.items[key] = entry[V]{value: value, present: present, expiresAt: expiresAt}
	s.mu.Unlock()
}

// Purpose: Return the memoized result for key or run load once to fill it.
// Key aspects: Singleflight collapses concurrent misses; the cache is
// re-checked inside the flight so a caller that lost the race never reloads.
// Upstream: pota.Client memoized endpoints.
// Downstream: Get, Set, singleflight.Group.Do.
func (c *Cache[V]) Do(key string, load func() Fill[V]) (V, bool) {
	if v, present, ok := c.Get(key); ok {
		return v, present
	}
	res, _, _ := c.group.Do(key, func() (any, error) {
		if v, present, ok := c.Get(key); ok {
			return Fill[V]{Value: v, Present: present}, nil
		}
		f := load()
		c.Set(key, f.Value, f.Present, f.TTL)
		return f, nil
	})
	f := res.(Fill[V])
	return f.Value, f.Present
}

// Len counts live (unexpired) entries.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	now := c.now()
	total := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for key, e := range s.items {
			if now.After(e.expiresAt) {
				delete(s.items, key)
				continue
			}
			total++
		}
		s.mu.Unlock()
	}
	return total
}

func (c *Cache[V]) shardFor(key string) *shard[V] {
	return &c.shards[xxh3.HashString(key)%uint64(len(c.shards))]
}
