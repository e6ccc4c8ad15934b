package cache

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long entries stay valid unless the cache is built
// with an explicit TTL.
const DefaultTTL = 15 * time.Minute

type entry struct {
	value      any
	insertedAt time.Time
}

// Cache is an in-memory key/value store with a per-entry time-to-live.
// Expired entries are evicted lazily when read; there is no background
// sweep, so unread stale entries linger until Clear or key reuse.
//
// Each remote API client owns its own Cache instance, so keys never
// collide across services and caches can be cleared independently.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry

	// now is overridable in tests.
	now func() time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for key if it exists and has not
// expired. An expired entry is deleted on read.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, insertedAt: c.now()}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len reports the number of stored entries, including stale ones that
// have not been read since expiring.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key builds a cache key like "omdb:tt0111161" from a namespace prefix
// and variable parts. Callers are responsible for ordering the parts
// deterministically; see ParamsKey for query-parameter maps.
func Key(prefix string, parts ...string) string {
	return prefix + ":" + strings.Join(parts, ":")
}

// ParamsKey builds a key from an endpoint and its query parameters.
// Parameter names are sorted before joining, so two requests with the
// same parameters in different insertion order hit the same entry.
func ParamsKey(prefix, endpoint string, params url.Values) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, 1+2*len(names))
	parts = append(parts, endpoint)
	for _, name := range names {
		parts = append(parts, name, strings.Join(params[name], ","))
	}
	return Key(prefix, parts...)
}
