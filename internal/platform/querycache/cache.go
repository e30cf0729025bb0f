// Package querycache holds client-side copies of upstream query results keyed
// by their input parameters.
//
// Entries are never patched in place: a write elsewhere invalidates a key
// prefix and the next read fetches the truth again. A fetch that was already
// running when its key got invalidated still returns its result to its
// callers, but the result is not stored.
//
// A context carrying a scope (see WithScope) reads and invalidates only the
// entries of that scope, so each admin session sees only what was fetched
// with its own credentials.
package querycache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultFetchTimeout bounds a shared fetch once it no longer follows the
// context of the caller that started it.
const DefaultFetchTimeout = 30 * time.Second

// scopeMark leads every scoped key so scoped and unscoped keys never meet.
const scopeMark = "\x00scope"

// Key identifies a query by its name followed by its parameters, for example
// Key{"public-reserve", token, date}.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "\x1f")
}

// HasPrefix reports whether p is a leading subsequence of k.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if k[i] != p[i] {
			return false
		}
	}
	return true
}

type scopeKey struct{}

// WithScope returns a context whose cache reads and invalidations are
// confined to scope.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope of ctx, or "" when it has none.
func ScopeFrom(ctx context.Context) string {
	s, _ := ctx.Value(scopeKey{}).(string)
	return s
}

func scoped(ctx context.Context, k Key) Key {
	s := ScopeFrom(ctx)
	if s == "" {
		return k
	}
	return append(Key{scopeMark, s}, k...)
}

type entry struct {
	key       Key
	value     any
	storedAt  time.Time
	expiresAt time.Time
}

// flight is one running upstream fetch.
type flight struct {
	id      string
	key     Key
	started uint64
}

// Cache is a thread-safe query cache with prefix invalidation.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	flights map[*flight]struct{}
	marks   map[string]uint64 // invalidated prefix -> version at invalidation
	version uint64
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
	now     func() time.Time
}

// New creates a Cache. A zero ttl keeps entries until they are invalidated.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		flights: make(map[*flight]struct{}),
		marks:   make(map[string]uint64),
		ttl:     ttl,
		timeout: DefaultFetchTimeout,
		now:     time.Now,
	}
}

// SetFetchTimeout changes the bound of shared fetches. Call it before the
// cache is used. A non-positive d removes the bound.
func (c *Cache) SetFetchTimeout(d time.Duration) {
	c.timeout = d
}

// Fetch returns the cached value for key, or runs fetch once for all
// concurrent callers asking for the same key and caches its result.
// Errors are never cached.
//
// The shared fetch keeps the values of the starting caller's context but not
// its cancellation, so one caller giving up does not fail the others. Each
// caller still returns as soon as its own context is done.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	name := ""
	if len(key) > 0 {
		name = key[0]
	}
	key = scoped(ctx, key)
	if v, ok := c.lookup(key); ok {
		return v.(T), nil
	}

	id := key.String()
	ch := c.group.DoChan(id, func() (v any, err error) {
		f := c.begin(id, key)
		defer c.end(f)
		// The fetch runs on its own goroutine, out of reach of Recovery.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("query %s panicked: %v", name, r)
			}
		}()

		fctx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.timeout)
			defer cancel()
		}
		res, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		c.store(key, res, f.started)
		return res, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Peek returns the cached value for key without fetching.
func Peek[T any](ctx context.Context, c *Cache, key Key) (T, bool) {
	v, ok := c.lookup(scoped(ctx, key))
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Invalidate drops every entry of ctx's scope whose key starts with prefix
// and prevents fetches already in flight for those keys from storing their
// results.
func (c *Cache) Invalidate(ctx context.Context, prefix Key) int {
	return c.invalidate(scoped(ctx, prefix))
}

// DropScope forgets everything cached for scope.
func (c *Cache) DropScope(scope string) int {
	if scope == "" {
		return 0
	}
	return c.invalidate(Key{scopeMark, scope})
}

func (c *Cache) invalidate(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.version++
	// Marks only matter to fetches that are running now.
	if len(c.flights) > 0 {
		c.marks[prefix.String()] = c.version
	}

	dropped := 0
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, id)
			dropped++
		}
	}
	for f := range c.flights {
		if f.key.HasPrefix(prefix) {
			c.group.Forget(f.id)
		}
	}
	return dropped
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) markCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.marks)
}

func (c *Cache) begin(id string, key Key) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := &flight{id: id, key: key, started: c.version}
	c.flights[f] = struct{}{}
	return f
}

// end retires f and drops the marks no running fetch can still observe.
func (c *Cache) end(f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flights, f)

	if len(c.flights) == 0 {
		clear(c.marks)
		return
	}
	oldest := c.version
	for g := range c.flights {
		oldest = min(oldest, g.started)
	}
	for p, v := range c.marks {
		if v <= oldest {
			delete(c.marks, p)
		}
	}
}

func (c *Cache) lookup(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		delete(c.entries, key.String())
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(key Key, value any, started uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i <= len(key); i++ {
		if v, ok := c.marks[key[:i].String()]; ok && v > started {
			return
		}
	}

	now := c.now()
	e := &entry{key: key, value: value, storedAt: now}
	if c.ttl > 0 {
		e.expiresAt = now.Add(c.ttl)
	}
	c.entries[key.String()] = e
}
