// Package query holds the client-side query cache and the mutation state machine
// that the badge client builds its reads and writes on.
package query

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is a snapshot of one cached read.
type Entry struct {
	Key       Key
	Value     any
	Err       error
	Status    Status
	Fetching  bool
	Stale     bool
	UpdatedAt time.Time
}

type entry struct {
	Entry
	hasValue   bool
	generation uint64
}

// Observer receives cache activity, typically Prometheus counters.
type Observer interface {
	Hit(operation string)
	Miss(operation string)
	Invalidated(operation string, n int)
	FetchError(operation string)
}

type noopObserver struct{}

func (noopObserver) Hit(string)              {}
func (noopObserver) Miss(string)             {}
func (noopObserver) Invalidated(string, int) {}
func (noopObserver) FetchError(string)       {}

type Options struct {
	// StaleTime bounds how long a successful read is served without a remote call.
	// Zero or negative keeps entries fresh until they are invalidated.
	StaleTime time.Duration
	Observer  Observer
	Logger    *logrus.Logger
	Now       func() time.Time
}

// Cache is the single shared store of remote read results. It is only mutated by
// fetches and by the invalidation API.
type Cache struct {
	opts    Options
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
}

func NewCache(opts Options) *Cache {
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		opts:    opts,
		entries: make(map[string]*entry),
	}
}

// Query describes one cached read.
type Query[T any] struct {
	Key Key
	// Enabled gates the read; a disabled query yields the zero value without calling Fn.
	Enabled bool
	// Refresh bypasses a fresh entry and forces a new remote call.
	Refresh bool
	Fn      func(ctx context.Context) (T, error)
}

// Fetch serves q from the cache or runs q.Fn, sharing one call among concurrent
// readers of the same key. A caller whose ctx ends stops waiting, but the remote
// call runs to completion and still populates the cache.
func Fetch[T any](ctx context.Context, c *Cache, q Query[T]) (T, error) {
	var zero T
	if !q.Enabled {
		return zero, nil
	}
	id := q.Key.id()
	op := q.Key.Operation()

	c.mu.Lock()
	e, ok := c.entries[id]
	if ok && !q.Refresh && c.freshLocked(e) {
		v := e.Value
		c.mu.Unlock()
		c.opts.Observer.Hit(op)
		out, _ := v.(T)
		return out, nil
	}
	if !ok {
		e = &entry{Entry: Entry{Key: q.Key, Status: StatusPending}}
		c.entries[id] = e
	}
	e.Fetching = true
	if q.Refresh {
		// Older in-flight calls must not overwrite the forced result.
		e.generation++
		c.group.Forget(id)
	}
	c.mu.Unlock()

	c.opts.Observer.Miss(op)

	ch := c.group.DoChan(id, func() (any, error) {
		c.mu.Lock()
		target, gen := c.entries[id], uint64(0)
		if target != nil {
			gen = target.generation
		}
		c.mu.Unlock()

		v, err := q.Fn(context.WithoutCancel(ctx))
		c.store(id, target, gen, v, err)
		return v, err
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		out, _ := res.Val.(T)
		return out, nil
	}
}

func (c *Cache) freshLocked(e *entry) bool {
	if !e.hasValue || e.Status != StatusSuccess || e.Stale {
		return false
	}
	if c.opts.StaleTime <= 0 {
		return true
	}
	return c.opts.Now().Sub(e.UpdatedAt) < c.opts.StaleTime
}

func (c *Cache) store(id string, target *entry, gen uint64, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The entry was removed or replaced while the call was in flight.
	if target == nil || c.entries[id] != target {
		return
	}
	superseded := target.generation != gen
	if superseded && target.hasValue && target.Status == StatusSuccess && !target.Stale {
		// A newer call already stored post-invalidation data.
		return
	}
	target.Fetching = false
	if err != nil {
		target.Err = err
		target.Status = StatusError
		c.opts.Observer.FetchError(target.Key.Operation())
		c.opts.Logger.WithError(err).WithField("query", target.Key.String()).Debug("query failed")
		return
	}
	target.Value = v
	target.hasValue = true
	target.Err = nil
	target.Status = StatusSuccess
	target.UpdatedAt = c.opts.Now()
	target.Stale = superseded
}

// Invalidate marks every entry under prefix stale so the next read refetches it.
// Calls already in flight for those keys are detached from later readers.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	n := 0
	for id, e := range c.entries {
		if !e.Key.HasPrefix(prefix) {
			continue
		}
		e.Stale = true
		e.generation++
		c.group.Forget(id)
		n++
	}
	c.mu.Unlock()

	if n > 0 {
		c.opts.Observer.Invalidated(prefix.Operation(), n)
		c.opts.Logger.Debugf("invalidated %d entries under %s", n, prefix)
	}
	return n
}

// Remove drops every entry under prefix.
func (c *Cache) Remove(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if e.Key.HasPrefix(prefix) {
			delete(c.entries, id)
			c.group.Forget(id)
			n++
		}
	}
	return n
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		c.group.Forget(id)
	}
	c.entries = make(map[string]*entry)
}

// Peek returns a snapshot of the entry for key without fetching.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return Entry{}, false
	}
	snapshot := e.Entry
	snapshot.Key = append(Key(nil), e.Key...)
	if c.opts.StaleTime > 0 && e.hasValue && c.opts.Now().Sub(e.UpdatedAt) >= c.opts.StaleTime {
		snapshot.Stale = true
	}
	return snapshot, true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
