package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"navigator/internal/core/nav"
	"navigator/internal/logger"
)

// Source says where a result came from.
type Source string

const (
	SourceComputed Source = "computed"
	SourceCache    Source = "cache"
	SourceShared   Source = "shared"
	SourceStore    Source = "store"
	// SourceNone means the caller gave up before a result was available.
	SourceNone Source = "none"
)

// Store is an optional second tier shared between processes.
type Store interface {
	CacheGet(ctx context.Context, key string, dest interface{}) error
	CacheSet(ctx context.Context, key string, val interface{}, ttl time.Duration) error
}

type Options struct {
	TTL        time.Duration
	FailureTTL time.Duration
	Capacity   int
	Store      Store
	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// Stats counts cache outcomes since start.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Shared    int64 `json:"shared"`
	StoreHits int64 `json:"store_hits"`
	Expired   int64 `json:"expired"`
	Evicted   int64 `json:"evicted"`
	Size      int   `json:"size"`
}

type entry struct {
	key     string
	result  *nav.Result
	created time.Time
	ttl     time.Duration
}

// Cache keeps recent results by goal fingerprint and runs at most one
// computation per fingerprint at a time.
type Cache struct {
	opts  Options
	log   *logger.Logger
	group singleflight.Group

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element
	stats Stats
}

func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = 2 * time.Minute
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 512
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		opts:  opts,
		log:   logger.New("ResultCache"),
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

func storeKey(fp string) string { return "navcache:" + fp }

// Get returns a fresh entry. Expired entries are dropped on the way.
func (c *Cache) Get(fp string) (*nav.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[fp]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.opts.Now().Sub(e.created) >= e.ttl {
		c.ll.Remove(el)
		delete(c.items, fp)
		c.stats.Expired++
		return nil, false
	}
	c.ll.MoveToFront(el)
	cp := *e.result
	return &cp, true
}

// Put stores a terminal result. Results that must not be replayed, such as
// cancellations, are ignored.
func (c *Cache) Put(fp string, r *nav.Result) {
	if r == nil {
		return
	}
	c.put(fp, r, c.ttl(r))
}

func (c *Cache) ttl(r *nav.Result) time.Duration {
	if r.Status == nav.StatusSucceeded {
		return c.opts.TTL
	}
	return c.opts.FailureTTL
}

func (c *Cache) put(fp string, r *nav.Result, ttl time.Duration) {
	if r == nil || !r.Cacheable() || ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := &entry{key: fp, result: r, created: c.opts.Now(), ttl: ttl}
	if el, ok := c.items[fp]; ok {
		el.Value = e
		c.ll.MoveToFront(el)
		return
	}
	c.items[fp] = c.ll.PushFront(e)
	for c.ll.Len() > c.opts.Capacity {
		last := c.ll.Back()
		c.ll.Remove(last)
		delete(c.items, last.Value.(*entry).key)
		c.stats.Evicted++
	}
}

type flight struct {
	result *nav.Result
	source Source
}

// GetOrCompute returns the cached result for fp or runs compute once for
// all concurrent callers with the same fingerprint. compute runs detached
// from the caller's cancellation and must bound itself; a caller whose ctx
// ends stops waiting and gets a Canceled result while the computation
// carries on for the others.
func (c *Cache) GetOrCompute(ctx context.Context, fp string, compute func(context.Context) *nav.Result) (*nav.Result, Source) {
	if r, ok := c.Get(fp); ok {
		c.count(func(s *Stats) { s.Hits++ })
		return r, SourceCache
	}

	leader := false
	ch := c.group.DoChan(fp, func() (interface{}, error) {
		leader = true
		if r, ok := c.Get(fp); ok {
			return flight{r, SourceCache}, nil
		}
		detached := context.WithoutCancel(ctx)
		if r, ok := c.fromStore(detached, fp); ok {
			return flight{r, SourceStore}, nil
		}
		r := compute(detached)
		c.Put(fp, r)
		c.toStore(detached, fp, r)
		return flight{r, SourceComputed}, nil
	})

	select {
	case res := <-ch:
		f := res.Val.(flight)
		src := f.source
		if !leader {
			src = SourceShared
		}
		c.count(func(s *Stats) {
			switch src {
			case SourceCache:
				s.Hits++
			case SourceShared:
				s.Shared++
			case SourceStore:
				s.StoreHits++
			default:
				s.Misses++
			}
		})
		cp := *f.result
		return &cp, src
	case <-ctx.Done():
		return &nav.Result{
			Fingerprint: fp,
			Status:      nav.StatusFailed,
			Failure:     nav.Fail(nav.FailureCanceled, "stopped waiting: %v", ctx.Err()),
			CompletedAt: c.opts.Now(),
		}, SourceNone
	}
}

func (c *Cache) fromStore(ctx context.Context, fp string) (*nav.Result, bool) {
	if c.opts.Store == nil {
		return nil, false
	}
	var r nav.Result
	if err := c.opts.Store.CacheGet(ctx, storeKey(fp), &r); err != nil {
		return nil, false
	}
	// The store expires keys by itself; the local copy lives for the remainder
	// of the entry's lifetime, measured from completion.
	remaining := c.ttl(&r) - c.opts.Now().Sub(r.CompletedAt)
	if remaining <= 0 {
		return nil, false
	}
	c.put(fp, &r, remaining)
	return &r, true
}

func (c *Cache) toStore(ctx context.Context, fp string, r *nav.Result) {
	if c.opts.Store == nil || r == nil || !r.Cacheable() {
		return
	}
	if err := c.opts.Store.CacheSet(ctx, storeKey(fp), r, c.ttl(r)); err != nil {
		c.log.Debug().Err(err).Str("fingerprint", fp).Msg("store write failed")
	}
}

// Purge drops every local entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.ll.Len()
	return s
}

func (c *Cache) count(f func(*Stats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}
