package review

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/parable-ai/coderev/internal/model"
)

// resultCache memoizes completed review results with LRU eviction, an
// optional TTL, and single-flight computation: concurrent callers for the
// same fingerprint share one in-flight computation instead of duplicating
// analyzer and provider calls. Failed computations are never stored, so a
// later call retries. Eviction only ever removes completed entries;
// in-flight computations live in the singleflight group, not the LRU.
type resultCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List // front = most recently used
	entries  map[string]*list.Element
	group    singleflight.Group
	onEvict  func(key string)
}

type cacheEntry struct {
	key      string
	result   *model.ReviewResult
	storedAt time.Time
}

func newResultCache(capacity int, ttl time.Duration, onEvict func(string)) *resultCache {
	if capacity < 1 {
		capacity = 1
	}
	return &resultCache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		entries:  make(map[string]*list.Element),
		onEvict:  onEvict,
	}
}

// get returns the live entry for key, expiring it if the TTL has passed.
func (c *resultCache) get(key string) (*model.ReviewResult, bool) {
	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.ttl > 0 && time.Since(entry.storedAt) > c.ttl {
		c.ll.Remove(el)
		delete(c.entries, key)
		c.mu.Unlock()
		c.notifyEvict(key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.mu.Unlock()
	return entry.result, true
}

// put stores a completed result, evicting least-recently-used completed
// entries beyond capacity.
func (c *resultCache) put(key string, result *model.ReviewResult) {
	c.mu.Lock()
	var evicted []string
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).result = result
		el.Value.(*cacheEntry).storedAt = time.Now()
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&cacheEntry{key: key, result: result, storedAt: time.Now()})
		c.entries[key] = el
		for c.ll.Len() > c.capacity {
			oldest := c.ll.Back()
			entry := oldest.Value.(*cacheEntry)
			c.ll.Remove(oldest)
			delete(c.entries, entry.key)
			evicted = append(evicted, entry.key)
		}
	}
	c.mu.Unlock()
	for _, k := range evicted {
		c.notifyEvict(k)
	}
}

// remove drops a completed entry, if present.
func (c *resultCache) remove(key string) {
	c.mu.Lock()
	el, ok := c.entries[key]
	if ok {
		c.ll.Remove(el)
		delete(c.entries, key)
	}
	c.mu.Unlock()
	if ok {
		c.notifyEvict(key)
	}
}

func (c *resultCache) notifyEvict(key string) {
	if c.onEvict != nil {
		c.onEvict(key)
	}
}

// getOrCompute returns the cached result for key or computes it exactly
// once across concurrent callers. When skipCache is set the stored entry
// is ignored and a fresh computation (still deduplicated per key) replaces
// it. A caller whose context expires stops waiting; the computation itself
// finishes in the background and is cached for the next caller.
func (c *resultCache) getOrCompute(
	ctx context.Context,
	key string,
	skipCache bool,
	compute func() (*model.ReviewResult, error),
) (*model.ReviewResult, error) {
	if !skipCache {
		if result, ok := c.get(key); ok {
			return result, nil
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.put(key, result)
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.ReviewResult), nil
	case <-ctx.Done():
		// Abandon the wait; the in-flight computation is not aborted
		// here (its own context governs that).
		return nil, ctx.Err()
	}
}
