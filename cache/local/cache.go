package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

// deadline is an optional expiry shared by every value kind.
type deadline struct {
	expireAt time.Time
	noExpiry bool
}

func newDeadline(ttl time.Duration) deadline {
	if ttl > 0 {
		return deadline{expireAt: time.Now().Add(ttl)}
	}
	return deadline{noExpiry: true}
}

func (d deadline) expired(now time.Time) bool {
	return !d.noExpiry && now.After(d.expireAt)
}

// entry holds a cached string value.
type entry struct {
	data string
	deadline
}

// hash is a field → value map that expires as a whole, like a Redis hash.
type hash struct {
	mu     sync.RWMutex
	fields map[string]string
	deadline
}

// LocalCache is an in-process cache implementing the Cache interface.
type LocalCache struct {
	mu         sync.Mutex // serializes SetNX and Expire
	kv         sync.Map   // key → *entry
	hashes     sync.Map   // key → *hash
	sets       sync.Map   // key → *lockedSet
	lists      sync.Map   // key → *lockedList
	gcInterval time.Duration
	stopGC     chan struct{}
	closeOnce  sync.Once
}

// NewCache creates a LocalCache and starts the background GC goroutine.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		gcInterval: interval,
		stopGC:     make(chan struct{}),
	}
	go c.runGC()
	return c, nil
}

// Close stops the background GC goroutine. Safe to call more than once.
func (c *LocalCache) Close() {
	c.closeOnce.Do(func() { close(c.stopGC) })
}

func (c *LocalCache) runGC() {
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.sweep(now)
		case <-c.stopGC:
			return
		}
	}
}

func (c *LocalCache) sweep(now time.Time) {
	c.kv.Range(func(k, v interface{}) bool {
		if v.(*entry).expired(now) {
			c.kv.Delete(k)
		}
		return true
	})
	c.hashes.Range(func(k, v interface{}) bool {
		h := v.(*hash)
		h.mu.RLock()
		dead := h.expired(now)
		h.mu.RUnlock()
		if dead {
			c.hashes.Delete(k)
		}
		return true
	})
}

// ---- KV ----

func (c *LocalCache) loadEntry(key string) (*entry, bool) {
	v, ok := c.kv.Load(key)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if e.expired(time.Now()) {
		c.kv.Delete(key)
		return nil, false
	}
	return e, true
}

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	e, ok := c.loadEntry(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.kv.Store(key, &entry{data: value, deadline: newDeadline(ttl)})
	return nil
}

// Del removes keys of any kind.
func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.kv.Delete(k)
		c.hashes.Delete(k)
		c.sets.Delete(k)
		c.lists.Delete(k)
	}
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	if _, ok := c.loadEntry(key); ok {
		return true, nil
	}
	_, ok := c.loadHash(key)
	return ok, nil
}

func (c *LocalCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.loadEntry(key); ok {
		return false, nil
	}
	c.kv.Store(key, &entry{data: value, deadline: newDeadline(ttl)})
	return true, nil
}

// Expire resets the TTL of a string or hash key.
func (c *LocalCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.loadEntry(key); ok {
		c.kv.Store(key, &entry{data: e.data, deadline: newDeadline(ttl)})
		return nil
	}
	if h, ok := c.loadHash(key); ok {
		h.mu.Lock()
		h.deadline = newDeadline(ttl)
		h.mu.Unlock()
		return nil
	}
	return ErrNotFound
}

// ---- Hash ----

func (c *LocalCache) loadHash(key string) (*hash, bool) {
	v, ok := c.hashes.Load(key)
	if !ok {
		return nil, false
	}
	h := v.(*hash)
	h.mu.RLock()
	dead := h.expired(time.Now())
	h.mu.RUnlock()
	if dead {
		c.hashes.CompareAndDelete(key, h)
		return nil, false
	}
	return h, true
}

func (c *LocalCache) HSet(_ context.Context, key, field, value string) error {
	for {
		h, ok := c.loadHash(key)
		if !ok {
			fresh := &hash{fields: make(map[string]string), deadline: deadline{noExpiry: true}}
			v, _ := c.hashes.LoadOrStore(key, fresh)
			h = v.(*hash)
		}
		h.mu.Lock()
		if h.expired(time.Now()) {
			// lost a race with expiry; retry on a fresh hash
			h.mu.Unlock()
			c.hashes.CompareAndDelete(key, h)
			continue
		}
		h.fields[field] = value
		h.mu.Unlock()
		return nil
	}
}

func (c *LocalCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	result := make(map[string]string)
	h, ok := c.loadHash(key)
	if !ok {
		return result, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.fields {
		result[k] = v
	}
	return result, nil
}

func (c *LocalCache) HGetAllMany(ctx context.Context, keys ...string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i], _ = c.HGetAll(ctx, k)
	}
	return out, nil
}

func (c *LocalCache) HDel(_ context.Context, key string, fields ...string) error {
	h, ok := c.loadHash(key)
	if !ok {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range fields {
		delete(h.fields, f)
	}
	return nil
}

// ---- Set ----

type lockedSet struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

func (c *LocalCache) getOrCreateSet(key string) *lockedSet {
	v, _ := c.sets.LoadOrStore(key, &lockedSet{members: make(map[string]struct{})})
	return v.(*lockedSet)
}

func (c *LocalCache) SAdd(_ context.Context, key string, members ...string) error {
	s := c.getOrCreateSet(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range members {
		s.members[m] = struct{}{}
	}
	return nil
}

func (c *LocalCache) SRem(_ context.Context, key string, members ...string) error {
	s := c.getOrCreateSet(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range members {
		delete(s.members, m)
	}
	return nil
}

func (c *LocalCache) SMembers(_ context.Context, key string) ([]string, error) {
	s := c.getOrCreateSet(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]string, 0, len(s.members))
	for m := range s.members {
		result = append(result, m)
	}
	return result, nil
}

func (c *LocalCache) SIsMember(_ context.Context, key, member string) (bool, error) {
	s := c.getOrCreateSet(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[member]
	return ok, nil
}

// ---- List ----

type lockedList struct {
	mu   sync.Mutex
	data []string
}

func (c *LocalCache) getOrCreateList(key string) *lockedList {
	v, _ := c.lists.LoadOrStore(key, &lockedList{})
	return v.(*lockedList)
}

// clampRange resolves Redis-style start/stop (negative = from the end) against n.
func clampRange(start, stop, n int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start >= n || start > stop {
		return 0, 0, false
	}
	return start, stop, true
}

func (c *LocalCache) LPush(_ context.Context, key string, values ...string) error {
	l := c.getOrCreateList(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	// last value ends up at index 0
	head := make([]string, 0, len(values)+len(l.data))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	l.data = append(head, l.data...)
	return nil
}

func (c *LocalCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	l := c.getOrCreateList(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	s, e, ok := clampRange(start, stop, int64(len(l.data)))
	if !ok {
		return nil, nil
	}
	result := make([]string, e-s+1)
	copy(result, l.data[s:e+1])
	return result, nil
}

func (c *LocalCache) LTrim(_ context.Context, key string, start, stop int64) error {
	l := c.getOrCreateList(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	s, e, ok := clampRange(start, stop, int64(len(l.data)))
	if !ok {
		l.data = nil
		return nil
	}
	l.data = append([]string(nil), l.data[s:e+1]...)
	return nil
}
