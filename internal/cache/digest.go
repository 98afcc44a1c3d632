package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies a digest by item id, a hash of the item text and the
// digest length limit, so an edited item or a different limit never
// reuses a stale digest.
type Key string

func DigestKey(id, text string, words int) Key {
	sum := sha256.Sum256([]byte(text))
	return Key(id + "@" + hex.EncodeToString(sum[:12]) + "/" + strconv.Itoa(words))
}

// DigestCache keeps pass-one digests of hierarchical runs. Lookups hit
// an in-memory LRU first and fall back to an optional disk tier. New
// digests reach the disk tier on Flush.
type DigestCache struct {
	mem  *lru.Cache[Key, string]
	disk *DiskStore

	mu      sync.Mutex
	pending map[string]string

	hits   atomic.Int64
	misses atomic.Int64
}

// NewDigestCache returns a cache holding at most size digests in memory.
func NewDigestCache(size int) (*DigestCache, error) {
	if size <= 0 {
		size = 1024
	}
	mem, err := lru.New[Key, string](size)
	if err != nil {
		return nil, err
	}
	return &DigestCache{mem: mem, pending: map[string]string{}}, nil
}

// WithDisk adds a persistent tier below the memory cache.
func (c *DigestCache) WithDisk(d *DiskStore) *DigestCache {
	c.disk = d
	return c
}

// Get returns the cached digest of an item. A nil cache always misses.
func (c *DigestCache) Get(id, text string, words int) (string, bool) {
	if c == nil {
		return "", false
	}
	k := DigestKey(id, text, words)
	if v, ok := c.mem.Get(k); ok {
		c.hits.Add(1)
		return v, true
	}
	if c.disk != nil {
		if v, ok := c.disk.Get(string(k)); ok {
			c.mem.Add(k, v)
			c.hits.Add(1)
			return v, true
		}
	}
	c.misses.Add(1)
	return "", false
}

// Put stores a digest in memory and queues it for the disk tier.
func (c *DigestCache) Put(id, text string, words int, digest string) {
	if c == nil || digest == "" {
		return
	}
	k := DigestKey(id, text, words)
	c.mem.Add(k, digest)
	if c.disk != nil {
		c.mu.Lock()
		c.pending[string(k)] = digest
		c.mu.Unlock()
	}
}

// Flush writes queued digests to the disk tier in one write. Entries
// stay queued when the write fails.
func (c *DigestCache) Flush() error {
	if c == nil || c.disk == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	if err := c.disk.SetMany(c.pending); err != nil {
		return err
	}
	clear(c.pending)
	return nil
}

func (c *DigestCache) Len() int {
	if c == nil {
		return 0
	}
	return c.mem.Len()
}

// Stats reports lookups since creation.
func (c *DigestCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}
