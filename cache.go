package gsym

import "weak"

// kCacheSize bounds the number of live entries in the expression cache.
const kCacheSize = 1024

// ExprCache de-duplicates structurally identical expression nodes. It holds
// only weak references so cached nodes die naturally when every strong
// reference is dropped; expired entries are reaped opportunistically.
type ExprCache struct {
	limit   int
	buckets map[uint32][]weak.Pointer[Expr]
	queue   []weak.Pointer[Expr] // insertion order, for shrinking
}

// NewExprCache returns an empty cache bounded at kCacheSize live entries.
func NewExprCache() *ExprCache {
	return &ExprCache{
		limit:   kCacheSize,
		buckets: make(map[uint32][]weak.Pointer[Expr]),
	}
}

// Find returns a live cached node shallowly equal to e, or nil.
func (c *ExprCache) Find(e *Expr) *Expr {
	bucket := c.buckets[e.Hash()]
	for i := 0; i < len(bucket); i++ {
		cached := bucket[i].Value()
		if cached == nil {
			bucket = c.removeAt(e.Hash(), bucket, i)
			i--
			continue
		}
		if EqualShallow(cached, e) {
			return cached
		}
	}
	return nil
}

// Insert adds a weak reference to e and shrinks the cache if the live entry
// count exceeds the limit.
func (c *ExprCache) Insert(e *Expr) {
	ref := weak.Make(e)
	c.buckets[e.Hash()] = append(c.buckets[e.Hash()], ref)
	c.queue = append(c.queue, ref)
	if c.Len() > c.limit {
		c.shrink()
	}
}

// Len returns the number of live entries.
func (c *ExprCache) Len() int {
	n := 0
	for _, bucket := range c.buckets {
		for _, ref := range bucket {
			if ref.Value() != nil {
				n++
			}
		}
	}
	return n
}

// shrink demotes the oldest entries until the cache is back under its
// limit. Expired references encountered on the way are dropped for free.
func (c *ExprCache) shrink() {
	for len(c.queue) > 0 && c.Len() > c.limit {
		ref := c.queue[0]
		c.queue = c.queue[1:]
		if e := ref.Value(); e != nil {
			c.drop(e)
		}
	}
}

// drop removes the bucket entry for e.
func (c *ExprCache) drop(e *Expr) {
	bucket := c.buckets[e.Hash()]
	for i := 0; i < len(bucket); i++ {
		cached := bucket[i].Value()
		if cached == nil || cached == e {
			bucket = c.removeAt(e.Hash(), bucket, i)
			i--
		}
	}
}

func (c *ExprCache) removeAt(hash uint32, bucket []weak.Pointer[Expr], i int) []weak.Pointer[Expr] {
	bucket[i] = bucket[len(bucket)-1]
	bucket = bucket[:len(bucket)-1]
	if len(bucket) == 0 {
		delete(c.buckets, hash)
	} else {
		c.buckets[hash] = bucket
	}
	return bucket
}
