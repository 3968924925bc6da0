package cache

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"

	"gitlab.com/timkado/api/concierge-engine/internal/observer"
)

// ContactStatus is the result of a ContactCache check.
type ContactStatus int

const (
	// StatusUnknown: definitely never marked, the contact is new or the
	// process restarted since it was seen.
	StatusUnknown ContactStatus = iota
	// StatusMaybeKnown: probably stored; may be a false positive.
	StatusMaybeKnown
)

// ContactCache remembers (tenant, identifier) pairs already stored so the
// pipeline can skip the lookup for senders it has never seen.
type ContactCache struct {
	filter         *bloom.BloomFilter
	mu             sync.RWMutex
	hits           atomic.Int64
	misses         atomic.Int64
	falsePositives atomic.Int64
}

func NewContactCache(expected uint, fpRate float64) *ContactCache {
	return &ContactCache{filter: bloom.NewWithEstimates(expected, fpRate)}
}

func cacheKey(tenantID uint64, identifier string) string {
	return strconv.FormatUint(tenantID, 10) + ":" + identifier
}

func (c *ContactCache) Check(tenantID uint64, identifier string) ContactStatus {
	key := cacheKey(tenantID, identifier)

	c.mu.RLock()
	maybe := c.filter.TestString(key)
	c.mu.RUnlock()

	if maybe {
		c.hits.Add(1)
		observer.IncCacheCheck("bloom_contacts", "possible_hit")
		return StatusMaybeKnown
	}
	c.misses.Add(1)
	observer.IncCacheCheck("bloom_contacts", "miss")
	return StatusUnknown
}

func (c *ContactCache) MarkKnown(tenantID uint64, identifier string) {
	key := cacheKey(tenantID, identifier)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter.AddString(key)
}

// RecordFalsePositive is called when a MaybeKnown answer turned out wrong.
func (c *ContactCache) RecordFalsePositive() {
	c.falsePositives.Add(1)
	observer.IncCacheCheck("bloom_contacts", "false_positive")
}

// Stats is a snapshot of cache effectiveness.
type Stats struct {
	Hits              int64
	Misses            int64
	HitRate           float64
	FalsePositives    int64
	FalsePositiveRate float64
	ApproximateSize   uint32
}

func (c *ContactCache) Stats() Stats {
	hits, misses, fps := c.hits.Load(), c.misses.Load(), c.falsePositives.Load()
	s := Stats{Hits: hits, Misses: misses, FalsePositives: fps}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
		s.FalsePositiveRate = float64(fps) / float64(total)
	}
	c.mu.RLock()
	s.ApproximateSize = c.filter.ApproximatedSize()
	c.mu.RUnlock()
	return s
}
