package memcache

import "time"

// Export internal hooks and state for testing.
// This file is only compiled during tests.

// SetClockForTesting replaces the freshness clock and returns a restore
// function.
func SetClockForTesting(c *Cache, now func() time.Time) func() {
	prev := c.now
	c.now = now

	return func() { c.now = prev }
}

// SetMaxGroupBufferEntriesForTesting lowers the accumulator allocation
// guardrail and returns a restore function.
func SetMaxGroupBufferEntriesForTesting(n int) func() {
	prev := maxGroupBufferEntries
	maxGroupBufferEntries = n

	return func() { maxGroupBufferEntries = prev }
}

// ReaderCountForTesting returns the in-flight reader count of the
// current mapping, or 0 if no mapping is established.
func ReaderCountForTesting(c *Cache) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.region == nil {
		return 0
	}

	return c.region.readers.Load()
}

// CurrentRegionForTesting returns the current mapping so tests can
// observe retirement and reclamation.
func CurrentRegionForTesting(c *Cache) *Region {
	c.mu.Lock()
	defer c.mu.Unlock()

	return (*Region)(c.region)
}

// Region is an opaque test view of an established mapping.
type Region region

// Retired reports whether the mapping has been handed to the epoch
// reclaimer.
func (r *Region) Retired() bool {
	return (*region)(r).retired.Load()
}

// Readers returns the in-flight reader count.
func (r *Region) Readers() int64 {
	return (*region)(r).readers.Load()
}

// HashKeyForTesting exposes the bucket selector.
func HashKeyForTesting(seed uint32, key []byte, bucketCount uint64) uint32 {
	return hashKey(seed, key, bucketCount)
}

// AppendGroupsForTesting exposes the accumulator for direct growth
// tests.
func AppendGroupsForTesting(groups []uint32, start int, src []byte, count, limit int) (int, []uint32, error) {
	return appendGroups(groups, start, src, count, limit)
}
