// Package memcache is the client read path of the SSSD-style
// shared-memory identity cache.
//
// A privileged daemon owns a memory-mapped cache file and rewrites it
// periodically. Arbitrary client processes map the same file read-only
// and resolve lookups against it directly, without per-call IPC. Because
// the region can be rewritten, truncated, or replaced underneath a
// reader at any time, every offset embedded in the mapped bytes is
// validated against the mapped extent before it is dereferenced, on
// every access. A reader never mutates the mapped region.
//
// # Basic Usage
//
//	cache, err := memcache.Open(memcache.Options{
//	    Path: "/var/lib/sss/mc/initgroups",
//	})
//	if err != nil {
//	    // handle error
//	}
//	defer cache.Close()
//
//	groups := make([]uint32, 16)
//	n, groups, err := cache.InitGroupsDyn("alice", 0, 0, groups, 0)
//
// # Concurrency
//
// All methods on [Cache] are safe for concurrent use. Lookups are
// lock-free against the writer: in-flight lookups are tracked with a
// reader count, and a mapping that has been replaced is reclaimed only
// after the last reader leaves it (an epoch handoff, not a lock).
//
// # Error Handling
//
// Any non-success result means the authoritative source should be
// consulted instead:
//
// [ErrNotFound]: no usable entry. Structural corruption folds into this
// deliberately, so a damaged cache degrades to slow lookups rather than
// bad answers.
//
// [ErrStale]: a matching entry exists but has expired. Distinct from
// [ErrNotFound] so callers can refresh instead of assuming absence.
//
// [ErrUnavailable]: the cache file is missing or cannot be mapped.
//
// [ErrNoMemory]: the result buffer could not be grown. The caller's
// buffer is left intact for retry.
package memcache
