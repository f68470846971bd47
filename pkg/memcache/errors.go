package memcache

import "errors"

// Sentinel errors returned by memcache operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, memcache.ErrStale) {
//	    // refresh from the authoritative source
//	}
var (
	// ErrNotFound indicates no structurally valid, key-matching,
	// non-expired record exists for the lookup.
	//
	// A miss is indistinguishable from a corrupt chain: every
	// structural inconsistency found during a walk is recovered locally
	// into ErrNotFound, never reported as a match.
	//
	// Recovery: fall back to the authoritative source.
	ErrNotFound = errors.New("memcache: not found")

	// ErrStale indicates a matching record exists but its expiration
	// time has passed.
	//
	// Recovery: refresh from the authoritative source rather than
	// treating the key as absent.
	ErrStale = errors.New("memcache: stale entry")

	// ErrUnavailable indicates the cache file is missing, unreadable,
	// or could not be mapped.
	//
	// Recovery: fall back to the authoritative source; the cache may
	// appear later.
	ErrUnavailable = errors.New("memcache: cache unavailable")

	// ErrNoMemory indicates the result buffer could not be grown.
	//
	// The caller's buffer and offsets are left valid for retry.
	ErrNoMemory = errors.New("memcache: out of memory")

	// ErrCorrupt indicates the cache file header is damaged.
	//
	// Returned only while establishing a mapping; corruption seen
	// during a lookup folds into [ErrNotFound].
	ErrCorrupt = errors.New("memcache: corrupt")

	// ErrIncompatible indicates a format version mismatch.
	//
	// Recovery: the writer and this client disagree on the format;
	// upgrade one of them.
	ErrIncompatible = errors.New("memcache: incompatible")

	// ErrClosed indicates the [Cache] handle has already been closed.
	//
	// This is a programming error.
	ErrClosed = errors.New("memcache: closed")

	// ErrInvalidInput indicates invalid arguments were provided.
	//
	// Common causes: empty name, name containing a NUL byte, negative
	// or out-of-range buffer offsets.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("memcache: invalid input")
)
