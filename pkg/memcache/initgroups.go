package memcache

import (
	"bytes"
	"fmt"
	"strings"
)

// InitGroupsDyn resolves the group memberships cached for name and
// appends them to groups, growing the slice as needed.
//
// The calling convention mirrors the NSS initgroups_dyn interface:
// start is the next free index in groups, len(groups) is the current
// capacity, and limit (when > 0) is a hard ceiling on growth. On
// success the returned slice has been grown as needed and filled from
// start onward with however many GIDs fit under the ceiling; the
// returned int is the new next-free index. primaryGID is accepted for
// NSS interface parity and not consulted.
//
// On any error the returned slice and index equal the caller's, so the
// buffer remains valid for retry or fallback.
//
// Possible errors:
//   - [ErrNotFound]: no usable entry (including any structural
//     corruption met during the walk)
//   - [ErrStale]: the entry matched but has expired
//   - [ErrNoMemory]: the result buffer could not be grown
//   - [ErrUnavailable]: the cache file could not be mapped
//   - [ErrClosed], [ErrCorrupt], [ErrIncompatible], [ErrInvalidInput]
func (c *Cache) InitGroupsDyn(name string, primaryGID uint32, start int, groups []uint32, limit int) (int, []uint32, error) {
	_ = primaryGID

	if name == "" {
		return start, groups, fmt.Errorf("name must not be empty: %w", ErrInvalidInput)
	}

	if len(name) > maxKeyLenBytes {
		return start, groups, fmt.Errorf("name length %d exceeds max %d: %w", len(name), maxKeyLenBytes, ErrInvalidInput)
	}

	if strings.IndexByte(name, 0) >= 0 {
		return start, groups, fmt.Errorf("name must not contain NUL: %w", ErrInvalidInput)
	}

	if start < 0 || start > len(groups) {
		return start, groups, fmt.Errorf("start %d out of range for buffer of %d: %w", start, len(groups), ErrInvalidInput)
	}

	r, err := c.acquire()
	if err != nil {
		return start, groups, err
	}
	// Release is unconditional; it runs on every exit path below.
	defer r.leave()

	// Hashes are calculated including the NUL terminator.
	key := make([]byte, len(name)+1)
	copy(key, name)

	rec, ok := r.findInitgr(key)
	if !ok {
		return start, groups, ErrNotFound
	}

	expire := getInt64LE(rec.bytes[recExpireOff:])
	if expire <= c.now().Unix() {
		// Present but expired. Distinct from absent so the caller can
		// refresh instead of assuming the user has no groups.
		return start, groups, ErrStale
	}

	dt := r.dataTable()
	src := dt[rec.gidsOff : rec.gidsOff+uint64(rec.members)*4]

	return appendGroups(groups, start, src, int(rec.members), limit)
}

// initgrMatch is a structurally validated, key-matching record.
type initgrMatch struct {
	bytes   []byte
	members uint32
	gidsOff uint64
}

// findInitgr walks the collision chain for key and returns the matching
// record, if any.
//
// The walk is bounded three ways: a slot outside the data table ends it
// (including the sentinel), a structurally invalid record ends it
// fail-closed, and a defensive iteration cap equal to the number of
// slot chunks ends it even if the writer constructed a cycle.
func (r *region) findInitgr(key []byte) (initgrMatch, bool) {
	dt := r.dataTable()
	dtSize := uint64(len(dt))

	hash := hashKey(r.seed, key, r.bucketCount)
	slot := r.bucketHead(hash)

	// A chain can touch each slot chunk at most once; more iterations
	// than chunks proves a cycle.
	maxSteps := dtSize / slotChunkSize

	for steps := uint64(0); slotWithinBounds(slot, dtSize) && steps < maxSteps; steps++ {
		rec, recOff, ok := fetchRecord(dt, slot)
		if !ok {
			// Truncated or mangled record. Fail closed.
			return initgrMatch{}, false
		}

		if getUint32LE(rec[recHash1Off:]) != hash {
			// Bucket collision, cheap rejection without touching the
			// payload.
			slot = nextSlotForHash(rec, hash)

			continue
		}

		members, gidsOff, keyOff, ok := initgrBounds(dtSize, recOff, rec, len(key))
		if !ok {
			// A corrupted record must never be reported as a match and
			// never dereferenced past its validated extent.
			return initgrMatch{}, false
		}

		if bytes.Equal(dt[keyOff:keyOff+uint64(len(key))], key) {
			return initgrMatch{bytes: rec, members: members, gidsOff: gidsOff}, true
		}

		slot = nextSlotForHash(rec, hash)
	}

	return initgrMatch{}, false
}
