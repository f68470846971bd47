package memcache

import "fmt"

// appendGroups copies count GIDs from src into groups starting at
// start, growing the slice by exactly the shortfall when the remaining
// capacity is insufficient.
//
// limit > 0 caps growth: when start+count would exceed it, the slice
// grows only to limit and the surplus GIDs are silently dropped.
// Partial results under a caller-imposed ceiling are preferred over
// failing the whole lookup. The limit never shrinks existing content
// and is not applied when no growth is needed.
//
// src holds count little-endian uint32 values as raw bytes with no
// alignment guarantee; each GID is decoded byte-wise.
//
// On error the caller's slice is returned unchanged.
func appendGroups(groups []uint32, start int, src []byte, count int, limit int) (int, []uint32, error) {
	copied := count

	if len(groups)-start < count {
		newSize := start + count
		if limit > 0 && newSize > limit {
			newSize = limit
		}

		// Growth never shrinks existing content.
		if newSize < len(groups) {
			newSize = len(groups)
		}

		copied = newSize - start
		if copied < 0 {
			copied = 0
		}

		if copied > count {
			copied = count
		}

		if newSize > maxGroupBufferEntries {
			return start, groups, fmt.Errorf("result buffer of %d entries exceeds allocation limit %d: %w", newSize, maxGroupBufferEntries, ErrNoMemory)
		}

		if newSize > len(groups) {
			grown := make([]uint32, newSize)
			copy(grown, groups)
			groups = grown
		}
	}

	for i := 0; i < copied; i++ {
		groups[start+i] = getUint32LE(src[i*4:])
	}

	return start + copied, groups, nil
}
