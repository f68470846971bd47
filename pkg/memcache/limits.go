package memcache

// Hardcoded implementation limits.
//
// These limits are intentionally generous; they exist primarily to:
//   - keep offset arithmetic safely away from overflow boundaries
//   - bound resource usage when the mapped bytes are hostile
//   - avoid unsafe int64/int conversions (mmap length is an int)
//
// Limit violations while establishing a mapping return ErrCorrupt;
// during result accumulation they return ErrNoMemory.
const (
	// Maximum allowed cache file size (bytes). A safety guardrail, not
	// a RAM limit; mmap does not load the entire file into memory.
	maxCacheFileSizeBytes = uint64(1) << 36 // 64 GiB

	// Maximum allowed data table size (bytes).
	maxDataTableSizeBytes = uint64(1) << 35

	// Maximum allowed hash table bucket count.
	maxBucketCount = uint64(1) << 30

	// Maximum allowed lookup key length (bytes, terminator excluded).
	maxKeyLenBytes = 2048
)

// maxGroupBufferEntries bounds growth of the caller's result buffer.
// Exceeding it is reported as ErrNoMemory with the original buffer left
// intact. A variable so tests can lower it; the member count driving
// growth comes from mapped bytes the writer controls, and a corrupt
// count must not translate into an unbounded allocation.
var maxGroupBufferEntries = 1 << 24
