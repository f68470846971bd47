package memcache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Options configures opening a cache client handle.
type Options struct {
	// Path is the filesystem path to the cache file maintained by the
	// external writer.
	//
	// Required. The file is mapped read-only; it is never created,
	// written, or locked by this package.
	Path string
}

// Cache is a client handle to one shared-memory cache file.
//
// All methods are safe for concurrent use by multiple goroutines. The
// mapping is established lazily on first lookup and re-established
// transparently when the writer invalidates or replaces the file.
//
// A Cache must be obtained via [Open]; the zero value is not usable.
type Cache struct {
	_ [0]func() // prevent external construction

	path string

	// mu guards region replacement and isClosed. Lookups hold it only
	// long enough to validate-and-enter the current region; the walk
	// itself runs outside the lock.
	mu       sync.Mutex
	region   *region
	isClosed bool

	// now is the freshness clock, replaceable in tests.
	now func() time.Time
}

// Open returns a client handle for the cache file at opts.Path.
//
// The file is not touched here: per-name mappings are established
// lazily on first lookup, so Open succeeds even if the writer has not
// created the file yet.
//
// Possible errors: [ErrInvalidInput].
func Open(opts Options) (*Cache, error) {
	// 64-bit little-endian required: the status and generation words
	// are read with native atomic loads straight from the mapping, and
	// the file format stores all integers little-endian.
	if !is64Bit {
		return nil, errors.New("memcache requires 64-bit architecture")
	}

	if !isLittleEndian {
		return nil, errors.New("memcache requires little-endian CPU (x86_64, arm64)")
	}

	if opts.Path == "" {
		return nil, fmt.Errorf("path is required: %w", ErrInvalidInput)
	}

	return &Cache{
		path: opts.Path,
		now:  time.Now,
	}, nil
}

// Close releases the current mapping, if any.
//
// Lookups in flight finish against the old mapping; it is reclaimed
// when the last of them leaves. After Close, all lookups return
// [ErrClosed]. Close is idempotent.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return nil
	}

	c.isClosed = true

	if c.region != nil {
		c.region.retire()
		c.region = nil
	}

	return nil
}

// acquire returns the current valid region with its reader count
// incremented, establishing or replacing the mapping as needed.
//
// Every successful acquire must be balanced by exactly one
// region.leave, on every exit path of the lookup.
//
// Possible errors: [ErrClosed], [ErrUnavailable], [ErrCorrupt],
// [ErrIncompatible].
func (c *Cache) acquire() (*region, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return nil, ErrClosed
	}

	if c.region != nil {
		if c.region.valid() {
			c.region.enter()

			return c.region, nil
		}

		// Writer invalidated or rewrote the file. Hand the old mapping
		// to the epoch reclaimer and map fresh.
		c.region.retire()
		c.region = nil
	}

	r, err := mapRegion(c.path)
	if err != nil {
		return nil, err
	}

	r.enter()
	c.region = r

	return r, nil
}

// mapRegion opens and maps the cache file read-only and validates its
// header.
//
// Possible errors:
//   - [ErrUnavailable]: file missing or unreadable
//   - [ErrCorrupt]: header or geometry damaged
//   - [ErrIncompatible]: format version mismatch
func mapRegion(path string) (*region, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", path, err, ErrUnavailable)
	}

	var stat unix.Stat_t

	statErr := unix.Fstat(fd, &stat)
	if statErr != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("stat %s: %v: %w", path, statErr, ErrUnavailable)
	}

	size := stat.Size
	if size < smc1HeaderSize {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("file size %d is less than header size %d: %w", size, smc1HeaderSize, ErrCorrupt)
	}

	if uint64(size) > maxCacheFileSizeBytes {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("file size %d exceeds max cache file size %d: %w", size, maxCacheFileSizeBytes, ErrCorrupt)
	}

	if size > int64(maxInt) {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("file size %d exceeds max int: %w", size, ErrCorrupt)
	}

	data, mmapErr := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)

	// The mapping holds its own reference to the file.
	_ = unix.Close(fd)

	if mmapErr != nil {
		return nil, fmt.Errorf("mmap %s: %v: %w", path, mmapErr, ErrUnavailable)
	}

	header, err := validateHeader(data, uint64(size))
	if err != nil {
		_ = unix.Munmap(data)

		return nil, err
	}

	return &region{
		data:        data,
		seed:        header.Seed,
		dataOffset:  header.DataOffset,
		dataSize:    header.DataSize,
		hashOffset:  header.HashOffset,
		bucketCount: header.BucketCount,
		generation:  header.Generation,
		dev:         uint64(stat.Dev),
		ino:         stat.Ino,
	}, nil
}

// validateHeader checks the mapped header and returns the decoded
// geometry. Every offset the header claims is validated against the
// mapped size before the region is handed to lookups; lookups still
// re-validate record-level offsets on every access because the writer
// can rewrite the tables at any time.
func validateHeader(data []byte, size uint64) (smc1Header, error) {
	header := decodeHeader(data[:smc1HeaderSize])

	if header.Magic != [4]byte{'S', 'M', 'C', '1'} {
		return smc1Header{}, fmt.Errorf("invalid magic %q, expected SMC1: %w", header.Magic[:], ErrIncompatible)
	}

	if header.Major != smc1MajorVersion {
		return smc1Header{}, fmt.Errorf("unsupported major version %d, expected %d: %w", header.Major, smc1MajorVersion, ErrIncompatible)
	}

	switch header.Status {
	case statusValid:
		// ok
	case statusInvalid, statusRecycled:
		// The writer is mid-rotation; the next acquire retries.
		return smc1Header{}, fmt.Errorf("cache file is being replaced by the writer: %w", ErrUnavailable)
	default:
		return smc1Header{}, fmt.Errorf("unknown status value %d: %w", header.Status, ErrIncompatible)
	}

	if hasReservedBytesSet(data[:smc1HeaderSize]) {
		return smc1Header{}, fmt.Errorf("reserved bytes are non-zero: %w", ErrIncompatible)
	}

	if header.DataSize == 0 || header.DataSize > maxDataTableSizeBytes {
		return smc1Header{}, fmt.Errorf("data table size %d out of range: %w", header.DataSize, ErrCorrupt)
	}

	if header.DataSize%slotChunkSize != 0 {
		return smc1Header{}, fmt.Errorf("data table size %d is not a multiple of %d: %w", header.DataSize, slotChunkSize, ErrCorrupt)
	}

	if header.BucketCount == 0 || header.BucketCount > maxBucketCount {
		return smc1Header{}, fmt.Errorf("bucket count %d out of range: %w", header.BucketCount, ErrCorrupt)
	}

	if header.DataOffset < smc1HeaderSize || header.DataOffset > size {
		return smc1Header{}, fmt.Errorf("data table offset %d out of range: %w", header.DataOffset, ErrCorrupt)
	}

	dataEnd := header.DataOffset + header.DataSize
	if dataEnd < header.DataOffset || dataEnd > size {
		return smc1Header{}, fmt.Errorf("data table [%d, %d) exceeds file size %d: %w", header.DataOffset, dataEnd, size, ErrCorrupt)
	}

	if header.HashOffset < smc1HeaderSize || header.HashOffset > size {
		return smc1Header{}, fmt.Errorf("hash table offset %d out of range: %w", header.HashOffset, ErrCorrupt)
	}

	hashEnd := header.HashOffset + header.BucketCount*4
	if hashEnd < header.HashOffset || hashEnd > size {
		return smc1Header{}, fmt.Errorf("hash table [%d, %d) exceeds file size %d: %w", header.HashOffset, hashEnd, size, ErrCorrupt)
	}

	return header, nil
}
