package memcache

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// region is one established mapping of the cache file.
//
// A region is immutable after mapRegion returns: the reader never writes
// to data, and the cached geometry fields never change. The only mutable
// state is the reader count and the retired flag, which implement the
// epoch handoff between lookups and remapping:
//
//   - enter/leave bracket every lookup; leave runs on every exit path.
//   - retire marks the region replaced; the munmap happens immediately
//     if no readers are inside, otherwise when the last reader leaves.
//
// Remapping therefore never blocks on readers and readers never race a
// munmap.
type region struct {
	data []byte // mmap'd file contents, read-only

	// Geometry cached from the validated header.
	seed        uint32
	dataOffset  uint64
	dataSize    uint64
	hashOffset  uint64
	bucketCount uint64
	generation  uint64

	// File identity at map time, for replacement detection.
	dev uint64
	ino uint64

	readers   atomic.Int64
	retired   atomic.Bool
	unmapOnce sync.Once
}

// enter registers an in-flight lookup. Must be balanced by exactly one
// leave.
func (r *region) enter() {
	r.readers.Add(1)
}

// leave unregisters an in-flight lookup. If the region was retired and
// this was the last reader, the mapping is reclaimed here.
func (r *region) leave() {
	if r.readers.Add(-1) == 0 && r.retired.Load() {
		r.unmap()
	}
}

// retire marks the region as replaced. Reclaims the mapping immediately
// when no readers are in flight; otherwise the last leave reclaims it.
//
// The retired flag must be visible before the reader count is checked,
// so a concurrent leave that decrements to zero observes it.
func (r *region) retire() {
	r.retired.Store(true)

	if r.readers.Load() == 0 {
		r.unmap()
	}
}

// unmap releases the mapping. Idempotent: retire and the last leave can
// both reach this under a tight interleaving.
func (r *region) unmap() {
	r.unmapOnce.Do(func() {
		_ = unix.Munmap(r.data)
	})
}

// valid reports whether the mapping still reflects the live cache file.
// The writer flips the status word (and bumps the generation) when it
// abandons or rewrites the file; either signal forces a remap.
func (r *region) valid() bool {
	if atomicLoadUint32(r.data[offStatus:]) != statusValid {
		return false
	}

	return atomicLoadUint64(r.data[offGeneration:]) == r.generation
}

// dataTable returns the record store as a byte slice. Every derived
// offset into it is validated against its length before any read.
func (r *region) dataTable() []byte {
	return r.data[r.dataOffset : r.dataOffset+r.dataSize]
}

// bucketHead returns the head slot of the given bucket.
// idx must already be reduced modulo bucketCount.
func (r *region) bucketHead(idx uint32) uint32 {
	off := r.hashOffset + uint64(idx)*4

	return getUint32LE(r.data[off:])
}
