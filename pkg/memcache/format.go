package memcache

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// isLittleEndian is true if the CPU uses little-endian byte order.
// Computed once at package init time.
var isLittleEndian = func() bool {
	var x uint32 = 0x04030201

	return *(*byte)(unsafe.Pointer(&x)) == 0x01
}()

// is64Bit is true if the architecture has 64-bit pointers.
// Required for atomic 64-bit loads across processes.
var is64Bit = unsafe.Sizeof(uintptr(0)) >= 8

// SMC1 file format constants.
const (
	// File format major version. A mismatch is ErrIncompatible.
	smc1MajorVersion = 1

	// File format minor version. Higher minors are readable.
	smc1MinorVersion = 0

	// Fixed header size in bytes.
	smc1HeaderSize = 128

	// Granularity of a slot: a slot value indexes 8-byte chunks of the
	// data table.
	slotChunkSize = 8

	// invalidSlot is the sentinel chain terminator.
	invalidSlot = ^uint32(0)

	// invalidHash marks an unused secondary hash field.
	invalidHash = ^uint32(0)
)

// Header field offsets (bytes from file start).
const (
	offMagic             = 0x00 // [4]byte "SMC1"
	offMajor             = 0x04 // uint32
	offMinor             = 0x08 // uint32
	offSeed              = 0x0C // uint32 hash seed
	offStatus            = 0x10 // uint32 (writer-owned liveness)
	offReserved0         = 0x14 // uint32, must be zero
	offDataOffset        = 0x18 // uint64
	offDataSize          = 0x20 // uint64
	offHashOffset        = 0x28 // uint64
	offBucketCount       = 0x30 // uint64
	offGeneration        = 0x38 // uint64 (8-byte aligned, read atomically)
	offReservedTailStart = 0x40 // reserved bytes through 0x7F, must be zero
)

// Header status values (written by the external writer).
const (
	// statusValid indicates the mapping is live.
	statusValid uint32 = 0

	// statusInvalid indicates the writer has abandoned this file;
	// readers must remap.
	statusInvalid uint32 = 1

	// statusRecycled indicates the file is being rewritten in place;
	// readers must remap.
	statusRecycled uint32 = 2
)

// Record header field offsets (bytes from record start).
//
// A record is variable-length and 8-byte aligned within the data table.
// The expire field sits at an 8-aligned offset so it can be read
// atomically by slot-chunk-aligned records.
const (
	recLenOff     = 0  // uint32 total record length, header included
	recHash1Off   = 4  // uint32 primary key hash (reduced)
	recHash2Off   = 8  // uint32 secondary key hash or invalidHash
	recNext1Off   = 12 // uint32 chain continuation for hash1
	recNext2Off   = 16 // uint32 chain continuation for hash2
	recReserved   = 20 // uint32, must be zero when written
	recExpireOff  = 24 // int64 unix seconds
	recHeaderSize = 32
)

// Initgroups payload field offsets (bytes from payload start).
const (
	initgrMembersOff = 0 // uint32 member count
	initgrKeyOff     = 4 // uint32 key string offset, relative to payload
	initgrGIDsOff    = 8 // count * uint32, deliberately unaligned raw bytes
	initgrHeaderSize = 8
)

// smc1Header represents the decoded 128-byte SMC1 file header.
type smc1Header struct {
	Magic       [4]byte
	Major       uint32
	Minor       uint32
	Seed        uint32
	Status      uint32
	DataOffset  uint64
	DataSize    uint64
	HashOffset  uint64
	BucketCount uint64
	Generation  uint64
}

// encodeHeader serializes the header to a 128-byte slice.
func encodeHeader(header *smc1Header) []byte {
	buf := make([]byte, smc1HeaderSize)

	copy(buf[offMagic:], header.Magic[:])
	binary.LittleEndian.PutUint32(buf[offMajor:], header.Major)
	binary.LittleEndian.PutUint32(buf[offMinor:], header.Minor)
	binary.LittleEndian.PutUint32(buf[offSeed:], header.Seed)
	binary.LittleEndian.PutUint32(buf[offStatus:], header.Status)

	binary.LittleEndian.PutUint64(buf[offDataOffset:], header.DataOffset)
	binary.LittleEndian.PutUint64(buf[offDataSize:], header.DataSize)
	binary.LittleEndian.PutUint64(buf[offHashOffset:], header.HashOffset)
	binary.LittleEndian.PutUint64(buf[offBucketCount:], header.BucketCount)
	binary.LittleEndian.PutUint64(buf[offGeneration:], header.Generation)

	// Reserved bytes stay zero.

	return buf
}

// decodeHeader deserializes a 128-byte slice into header fields.
// Performs no validation; see validateHeader.
func decodeHeader(buf []byte) smc1Header {
	var header smc1Header

	copy(header.Magic[:], buf[offMagic:offMagic+4])
	header.Major = binary.LittleEndian.Uint32(buf[offMajor:])
	header.Minor = binary.LittleEndian.Uint32(buf[offMinor:])
	header.Seed = binary.LittleEndian.Uint32(buf[offSeed:])
	header.Status = binary.LittleEndian.Uint32(buf[offStatus:])
	header.DataOffset = binary.LittleEndian.Uint64(buf[offDataOffset:])
	header.DataSize = binary.LittleEndian.Uint64(buf[offDataSize:])
	header.HashOffset = binary.LittleEndian.Uint64(buf[offHashOffset:])
	header.BucketCount = binary.LittleEndian.Uint64(buf[offBucketCount:])
	header.Generation = binary.LittleEndian.Uint64(buf[offGeneration:])

	return header
}

// hasReservedBytesSet checks if any reserved bytes are non-zero.
func hasReservedBytesSet(buf []byte) bool {
	if binary.LittleEndian.Uint32(buf[offReserved0:]) != 0 {
		return true
	}

	for i := offReservedTailStart; i < smc1HeaderSize; i++ {
		if buf[i] != 0 {
			return true
		}
	}

	return false
}

// FNV-1a 32-bit hash constants.
const (
	fnv1aOffsetBasis32 uint32 = 2166136261
	fnv1aPrime32       uint32 = 16777619
)

// hashKey computes the seeded FNV-1a 32-bit hash over key bytes and
// reduces it to a bucket index.
//
// The key bytes must include the NUL terminator: the writer hashes the
// terminated string, so a reader hashing only the visible bytes would
// land in the wrong bucket.
func hashKey(seed uint32, key []byte, bucketCount uint64) uint32 {
	hash := fnv1aOffsetBasis32 ^ seed
	for _, b := range key {
		hash ^= uint32(b)
		hash *= fnv1aPrime32
	}

	return uint32(uint64(hash) % bucketCount)
}

// getUint32LE reads a uint32 from buf in little-endian byte order.
// Safe for unaligned source bytes; the data table gives no alignment
// guarantee for payload fields.
func getUint32LE(buf []byte) uint32 {
	// Bounds check hint: if buf[3] is valid, buf[0..2] are too.
	_ = buf[3]

	return uint32(buf[0]) |
		uint32(buf[1])<<8 |
		uint32(buf[2])<<16 |
		uint32(buf[3])<<24
}

// getInt64LE reads an int64 from buf in little-endian byte order.
func getInt64LE(buf []byte) int64 {
	// Bounds check hint: if buf[7] is valid, buf[0..6] are too.
	_ = buf[7]

	return int64(buf[0]) |
		int64(buf[1])<<8 |
		int64(buf[2])<<16 |
		int64(buf[3])<<24 |
		int64(buf[4])<<32 |
		int64(buf[5])<<40 |
		int64(buf[6])<<48 |
		int64(buf[7])<<56
}

// atomicLoadUint32 performs an atomic 32-bit load from a 4-byte-aligned
// position in the buffer. Used for the header status word, which the
// external writer flips while readers are live.
//
// Preconditions:
//   - buf must be at least 4 bytes
//   - buf[0] must be 4-byte aligned (enforced by the SMC1 layout:
//     status is at offset 0x10 and the mapping is page-aligned)
func atomicLoadUint32(buf []byte) uint32 {
	// Bounds check.
	_ = buf[3]

	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&buf[0])))
}

// atomicLoadUint64 performs an atomic 64-bit load from an 8-byte-aligned
// position in the buffer. Used for the header generation counter.
//
// Preconditions:
//   - buf must be at least 8 bytes
//   - buf[0] must be 8-byte aligned (enforced by the SMC1 layout:
//     generation is at offset 0x38 and the mapping is page-aligned)
func atomicLoadUint64(buf []byte) uint64 {
	// Bounds check.
	_ = buf[7]

	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&buf[0])))
}

// Safe integer conversion constants.
const (
	maxInt   = int(^uint(0) >> 1)
	maxInt64 = int64(^uint64(0) >> 1)
)

// uint64ToIntChecked converts uint64 to int.
// Returns ErrInvalidInput if the value exceeds maxInt.
func uint64ToIntChecked(v uint64) (int, error) {
	if v > uint64(maxInt) {
		return 0, fmt.Errorf("uint64 %d exceeds int max: %w", v, ErrInvalidInput)
	}

	return int(v), nil
}
