// Package mcbuild assembles SMC1 cache images for tests and tooling.
//
// It is a file builder, not the production writer: it lays out a
// complete image in memory and publishes it with an atomic rename, so
// the read path in pkg/memcache can be exercised against real files.
// Corruption tests mutate the returned image bytes directly; the
// exported layout constants make the interesting offsets reachable.
package mcbuild

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/natefinch/atomic"
)

// SMC1 layout constants, mirroring the reader's format.
const (
	HeaderSize = 128

	OffMagic       = 0x00
	OffMajor       = 0x04
	OffMinor       = 0x08
	OffSeed        = 0x0C
	OffStatus      = 0x10
	OffDataOffset  = 0x18
	OffDataSize    = 0x20
	OffHashOffset  = 0x28
	OffBucketCount = 0x30
	OffGeneration  = 0x38

	RecLenOff     = 0
	RecHash1Off   = 4
	RecHash2Off   = 8
	RecNext1Off   = 12
	RecNext2Off   = 16
	RecExpireOff  = 24
	RecHeaderSize = 32

	InitgrMembersOff = 0
	InitgrKeyOff     = 4
	InitgrGIDsOff    = 8

	SlotChunkSize = 8

	// InvalidSlot is the chain terminator sentinel.
	InvalidSlot = ^uint32(0)

	// InvalidHash marks an unused secondary hash field.
	InvalidHash = ^uint32(0)

	// Header status values.
	StatusValid    = 0
	StatusInvalid  = 1
	StatusRecycled = 2
)

// Entry is one initgroups record to place in the image.
type Entry struct {
	Name   string
	GIDs   []uint32
	Expire time.Time
}

// Builder accumulates entries and produces an SMC1 image.
type Builder struct {
	seed        uint32
	bucketCount uint64
	generation  uint64
	entries     []Entry
}

// New returns a builder for an image with the given hash seed and
// bucket count.
func New(seed uint32, bucketCount uint64) *Builder {
	return &Builder{
		seed:        seed,
		bucketCount: bucketCount,
	}
}

// Generation sets the header generation counter.
func (b *Builder) Generation(gen uint64) *Builder {
	b.generation = gen

	return b
}

// Add appends an initgroups entry.
func (b *Builder) Add(name string, gids []uint32, expire time.Time) *Builder {
	b.entries = append(b.entries, Entry{Name: name, GIDs: gids, Expire: expire})

	return b
}

// Image is an assembled SMC1 cache file.
type Image struct {
	// Bytes is the complete file content. Tests may mutate it before
	// writing.
	Bytes []byte

	// HashOffset and DataOffset locate the tables within Bytes.
	HashOffset uint64
	DataOffset uint64

	// RecordOffset maps entry name to the record's byte offset within
	// the data table.
	RecordOffset map[string]uint64

	// RecordSlot maps entry name to the record's slot value.
	RecordSlot map[string]uint32

	// Bucket maps entry name to the bucket its hash selected.
	Bucket map[string]uint32
}

// Build lays out header, hash table, and data table.
//
// Records are chained newest-first: a record whose bucket already has a
// head takes over the head slot and points its chain continuation at
// the previous head, the way the production writer prepends.
func (b *Builder) Build() (*Image, error) {
	if b.bucketCount == 0 {
		return nil, fmt.Errorf("bucket count must be > 0")
	}

	hashOffset := uint64(HeaderSize)
	dataOffset := align8(hashOffset + b.bucketCount*4)

	heads := make([]uint32, b.bucketCount)
	for i := range heads {
		heads[i] = InvalidSlot
	}

	var data bytes.Buffer

	img := &Image{
		HashOffset:   hashOffset,
		DataOffset:   dataOffset,
		RecordOffset: make(map[string]uint64),
		RecordSlot:   make(map[string]uint32),
		Bucket:       make(map[string]uint32),
	}

	for _, e := range b.entries {
		recOff := uint64(data.Len())
		slot := uint32(recOff / SlotChunkSize)

		key := append([]byte(e.Name), 0)
		hash := hashKey(b.seed, key, b.bucketCount)

		rec, err := encodeInitgrRecord(e, hash, heads[hash])
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", e.Name, err)
		}

		data.Write(rec)

		heads[hash] = slot
		img.RecordOffset[e.Name] = recOff
		img.RecordSlot[e.Name] = slot
		img.Bucket[e.Name] = hash
	}

	// Pad the data table so its size is a slot-chunk multiple even when
	// empty; the reader rejects a zero-size table.
	if data.Len() == 0 {
		data.Write(make([]byte, SlotChunkSize))
	}

	dataSize := uint64(data.Len())
	fileSize := dataOffset + dataSize

	buf := make([]byte, fileSize)

	copy(buf[OffMagic:], "SMC1")
	binary.LittleEndian.PutUint32(buf[OffMajor:], 1)
	binary.LittleEndian.PutUint32(buf[OffMinor:], 0)
	binary.LittleEndian.PutUint32(buf[OffSeed:], b.seed)
	binary.LittleEndian.PutUint32(buf[OffStatus:], StatusValid)
	binary.LittleEndian.PutUint64(buf[OffDataOffset:], dataOffset)
	binary.LittleEndian.PutUint64(buf[OffDataSize:], dataSize)
	binary.LittleEndian.PutUint64(buf[OffHashOffset:], hashOffset)
	binary.LittleEndian.PutUint64(buf[OffBucketCount:], b.bucketCount)
	binary.LittleEndian.PutUint64(buf[OffGeneration:], b.generation)

	for i, head := range heads {
		binary.LittleEndian.PutUint32(buf[hashOffset+uint64(i)*4:], head)
	}

	copy(buf[dataOffset:], data.Bytes())

	img.Bytes = buf

	return img, nil
}

// WriteFile publishes the image at path with an atomic rename, so a
// concurrent reader sees either the old file or the complete new one.
func (img *Image) WriteFile(path string) error {
	err := atomic.WriteFile(path, bytes.NewReader(img.Bytes))
	if err != nil {
		return fmt.Errorf("write cache image: %w", err)
	}

	return nil
}

// encodeInitgrRecord serializes one initgroups record. next is the
// previous bucket head the record chains to.
func encodeInitgrRecord(e Entry, hash, next uint32) ([]byte, error) {
	gidsLen := len(e.GIDs) * 4
	keyOff := InitgrGIDsOff + gidsLen
	length := RecHeaderSize + keyOff + len(e.Name) + 1

	if length > int(^uint32(0)>>1) {
		return nil, fmt.Errorf("record too large: %d bytes", length)
	}

	rec := make([]byte, align8(uint64(length)))

	binary.LittleEndian.PutUint32(rec[RecLenOff:], uint32(length))
	binary.LittleEndian.PutUint32(rec[RecHash1Off:], hash)
	binary.LittleEndian.PutUint32(rec[RecHash2Off:], InvalidHash)
	binary.LittleEndian.PutUint32(rec[RecNext1Off:], next)
	binary.LittleEndian.PutUint32(rec[RecNext2Off:], InvalidSlot)
	binary.LittleEndian.PutUint64(rec[RecExpireOff:], uint64(e.Expire.Unix()))

	payload := rec[RecHeaderSize:]
	binary.LittleEndian.PutUint32(payload[InitgrMembersOff:], uint32(len(e.GIDs)))
	binary.LittleEndian.PutUint32(payload[InitgrKeyOff:], uint32(keyOff))

	for i, gid := range e.GIDs {
		binary.LittleEndian.PutUint32(payload[InitgrGIDsOff+i*4:], gid)
	}

	copy(payload[keyOff:], e.Name)
	// NUL terminator is implicit in the zeroed slice.

	return rec, nil
}

// hashKey mirrors the reader's seeded FNV-1a bucket selector.
func hashKey(seed uint32, key []byte, bucketCount uint64) uint32 {
	const (
		offsetBasis uint32 = 2166136261
		prime       uint32 = 16777619
	)

	hash := offsetBasis ^ seed
	for _, b := range key {
		hash ^= uint32(b)
		hash *= prime
	}

	return uint32(uint64(hash) % bucketCount)
}

// align8 rounds x up to the next multiple of 8.
func align8(x uint64) uint64 {
	return (x + 7) &^ 7
}
