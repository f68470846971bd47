package memcache

// Info describes the currently mapped cache file.
type Info struct {
	// Seed is the writer-chosen hash seed.
	Seed uint32

	// DataTableSize is the record store size in bytes.
	DataTableSize uint64

	// BucketCount is the number of hash table buckets.
	BucketCount uint64

	// Generation is the writer's generation counter at map time.
	Generation uint64
}

// Info returns geometry and identity details of the mapped cache file,
// establishing the mapping if needed.
//
// Possible errors: [ErrClosed], [ErrUnavailable], [ErrCorrupt],
// [ErrIncompatible].
func (c *Cache) Info() (Info, error) {
	r, err := c.acquire()
	if err != nil {
		return Info{}, err
	}
	defer r.leave()

	return Info{
		Seed:          r.seed,
		DataTableSize: r.dataSize,
		BucketCount:   r.bucketCount,
		Generation:    r.generation,
	}, nil
}
