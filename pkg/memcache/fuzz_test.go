package memcache_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lhellebr/sssd/internal/mcbuild"
	"github.com/lhellebr/sssd/pkg/memcache"
)

// FuzzInitGroupsDyn_RecordMutation flips arbitrary bytes in a valid
// image and asserts the lookup never panics, never reads out of
// bounds (the runtime would catch a slice overrun), and never reports
// a corrupted record as more groups than the record can hold.
func FuzzInitGroupsDyn_RecordMutation(f *testing.F) {
	f.Add(uint32(0), byte(0xFF))
	f.Add(uint32(4), byte(0x80))
	f.Add(uint32(12), byte(0x7F))
	f.Add(uint32(24), byte(0x00))
	f.Add(uint32(36), byte(0xFF))

	expire := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	f.Fuzz(func(t *testing.T, offset uint32, value byte) {
		img, err := mcbuild.New(17, 4).
			Add("alice", []uint32{100, 200, 300}, expire).
			Add("bob", []uint32{400}, expire).
			Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		// Mutate one byte anywhere past the header: hash table or data
		// table, wherever the offset lands.
		mutable := img.Bytes[mcbuild.HeaderSize:]
		mutable[int(offset)%len(mutable)] = value

		path := filepath.Join(t.TempDir(), "fuzz.mc")

		writeErr := img.WriteFile(path)
		if writeErr != nil {
			t.Fatalf("WriteFile failed: %v", writeErr)
		}

		c, err := memcache.Open(memcache.Options{Path: path})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer c.Close()

		defer memcache.SetClockForTesting(c, func() time.Time { return testNow })()

		n, groups, lookupErr := c.InitGroupsDyn("alice", 0, 0, make([]uint32, 2), 0)
		if lookupErr != nil {
			ok := errors.Is(lookupErr, memcache.ErrNotFound) ||
				errors.Is(lookupErr, memcache.ErrStale) ||
				errors.Is(lookupErr, memcache.ErrNoMemory)
			if !ok {
				t.Fatalf("unexpected error class: %v", lookupErr)
			}

			return
		}

		// Success must stay internally consistent.
		if n < 0 || n > len(groups) {
			t.Fatalf("inconsistent result: n=%d len=%d", n, len(groups))
		}
	})
}
