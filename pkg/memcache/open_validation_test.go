// Mapping establishment tests.
//
// The lifecycle side validates the header once at map time; these tests
// damage the header and assert the right rejection class:
//
//   - ErrIncompatible: wrong magic/version/unknown fields
//   - ErrCorrupt:      impossible geometry
//   - ErrUnavailable:  missing file, or writer mid-rotation

package memcache_test

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lhellebr/sssd/internal/mcbuild"
	"github.com/lhellebr/sssd/pkg/memcache"
)

// lookupWithHeader writes the (possibly damaged) image and returns the
// error of a first lookup, which is what establishes the mapping.
func lookupWithHeader(t *testing.T, mutate func(hdr []byte)) error {
	t.Helper()

	img, err := mcbuild.New(1, 8).
		Add("alice", []uint32{100}, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if mutate != nil {
		mutate(img.Bytes[:mcbuild.HeaderSize])
	}

	path := filepath.Join(t.TempDir(), "initgroups.mc")

	writeErr := img.WriteFile(path)
	if writeErr != nil {
		t.Fatalf("WriteFile failed: %v", writeErr)
	}

	c, openErr := memcache.Open(memcache.Options{Path: path})
	if openErr != nil {
		t.Fatalf("Open failed: %v", openErr)
	}

	t.Cleanup(func() { _ = c.Close() })

	_, _, lookupErr := c.InitGroupsDyn("alice", 0, 0, make([]uint32, 4), 0)

	return lookupErr
}

func Test_Lookup_Returns_ErrIncompatible_When_Magic_Is_Wrong(t *testing.T) {
	t.Parallel()

	err := lookupWithHeader(t, func(hdr []byte) {
		copy(hdr[mcbuild.OffMagic:], "XXXX")
	})

	if !errors.Is(err, memcache.ErrIncompatible) {
		t.Fatalf("got %v, want ErrIncompatible", err)
	}
}

func Test_Lookup_Returns_ErrIncompatible_When_Major_Version_Unsupported(t *testing.T) {
	t.Parallel()

	err := lookupWithHeader(t, func(hdr []byte) {
		binary.LittleEndian.PutUint32(hdr[mcbuild.OffMajor:], 99)
	})

	if !errors.Is(err, memcache.ErrIncompatible) {
		t.Fatalf("got %v, want ErrIncompatible", err)
	}
}

func Test_Lookup_Returns_ErrIncompatible_When_Reserved_Bytes_Set(t *testing.T) {
	t.Parallel()

	err := lookupWithHeader(t, func(hdr []byte) {
		hdr[0x60] = 0xAB
	})

	if !errors.Is(err, memcache.ErrIncompatible) {
		t.Fatalf("got %v, want ErrIncompatible", err)
	}
}

func Test_Lookup_Returns_ErrUnavailable_When_Writer_Marked_File_Invalid(t *testing.T) {
	t.Parallel()

	err := lookupWithHeader(t, func(hdr []byte) {
		binary.LittleEndian.PutUint32(hdr[mcbuild.OffStatus:], mcbuild.StatusInvalid)
	})

	if !errors.Is(err, memcache.ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func Test_Lookup_Returns_ErrUnavailable_When_Writer_Is_Recycling_File(t *testing.T) {
	t.Parallel()

	err := lookupWithHeader(t, func(hdr []byte) {
		binary.LittleEndian.PutUint32(hdr[mcbuild.OffStatus:], mcbuild.StatusRecycled)
	})

	if !errors.Is(err, memcache.ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func Test_Lookup_Returns_ErrCorrupt_When_Data_Table_Exceeds_File(t *testing.T) {
	t.Parallel()

	err := lookupWithHeader(t, func(hdr []byte) {
		binary.LittleEndian.PutUint64(hdr[mcbuild.OffDataSize:], 1<<30)
	})

	if !errors.Is(err, memcache.ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}
}

func Test_Lookup_Returns_ErrCorrupt_When_Hash_Table_Exceeds_File(t *testing.T) {
	t.Parallel()

	err := lookupWithHeader(t, func(hdr []byte) {
		binary.LittleEndian.PutUint64(hdr[mcbuild.OffBucketCount:], 1<<28)
	})

	if !errors.Is(err, memcache.ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}
}

func Test_Lookup_Returns_ErrCorrupt_When_Data_Table_Size_Misaligned(t *testing.T) {
	t.Parallel()

	err := lookupWithHeader(t, func(hdr []byte) {
		binary.LittleEndian.PutUint64(hdr[mcbuild.OffDataSize:], 13)
	})

	if !errors.Is(err, memcache.ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}
}

func Test_Lookup_Returns_ErrCorrupt_When_File_Truncated_Below_Header(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "initgroups.mc")

	err := os.WriteFile(path, []byte("SMC1 but far too short"), 0o600)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c, openErr := memcache.Open(memcache.Options{Path: path})
	if openErr != nil {
		t.Fatalf("Open failed: %v", openErr)
	}
	defer c.Close()

	_, _, lookupErr := c.InitGroupsDyn("alice", 0, 0, make([]uint32, 4), 0)
	if !errors.Is(lookupErr, memcache.ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", lookupErr)
	}
}

func Test_Open_Returns_ErrInvalidInput_When_Path_Empty(t *testing.T) {
	t.Parallel()

	_, err := memcache.Open(memcache.Options{})
	if !errors.Is(err, memcache.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}
