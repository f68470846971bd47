// Corruption tests.
//
// The data table is externally mutable, so every embedded offset must
// be re-validated before use. These tests damage record bytes directly
// in a built image and assert the walk fails closed: ErrNotFound, never
// a match, never a read past the mapped extent, never a hang.
//
// Technique: build a valid image with mcbuild, mutate bytes at the
// offsets the image reports, write the file, look up.

package memcache_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/lhellebr/sssd/internal/mcbuild"
	"github.com/lhellebr/sssd/pkg/memcache"
)

// mutateRecord applies f to the record bytes of name within the image.
func mutateRecord(img *mcbuild.Image, name string, f func(rec []byte)) {
	off := img.DataOffset + img.RecordOffset[name]
	f(img.Bytes[off:])
}

// lookupAlice writes the image and asserts the lookup outcome for
// "alice" matches wantErr.
func lookupAlice(t *testing.T, img *mcbuild.Image, wantErr error) {
	t.Helper()

	path := t.TempDir() + "/initgroups.mc"

	err := img.WriteFile(path)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	c := openCache(t, path)

	_, _, lookupErr := c.InitGroupsDyn("alice", 0, 0, make([]uint32, 8), 0)
	if !errors.Is(lookupErr, wantErr) {
		t.Fatalf("got %v, want %v", lookupErr, wantErr)
	}
}

func buildAlice(t *testing.T) *mcbuild.Image {
	t.Helper()

	img, err := mcbuild.New(42, 64).
		Add("alice", []uint32{100, 200, 300}, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	return img
}

func Test_InitGroupsDyn_Returns_ErrNotFound_When_GID_Array_Extends_Past_Data_Table(t *testing.T) {
	t.Parallel()

	img := buildAlice(t)

	// A member count this large puts the end of the GID array far
	// outside the data table.
	mutateRecord(img, "alice", func(rec []byte) {
		binary.LittleEndian.PutUint32(rec[mcbuild.RecHeaderSize+mcbuild.InitgrMembersOff:], 1<<30)
	})

	lookupAlice(t, img, memcache.ErrNotFound)
}

func Test_InitGroupsDyn_Returns_ErrNotFound_When_Key_Offset_Points_Past_Data_Table(t *testing.T) {
	t.Parallel()

	img := buildAlice(t)

	mutateRecord(img, "alice", func(rec []byte) {
		binary.LittleEndian.PutUint32(rec[mcbuild.RecHeaderSize+mcbuild.InitgrKeyOff:], 1<<31)
	})

	lookupAlice(t, img, memcache.ErrNotFound)
}

func Test_InitGroupsDyn_Returns_ErrNotFound_When_Record_Length_Exceeds_Data_Table(t *testing.T) {
	t.Parallel()

	img := buildAlice(t)

	mutateRecord(img, "alice", func(rec []byte) {
		binary.LittleEndian.PutUint32(rec[mcbuild.RecLenOff:], 1<<30)
	})

	lookupAlice(t, img, memcache.ErrNotFound)
}

func Test_InitGroupsDyn_Returns_ErrNotFound_When_Record_Length_Smaller_Than_Header(t *testing.T) {
	t.Parallel()

	img := buildAlice(t)

	mutateRecord(img, "alice", func(rec []byte) {
		binary.LittleEndian.PutUint32(rec[mcbuild.RecLenOff:], 4)
	})

	lookupAlice(t, img, memcache.ErrNotFound)
}

func Test_InitGroupsDyn_Returns_ErrNotFound_When_Bucket_Head_Slot_Out_Of_Range(t *testing.T) {
	t.Parallel()

	img := buildAlice(t)

	// Point alice's bucket head far past the data table. Anything
	// outside the slot range ends the walk as a miss.
	bucket := img.Bucket["alice"]
	binary.LittleEndian.PutUint32(img.Bytes[img.HashOffset+uint64(bucket)*4:], 1<<24)

	lookupAlice(t, img, memcache.ErrNotFound)
}

// A self-referential chain must terminate via the defensive iteration
// bound, not hang the caller.
func Test_InitGroupsDyn_Terminates_On_Cyclic_Chain(t *testing.T) {
	t.Parallel()

	img, err := mcbuild.New(42, 1).
		Add("bob", []uint32{1}, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)).
		Add("carol", []uint32{2}, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// carol is the chain head and points at bob; point bob back at
	// carol to close the cycle. alice is on neither record, so the
	// walk would spin forever without the bound.
	carolSlot := img.RecordSlot["carol"]
	mutateRecord(img, "bob", func(rec []byte) {
		binary.LittleEndian.PutUint32(rec[mcbuild.RecNext1Off:], carolSlot)
	})

	done := make(chan struct{})

	go func() {
		defer close(done)

		lookupAlice(t, img, memcache.ErrNotFound)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("cyclic chain walk did not terminate")
	}
}

// A corrupt record must also never surface through a chain: a valid
// record sitting behind it stays unreachable (fail-closed), which still
// reports as a miss rather than bad data.
func Test_InitGroupsDyn_Fails_Closed_When_Corrupt_Record_Precedes_Match(t *testing.T) {
	t.Parallel()

	expire := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	img, err := mcbuild.New(11, 1).
		Add("alice", []uint32{100}, expire).
		Add("mallory", []uint32{666}, expire).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// mallory is the chain head; both records share the only bucket,
	// and bucketCount=1 reduces every hash to 0, so the walk must
	// bounds-check mallory's payload before reaching alice.
	mutateRecord(img, "mallory", func(rec []byte) {
		binary.LittleEndian.PutUint32(rec[mcbuild.RecHeaderSize+mcbuild.InitgrMembersOff:], 1<<29)
	})

	lookupAlice(t, img, memcache.ErrNotFound)
}
