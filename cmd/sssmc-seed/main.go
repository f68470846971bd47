// sssmc-seed generates synthetic shared-memory cache images for
// benchmarking and manual testing of the client read path.
//
// Usage:
//
//	sssmc-seed [flags]
//
// Flags:
//
//	-o, --out              Output file (default: $TMPDIR/sssmc-seed/initgroups.mc)
//	-u, --users            Number of user entries
//	-g, --groups-per-user  GIDs per entry
//	-b, --buckets          Hash table bucket count
//	-s, --seed             Hash seed
//	-t, --ttl              Entry time-to-live
package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/lhellebr/sssd/internal/mcbuild"
)

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := flag.NewFlagSet("sssmc-seed", flag.ContinueOnError)
	out := flags.StringP("out", "o", filepath.Join(os.TempDir(), "sssmc-seed", "initgroups.mc"), "output file")
	users := flags.IntP("users", "u", 10000, "number of user entries")
	groupsPerUser := flags.IntP("groups-per-user", "g", 16, "GIDs per entry")
	buckets := flags.Uint64P("buckets", "b", 0, "bucket count (default: 2x users)")
	seed := flags.Uint32P("seed", "s", 0xC0FFEE, "hash seed")
	ttl := flags.DurationP("ttl", "t", time.Hour, "entry time-to-live")

	err := flags.Parse(os.Args[1:])
	if err != nil {
		return err
	}

	bucketCount := *buckets
	if bucketCount == 0 {
		bucketCount = uint64(*users) * 2
	}

	if bucketCount == 0 {
		bucketCount = 1
	}

	rng := rand.New(rand.NewSource(int64(*seed))) //nolint:gosec // synthetic data only
	expire := time.Now().Add(*ttl)

	b := mcbuild.New(*seed, bucketCount)

	start := time.Now()

	for i := 0; i < *users; i++ {
		gids := make([]uint32, *groupsPerUser)
		for j := range gids {
			gids[j] = 1000 + uint32(rng.Intn(100000))
		}

		b.Add(fmt.Sprintf("user%07d", i), gids, expire)
	}

	img, err := b.Build()
	if err != nil {
		return fmt.Errorf("building image: %w", err)
	}

	mkdirErr := os.MkdirAll(filepath.Dir(*out), 0o750)
	if mkdirErr != nil {
		return fmt.Errorf("creating output directory: %w", mkdirErr)
	}

	writeErr := img.WriteFile(*out)
	if writeErr != nil {
		return writeErr
	}

	fmt.Printf("Created %d entries (%d bytes, %d buckets) in %s -> %s\n",
		*users, len(img.Bytes), bucketCount, time.Since(start), *out)

	return nil
}
