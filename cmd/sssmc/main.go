// sssmc is an interactive client for shared-memory identity cache
// files.
//
// Usage:
//
//	sssmc [flags] [cache-file]
//
// Flags:
//
//	-c, --config    Config file path (default: XDG config dir)
//	-l, --limit     Default result ceiling for lookups (0 = unbounded)
//
// Commands (in REPL):
//
//	initgroups <name> [start] [limit]   Resolve cached group memberships
//	info                                Show mapped cache geometry
//	gen                                 Show the writer generation counter
//	bench <count> <name>                Benchmark lookup throughput
//	help                                Show this help
//	exit / quit / q                     Exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/lhellebr/sssd/pkg/memcache"
)

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := flag.NewFlagSet("sssmc", flag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "config file path")
	limit := flags.IntP("limit", "l", 0, "default result ceiling (0 = unbounded)")

	err := flags.Parse(os.Args[1:])
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	cachePath := cfg.CachePath
	if flags.NArg() > 0 {
		cachePath = flags.Arg(0)
	}

	cache, err := memcache.Open(memcache.Options{Path: cachePath})
	if err != nil {
		return err
	}
	defer cache.Close()

	r := &repl{
		cache:   cache,
		path:    cachePath,
		limit:   *limit,
		history: historyPath(cfg),
	}

	return r.loop()
}

type repl struct {
	cache   *memcache.Cache
	path    string
	limit   int
	history string
	liner   *liner.State
}

func (r *repl) loop() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if r.history != "" {
		if f, err := os.Open(r.history); err == nil {
			_, _ = r.liner.ReadHistory(f)
			_ = f.Close()
		}
	}

	fmt.Printf("sssmc: %s (type 'help' for commands)\n", r.path)

	for {
		line, err := r.liner.Prompt("sssmc> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}

			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		if r.dispatch(line) {
			break
		}
	}

	r.saveHistory()

	return nil
}

// dispatch executes one REPL line. Returns true to exit.
func (r *repl) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit", "q":
		return true
	case "help":
		r.printHelp()
	case "initgroups":
		r.cmdInitgroups(args)
	case "info":
		r.cmdInfo()
	case "gen":
		r.cmdGen()
	case "bench":
		r.cmdBench(args)
	default:
		fmt.Printf("unknown command %q (try 'help')\n", cmd)
	}

	return false
}

func (r *repl) completer(line string) []string {
	var out []string

	for _, cmd := range []string{"initgroups ", "info", "gen", "bench ", "help", "exit", "quit"} {
		if strings.HasPrefix(cmd, line) {
			out = append(out, cmd)
		}
	}

	return out
}

func (r *repl) printHelp() {
	fmt.Print(`Commands:
  initgroups <name> [start] [limit]   Resolve cached group memberships
  info                                Show mapped cache geometry
  gen                                 Show the writer generation counter
  bench <count> <name>                Benchmark lookup throughput
  help                                Show this help
  exit / quit / q                     Exit
`)
}

func (r *repl) cmdInitgroups(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: initgroups <name> [start] [limit]")

		return
	}

	start := 0
	limit := r.limit

	if len(args) > 1 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil || parsed < 0 {
			fmt.Printf("bad start %q\n", args[1])

			return
		}

		start = parsed
	}

	if len(args) > 2 {
		parsed, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Printf("bad limit %q: %v\n", args[2], err)

			return
		}

		limit = parsed
	}

	buf := make([]uint32, start+8)

	n, groups, err := r.cache.InitGroupsDyn(args[0], 0, start, buf, limit)
	if err != nil {
		r.printLookupError(err)

		return
	}

	fmt.Printf("%d group(s):", n-start)

	for _, gid := range groups[start:n] {
		fmt.Printf(" %d", gid)
	}

	fmt.Println()
}

func (r *repl) cmdGen() {
	info, err := r.cache.Info()
	if err != nil {
		fmt.Printf("gen failed: %v\n", err)

		return
	}

	fmt.Println(info.Generation)
}

func (r *repl) printLookupError(err error) {
	switch {
	case errors.Is(err, memcache.ErrNotFound):
		fmt.Println("not found")
	case errors.Is(err, memcache.ErrStale):
		fmt.Println("stale (entry expired; refresh from the directory)")
	case errors.Is(err, memcache.ErrUnavailable):
		fmt.Printf("cache unavailable: %v\n", err)
	default:
		fmt.Printf("lookup failed: %v\n", err)
	}
}

func (r *repl) cmdInfo() {
	info, err := r.cache.Info()
	if err != nil {
		fmt.Printf("info failed: %v\n", err)

		return
	}

	fmt.Printf("path:        %s\n", r.path)
	fmt.Printf("seed:        0x%08X\n", info.Seed)
	fmt.Printf("data table:  %d bytes\n", info.DataTableSize)
	fmt.Printf("buckets:     %d\n", info.BucketCount)
	fmt.Printf("generation:  %d\n", info.Generation)
}

func (r *repl) cmdBench(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: bench <count> <name>")

		return
	}

	count, err := strconv.Atoi(args[0])
	if err != nil || count <= 0 {
		fmt.Printf("bad count %q\n", args[0])

		return
	}

	name := args[1]
	groups := make([]uint32, 32)

	var hits, misses int

	start := time.Now()

	for i := 0; i < count; i++ {
		_, groups, err = r.cache.InitGroupsDyn(name, 0, 0, groups, r.limit)
		if err != nil {
			misses++
		} else {
			hits++
		}
	}

	elapsed := time.Since(start)
	fmt.Printf("%d lookups in %s (%.0f/s), %d hit(s), %d miss(es)\n",
		count, elapsed, float64(count)/elapsed.Seconds(), hits, misses)
}

func (r *repl) saveHistory() {
	if r.history == "" {
		return
	}

	err := os.MkdirAll(filepath.Dir(r.history), 0o750)
	if err != nil {
		return
	}

	f, err := os.Create(r.history) //nolint:gosec // resolved from config
	if err != nil {
		return
	}

	_, _ = r.liner.WriteHistory(f)
	_ = f.Close()
}
