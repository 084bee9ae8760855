// Package parallel provides the data-parallel loops used by the CPU kernels.
package parallel

import (
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	MinItems   int  // Below this many items the loop runs inline.
}

// Workers returns the number of hardware threads reported by the CPU,
// falling back to runtime.NumCPU when cpuid cannot tell.
func Workers() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return min(n, runtime.NumCPU())
	}
	return runtime.NumCPU()
}

// DefaultConfig returns defaults sized to the host. Kernel work items are
// whole images or channels, so a single item is already worth a goroutine
// once there are at least two of them.
func DefaultConfig() Config {
	n := Workers()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinItems:   2,
	}
}

// For executes f(i) for i in [0, n).
// Falls back to sequential execution if parallelism is disabled or n is small.
func For(n int, f func(i int), cfg Config) {
	ForChunks(n, func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	}, cfg)
}

// ForChunks splits [0, n) into at most NumWorkers contiguous ranges and runs
// f on each concurrently. Chunk indices run from 0 to NumChunks(n, cfg)-1, so
// callers may keep per-chunk accumulators.
func ForChunks(n int, f func(chunk, lo, hi int), cfg Config) {
	if n <= 0 {
		return
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinItems {
		f(0, 0, n)
		return
	}

	size := (n + cfg.NumWorkers - 1) / cfg.NumWorkers
	var wg sync.WaitGroup
	for c, lo := 0, 0; lo < n; c, lo = c+1, lo+size {
		hi := min(lo+size, n)
		wg.Add(1)
		go func(c, lo, hi int) {
			defer wg.Done()
			f(c, lo, hi)
		}(c, lo, hi)
	}
	wg.Wait()
}

// NumChunks returns how many ranges ForChunks will produce for n items.
func NumChunks(n int, cfg Config) int {
	if n <= 0 {
		return 0
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinItems {
		return 1
	}
	chunk := (n + cfg.NumWorkers - 1) / cfg.NumWorkers
	return (n + chunk - 1) / chunk
}

// ForBatch is For over the batch*channels grid common in image kernels.
func ForBatch(batch, channels int, f func(b, c int), cfg Config) {
	For(batch*channels, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}
