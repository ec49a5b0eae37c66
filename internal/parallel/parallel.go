// Package parallel provides the fork-join execution context used by kernels,
// layers and optimizers.
//
// Parallel regions split an index range into contiguous chunks, one goroutine
// per chunk, and join before returning. Each chunk writes only to its own
// slice of the output, so no locking is needed.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior. The zero value runs
// everything on the caller's goroutine.
type Config struct {
	Workers  int // Number of chunks a region is split into. <= 1 means synchronous.
	MinChunk int // Minimum items per chunk to avoid overhead.
}

// Serial returns the synchronous configuration.
func Serial() Config {
	return Config{Workers: 1}
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.NumCPU(),
		MinChunk: 1,
	}
}

// WithWorkers returns a config with n workers.
func WithWorkers(n int) Config {
	return Config{Workers: n, MinChunk: 1}
}

// Enabled reports whether regions may run on more than one goroutine.
func (c Config) Enabled() bool {
	return c.Workers > 1
}

// Chunks splits [0, n) into at most Workers contiguous ranges of nearly
// equal size. The first n%workers ranges get one extra item.
func (c Config) Chunks(n int) [][2]int {
	workers := max(c.Workers, 1)
	if c.MinChunk > 0 {
		workers = min(workers, max(n/c.MinChunk, 1))
	}
	workers = min(workers, n)
	if workers <= 0 {
		return nil
	}

	chunks := make([][2]int, 0, workers)
	size, extra := n/workers, n%workers
	begin := 0
	for w := range workers {
		end := begin + size
		if w < extra {
			end++
		}
		chunks = append(chunks, [2]int{begin, end})
		begin = end
	}
	return chunks
}

// ForRange executes f(begin, end) over contiguous chunks of [0, n).
func ForRange(n int, f func(begin, end int), cfg Config) {
	if n <= 0 {
		return
	}
	chunks := cfg.Chunks(n)
	if len(chunks) <= 1 {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	for _, ch := range chunks {
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(ch[0], ch[1])
	}
	wg.Wait()
}

// For executes f(i) for i in [0, n) with optional parallelism.
func For(n int, f func(i int), cfg Config) {
	ForRange(n, func(begin, end int) {
		for i := begin; i < end; i++ {
			f(i)
		}
	}, cfg)
}
