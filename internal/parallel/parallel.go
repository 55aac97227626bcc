// Package parallel splits per-sample layer work across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// SampleConfig returns the configuration used for batch loops, where every
// item is a whole sample and two of them already justify a goroutine.
func SampleConfig() Config {
	cfg := DefaultConfig()
	cfg.MinChunkSize = 2
	return cfg
}

// Workers returns how many distinct worker indices ForChunks may pass to f.
func (c Config) Workers() int {
	return max(c.NumWorkers, 1)
}

// ForChunks calls f(worker, start, end) on disjoint ranges covering [0, n).
// Every call gets a distinct worker index in [0, cfg.Workers()), so f may
// index per-worker scratch buffers with it. Falls back to a single
// f(0, 0, n) if parallelism is disabled or n is too small.
func ForChunks(n int, f func(worker, start, end int), cfg Config) {
	if n <= 0 {
		return
	}
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < 2*cfg.MinChunkSize {
		f(0, 0, n)
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	worker := 0
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(w, s, e int) {
			defer wg.Done()
			f(w, s, e)
		}(worker, start, end)
		worker++
	}
	wg.Wait()
}
