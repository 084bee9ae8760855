package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000
	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestForBatch(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinItems: 2}

	batch, channels := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, channels)
	}

	ForBatch(batch, channels, func(b, c int) {
		results[b][c] = true
	}, cfg)

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			assert.True(t, results[b][c], "missing result at [%d][%d]", b, c)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	var order []int
	For(5, func(i int) {
		order = append(order, i)
	}, Config{Enabled: false})

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestForChunks_CoversRangeOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinItems: 2}

	var mu sync.Mutex
	seen := make([]int, 10)
	chunks := 0
	ids := map[int]bool{}
	ForChunks(10, func(c, lo, hi int) {
		mu.Lock()
		defer mu.Unlock()
		chunks++
		ids[c] = true
		for i := lo; i < hi; i++ {
			seen[i]++
		}
	}, cfg)

	for i, c := range seen {
		assert.Equal(t, 1, c, "index %d", i)
	}
	assert.Equal(t, NumChunks(10, cfg), chunks)
	for c := 0; c < chunks; c++ {
		assert.True(t, ids[c], "chunk %d", c)
	}
}

func TestNumChunks(t *testing.T) {
	assert.Equal(t, 0, NumChunks(0, DefaultConfig()))
	assert.Equal(t, 1, NumChunks(1, Config{Enabled: true, NumWorkers: 8, MinItems: 2}))
	assert.Equal(t, 1, NumChunks(100, Config{Enabled: false}))
	assert.Equal(t, 4, NumChunks(8, Config{Enabled: true, NumWorkers: 4, MinItems: 2}))
}

func TestWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, Workers(), 1)
}
