package parallel

import (
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

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_Sequential(t *testing.T) {
	var cfg Config

	order := make([]int, 0, 100)
	For(100, func(i int) {
		order = append(order, i)
	}, cfg)

	for i, v := range order {
		if v != i {
			t.Fatalf("sequential order broken at %d: %d", i, v)
		}
	}
	assert.False(t, cfg.Enabled())
	assert.False(t, Serial().Enabled())
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		n    int
		want [][2]int
	}{
		{"serial", Serial(), 5, [][2]int{{0, 5}}},
		{"even", WithWorkers(2), 4, [][2]int{{0, 2}, {2, 4}}},
		{"remainder goes first", WithWorkers(3), 7, [][2]int{{0, 3}, {3, 5}, {5, 7}}},
		{"more workers than items", WithWorkers(8), 3, [][2]int{{0, 1}, {1, 2}, {2, 3}}},
		{"min chunk", Config{Workers: 4, MinChunk: 5}, 10, [][2]int{{0, 5}, {5, 10}}},
		{"empty", WithWorkers(4), 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Chunks(tt.n))
		})
	}
}

func TestForRangeDisjoint(t *testing.T) {
	out := make([]int32, 101)
	ForRange(len(out), func(begin, end int) {
		for i := begin; i < end; i++ {
			atomic.AddInt32(&out[i], 1)
		}
	}, WithWorkers(4))
	for i, v := range out {
		assert.Equal(t, int32(1), v, "index %d", i)
	}
}
