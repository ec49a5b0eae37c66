package window

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var windowBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "positnn_window_builds_total",
	Help: "Number of index windows computed, by kind",
}, []string{"kind"})

type cacheKey struct {
	kind Kind
	geom Geometry
}

type cacheEntry struct {
	once sync.Once
	w    *Window
}

// Cache memoizes windows per (kind, geometry). Each window is built exactly
// once even when several goroutines ask for it at the same time, and is never
// mutated afterwards. The zero value is ready to use.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

// Get returns the window for kind and g, building it on first use.
func (c *Cache) Get(kind Kind, g Geometry) *Window {
	key := cacheKey{kind: kind, geom: g.normalized()}

	c.mu.Lock()
	if c.entries == nil {
		c.entries = make(map[cacheKey]*cacheEntry)
	}
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		windowBuilds.WithLabelValues(kind.String()).Inc()
		switch kind {
		case OutputMajor:
			e.w = Forward(key.geom)
		case InputMajor:
			e.w = Inverse(key.geom)
		case KernelMajor:
			e.w = ByKernel(key.geom)
		}
	})
	return e.w
}

// Len returns the number of cached windows.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
