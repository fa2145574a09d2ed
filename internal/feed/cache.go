// Package feed supplies the latest observed price per symbol. The live
// controller treats the feed as best-effort: on gaps it simply keeps using
// the last price it saw.
package feed

import (
	"sync"
	"time"
)

// Tick is one observed price.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// Cache keeps the most recent tick per symbol. Concurrent readers, one writer
// (the websocket client goroutine).
type Cache struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{ticks: make(map[string]Tick)}
}

// Put records the latest tick for its symbol.
func (c *Cache) Put(t Tick) {
	if t.Price <= 0 || t.Symbol == "" {
		return
	}
	c.mu.Lock()
	c.ticks[t.Symbol] = t
	c.mu.Unlock()
}

// Latest returns the most recent price and its timestamp for the symbol.
func (c *Cache) Latest(symbol string) (float64, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.ticks[symbol]
	if !ok {
		return 0, time.Time{}, false
	}
	return t.Price, t.Time, true
}
