package card

import (
	"sync"
	"time"
)

// IDGenerator hands out strictly increasing millisecond timestamps.
// Ids stay close to the wall clock but never repeat, even for bursts within one millisecond.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator creates a generator whose ids are all greater than floor.
func NewIDGenerator(floor int64, now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{last: floor, now: now}
}

// Next returns max(now, last+1).
func (g *IDGenerator) Next() int64 {
	return g.NextAt(g.now())
}

// NextAt returns max(t, last+1).
func (g *IDGenerator) NextAt(t time.Time) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := t.UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}
