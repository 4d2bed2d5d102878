package clock

import (
	"sync"
	"time"
)

// Stamper hands out strictly increasing millisecond timestamps used as row versions.
// A reservation of n stamps returns the first one; base+1..base+n-1 stay unused by later calls.
type Stamper struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewStamper returns a Stamper driven by the wall clock.
func NewStamper() *Stamper {
	return &Stamper{now: time.Now}
}

// Next reserves n consecutive stamps and returns the first one.
func (s *Stamper) Next(n uint64) uint64 {
	if n == 0 {
		n = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	base := uint64(s.now().UnixMilli())
	if base <= s.last {
		base = s.last + 1
	}
	s.last = base + n - 1
	return base
}
