package hostinput

import (
	"sync/atomic"
	"time"
)

// suppressLinger covers hook events the OS delivers shortly after an
// injection window closes.
const suppressLinger = 50 * time.Millisecond

// Suppressor marks windows of self-injected input so the global hook can
// drop events the engine itself produced. The simulator brackets every
// injection with Begin/End; the hook source consults Active.
type Suppressor struct {
	depth   atomic.Int32
	lastEnd atomic.Int64 // unix nanos of the most recent End
}

// Begin opens an injection window. Windows nest.
func (s *Suppressor) Begin() {
	s.depth.Add(1)
}

// End closes an injection window.
func (s *Suppressor) End() {
	s.lastEnd.Store(time.Now().UnixNano())
	s.depth.Add(-1)
}

// Active reports whether hook events should currently be treated as
// self-injected.
func (s *Suppressor) Active() bool {
	if s.depth.Load() > 0 {
		return true
	}
	last := s.lastEnd.Load()
	return last > 0 && time.Since(time.Unix(0, last)) < suppressLinger
}
