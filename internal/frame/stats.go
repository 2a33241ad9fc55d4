package frame

import "time"

// Stats counts presented frames and produces a frames-per-second sample
// about once per Window.
type Stats struct {
	Window time.Duration

	count int
	last  time.Time
	fps   float64
	total uint64
}

func NewStats() *Stats {
	return &Stats{Window: time.Second}
}

// Tick records one frame at now. It reports true when a new FPS sample
// was taken.
func (s *Stats) Tick(now time.Time) bool {
	s.total++
	if s.last.IsZero() {
		s.last = now
		return false
	}
	s.count++
	elapsed := now.Sub(s.last)
	if elapsed < s.Window {
		return false
	}
	s.fps = float64(s.count) / elapsed.Seconds()
	s.count = 0
	s.last = now
	return true
}

func (s *Stats) FPS() float64 { return s.fps }

func (s *Stats) Total() uint64 { return s.total }
