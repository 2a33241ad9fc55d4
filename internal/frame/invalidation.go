package frame

import (
	"strings"
	"sync/atomic"
)

// Reason is a bit set describing why the swapchain has to be rebuilt.
type Reason uint32

const (
	Resized Reason = 1 << iota
	OutOfDate
	Suboptimal
	ShadersChanged
)

var reasonNames = []struct {
	r    Reason
	name string
}{
	{Resized, "resized"},
	{OutOfDate, "out-of-date"},
	{Suboptimal, "suboptimal"},
	{ShadersChanged, "shaders-changed"},
}

func (r Reason) Has(o Reason) bool { return r&o != 0 }

func (r Reason) String() string {
	if r == 0 {
		return "none"
	}
	var parts []string
	for _, n := range reasonNames {
		if r.Has(n.r) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Invalidation collects recreation requests. Window callbacks and the
// shader watcher goroutine mark it; the render loop takes it at a frame
// boundary.
type Invalidation struct {
	bits atomic.Uint32
}

func (i *Invalidation) Mark(r Reason) {
	i.bits.Or(uint32(r))
}

func (i *Invalidation) Pending() Reason {
	return Reason(i.bits.Load())
}

// Take returns the pending reasons and clears them in one step.
func (i *Invalidation) Take() Reason {
	return Reason(i.bits.Swap(0))
}
