// Package frame holds the CPU side of the frames-in-flight protocol: fence
// pacing, swapchain invalidation tracking, ordered teardown and frame stats.
// Nothing here talks to the GPU directly, so the rules can be exercised
// without a device.
package frame

import (
	"errors"
	"fmt"
)

// MaxFramesInFlight bounds the slot ring. Beyond triple buffering the CPU
// only adds latency.
const MaxFramesInFlight = 3

var (
	ErrNoSlots         = errors.New("frame: at least one frame slot is required")
	ErrTooManySlots    = fmt.Errorf("frame: more than %d frame slots", MaxFramesInFlight)
	ErrImageOutOfRange = errors.New("frame: swapchain image index out of range")
	ErrDuplicateFence  = errors.New("frame: frame slots must not share a fence")
)

// Fences is the device side of pacing. Wait blocks until every fence given
// is signaled; Reset returns them to the unsignaled state.
type Fences[F comparable] interface {
	Wait(fences ...F) error
	Reset(fences ...F) error
}

// Pacer tracks which frame slot the CPU is recording and which slot's fence
// last claimed each swapchain image. The zero value of F means "no owner".
type Pacer[F comparable] struct {
	fences  Fences[F]
	slots   []F
	images  []F
	current int
	frames  uint64
}

// NewPacer takes one fence per frame slot. The fences must have been
// created signaled so the first WaitSlot of every slot returns at once.
func NewPacer[F comparable](fences Fences[F], slots []F, imageCount int) (*Pacer[F], error) {
	if len(slots) == 0 {
		return nil, ErrNoSlots
	}
	if len(slots) > MaxFramesInFlight {
		return nil, ErrTooManySlots
	}
	var zero F
	seen := make(map[F]bool, len(slots))
	for i, f := range slots {
		if f == zero {
			return nil, fmt.Errorf("frame: slot %d has no fence", i)
		}
		if seen[f] {
			return nil, ErrDuplicateFence
		}
		seen[f] = true
	}
	return &Pacer[F]{
		fences: fences,
		slots:  append([]F(nil), slots...),
		images: make([]F, imageCount),
	}, nil
}

func (p *Pacer[F]) Slot() int { return p.current }

func (p *Pacer[F]) SlotCount() int { return len(p.slots) }

func (p *Pacer[F]) ImageCount() int { return len(p.images) }

// Frames returns how many frames have been advanced past.
func (p *Pacer[F]) Frames() uint64 { return p.frames }

// WaitSlot blocks until the GPU has finished the last submission made from
// the current slot. Everything owned by the slot is free afterwards.
func (p *Pacer[F]) WaitSlot() error {
	if err := p.fences.Wait(p.slots[p.current]); err != nil {
		return fmt.Errorf("wait frame slot %d: %w", p.current, err)
	}
	return nil
}

// Claim records that the current slot is about to render into image. When
// a different slot still owns the image its fence is waited on first.
func (p *Pacer[F]) Claim(image uint32) error {
	if int(image) >= len(p.images) {
		return fmt.Errorf("%w: %d of %d", ErrImageOutOfRange, image, len(p.images))
	}
	var zero F
	owner := p.images[image]
	mine := p.slots[p.current]
	if owner != zero && owner != mine {
		if err := p.fences.Wait(owner); err != nil {
			return fmt.Errorf("wait image %d: %w", image, err)
		}
	}
	p.images[image] = mine
	return nil
}

// Arm resets the current slot's fence and returns it for the submit. Call
// it only once the frame is certain to be submitted: a fence reset without
// a matching submit never signals again.
func (p *Pacer[F]) Arm() (F, error) {
	f := p.slots[p.current]
	if err := p.fences.Reset(f); err != nil {
		var zero F
		return zero, fmt.Errorf("reset frame slot %d: %w", p.current, err)
	}
	return f, nil
}

func (p *Pacer[F]) Advance() {
	p.current = (p.current + 1) % len(p.slots)
	p.frames++
}

// Rebind resizes the image ownership table after swapchain recreation. The
// caller must have idled the device, so no previous owner is still pending.
func (p *Pacer[F]) Rebind(imageCount int) {
	p.images = make([]F, imageCount)
}

// Owner reports which fence currently owns image.
func (p *Pacer[F]) Owner(image uint32) (F, bool) {
	var zero F
	if int(image) >= len(p.images) {
		return zero, false
	}
	return p.images[image], p.images[image] != zero
}

// All returns every slot fence, for waiting on the whole ring at shutdown.
func (p *Pacer[F]) All() []F {
	return append([]F(nil), p.slots...)
}
