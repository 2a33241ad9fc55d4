package frame

import (
	"errors"
	"fmt"
)

type release struct {
	name string
	fn   func() error
}

// Teardown releases resources in the reverse order they were pushed.
// Vulkan objects must die before the objects they were created from, and
// pushing right after each successful create keeps that true even when
// initialization fails halfway.
type Teardown struct {
	stack []release
}

func (t *Teardown) Push(name string, fn func() error) {
	t.stack = append(t.stack, release{name: name, fn: fn})
}

// PushFunc is Push for release calls that cannot fail.
func (t *Teardown) PushFunc(name string, fn func()) {
	t.Push(name, func() error {
		fn()
		return nil
	})
}

func (t *Teardown) Len() int { return len(t.stack) }

// Names lists pending releases in the order Release would run them.
func (t *Teardown) Names() []string {
	names := make([]string, 0, len(t.stack))
	for i := len(t.stack) - 1; i >= 0; i-- {
		names = append(names, t.stack[i].name)
	}
	return names
}

// Release runs every pending release, newest first. A failing release does
// not stop the ones below it.
func (t *Teardown) Release() error {
	var errs []error
	for i := len(t.stack) - 1; i >= 0; i-- {
		r := t.stack[i]
		if err := r.fn(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", r.name, err))
		}
	}
	t.stack = nil
	return errors.Join(errs...)
}
