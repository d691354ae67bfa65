package headless

import (
	"context"
	"errors"
)

// Noop implements Renderer but always returns an error to indicate that
// headless browsing is not available in the current build.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render returns an error since this is a stub implementation.
func (Noop) Render(_ context.Context, _ string) ([]byte, error) {
	return nil, errors.New("headless renderer not configured")
}
