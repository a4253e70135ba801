package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/bluemap-render/internal/render"
)

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("headless renderer not configured")

// Noop implements render.Renderer but always fails, for deployments without Chrome.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render returns ErrDisabled.
func (Noop) Render(_ context.Context, _ string, _ render.Preset) (render.Artifact, error) {
	return render.Artifact{}, ErrDisabled
}
