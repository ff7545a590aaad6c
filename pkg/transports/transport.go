package transports

import (
	"context"

	"github.com/colorcue/colorcue/pkg/frames"
)

// Transport is a vendor-agnostic boundary that feeds transcript and control
// frames into the engine and carries signal results back out.
// Implementations own their network lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan frames.Frame
	Send(frames.Frame) error
}

// ReadyReporter lets transports expose readiness metadata (endpoints, models).
// Optional; used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
