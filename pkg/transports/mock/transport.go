package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/transports"
)

// Transport is an in-memory transport for local testing and integration.
// It implements the transports.Transport interface without any network dependency.
type Transport struct {
	recvCh chan frames.Frame
	sentCh chan frames.Frame
	closed atomic.Bool
	mu     sync.Mutex
	pts    *frames.PTSGen
}

func New() *Transport {
	return &Transport{
		recvCh: make(chan frames.Frame, 256),
		sentCh: make(chan frames.Frame, 256),
		pts:    frames.NewPTSGen(),
	}
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *Transport) Stop() error {
	if t.closed.CompareAndSwap(false, true) {
		t.mu.Lock()
		close(t.recvCh)
		close(t.sentCh)
		t.mu.Unlock()
	}
	return nil
}

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) Send(f frames.Frame) error {
	// mu orders the send against Stop closing the channel.
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return nil
	}
	select {
	case t.sentCh <- f:
	default:
	}
	return nil
}

// Push injects an inbound frame into the transport.
func (t *Transport) Push(f frames.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return
	}
	select {
	case t.recvCh <- f:
	default:
	}
}

// PushSegment injects one transcript segment, stamping a monotonic pts.
func (t *Transport) PushSegment(sessionID, utteranceID, text string, role frames.Role, final bool) {
	t.Push(frames.NewTranscriptFrame(sessionID, t.pts.Next(sessionID), text, role, utteranceID, final, map[string]string{
		frames.MetaSource: "mock",
	}))
}

// PushSessionEnd injects a session teardown marker.
func (t *Transport) PushSessionEnd(sessionID string) {
	t.Push(frames.NewSystemFrame(sessionID, time.Now().UnixNano(), "session_end", nil))
}

// Sent exposes outbound frames for inspection.
func (t *Transport) Sent() <-chan frames.Frame { return t.sentCh }

var _ transports.Transport = (*Transport)(nil)
