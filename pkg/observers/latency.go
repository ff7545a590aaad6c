package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/metrics"
)

// LatencyObserver tracks first-segment-to-first-signal latency per utterance.
// That interval is the whole point of client-side extraction, so it gets its
// own log line per utterance.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*trace
	log    *slog.Logger
}

type trace struct {
	firstSegment time.Time
	firstSignal  time.Time
	sessionID    string
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*trace),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	utteranceID := ""
	if ev.Tags != nil {
		utteranceID = ev.Tags[frames.MetaUtteranceID]
	}
	if utteranceID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.traces[utteranceID]
	if t == nil {
		t = &trace{}
		o.traces[utteranceID] = t
	}
	switch ev.Name {
	case metrics.EventSegmentIn:
		if t.firstSegment.IsZero() {
			t.firstSegment = ev.Time
			t.sessionID = ev.Tags[frames.MetaSessionID]
		}
	case metrics.EventSignalOut:
		if t.firstSignal.IsZero() {
			t.firstSignal = ev.Time
		}
	case metrics.EventUtteranceClosed:
		o.logUtteranceLocked(utteranceID, t)
		delete(o.traces, utteranceID)
	}
}

func (o *LatencyObserver) logUtteranceLocked(utteranceID string, t *trace) {
	if t.firstSegment.IsZero() {
		return
	}
	attrs := []any{
		"utterance_id", utteranceID,
		"session_id", t.sessionID,
	}
	if t.firstSignal.IsZero() {
		attrs = append(attrs, "signal", false)
	} else {
		attrs = append(attrs,
			"signal", true,
			"first_signal_ms", t.firstSignal.Sub(t.firstSegment).Milliseconds(),
		)
	}
	o.log.Info("utterance_latency", attrs...)
}
