package metrics

import "time"

const (
	EventSegmentIn       = "segment_in"
	EventSegmentDrop     = "segment_drop"
	EventSignalOut       = "signal_out"
	EventUtteranceClosed = "utterance_closed"
	EventRPCInvoke       = "rpc_invoke"
	EventRPCError        = "rpc_error"
	EventAgentDecision   = "agent_decision"
	EventBreakerOpen     = "breaker_open"
	EventBreakerClose    = "breaker_close"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
