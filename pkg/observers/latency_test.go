package observers

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/metrics"
)

func TestLatencyObserverLogsOnClose(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	obs := NewLatencyObserver(log)

	base := time.Now()
	tags := map[string]string{
		frames.MetaUtteranceID: "utt-1",
		frames.MetaSessionID:   "sess-1",
	}
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSegmentIn, Time: base, Tags: tags})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSignalOut, Time: base.Add(40 * time.Millisecond), Tags: tags})

	if buf.Len() != 0 {
		t.Fatalf("expected no log before close, got %q", buf.String())
	}

	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventUtteranceClosed, Time: base.Add(time.Second), Tags: tags})
	out := buf.String()
	if !strings.Contains(out, "utterance_latency") {
		t.Fatalf("expected latency log, got %q", out)
	}
	if !strings.Contains(out, "first_signal_ms=40") {
		t.Fatalf("expected 40ms latency, got %q", out)
	}
}

func TestLatencyObserverSilentUtterance(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	obs := NewLatencyObserver(log)

	tags := map[string]string{frames.MetaUtteranceID: "utt-2"}
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSegmentIn, Time: time.Now(), Tags: tags})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventUtteranceClosed, Time: time.Now(), Tags: tags})

	out := buf.String()
	if !strings.Contains(out, "signal=false") {
		t.Fatalf("expected silent utterance log, got %q", out)
	}
}

func TestLatencyObserverIgnoresUntaggedEvents(t *testing.T) {
	obs := NewLatencyObserver(nil)
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSegmentIn, Time: time.Now()})
	if len(obs.traces) != 0 {
		t.Fatalf("expected no trace without utterance id")
	}
}
