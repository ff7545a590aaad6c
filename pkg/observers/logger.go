package observers

import (
	"context"
	"log/slog"

	"github.com/colorcue/colorcue/pkg/metrics"
)

// LoggerObserver mirrors every event to the structured log at debug level,
// which is usually the only metrics sink in development.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	o.log.LogAttrs(context.TODO(), slog.LevelDebug, "metrics", metrics.EventAttrs(ev)...)
}

// MultiObserver fans one event out to several sinks; nil entries are skipped.
type MultiObserver struct {
	list []metrics.Observer
}

func NewMultiObserver(list ...metrics.Observer) *MultiObserver {
	return &MultiObserver{list: list}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m.list {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}
