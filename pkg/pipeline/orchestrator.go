package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/metrics"
	"github.com/colorcue/colorcue/pkg/priority"
)

type orchestrator struct {
	in      chan frames.Frame
	out     chan frames.Frame
	pq      *priority.PriorityQueue
	procs   []FrameProcessor
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	stageCh []chan frames.Frame
	sink    func(frames.Frame)
	obs     metrics.Observer

	// done is closed by the goroutine that emits into out, so Stop can
	// close out without racing an emit.
	done     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) Orchestrator {
	o := &orchestrator{
		in:  make(chan frames.Frame, cfg.HighCapacity+cfg.LowCapacity),
		out: make(chan frames.Frame, cfg.HighCapacity+cfg.LowCapacity),
		cfg: cfg,
	}
	o.pq = priority.New(cfg.HighCapacity, cfg.LowCapacity, cfg.FairnessRatio)
	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o
}

func NewWithPipelineConfig(pc PipelineConfig) Orchestrator {
	orch := New(pc.Config)
	logPipeline(pc.Processors)
	for _, p := range pc.Processors {
		_ = orch.AddProcessor(p)
	}
	return orch
}

func (o *orchestrator) SetContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
}

func (o *orchestrator) In() chan frames.Frame            { return o.in }
func (o *orchestrator) Out() chan frames.Frame           { return o.out }
func (o *orchestrator) SetSink(sink func(frames.Frame))  { o.sink = sink }
func (o *orchestrator) SetObserver(obs metrics.Observer) { o.obs = obs }

func (o *orchestrator) AddProcessor(p FrameProcessor) error {
	o.procs = append(o.procs, p)
	return nil
}

func (o *orchestrator) Start() error {
	if o.cfg.Async {
		return o.startAsync()
	}
	return o.startSync()
}

func (o *orchestrator) Stop() error {
	o.stopOnce.Do(func() {
		o.cancel()
		if o.done != nil {
			select {
			case <-o.done:
			case <-time.After(2 * time.Second):
			}
		}
		close(o.out)
	})
	return nil
}

func (o *orchestrator) startSync() error {
	o.done = make(chan struct{})
	go o.feed()
	go func() {
		defer close(o.done)
		for {
			fAny, ok := o.pq.Pop(o.ctx)
			if !ok {
				return
			}
			f := fAny.(frames.Frame)
			out := []frames.Frame{f}
			for _, p := range o.procs {
				var next []frames.Frame
				for _, cur := range out {
					start := time.Now()
					r, err := p.Process(cur)
					if err != nil {
						continue
					}
					o.recordStage(p.Name(), cur, start)
					next = append(next, r...)
				}
				out = next
				if out == nil {
					break
				}
			}
			for _, e := range out {
				o.recordOut(e)
				o.emit(e)
			}
		}
	}()
	return nil
}

func (o *orchestrator) startAsync() error {
	o.stageCh = make([]chan frames.Frame, len(o.procs)+1)
	for i := range o.stageCh {
		o.stageCh[i] = make(chan frames.Frame, o.cfg.StageBuffer)
	}
	for i, p := range o.procs {
		inCh, outCh := o.stageCh[i], o.stageCh[i+1]
		go func(proc FrameProcessor, in, out chan frames.Frame) {
			for {
				select {
				case <-o.ctx.Done():
					return
				case f := <-in:
					start := time.Now()
					r, err := proc.Process(f)
					if err != nil {
						continue
					}
					o.recordStage(proc.Name(), f, start)
					for _, e := range r {
						o.push(out, e)
					}
				}
			}
		}(p, inCh, outCh)
	}
	o.done = make(chan struct{})
	go o.feed()
	// pop from pq to stage0 honoring fairness
	go func() {
		for {
			fAny, ok := o.pq.Pop(o.ctx)
			if !ok {
				return
			}
			o.push(o.stageCh[0], fAny.(frames.Frame))
		}
	}()
	// final stage to out; it is the only emitter, so it owns done.
	go func() {
		defer close(o.done)
		final := o.stageCh[len(o.stageCh)-1]
		for {
			select {
			case <-o.ctx.Done():
				return
			case e := <-final:
				o.recordOut(e)
				o.emit(e)
			}
		}
	}()
	return nil
}

// feed moves inbound frames into the priority queue; control frames take the
// high lane so cancellation and closure overtake queued transcript segments.
func (o *orchestrator) feed() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case f := <-o.in:
			if f.Kind() == frames.KindControl {
				if !o.pq.TryPushHigh(f) {
					o.recordDrop(f)
				}
			} else {
				if !o.pq.TryPushLow(f) {
					o.recordDrop(f)
				}
			}
			o.recordIn(f)
		}
	}
}

func (o *orchestrator) emit(f frames.Frame) {
	if o.sink != nil {
		o.sink(f)
		return
	}
	o.push(o.out, f)
}

func (o *orchestrator) push(ch chan frames.Frame, f frames.Frame) {
	switch o.cfg.Backpressure {
	case BackpressureWait:
		select {
		case <-o.ctx.Done():
			return
		case ch <- f:
		}
	default:
		select {
		case ch <- f:
		default:
			o.recordDrop(f)
		}
	}
}

func (o *orchestrator) recordStage(name string, f frames.Frame, start time.Time) {
	if o.obs == nil {
		return
	}
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name:  "stage_latency_us",
		Time:  time.Now(),
		Value: float64(time.Since(start).Microseconds()),
		Tags: map[string]string{
			"processor":          name,
			frames.MetaSessionID: sessionIDFromFrame(f),
			frames.MetaTraceID:   traceIDFromFrame(f),
		},
	})
}

func (o *orchestrator) recordIn(f frames.Frame) {
	o.recordFlow("frame_in", f)
}

func (o *orchestrator) recordOut(f frames.Frame) {
	o.recordFlow("frame_out", f)
}

func (o *orchestrator) recordDrop(f frames.Frame) {
	o.recordFlow("frame_drop", f)
}

func (o *orchestrator) recordFlow(name string, f frames.Frame) {
	if o.obs == nil {
		return
	}
	tags := map[string]string{
		frames.MetaSessionID: sessionIDFromFrame(f),
		frames.MetaTraceID:   traceIDFromFrame(f),
		"kind":               kindFromFrame(f),
	}
	addFrameDetailTags(tags, f)
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: tags,
	})
}

func sessionIDFromFrame(f frames.Frame) string {
	if f == nil {
		return ""
	}
	m := f.Meta()
	if m == nil {
		return ""
	}
	return m[frames.MetaSessionID]
}

func traceIDFromFrame(f frames.Frame) string {
	if f == nil {
		return ""
	}
	m := f.Meta()
	if m == nil {
		return ""
	}
	return m[frames.MetaTraceID]
}

func kindFromFrame(f frames.Frame) string {
	if f == nil {
		return ""
	}
	return string(f.Kind())
}

func addFrameDetailTags(tags map[string]string, f frames.Frame) {
	if tags == nil || f == nil {
		return
	}
	meta := f.Meta()
	if meta != nil {
		if source := meta[frames.MetaSource]; source != "" {
			tags["source"] = source
		}
	}
	switch f.Kind() {
	case frames.KindControl:
		cf := f.(frames.ControlFrame)
		tags["control_code"] = string(cf.Code())
		if meta != nil {
			if reason := meta[frames.MetaReason]; reason != "" {
				tags["control_reason"] = reason
			}
		}
	case frames.KindSignal:
		sf := f.(frames.SignalFrame)
		tags["label"] = sf.Label()
	case frames.KindSystem:
		sf := f.(frames.SystemFrame)
		if name := sf.Name(); name != "" {
			tags["system_name"] = name
		}
	}
}

func logPipeline(procs []FrameProcessor) {
	if len(procs) == 0 {
		return
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		names = append(names, p.Name())
	}
	slog.Info("pipeline", "order", strings.Join(names, " -> "))
}
