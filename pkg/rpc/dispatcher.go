package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/colorcue/colorcue/pkg/errorsx"
	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/metrics"
	"github.com/colorcue/colorcue/pkg/pipeline"
)

// Dispatcher executes invoke control frames against a procedure registry on a
// worker pool and feeds the result back into the pipeline as a system frame.
// Transcript and signal frames pass through untouched.
type Dispatcher struct {
	registry Registry
	in       chan frames.Frame
	tasks    chan map[string]string
	done     chan struct{}
	stopOnce sync.Once
	opts     DispatcherOptions
	obs      metrics.Observer

	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

type DispatcherOptions struct {
	Concurrency        int
	Timeout            time.Duration
	Retries            int
	RetryBackoff       time.Duration
	SerializeBySession bool
}

var ErrProcTimeout = errorsx.Wrap(errors.New("procedure timeout"), errorsx.ReasonRPCTimeout)

func NewDispatcher(registry Registry, in chan frames.Frame) *Dispatcher {
	return NewDispatcherWithOptions(registry, in, DispatcherOptions{})
}

func NewDispatcherWithOptions(registry Registry, in chan frames.Frame, opts DispatcherOptions) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 150 * time.Millisecond
	}
	d := &Dispatcher{
		registry:     registry,
		in:           in,
		tasks:        make(chan map[string]string, 64),
		done:         make(chan struct{}),
		opts:         opts,
		sessionLocks: make(map[string]*sync.Mutex),
	}
	for i := 0; i < opts.Concurrency; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) Name() string { return "rpc_dispatcher" }

func (d *Dispatcher) SetInput(in chan frames.Frame) { d.in = in }

func (d *Dispatcher) SetObserver(obs metrics.Observer) { d.obs = obs }

// Stop releases the worker pool. In-flight procedures run to completion;
// queued but unstarted invokes are discarded.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) Process(f frames.Frame) ([]frames.Frame, error) {
	if f.Kind() != frames.KindControl {
		return []frames.Frame{f}, nil
	}
	cf := f.(frames.ControlFrame)
	if cf.Code() != frames.ControlInvoke {
		return []frames.Frame{f}, nil
	}
	meta := cf.Meta()
	if d.registry == nil || d.in == nil {
		return []frames.Frame{f}, nil
	}
	select {
	case <-d.done:
		return []frames.Frame{f}, nil
	default:
	}
	select {
	case d.tasks <- meta:
	default:
		slog.Warn("rpc_dispatcher_queue_full", "proc_name", meta[frames.MetaProcName])
	}
	return []frames.Frame{f}, nil
}

func (d *Dispatcher) worker() {
	for {
		select {
		case <-d.done:
			return
		case meta := <-d.tasks:
			d.exec(meta)
		}
	}
}

func (d *Dispatcher) exec(meta map[string]string) {
	callID := meta[frames.MetaProcCallID]
	name := meta[frames.MetaProcName]
	argsRaw := meta[frames.MetaProcArgs]
	if callID == "" || name == "" {
		return
	}
	args := map[string]any{}
	_ = json.Unmarshal([]byte(argsRaw), &args)
	if _, ok := args[frames.MetaIdempotency]; !ok {
		args[frames.MetaIdempotency] = d.idempotencyKey(meta)
	}
	var result string
	var err error
	status := "ok"
	if d.opts.SerializeBySession {
		lock := d.sessionLock(meta[frames.MetaSessionID])
		lock.Lock()
		result, err = d.callWithRetry(name, args)
		lock.Unlock()
	} else {
		result, err = d.callWithRetry(name, args)
	}
	if err != nil {
		status = "error"
		if errorsx.HasReason(err, errorsx.ReasonRPCTimeout) {
			status = "timeout"
		}
		if result == "" {
			result = "error"
		}
	}
	d.record(name, status, meta)
	outMeta := map[string]string{
		frames.MetaProcCallID: callID,
		frames.MetaProcName:   name,
		frames.MetaProcResult: result,
		frames.MetaProcStatus: status,
	}
	if err != nil {
		outMeta[frames.MetaProcError] = err.Error()
	}
	if traceID := meta[frames.MetaTraceID]; traceID != "" {
		outMeta[frames.MetaTraceID] = traceID
	}
	sf := frames.NewSystemFrame(meta[frames.MetaSessionID], time.Now().UnixNano(), "proc_result", outMeta)
	select {
	case d.in <- sf:
	default:
	}
}

func (d *Dispatcher) callWithRetry(name string, args map[string]any) (string, error) {
	attempts := d.opts.Retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		result, err := d.callWithTimeout(name, args)
		if err == nil {
			return result, nil
		}
		lastErr = err
		// Bad payloads and unknown procedures never heal on retry.
		if errorsx.HasReason(err, errorsx.ReasonRPCInvalidPayload) ||
			errorsx.HasReason(err, errorsx.ReasonRPCUnknownProc) {
			return "", err
		}
		if i < attempts-1 {
			time.Sleep(d.opts.RetryBackoff * time.Duration(i+1))
		}
	}
	if lastErr == nil {
		lastErr = errorsx.Wrap(errors.New("procedure error"), errorsx.ReasonRPCInvoke)
	}
	return "", lastErr
}

func (d *Dispatcher) callWithTimeout(name string, args map[string]any) (string, error) {
	if d.registry == nil {
		return "", errors.New("missing registry")
	}
	if d.opts.Timeout <= 0 {
		return d.registry.HandleProc(context.Background(), name, args)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		res, err := d.registry.HandleProc(ctx, name, args)
		ch <- result{text: res, err: err}
	}()
	select {
	case out := <-ch:
		return out.text, out.err
	case <-ctx.Done():
		return "", ErrProcTimeout
	}
}

func (d *Dispatcher) sessionLock(sessionID string) *sync.Mutex {
	if sessionID == "" {
		return &sync.Mutex{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.sessionLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		d.sessionLocks[sessionID] = lock
	}
	return lock
}

func (d *Dispatcher) idempotencyKey(meta map[string]string) string {
	sessionID := meta[frames.MetaSessionID]
	callID := meta[frames.MetaProcCallID]
	if sessionID == "" && callID == "" {
		return fmt.Sprintf("proc-%d", time.Now().UnixNano())
	}
	return sessionID + ":" + callID
}

func (d *Dispatcher) record(name, status string, meta map[string]string) {
	if d.obs == nil {
		return
	}
	event := metrics.EventRPCInvoke
	if status != "ok" {
		event = metrics.EventRPCError
	}
	d.obs.RecordEvent(metrics.MetricsEvent{
		Name: event,
		Time: time.Now(),
		Tags: map[string]string{
			frames.MetaSessionID:  meta[frames.MetaSessionID],
			frames.MetaProcName:   name,
			frames.MetaProcStatus: status,
		},
	})
}

var _ pipeline.FrameProcessor = (*Dispatcher)(nil)
