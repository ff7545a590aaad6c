package colorcue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/colorcue/colorcue/pkg/agent"
	"github.com/colorcue/colorcue/pkg/extract"
	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/logging"
	"github.com/colorcue/colorcue/pkg/metrics"
	"github.com/colorcue/colorcue/pkg/observers"
	"github.com/colorcue/colorcue/pkg/pipeline"
	"github.com/colorcue/colorcue/pkg/redact"
	"github.com/colorcue/colorcue/pkg/rpc"
	"github.com/colorcue/colorcue/pkg/runner"
	"github.com/colorcue/colorcue/pkg/transports"
)

// Engine wires a transport, per-session extraction pipelines, the rpc
// dispatcher, and observers into one runnable unit. Both input paths end in
// the same place: a signal envelope on the transport.
type Engine struct {
	cfg       Config
	registry  *pipeline.SessionRegistry
	transport transports.Transport
	runner    *pipeline.Runner
	asyncObs  *metrics.AsyncObserver
	vocab     *vocabHolder
	procs     *rpc.ProcRegistry
	watcher   *VocabularyWatcher
	ctx       context.Context
	cancel    context.CancelFunc

	mu         sync.Mutex
	extractors map[string]*extract.Extractor
}

type EngineOptions struct {
	Config    Config
	Transport transports.Transport
	// Decider overrides the config-built agent decider (tests inject fakes).
	Decider *agent.Decider
	// ExtraProcs are registered alongside the built-in procedures.
	ExtraProcs []rpc.Proc
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	logging.SetDefault(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	vocab, err := initialVocabulary(cfg.Vocabulary)
	if err != nil {
		return nil, err
	}
	holder := &vocabHolder{v: vocab}

	slog.Info("colorcue_init",
		"environment", cfg.Environment,
		"transport", cfg.Transports.Provider,
		"labels", vocab.Len(),
		"agent_enabled", cfg.Agent.Enabled,
	)

	transport := opts.Transport
	if transport == nil {
		transport, err = BuildTransport(cfg.Transports)
		if err != nil {
			return nil, err
		}
	}

	obsList := []metrics.Observer{
		observers.NewLatencyObserver(slog.Default()),
		observers.NewLoggerObserver(slog.Default()),
	}
	var metricsFile *os.File
	if path := cfg.Observability.MetricsFile; path != "" {
		metricsFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open metrics file: %w", err)
		}
		obsList = append(obsList, metrics.NewJSONLObserver(metricsFile))
	}
	asyncObs := metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), 2048)

	e := &Engine{
		cfg:        cfg,
		transport:  transport,
		asyncObs:   asyncObs,
		vocab:      holder,
		extractors: make(map[string]*extract.Extractor),
	}

	procs := rpc.NewProcRegistry(
		rpc.NewSetColorProc(holder, e.applyColor),
		rpc.NewListColorsProc(holder),
	)
	for _, p := range opts.ExtraProcs {
		procs.Register(p)
	}
	e.procs = procs

	decider := opts.Decider
	if decider == nil && cfg.Agent.Enabled {
		decider = agent.New(agent.Config{
			APIKey:           cfg.Agent.APIKey,
			BaseURL:          cfg.Agent.BaseURL,
			Model:            cfg.Agent.Model,
			Timeout:          time.Duration(cfg.Agent.TimeoutMS) * time.Millisecond,
			Retries:          cfg.Agent.Retries,
			RetryBackoff:     time.Duration(cfg.Agent.RetryBackoffMS) * time.Millisecond,
			BreakerThreshold: cfg.Agent.BreakerThreshold,
			BreakerCooldown:  time.Duration(cfg.Agent.BreakerCooldownS) * time.Second,
		}, procs)
	}
	if decider != nil {
		decider.SetObserver(asyncObs)
	}

	sink := func(f frames.Frame) {
		_ = transport.Send(f)
	}

	e.registry = pipeline.NewSessionRegistry(func(ctx context.Context, sessionID, source, traceID string) (pipeline.Orchestrator, error) {
		extractor, err := extract.New(extract.Config{
			Vocabulary:          holder.Current(),
			RoleFilter:          frames.Role(cfg.Extract.Role),
			Alphabet:            cfg.Extract.Alphabet,
			MaxClosedUtterances: cfg.Extract.MaxClosedUtterances,
		})
		if err != nil {
			return nil, err
		}
		extractor.SetObserver(asyncObs)

		dispatcher := rpc.NewDispatcherWithOptions(procs, nil, rpc.DispatcherOptions{
			Concurrency:        cfg.RPC.Concurrency,
			Timeout:            time.Duration(cfg.RPC.TimeoutMS) * time.Millisecond,
			Retries:            cfg.RPC.Retries,
			RetryBackoff:       time.Duration(cfg.RPC.RetryBackoffMS) * time.Millisecond,
			SerializeBySession: cfg.RPC.SerializeBySession,
		})
		dispatcher.SetObserver(asyncObs)
		// Session removal cancels ctx; release the worker pool with it.
		context.AfterFunc(ctx, dispatcher.Stop)

		builder := pipeline.NewSignalPipelineBuilder()
		if decider != nil {
			builder = builder.WithAgent(decider)
		}
		builder = builder.
			WithDispatcher(dispatcher).
			WithExtractor(extractor)

		orch := builder.Build(cfg.Pipeline)
		orch.SetContext(ctx)
		orch.SetObserver(asyncObs)
		orch.SetSink(sink)
		dispatcher.SetInput(orch.In())

		e.mu.Lock()
		e.extractors[sessionID] = extractor
		e.mu.Unlock()
		return orch, nil
	})

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{"message", "ColorCue Engine Ready"}
			if rr, ok := transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			slog.Info("engine_ready", fields...)
		},
		OnStop: func() {
			if asyncObs != nil {
				asyncObs.Close()
			}
			if metricsFile != nil {
				_ = metricsFile.Close()
			}
			slog.Info("shutdown", "goroutines", runtime.NumGoroutine(), "active_sessions", e.registry.Count())
		},
	}

	drainer := pipeline.DrainerFunc(func() error {
		_ = transport.Stop()
		if e.watcher != nil {
			_ = e.watcher.Close()
		}
		e.registry.SetDraining(true)
		e.registry.CloseAll()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		_ = e.registry.WaitForEmpty(ctx, 200*time.Millisecond)
		return nil
	})
	e.runner = pipeline.NewDrainRunner(drainer, hooks, 30*time.Second)
	e.ctx, e.cancel = context.WithCancel(context.Background())

	if cfg.Vocabulary.File != "" {
		watcher, err := NewVocabularyWatcher(cfg.Vocabulary.File, e.UpdateVocabulary)
		if err != nil {
			return nil, err
		}
		e.watcher = watcher
	}
	return e, nil
}

func initialVocabulary(cfg VocabularyConfig) (extract.Vocabulary, error) {
	if cfg.File != "" {
		v, err := LoadVocabularyFile(cfg.File)
		if err == nil {
			return v, nil
		}
		if len(cfg.Labels) == 0 {
			return extract.Vocabulary{}, err
		}
		slog.Warn("vocabulary_file_unreadable", "file", cfg.File, "err", err)
	}
	return extract.NewVocabulary(cfg.Labels...)
}

// UpdateVocabulary swaps the label set for the rpc procedures, all live
// sessions, and any session created afterwards.
func (e *Engine) UpdateVocabulary(v extract.Vocabulary) error {
	if v.Len() == 0 {
		return fmt.Errorf("vocabulary must not be empty")
	}
	e.vocab.Set(v)
	e.mu.Lock()
	defer e.mu.Unlock()
	for sessionID, ex := range e.extractors {
		if err := ex.SetVocabulary(v); err != nil {
			slog.Warn("vocabulary_update_failed", "session_id", sessionID, "err", err)
		}
	}
	slog.Info("vocabulary_updated", "labels", v.Len())
	return nil
}

// applyColor is the set_color side effect: a confirmed signal envelope on
// the transport, same shape as the extraction path produces.
func (e *Engine) applyColor(ctx context.Context, color string) error {
	f := frames.NewSignalFrame("", time.Now().UnixNano(), color, "", true, map[string]string{
		frames.MetaSource: "rpc",
	})
	return e.transport.Send(f)
}

func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.transport.Start(ctx); err != nil {
		return err
	}
	go e.routeTransport(ctx)
	go func() {
		_ = e.runner.Run(ctx)
	}()
	return nil
}

func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return e.runner.Stop()
}

func (e *Engine) routeTransport(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-e.transport.Recv():
			if !ok {
				return
			}
			meta := f.Meta()
			sessionID := meta[frames.MetaSessionID]
			if sessionID == "" {
				continue
			}
			if f.Kind() == frames.KindSystem {
				sf := f.(frames.SystemFrame)
				if sf.Name() == "session_end" {
					e.endSession(sessionID)
					continue
				}
			}
			sess, _, err := e.registry.GetOrCreate(sessionID, meta[frames.MetaSource], meta[frames.MetaTraceID])
			if err != nil {
				slog.Warn("session_create_failed", "session_id", sessionID, "err", err)
				continue
			}
			nonBlockingSend(sess.Orch.In(), f)
		}
	}
}

func (e *Engine) endSession(sessionID string) {
	e.registry.Remove(sessionID)
	e.mu.Lock()
	delete(e.extractors, sessionID)
	e.mu.Unlock()
	slog.Info("session_ended", "session_id", sessionID)
}

func nonBlockingSend(ch chan frames.Frame, f frames.Frame) {
	select {
	case ch <- f:
	default:
	}
}

func (e *Engine) Transport() transports.Transport     { return e.transport }
func (e *Engine) Config() Config                      { return e.cfg }
func (e *Engine) Registry() *pipeline.SessionRegistry { return e.registry }
func (e *Engine) Procs() *rpc.ProcRegistry            { return e.procs }

func (e *Engine) Health() error {
	if e.transport == nil {
		return fmt.Errorf("missing transport")
	}
	return nil
}

// vocabHolder is the shared, swappable view of the current vocabulary. It
// satisfies rpc.Vocabulary so procedure validation always sees the live set.
type vocabHolder struct {
	mu sync.RWMutex
	v  extract.Vocabulary
}

func (h *vocabHolder) Contains(label string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.v.Contains(label)
}

func (h *vocabHolder) Labels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.v.Labels()
}

func (h *vocabHolder) Current() extract.Vocabulary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.v
}

func (h *vocabHolder) Set(v extract.Vocabulary) {
	h.mu.Lock()
	h.v = v
	h.mu.Unlock()
}

var _ rpc.Vocabulary = (*vocabHolder)(nil)
