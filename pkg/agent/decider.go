package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/colorcue/colorcue/pkg/errorsx"
	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/metrics"
	"github.com/colorcue/colorcue/pkg/pipeline"
	"github.com/colorcue/colorcue/pkg/resilience"
	"github.com/colorcue/colorcue/pkg/rpc"
)

const systemPrompt = "You manage the accent color of a user interface during a voice call. " +
	"When the remote speaker clearly asks for a color change, call set_color with the color name. " +
	"If no color change is requested, do not call any function."

// ChatClient is the slice of the OpenAI client the decider needs; the real
// *openai.Client satisfies it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration

	Retries          int
	RetryBackoff     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Decider is the structured alternative to transcript extraction: it hands
// final utterances to a function-calling model and turns returned tool calls
// into invoke control frames for the rpc dispatcher.
type Decider struct {
	client  ChatClient
	cfg     Config
	tools   []openai.Tool
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer
	log     *slog.Logger
}

func New(cfg Config, registry rpc.Registry) *Decider {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return NewWithClient(cfg, registry, openai.NewClientWithConfig(clientCfg))
}

func NewWithClient(cfg Config, registry rpc.Registry, client ChatClient) *Decider {
	return &Decider{
		client:  client,
		cfg:     cfg,
		tools:   toolsFor(registry),
		retry:   resilience.NewRetryPolicy(cfg.Retries, cfg.RetryBackoff),
		breaker: resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		obs:     metrics.NoopObserver{},
		log:     slog.Default().With("component", "agent_decider"),
	}
}

func (d *Decider) Name() string { return "agent_decider" }

func (d *Decider) SetObserver(obs metrics.Observer) {
	if obs != nil {
		d.obs = obs
	}
}

// Process forwards everything; final remote-agent utterances additionally go
// through the model and may append invoke control frames.
func (d *Decider) Process(f frames.Frame) ([]frames.Frame, error) {
	out := []frames.Frame{f}
	tf, ok := f.(frames.TranscriptFrame)
	if !ok || !tf.IsFinal() || tf.Role() != frames.RoleAgent {
		return out, nil
	}
	meta := tf.Meta()
	invokes, err := d.Decide(context.Background(), meta[frames.MetaSessionID], meta[frames.MetaTraceID], tf.Text())
	if err != nil {
		d.log.Warn("agent_decide_failed", "reason", errorsx.Reason(err), "err", err)
		return out, nil
	}
	return append(out, invokes...), nil
}

// Decide asks the model about one utterance and returns invoke control frames
// for each returned tool call.
func (d *Decider) Decide(ctx context.Context, sessionID, traceID, text string) ([]frames.Frame, error) {
	if text == "" {
		return nil, nil
	}
	if !d.breaker.Allow() {
		d.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventBreakerOpen,
			Time: time.Now(),
			Tags: map[string]string{frames.MetaSessionID: sessionID, "component": "agent_decider"},
		})
		return nil, errorsx.Wrap(errors.New("agent circuit open"), errorsx.ReasonAgentCircuitOpen)
	}

	req := openai.ChatCompletionRequest{
		Model: d.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Tools:       d.tools,
		Temperature: d.cfg.Temperature,
	}

	var resp openai.ChatCompletionResponse
	err := d.retry.Do(func() error {
		cctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
		var callErr error
		resp, callErr = d.client.CreateChatCompletion(cctx, req)
		return callErr
	})
	if err != nil {
		// Upstream completion failures are transient from the breaker's view.
		d.breaker.OnError(resilience.TransientError{Source: "agent_decider", Message: err.Error()})
		return nil, errorsx.Wrap(err, errorsx.ReasonAgentDecide)
	}
	d.breaker.OnSuccess()

	if len(resp.Choices) == 0 {
		return nil, errorsx.Wrap(errors.New("no completion choices"), errorsx.ReasonAgentDecide)
	}
	var out []frames.Frame
	for _, call := range resp.Choices[0].Message.ToolCalls {
		if call.Function.Name == "" {
			continue
		}
		callID := call.ID
		if callID == "" {
			callID = uuid.NewString()
		}
		meta := map[string]string{
			frames.MetaProcCallID: callID,
			frames.MetaProcName:   call.Function.Name,
			frames.MetaProcArgs:   call.Function.Arguments,
			frames.MetaSource:     "agent_decider",
		}
		if traceID != "" {
			meta[frames.MetaTraceID] = traceID
		}
		out = append(out, frames.NewControlFrame(sessionID, time.Now().UnixNano(), frames.ControlInvoke, meta))
		d.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventAgentDecision,
			Time: time.Now(),
			Tags: map[string]string{
				frames.MetaSessionID: sessionID,
				frames.MetaProcName:  call.Function.Name,
			},
		})
	}
	return out, nil
}

func toolsFor(registry rpc.Registry) []openai.Tool {
	if registry == nil {
		return nil
	}
	procs := registry.Procs()
	tools := make([]openai.Tool, 0, len(procs))
	for _, p := range procs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        p.Name,
				Description: p.Description,
				Parameters:  paramsFor(p.Name),
			},
		})
	}
	return tools
}

func paramsFor(name string) json.RawMessage {
	if name == "set_color" {
		return json.RawMessage(`{"type":"object","properties":{"color":{"type":"string","description":"lowercase color name"}},"required":["color"]}`)
	}
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

var _ pipeline.FrameProcessor = (*Decider)(nil)
