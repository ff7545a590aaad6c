package wsjson

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/colorcue/colorcue/pkg/errorsx"
	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/logging"
	"github.com/colorcue/colorcue/pkg/resilience"
	"github.com/colorcue/colorcue/pkg/transports"
)

// Envelope is the JSON wire format shared with UI clients. One message per
// frame; unknown types are ignored so clients can evolve ahead of the server.
type Envelope struct {
	Type           string          `json:"type"`
	SessionID      string          `json:"session_id,omitempty"`
	UtteranceID    string          `json:"utterance_id,omitempty"`
	Text           string          `json:"text,omitempty"`
	Role           string          `json:"role,omitempty"`
	IsFinal        bool            `json:"is_final,omitempty"`
	Label          string          `json:"label,omitempty"`
	ConfirmedFinal bool            `json:"confirmed_final,omitempty"`
	CallID         string          `json:"call_id,omitempty"`
	Proc           string          `json:"proc,omitempty"`
	Args           json.RawMessage `json:"args,omitempty"`
	Status         string          `json:"status,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
}

const (
	TypeSegment    = "segment"
	TypeSessionEnd = "session_end"
	TypeInvoke     = "invoke"
	TypeSignal     = "signal"
	TypeProcResult = "proc_result"
)

type Config struct {
	URL            string
	SessionID      string
	DialTimeout    time.Duration
	ReconnectMax   int
	ReconnectDelay time.Duration
}

// Transport speaks the envelope protocol over a websocket it dials out to.
// Read errors trigger reconnection with linear backoff until Stop.
type Transport struct {
	cfg    Config
	recvCh chan frames.Frame
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	pts    *frames.PTSGen
	retry  resilience.RetryPolicy
	logger *slog.Logger

	// reading is set once readLoop owns recvCh; from then on only the
	// reader closes it, so a late inbound message cannot hit a closed channel.
	reading atomic.Bool

	writeMu sync.Mutex
	connMu  sync.Mutex
}

func New(cfg Config) *Transport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 3
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 500 * time.Millisecond
	}
	return &Transport{
		cfg:    cfg,
		recvCh: make(chan frames.Frame, 256),
		pts:    frames.NewPTSGen(),
		retry:  resilience.NewRetryPolicy(cfg.ReconnectMax, cfg.ReconnectDelay),
		logger: logging.NewComponentLogger(slog.Default(), "wsjson_transport"),
	}
}

func (t *Transport) Name() string { return "wsjson" }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{"url": t.cfg.URL}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	if err := t.dial(); err != nil {
		return err
	}
	t.reading.Store(true)
	go t.readLoop()
	return nil
}

func (t *Transport) Stop() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.connMu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.connMu.Unlock()
	if !t.reading.Load() {
		close(t.recvCh)
	}
	return nil
}

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) Send(f frames.Frame) error {
	if t.closed.Load() {
		return nil
	}
	env, ok := envelopeFor(f)
	if !ok {
		return nil
	}
	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()
	if conn == nil {
		return errorsx.Wrap(resilience.TransientError{Source: "wsjson", Message: "not connected"}, errorsx.ReasonTransportSend)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	return nil
}

func (t *Transport) dial() error {
	err := t.retry.Do(func() error {
		dialer := websocket.Dialer{HandshakeTimeout: t.cfg.DialTimeout}
		conn, _, err := dialer.DialContext(t.ctx, t.cfg.URL, nil)
		if err != nil {
			return err
		}
		t.connMu.Lock()
		t.conn = conn
		t.connMu.Unlock()
		return nil
	})
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportConnect)
	}
	t.logger.Info("connected", "url", t.cfg.URL)
	return nil
}

func (t *Transport) readLoop() {
	defer close(t.recvCh)
	traceID := uuid.NewString()
	for {
		if t.closed.Load() || t.ctx.Err() != nil {
			return
		}
		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if t.closed.Load() || t.ctx.Err() != nil {
				return
			}
			// A decode failure leaves the socket usable; drop the message.
			if isDecodeError(err) {
				t.logger.Warn("decode_failed", "err", errorsx.Wrap(err, errorsx.ReasonTransportDecode))
				continue
			}
			t.logger.Warn("read_failed", "err", err)
			if dialErr := t.dial(); dialErr != nil {
				t.logger.Error("reconnect_failed", "err", dialErr)
				_ = t.Stop()
				return
			}
			traceID = uuid.NewString()
			continue
		}
		f, ok := t.frameFor(env, traceID)
		if !ok {
			continue
		}
		select {
		case t.recvCh <- f:
		default:
			t.logger.Warn("recv_channel_full", "type", env.Type)
		}
	}
}

func isDecodeError(err error) bool {
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syn) || errors.As(err, &typ) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (t *Transport) frameFor(env Envelope, traceID string) (frames.Frame, bool) {
	sessionID := env.SessionID
	if sessionID == "" {
		sessionID = t.cfg.SessionID
	}
	switch env.Type {
	case TypeSegment:
		role := frames.Role(env.Role)
		if role == "" {
			role = frames.RoleAgent
		}
		meta := map[string]string{
			frames.MetaSource:  "wsjson",
			frames.MetaTraceID: traceID,
		}
		return frames.NewTranscriptFrame(sessionID, t.pts.Next(sessionID), env.Text, role, env.UtteranceID, env.IsFinal, meta), true
	case TypeSessionEnd:
		return frames.NewSystemFrame(sessionID, time.Now().UnixNano(), "session_end", map[string]string{
			frames.MetaSource:  "wsjson",
			frames.MetaTraceID: traceID,
		}), true
	case TypeInvoke:
		callID := env.CallID
		if callID == "" {
			callID = uuid.NewString()
		}
		return frames.NewControlFrame(sessionID, time.Now().UnixNano(), frames.ControlInvoke, map[string]string{
			frames.MetaProcCallID: callID,
			frames.MetaProcName:   env.Proc,
			frames.MetaProcArgs:   string(env.Args),
			frames.MetaSource:     "wsjson",
			frames.MetaTraceID:    traceID,
		}), true
	default:
		return nil, false
	}
}

func envelopeFor(f frames.Frame) (Envelope, bool) {
	switch f.Kind() {
	case frames.KindSignal:
		sf := f.(frames.SignalFrame)
		return Envelope{
			Type:           TypeSignal,
			SessionID:      sf.Meta()[frames.MetaSessionID],
			UtteranceID:    sf.UtteranceID(),
			Label:          sf.Label(),
			ConfirmedFinal: sf.ConfirmedFinal(),
		}, true
	case frames.KindSystem:
		sf := f.(frames.SystemFrame)
		if sf.Name() != "proc_result" {
			return Envelope{}, false
		}
		meta := sf.Meta()
		env := Envelope{
			Type:      TypeProcResult,
			SessionID: meta[frames.MetaSessionID],
			CallID:    meta[frames.MetaProcCallID],
			Proc:      meta[frames.MetaProcName],
			Status:    meta[frames.MetaProcStatus],
			Error:     meta[frames.MetaProcError],
		}
		if res := meta[frames.MetaProcResult]; res != "" && json.Valid([]byte(res)) {
			env.Result = json.RawMessage(res)
		}
		return env, true
	default:
		return Envelope{}, false
	}
}

var _ transports.Transport = (*Transport)(nil)
var _ transports.ReadyReporter = (*Transport)(nil)
