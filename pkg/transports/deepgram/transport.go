package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/colorcue/colorcue/pkg/errorsx"
	"github.com/colorcue/colorcue/pkg/frames"
	"github.com/colorcue/colorcue/pkg/logging"
	"github.com/colorcue/colorcue/pkg/transports"
)

type Config struct {
	APIKey         string
	Model          string
	Language       string
	SampleRate     int
	Encoding       string
	Interim        bool
	UtteranceEndMS int
	SessionID      string
	TraceID        string
	// Role stamped on every transcript frame coming off this connection.
	Role frames.Role
}

// Transport streams live transcription events from Deepgram and converts them
// into transcript frames. Callers feed raw audio through WriteAudio; each
// Deepgram final (or utterance-end event) closes the current utterance id.
type Transport struct {
	cfg        Config
	dgClient   *client.WSCallback
	out        chan frames.Frame
	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	metaLogged bool
	logger     *slog.Logger

	mu          sync.Mutex
	utteranceID string
}

func New(cfg Config) *Transport {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Role == "" {
		cfg.Role = frames.RoleAgent
	}
	return &Transport{
		cfg:    cfg,
		out:    make(chan frames.Frame, 256),
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_transport"),
	}
}

func (t *Transport) Name() string { return "deepgram" }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{"model": t.cfg.Model, "language": t.cfg.Language}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.pipeReader, t.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          t.cfg.Model,
		Language:       t.cfg.Language,
		Encoding:       t.cfg.Encoding,
		SampleRate:     t.cfg.SampleRate,
		InterimResults: t.cfg.Interim,
		SmartFormat:    true,
	}
	if t.cfg.UtteranceEndMS > 0 {
		transcriptOptions.UtteranceEndMs = fmt.Sprintf("%d", t.cfg.UtteranceEndMS)
	}

	t.logger.Info("initializing deepgram connection",
		slog.String("session_id", t.cfg.SessionID),
		slog.String("model", t.cfg.Model),
		slog.Int("sample_rate", t.cfg.SampleRate))

	cb := &callback{parent: t}
	dgClient, err := client.NewWSUsingCallback(t.ctx, t.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		t.logger.Error("deepgram_client_create_error",
			slog.String("error", err.Error()),
			slog.String("session_id", t.cfg.SessionID))
		return errorsx.Wrap(err, errorsx.ReasonTransportConnect)
	}
	t.dgClient = dgClient

	if connected := t.dgClient.Connect(); !connected {
		t.logger.Error("deepgram_connect_failed",
			slog.String("session_id", t.cfg.SessionID))
		return errorsx.Wrap(fmt.Errorf("deepgram connection failed"), errorsx.ReasonTransportConnect)
	}
	t.logger.Info("deepgram_connected",
		slog.String("session_id", t.cfg.SessionID),
		slog.String("model", t.cfg.Model))

	go func() {
		if err := t.dgClient.Stream(t.pipeReader); err != nil && t.ctx.Err() == nil {
			t.logger.Error("deepgram_stream_error",
				slog.String("error", err.Error()),
				slog.String("session_id", t.cfg.SessionID))
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.logger.Info("closing deepgram connection",
		slog.String("session_id", t.cfg.SessionID))
	if t.cancel != nil {
		t.cancel()
	}
	if t.pipeWriter != nil {
		_ = t.pipeWriter.Close()
	}
	if t.dgClient != nil {
		t.dgClient.Stop()
	}
	return nil
}

func (t *Transport) Recv() <-chan frames.Frame { return t.out }

// Send is a no-op: Deepgram is an ingest-only transport; signal delivery
// happens on whichever transport faces the UI client.
func (t *Transport) Send(frames.Frame) error { return nil }

// WriteAudio forwards raw audio bytes to the live transcription stream.
func (t *Transport) WriteAudio(p []byte) (int, error) {
	if t.pipeWriter == nil {
		return 0, fmt.Errorf("not started")
	}
	n, err := t.pipeWriter.Write(p)
	if err != nil {
		t.logger.Error("failed to send audio to deepgram",
			slog.String("error", err.Error()),
			slog.String("session_id", t.cfg.SessionID))
		return n, errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	return n, nil
}

// currentUtterance returns the active utterance id, minting one when a new
// utterance begins.
func (t *Transport) currentUtterance() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.utteranceID == "" {
		t.utteranceID = uuid.NewString()
	}
	return t.utteranceID
}

func (t *Transport) closeUtterance() {
	t.mu.Lock()
	t.utteranceID = ""
	t.mu.Unlock()
}

func (t *Transport) baseMeta() map[string]string {
	meta := map[string]string{
		frames.MetaSource: "deepgram",
	}
	if t.cfg.TraceID != "" {
		meta[frames.MetaTraceID] = t.cfg.TraceID
	}
	return meta
}

func (t *Transport) emit(f frames.Frame) {
	select {
	case t.out <- f:
	default:
		t.logger.Warn("deepgram_out_channel_full",
			slog.String("session_id", t.cfg.SessionID))
	}
}

type callback struct {
	parent *Transport
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram_connection_opened",
		slog.String("session_id", c.parent.cfg.SessionID))
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}
	isFinal := mr.IsFinal || mr.SpeechFinal

	utteranceID := c.parent.currentUtterance()
	meta := c.parent.baseMeta()
	if isFinal {
		meta[frames.MetaIsFinal] = "true"
	} else {
		meta[frames.MetaIsFinal] = "false"
	}

	c.parent.logger.Debug("transcript_received",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.String("utterance_id", utteranceID),
		slog.Bool("is_final", isFinal))

	f := frames.NewTranscriptFrame(c.parent.cfg.SessionID, time.Now().UnixNano(), transcript, c.parent.cfg.Role, utteranceID, isFinal, meta)
	c.parent.emit(f)

	if isFinal {
		c.parent.closeUtterance()
	}
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.logger.Info("deepgram_metadata_received",
			slog.String("session_id", c.parent.cfg.SessionID),
			slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.parent.logger.Debug("speech_started_event",
		slog.String("session_id", c.parent.cfg.SessionID))
	return nil
}

// UtteranceEnd closes the running utterance even when no final transcript
// arrived, so silence still releases extractor state.
func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	utteranceID := c.parent.currentUtterance()
	c.parent.closeUtterance()

	meta := c.parent.baseMeta()
	meta[frames.MetaUtteranceID] = utteranceID
	meta[frames.MetaReason] = "utterance_end"

	c.parent.logger.Info("utterance_end_event",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.String("utterance_id", utteranceID))

	f := frames.NewControlFrame(c.parent.cfg.SessionID, time.Now().UnixNano(), frames.ControlUtteranceEnd, meta)
	c.parent.emit(f)
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed",
		slog.String("session_id", c.parent.cfg.SessionID))
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.String("data", string(byData)))
	return nil
}

var _ transports.Transport = (*Transport)(nil)
var _ transports.ReadyReporter = (*Transport)(nil)
